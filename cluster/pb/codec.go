package pb

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the content-subtype advertised on every RPC in this package
// (wire messages become "application/grpc+json" instead of "application/grpc+proto").
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements encoding.Codec using encoding/json, so the plain Go
// structs in messages.go can travel over grpc without a protoc step.
type jsonCodec struct{}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
