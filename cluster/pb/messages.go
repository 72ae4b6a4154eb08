// Package pb defines the wire messages and service interface for the
// MasterController cluster coordination service.
//
// Unlike most grpc services in the wild, these message types are not
// generated by protoc: the service is registered with a JSON codec (see
// codec.go) instead of the default protobuf wire format, so plain Go structs
// with json tags serve directly as the message types. This keeps the package
// dependency-free beyond grpc itself while still riding grpc's connection
// management, streaming, and status/codes machinery unchanged.
package pb

// UniquenessKey identifies one dimension of session uniqueness that has
// already been claimed somewhere in the cluster — a fingerprint hash, an
// egress host:port pair, a canvas noise seed, etc. Kind names the dimension
// and Value is the claimed value within it.
type UniquenessKey struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// SessionStatus is one node's report of a session's lifecycle state.
type SessionStatus struct {
	SessionId   string `json:"session_id"`
	PcId        string `json:"pc_id"`
	State       string `json:"state"`
	UpdatedUnix int64  `json:"updated_unix"`
}

// BroadcastKeysRequest uploads newly claimed uniqueness keys from one node.
type BroadcastKeysRequest struct {
	PcId string           `json:"pc_id"`
	Keys []*UniquenessKey `json:"keys"`
}

// BroadcastKeysResponse acknowledges a BroadcastKeys call.
type BroadcastKeysResponse struct {
	Accepted bool `json:"accepted"`
}

// GetAllKeysRequest requests a snapshot of every claimed uniqueness key.
type GetAllKeysRequest struct {
	PcId string `json:"pc_id"`
}

// GetAllKeysResponse is a point-in-time snapshot of the global uniqueness set.
type GetAllKeysResponse struct {
	Keys    []*UniquenessKey `json:"keys"`
	Version int64            `json:"version"`
}

// WatchKeysRequest opens a streaming subscription to uniqueness set updates.
type WatchKeysRequest struct {
	PcId string `json:"pc_id"`
}

// UpdateStatusRequest reports a session lifecycle transition.
type UpdateStatusRequest struct {
	Status *SessionStatus `json:"status"`
}

// UpdateStatusResponse acknowledges an UpdateStatus call.
type UpdateStatusResponse struct {
	Ok bool `json:"ok"`
}

// GetAllStatusRequest requests a snapshot of every tracked session.
type GetAllStatusRequest struct{}

// GetAllStatusResponse is a point-in-time snapshot of every tracked session.
type GetAllStatusResponse struct {
	Sessions []*SessionStatus `json:"sessions"`
}
