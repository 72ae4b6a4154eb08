package profile

import (
	"encoding/json"
	"strings"

	"github.com/firasghr/goantidetect/model"
	"github.com/firasghr/goantidetect/payload"
)

// Mismatch re-exports payload.Mismatch under the profile package so callers
// of Store.Load don't need to import payload directly for this one type.
type Mismatch = payload.Mismatch

// SchemaChecker compares a loaded profile envelope's field set against the
// shape the current code expects, using payload.Validator - originally
// built to catch an upstream API silently changing its response shape,
// repointed here at a profile envelope silently drifting between code
// versions instead of between HTTP responses.
type SchemaChecker struct {
	validator *payload.Validator
}

// NewSchemaChecker builds a checker whose baseline is the current code's own
// BrowserProfile envelope shape. The baseline profile is populated with one
// representative, non-zero value per field rather than left at Go's zero
// values: a nil slice or map marshals to JSON null and would spuriously
// mismatch every real envelope's populated array/object, defeating the
// whole point of a structural check.
func NewSchemaChecker() *SchemaChecker {
	v := payload.NewValidator()
	baseline, err := json.Marshal(envelope{Version: envelopeVersion, Profile: referenceProfile()})
	if err == nil {
		_ = v.Learn(baseline)
	}
	return &SchemaChecker{validator: v}
}

// referenceProfile returns a BrowserProfile with every field populated by a
// placeholder of the right JSON type, used only to derive the schema
// baseline - the values themselves are never read.
func referenceProfile() model.BrowserProfile {
	return model.BrowserProfile{
		ID: "reference",
		Fingerprint: model.Fingerprint{
			ID: "reference",
			Navigator: model.Navigator{
				Languages: []string{"en-US"},
			},
			Fonts:   []string{"Arial"},
			Plugins: []string{"PDF Viewer"},
		},
		Egress:         &model.Egress{},
		Cookies:        []model.Cookie{{}},
		LocalStorage:   map[string]string{"key": "value"},
		SessionStorage: map[string]string{"key": "value"},
	}
}

// Check compares raw (a loaded envelope's JSON bytes) against the baseline
// shape and returns any mismatches. It never fails a load - drift is
// reported, not enforced - but a caller wiring in logging should treat a
// non-empty result as loud enough to warrant an operator's attention, since
// a later code change silently reading zero-valued fields is exactly the
// failure mode this is meant to surface before it happens.
func (c *SchemaChecker) Check(raw []byte) ([]payload.Mismatch, error) {
	mismatches, err := c.validator.Validate(raw)
	if err != nil {
		return nil, err
	}
	// Local and session storage are free-form key/value maps: their keys are
	// page data, not envelope structure, so per-key differences are not drift.
	out := mismatches[:0]
	for _, m := range mismatches {
		if strings.HasPrefix(m.Field, "profile.local_storage.") || strings.HasPrefix(m.Field, "profile.session_storage.") {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
