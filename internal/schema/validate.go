package schema

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/jsonschema-go/jsonschema"

	muxerrors "github.com/toolmux/toolmux/internal/errors"
)

// Validator checks tool-call arguments against a compiled parameter schema.
// It backs the pass-through provider path, where the schema is published
// unmodified and enforcement happens on the input instead.
type Validator struct {
	resolved *jsonschema.Resolved
}

// Compile parses and resolves a raw parameter schema into a Validator. A
// nil or empty schema compiles to a validator that accepts any object.
func Compile(raw json.RawMessage) (*Validator, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{"type":"object"}`)
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parsing tool schema"), muxerrors.ErrProtocol)
	}

	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "resolving tool schema"), muxerrors.ErrProtocol)
	}

	return &Validator{resolved: resolved}, nil
}

// Validate reports whether args conform to the compiled schema.
func (v *Validator) Validate(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	if err := v.resolved.Validate(args); err != nil {
		return errors.Wrap(err, "arguments do not match tool schema")
	}
	return nil
}
