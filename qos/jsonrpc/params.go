package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Params represents the 'params' field in a JSON-RPC request.
// It accepts a JSON array or object, and validates only the JSON shape.
//
// See the below link on JSONRPC spec for more details:
// https://www.jsonrpc.org/specification#parameter_structures
type Params struct {
	// rawMessage stores the value of the params field, e.g. ["0x1b4", true].
	// It is kept private to ensure all values pass through JSON validation.
	rawMessage json.RawMessage
}

// MarshalJSON returns the raw params.
func (p Params) MarshalJSON() ([]byte, error) {
	return p.rawMessage, nil
}

// UnmarshalJSON rejects anything other than an array or an object.
func (p *Params) UnmarshalJSON(data []byte) error {
	var checkType any
	if err := json.Unmarshal(data, &checkType); err != nil {
		return fmt.Errorf("failed to unmarshal params field: %w", err)
	}

	switch checkType.(type) {
	case []any, map[string]any:
		p.rawMessage = append(json.RawMessage(nil), data...)
		return nil
	default:
		return fmt.Errorf("params must be either array or object, got %T", checkType)
	}
}

// IsEmpty returns true when params contains no data.
// The request marshaler uses this to omit the params field.
func (p Params) IsEmpty() bool {
	return len(p.rawMessage) == 0
}
