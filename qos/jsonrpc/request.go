package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Method is the method specified by a JSONRPC request.
// See the following link for more details:
// https://www.jsonrpc.org/specification
type Method string
type Version string

const Version2 = Version("2.0")

// Request represents a JSON-RPC 2.0 request.
//
// Specification requirements:
//   - jsonrpc: must be "2.0"
//   - method: string containing the method name
//   - params: structured values (array or object), optional
//   - id: identifier for correlation, always included (null if unset)
//
// Reference: https://www.jsonrpc.org/specification#request_object
type Request struct {
	ID      ID      `json:"id"`
	JSONRPC Version `json:"jsonrpc"`
	Method  Method  `json:"method"`
	Params  Params  `json:"params,omitempty"`
}

// NewRequest builds a request with a fresh ID.
// params is marshaled as-is and must serialize to a JSON array or object; nil means no params.
func NewRequest(method Method, params any) (Request, error) {
	req := Request{
		ID:      NextID(),
		JSONRPC: Version2,
		Method:  method,
	}

	if params == nil {
		return req, nil
	}

	paramsBz, err := json.Marshal(params)
	if err != nil {
		return Request{}, fmt.Errorf("marshaling params of %s: %w", method, err)
	}

	if err := req.Params.UnmarshalJSON(paramsBz); err != nil {
		return Request{}, fmt.Errorf("invalid params of %s: %w", method, err)
	}

	return req, nil
}

// MarshalJSON implements json.Marshaler interface.
// Always includes the ID field for JSON-RPC 2.0 compliance.
// Unset IDs are serialized as null.
func (r Request) MarshalJSON() ([]byte, error) {
	type requestAlias struct {
		JSONRPC Version `json:"jsonrpc"`
		Method  Method  `json:"method"`
		Params  *Params `json:"params,omitempty"`
		ID      ID      `json:"id"`
	}

	out := requestAlias{
		JSONRPC: r.JSONRPC,
		Method:  r.Method,
		ID:      r.ID,
	}

	if !r.Params.IsEmpty() {
		out.Params = &r.Params
	}

	return json.Marshal(out)
}
