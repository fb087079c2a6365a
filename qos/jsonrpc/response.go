package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

var errResultFieldMissing = errors.New("result field is missing")

// Response captures all the fields of a JSONRPC response.
// See the following link for more details:
// https://www.jsonrpc.org/specification#response_object
type Response struct {
	ID      ID      `json:"id"`
	Version Version `json:"jsonrpc"`
	// Result is nil when the field is absent, and points to `null` when the field is an explicit null.
	// The two are different: eth_getTransactionReceipt returns an explicit null for a pending transaction.
	Result *json.RawMessage `json:"result,omitempty"`
	Error  *ResponseError   `json:"error,omitempty"`
}

// UnmarshalJSON keeps an explicit `"result": null` distinguishable from a missing result field.
func (r *Response) UnmarshalJSON(data []byte) error {
	type responseAlias Response
	var alias responseAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	if raw, ok := fields["result"]; ok {
		result := append(json.RawMessage(nil), raw...)
		alias.Result = &result
	}

	*r = Response(alias)
	return nil
}

// Validate checks the response against the ID of the request it answers.
// Exactly one of result and error must be present.
func (r Response) Validate(reqID ID) error {
	if r.Version != Version2 {
		return fmt.Errorf("invalid JSONRPC response: jsonrpc field is %q, expected %q", r.Version, Version2)
	}

	if !r.ID.Equal(reqID) {
		return fmt.Errorf("invalid JSONRPC response: id %s does not match request id %s", r.ID, reqID)
	}

	if r.Result != nil && r.Error != nil {
		return errors.New("invalid JSONRPC response: both result and error fields are set")
	}

	if r.Result == nil && r.Error == nil {
		return errors.New("invalid JSONRPC response: neither result nor error field is set")
	}

	return nil
}

// IsError returns true if the response carries an error object.
func (r Response) IsError() bool {
	return r.Error != nil
}

// IsNullResult returns true for an explicit `"result": null`.
func (r Response) IsNullResult() bool {
	return r.Result != nil && string(*r.Result) == "null"
}

func (r Response) GetResultAsBytes() ([]byte, error) {
	if r.Result == nil {
		return nil, errResultFieldMissing
	}
	return *r.Result, nil
}

// UnmarshalResult decodes the result field into target.
func (r Response) UnmarshalResult(target any) error {
	if r.Result == nil {
		return errResultFieldMissing
	}
	return json.Unmarshal(*r.Result, target)
}

// GetErrorResponse is a helper function that builds a JSONRPC Response using the supplied ID and error values.
func GetErrorResponse(id ID, errCode int, errMsg string, errData any) Response {
	return Response{
		ID:      id,
		Version: Version2,
		Error: &ResponseError{
			Code:    errCode,
			Message: errMsg,
			Data:    errData,
		},
	}
}

// GetResultResponse builds a successful JSONRPC Response, marshaling result as the result field.
func GetResultResponse(id ID, result any) (Response, error) {
	resultBz, err := json.Marshal(result)
	if err != nil {
		return Response{}, err
	}
	raw := json.RawMessage(resultBz)
	return Response{
		ID:      id,
		Version: Version2,
		Result:  &raw,
	}, nil
}
