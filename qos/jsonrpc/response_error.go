package jsonrpc

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/buildwithgrove/ledgerclient/protocol"
)

// ResponseError captures a JSONRPC response error struct
// See the following link for more details:
// https://www.jsonrpc.org/specification#error_object
type ResponseError struct {
	// A Number that indicates the error type that occurred.
	Code int `json:"code"`
	// A String providing a short description of the error.
	Message string `json:"message"`
	// A Primitive or Structured value that contains additional information about the error.
	// Reverted eth_call responses carry the ABI-encoded revert data here.
	Data any `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// ErrorKind classifies the error by its code.
func (e *ResponseError) ErrorKind() protocol.ErrorKind {
	return KindForCode(e.Code)
}

// RevertData returns the hex revert payload of an execution-reverted error, if any.
func (e *ResponseError) RevertData() (string, bool) {
	data, ok := e.Data.(string)
	if !ok || len(data) < 2 || data[:2] != "0x" {
		return "", false
	}
	return data, true
}

// HasCode reports whether the first ResponseError in err's chain carries code.
func HasCode(err error, code int) bool {
	var responseErr *ResponseError
	return errors.As(err, &responseErr) && responseErr.Code == code
}

// RevertDataOf returns the decoded revert payload carried by the first ResponseError in err's chain.
func RevertDataOf(err error) ([]byte, bool) {
	var responseErr *ResponseError
	if !errors.As(err, &responseErr) {
		return nil, false
	}

	data, ok := responseErr.RevertData()
	if !ok {
		return nil, false
	}

	bz, decodeErr := hexutil.Decode(data)
	if decodeErr != nil {
		return nil, false
	}
	return bz, true
}
