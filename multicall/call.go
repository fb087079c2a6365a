package multicall

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/buildwithgrove/ledgerclient/protocol"
)

// Call is one logical read: a contract method called with its arguments.
type Call struct {
	Target common.Address
	Method abi.Method
	Args   []any
}

// NewCall looks up method in contractABI and builds a call to it.
func NewCall(target common.Address, contractABI abi.ABI, method string, args ...any) (Call, error) {
	m, ok := contractABI.Methods[method]
	if !ok {
		return Call{}, protocol.NewError(protocol.KindMethodUnavailable, "", fmt.Errorf("method %q is not in the contract ABI", method))
	}
	return Call{Target: target, Method: m, Args: args}, nil
}

// Encode returns the call's ABI-encoded calldata.
func (c Call) Encode() ([]byte, error) {
	packed, err := c.Method.Inputs.Pack(c.Args...)
	if err != nil {
		return nil, protocol.NewError(protocol.KindMalformedArgs, "", fmt.Errorf("encoding %s arguments: %w", c.Method.Name, err))
	}
	return append(append([]byte{}, c.Method.ID...), packed...), nil
}

// Decode decodes the call's result. See Result.Decode.
func (c Call) Decode(result Result) ([]any, error) {
	return result.Decode(c.Method)
}

// Result is the outcome of one call of a batch.
type Result struct {
	Success    bool
	ReturnData []byte

	// err is set when the call failed before reaching the ledger.
	err error
}

var errCallFailed = errors.New("call failed")

// Decode ABI-decodes the result's return data as the outputs of method.
// It has no side effects: decoding the same result twice yields equal values.
//
// A failed call decodes to an execution_reverted error carrying the revert reason when
// the return data holds one; a return data not matching the method's outputs decodes to
// a malformed_args error.
func (r Result) Decode(method abi.Method) ([]any, error) {
	if r.err != nil {
		return nil, r.err
	}

	if !r.Success {
		return nil, r.revertError(method.Name)
	}

	values, err := method.Outputs.Unpack(r.ReturnData)
	if err != nil {
		return nil, protocol.NewError(protocol.KindMalformedArgs, "", fmt.Errorf("decoding %s return data: %w", method.Name, err))
	}
	return values, nil
}

// Err returns the error the call failed with, or nil if it succeeded.
func (r Result) Err() error {
	if r.err != nil {
		return r.err
	}
	if !r.Success {
		return r.revertError("call")
	}
	return nil
}

func (r Result) revertError(name string) error {
	err := errCallFailed
	if reason, unpackErr := abi.UnpackRevert(r.ReturnData); unpackErr == nil {
		err = fmt.Errorf("%w: %s", errCallFailed, reason)
	}
	return protocol.NewError(protocol.KindExecutionReverted, "", fmt.Errorf("%s: %w", name, err))
}
