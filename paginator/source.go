package paginator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/buildwithgrove/ledgerclient/multicall"
	"github.com/buildwithgrove/ledgerclient/protocol"
)

// ContractSource reads records from a contract exposing a record count and an id-indexed getter.
// Record ids run from 0 to count-1.
type ContractSource[R any] struct {
	Address common.Address
	ABI     abi.ABI
	// CountMethod takes no argument and returns the number of records as a uint256.
	CountMethod string
	// RecordMethod takes the record id as a uint256.
	RecordMethod string
	Reader       BatchReader

	// DecodeRecord builds a record from the getter's outputs.
	// If nil, the outputs are copied by name into the fields of R, which must be a struct.
	DecodeRecord func(id uint64, values []any) (R, error)
	// Terminal reports whether a record can no longer change. If nil, every record is terminal.
	Terminal func(record R) bool
}

var _ Source[struct{}] = &ContractSource[struct{}]{}

// Latest returns count-1.
func (s *ContractSource[R]) Latest(ctx context.Context) (uint64, error) {
	call, err := multicall.NewCall(s.Address, s.ABI, s.CountMethod)
	if err != nil {
		return 0, err
	}

	results, err := s.Reader.ReadAll(ctx, []multicall.Call{call})
	if err != nil {
		return 0, err
	}
	if len(results) != 1 {
		return 0, protocol.NewError(protocol.KindMalformedArgs, "", fmt.Errorf("%s: got %d results for 1 call", s.CountMethod, len(results)))
	}

	values, err := call.Decode(results[0])
	if err != nil {
		return 0, err
	}

	count, ok := values[0].(*big.Int)
	if !ok || !count.IsUint64() {
		return 0, protocol.NewError(protocol.KindMalformedArgs, "", fmt.Errorf("%s: unexpected count %v", s.CountMethod, values[0]))
	}
	if count.Sign() == 0 {
		return 0, ErrNoRecords
	}
	return count.Uint64() - 1, nil
}

func (s *ContractSource[R]) Calls(id uint64) ([]multicall.Call, error) {
	call, err := multicall.NewCall(s.Address, s.ABI, s.RecordMethod, new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	return []multicall.Call{call}, nil
}

func (s *ContractSource[R]) Decode(id uint64, results []multicall.Result) (R, error) {
	var zero R

	if len(results) != 1 {
		return zero, protocol.NewError(protocol.KindMalformedArgs, "", fmt.Errorf("record %d: got %d results for 1 call", id, len(results)))
	}

	method := s.ABI.Methods[s.RecordMethod]
	values, err := results[0].Decode(method)
	if err != nil {
		return zero, fmt.Errorf("record %d: %w", id, err)
	}

	if s.DecodeRecord != nil {
		return s.DecodeRecord(id, values)
	}
	return UnpackRecord[R](method, values)
}

func (s *ContractSource[R]) IsTerminal(record R) bool {
	if s.Terminal == nil {
		return true
	}
	return s.Terminal(record)
}

// UnpackRecord copies the decoded outputs of method into the fields of a struct R, matching
// output names to field names. An output without a matching field fails with a malformed_args error.
func UnpackRecord[R any](method abi.Method, values []any) (record R, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = protocol.NewError(protocol.KindMalformedArgs, "", fmt.Errorf("unpacking %s outputs: %v", method.Name, recovered))
		}
	}()

	if err := method.Outputs.Copy(&record, values); err != nil {
		var zero R
		return zero, protocol.NewError(protocol.KindMalformedArgs, "", fmt.Errorf("unpacking %s outputs: %w", method.Name, err))
	}
	return record, nil
}
