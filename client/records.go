package client

import (
	"fmt"
	"math/big"

	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/buildwithgrove/ledgerclient/config"
	"github.com/buildwithgrove/ledgerclient/paginator"
)

// Record is a record of the configured record contract, keyed by the record method's output names.
// Unnamed outputs are keyed by their position, e.g. "2".
type Record map[string]any

func newRecordPaginator(logger polylog.Logger, cfg *config.PaginationConfig, reader paginator.BatchReader) *paginator.Paginator[Record] {
	contractABI := cfg.ContractABI()
	recordMethod := contractABI.Methods[cfg.RecordMethod]

	source := &paginator.ContractSource[Record]{
		Address:      cfg.Address(),
		ABI:          contractABI,
		CountMethod:  cfg.CountMethod,
		RecordMethod: cfg.RecordMethod,
		Reader:       reader,
		DecodeRecord: func(_ uint64, values []any) (Record, error) {
			record := make(Record, len(values))
			for i, output := range recordMethod.Outputs {
				name := output.Name
				if name == "" {
					name = fmt.Sprint(i)
				}
				record[name] = values[i]
			}
			return record, nil
		},
		Terminal: func(record Record) bool {
			if cfg.StatusField == "" {
				return true
			}
			status, ok := toUint64(record[cfg.StatusField])
			return ok && cfg.IsTerminalStatus(status)
		},
	}

	return paginator.New[Record](logger, source, reader, cfg.Config)
}

// toUint64 converts the decoded value of an unsigned ABI integer.
func toUint64(value any) (uint64, bool) {
	switch v := value.(type) {
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	case *big.Int:
		if v.IsUint64() {
			return v.Uint64(), true
		}
	}
	return 0, false
}
