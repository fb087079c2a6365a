package chaintest

import (
	"bytes"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/buildwithgrove/ledgerclient/multicall"
)

// TokenABI is the ERC-20 balance getter.
var TokenABI = mustParseABI(`[{
	"name": "balanceOf",
	"type": "function",
	"stateMutability": "view",
	"inputs": [{"name": "owner", "type": "address"}],
	"outputs": [{"name": "balance", "type": "uint256"}]
}]`)

// RecordStoreABI is a contract holding a dense sequence of records.
var RecordStoreABI = mustParseABI(`[{
	"name": "count",
	"type": "function",
	"stateMutability": "view",
	"inputs": [],
	"outputs": [{"name": "", "type": "uint256"}]
}, {
	"name": "records",
	"type": "function",
	"stateMutability": "view",
	"inputs": [{"name": "id", "type": "uint256"}],
	"outputs": [
		{"name": "owner", "type": "address"},
		{"name": "amount", "type": "uint256"},
		{"name": "status", "type": "uint8"}
	]
}]`)

// Token is an ERC-20 contract answering balanceOf from a fixed table.
// Owners missing from the table make the call revert.
func Token(balances map[common.Address]*big.Int) Contract {
	method := TokenABI.Methods["balanceOf"]
	return func(callData []byte) ([]byte, bool) {
		if len(callData) < 4 || !bytes.Equal(callData[:4], method.ID) {
			return RevertReason("unknown selector"), true
		}

		args, err := method.Inputs.Unpack(callData[4:])
		if err != nil {
			return RevertReason("bad arguments"), true
		}

		balance, ok := balances[args[0].(common.Address)]
		if !ok {
			return RevertReason("unknown owner"), true
		}

		returnData, err := method.Outputs.Pack(balance)
		if err != nil {
			panic(err)
		}
		return returnData, false
	}
}

// EthBalances answers Multicall3's getEthBalance from a fixed table. Deploy it at the
// Multicall3 address, after DeployMulticall, to serve batched native balance reads.
func EthBalances(balances map[common.Address]*big.Int) Contract {
	method := multicall.Multicall3.Methods["getEthBalance"]
	return func(callData []byte) ([]byte, bool) {
		if len(callData) < 4 || !bytes.Equal(callData[:4], method.ID) {
			return RevertReason("unknown selector"), true
		}

		args, err := method.Inputs.Unpack(callData[4:])
		if err != nil {
			return RevertReason("bad arguments"), true
		}

		balance, ok := balances[args[0].(common.Address)]
		if !ok {
			balance = new(big.Int)
		}

		returnData, err := method.Outputs.Pack(balance)
		if err != nil {
			panic(err)
		}
		return returnData, false
	}
}

// Record is one record of a RecordStore.
type Record struct {
	Owner  common.Address
	Amount *big.Int
	Status uint8
}

// RecordStore is a contract answering count and records from an in-memory sequence.
type RecordStore struct {
	mu      sync.Mutex
	records []Record
	// failing ids make records(id) revert.
	failing map[uint64]bool

	recordReads atomic.Int64
	readsByID   sync.Map
}

func NewRecordStore(records ...Record) *RecordStore {
	return &RecordStore{records: records, failing: make(map[uint64]bool)}
}

// Append adds a record with the next id.
func (s *RecordStore) Append(record Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

// SetStatus changes the status of record id.
func (s *RecordStore) SetStatus(id uint64, status uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id].Status = status
}

// Fail makes every read of record id revert.
func (s *RecordStore) Fail(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[id] = true
}

// Reads returns the number of reads of record id.
func (s *RecordStore) Reads(id uint64) int64 {
	counter, ok := s.readsByID.Load(id)
	if !ok {
		return 0
	}
	return counter.(*atomic.Int64).Load()
}

// TotalReads returns the number of record reads, for any id.
func (s *RecordStore) TotalReads() int64 {
	return s.recordReads.Load()
}

// Contract returns the contract serving the store.
func (s *RecordStore) Contract() Contract {
	countMethod := RecordStoreABI.Methods["count"]
	recordsMethod := RecordStoreABI.Methods["records"]

	return func(callData []byte) ([]byte, bool) {
		if len(callData) < 4 {
			return RevertReason("unknown selector"), true
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		switch {
		case bytes.Equal(callData[:4], countMethod.ID):
			returnData, err := countMethod.Outputs.Pack(big.NewInt(int64(len(s.records))))
			if err != nil {
				panic(err)
			}
			return returnData, false

		case bytes.Equal(callData[:4], recordsMethod.ID):
			args, err := recordsMethod.Inputs.Unpack(callData[4:])
			if err != nil {
				return RevertReason("bad arguments"), true
			}
			id := args[0].(*big.Int).Uint64()

			s.recordReads.Add(1)
			counter, _ := s.readsByID.LoadOrStore(id, &atomic.Int64{})
			counter.(*atomic.Int64).Add(1)

			if id >= uint64(len(s.records)) {
				return RevertReason("no such record"), true
			}
			if s.failing[id] {
				return RevertReason("record unavailable"), true
			}

			record := s.records[id]
			returnData, err := recordsMethod.Outputs.Pack(record.Owner, record.Amount, record.Status)
			if err != nil {
				panic(err)
			}
			return returnData, false
		}

		return RevertReason("unknown selector"), true
	}
}

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(err)
	}
	return parsed
}
