// Package journal records the writes that were submitted but not yet resolved,
// so that a restarted client can resume monitoring them instead of resubmitting.
package journal

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrNotFound = errors.New("pending operation not found")

// PendingOperation is a write that was accepted by the ledger and awaits a terminal outcome.
type PendingOperation struct {
	// Handle is the transaction hash.
	Handle      common.Hash `json:"handle"`
	Name        string      `json:"name"`
	SubmittedAt time.Time   `json:"submitted_at"`
	Deadline    time.Time   `json:"deadline"`
	// RawTx is the signed transaction, used to replay a reverted call for its reason.
	RawTx hexutil.Bytes `json:"raw_tx,omitempty"`
}

// Journal stores pending operations. Implementations are safe for concurrent use.
type Journal interface {
	// Record stores op, replacing any operation with the same handle.
	Record(ctx context.Context, op PendingOperation) error
	// Remove deletes the operation with the given handle. Removing an unknown handle is not an error.
	Remove(ctx context.Context, handle common.Hash) error
	// Get returns the operation with the given handle, or ErrNotFound.
	Get(ctx context.Context, handle common.Hash) (PendingOperation, error)
	// List returns every stored operation, oldest submission first.
	List(ctx context.Context) ([]PendingOperation, error)
}

var _ Journal = &Memory{}

// Memory is a Journal lost on restart.
type Memory struct {
	mu  sync.RWMutex
	ops map[common.Hash]PendingOperation
}

func NewMemory() *Memory {
	return &Memory{ops: make(map[common.Hash]PendingOperation)}
}

func (m *Memory) Record(_ context.Context, op PendingOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op.Handle] = op
	return nil
}

func (m *Memory) Remove(_ context.Context, handle common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ops, handle)
	return nil
}

func (m *Memory) Get(_ context.Context, handle common.Hash) (PendingOperation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	op, ok := m.ops[handle]
	if !ok {
		return PendingOperation{}, ErrNotFound
	}
	return op, nil
}

func (m *Memory) List(_ context.Context) ([]PendingOperation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ops := make([]PendingOperation, 0, len(m.ops))
	for _, op := range m.ops {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].SubmittedAt.Before(ops[j].SubmittedAt)
	})
	return ops, nil
}
