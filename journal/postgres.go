package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createTableQuery = `
CREATE TABLE IF NOT EXISTS pending_operations (
	handle       TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	deadline     TIMESTAMPTZ NOT NULL,
	raw_tx       BYTEA
)`

	upsertQuery = `
INSERT INTO pending_operations (handle, name, submitted_at, deadline, raw_tx)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (handle) DO UPDATE SET
	name = EXCLUDED.name,
	submitted_at = EXCLUDED.submitted_at,
	deadline = EXCLUDED.deadline,
	raw_tx = EXCLUDED.raw_tx`

	deleteQuery = `DELETE FROM pending_operations WHERE handle = $1`

	selectColumns = `SELECT handle, name, submitted_at, deadline, raw_tx FROM pending_operations`
)

var _ Journal = &Postgres{}

// Postgres is a Journal stored in a PostgreSQL table, created on first use.
type Postgres struct {
	DB *pgxpool.Pool
}

// NewPostgres connects to the database and creates the journal table if needed.
// The returned cleanup function closes the connection pool.
func NewPostgres(ctx context.Context, connectionString string) (*Postgres, func() error, error) {
	config, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool.NewWithConfig: %v", err)
	}

	cleanup := func() error {
		pool.Close()
		return nil
	}

	if _, err := pool.Exec(ctx, createTableQuery); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("creating the pending_operations table: %w", err)
	}

	return &Postgres{DB: pool}, cleanup, nil
}

// Ping ensures the database connection is healthy
func (p *Postgres) Ping(ctx context.Context) error {
	return p.DB.Ping(ctx)
}

func (p *Postgres) Record(ctx context.Context, op PendingOperation) error {
	_, err := p.DB.Exec(ctx, upsertQuery, op.Handle.Hex(), op.Name, op.SubmittedAt, op.Deadline, []byte(op.RawTx))
	if err != nil {
		return fmt.Errorf("recording pending operation %s: %w", op.Handle.Hex(), err)
	}
	return nil
}

func (p *Postgres) Remove(ctx context.Context, handle common.Hash) error {
	if _, err := p.DB.Exec(ctx, deleteQuery, handle.Hex()); err != nil {
		return fmt.Errorf("removing pending operation %s: %w", handle.Hex(), err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, handle common.Hash) (PendingOperation, error) {
	rows, err := p.DB.Query(ctx, selectColumns+` WHERE handle = $1`, handle.Hex())
	if err != nil {
		return PendingOperation{}, err
	}

	op, err := pgx.CollectExactlyOneRow(rows, scanPendingOperation)
	if errors.Is(err, pgx.ErrNoRows) {
		return PendingOperation{}, ErrNotFound
	}
	return op, err
}

func (p *Postgres) List(ctx context.Context) ([]PendingOperation, error) {
	rows, err := p.DB.Query(ctx, selectColumns+` ORDER BY submitted_at`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPendingOperation)
}

func scanPendingOperation(row pgx.CollectableRow) (PendingOperation, error) {
	var (
		op     PendingOperation
		handle string
		rawTx  []byte
	)
	if err := row.Scan(&handle, &op.Name, &op.SubmittedAt, &op.Deadline, &rawTx); err != nil {
		return PendingOperation{}, err
	}

	op.Handle = common.HexToHash(handle)
	op.RawTx = rawTx
	return op, nil
}
