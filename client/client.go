// Package client wires the ledger client's components together from a ClientConfig.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/buildwithgrove/ledgerclient/config"
	"github.com/buildwithgrove/ledgerclient/health"
	"github.com/buildwithgrove/ledgerclient/journal"
	"github.com/buildwithgrove/ledgerclient/multicall"
	nethttp "github.com/buildwithgrove/ledgerclient/network/http"
	"github.com/buildwithgrove/ledgerclient/notify"
	"github.com/buildwithgrove/ledgerclient/paginator"
	"github.com/buildwithgrove/ledgerclient/pool"
	"github.com/buildwithgrove/ledgerclient/retry"
	"github.com/buildwithgrove/ledgerclient/txn"
	"github.com/buildwithgrove/ledgerclient/websockets"
)

var ErrPaginationDisabled = errors.New("no record contract is configured")

// Client is a ledger client: one endpoint pool shared by reads, batched reads,
// record pagination and writes.
type Client struct {
	logger polylog.Logger
	config config.ClientConfig

	Pool          *pool.Pool
	Executor      *retry.Executor
	BatchReader   *multicall.Reader
	Orchestrator  *txn.Orchestrator
	Notifications *notify.Broadcaster
	Journal       journal.Journal

	hydrator *pool.Hydrator
	records  *paginator.Paginator[Record]
	closers  []func() error
}

// New builds a client sending JSON-RPC over HTTP.
func New(ctx context.Context, logger polylog.Logger, cfg config.ClientConfig) (*Client, error) {
	transport := nethttp.NewClient(logger, nethttp.Config{Headers: cfg.Chain.Headers})

	c, err := NewWithTransport(ctx, logger, cfg, transport)
	if err != nil {
		transport.Close()
		return nil, err
	}
	c.closers = append(c.closers, func() error {
		transport.Close()
		return nil
	})
	return c, nil
}

// NewWithTransport builds a client sending every call through transport, and builds its endpoint pool.
// It fails with protocol.ErrPoolEmpty if no configured endpoint passes admission.
func NewWithTransport(ctx context.Context, logger polylog.Logger, cfg config.ClientConfig, transport pool.Transport) (*Client, error) {
	c := &Client{
		logger: logger.With("component", "ledger_client"),
		config: cfg,
	}

	c.Pool = pool.New(logger, transport, cfg.Pool)
	if err := c.Pool.Build(ctx, cfg.Chain.EndpointAddrs(), cfg.Chain.ChainID); err != nil {
		return nil, fmt.Errorf("building endpoint pool: %w", err)
	}

	c.Executor = retry.NewExecutor(logger, c.Pool, cfg.Retry)
	c.BatchReader = multicall.NewReader(logger, c.Executor, c.Pool, cfg.Batch)

	pendingJournal, err := c.openJournal(ctx)
	if err != nil {
		return nil, err
	}
	c.Journal = pendingJournal

	c.Notifications = notify.NewBroadcaster(logger)
	notifiers := notify.Fanout{c.Notifications}
	if cfg.Notifications.ReportURL != "" {
		notifiers = append(notifiers, &notify.HTTPReporter{
			Logger:  logger,
			URL:     cfg.Notifications.ReportURL,
			Timeout: cfg.Notifications.ReportTimeout,
		})
	}

	c.Orchestrator = txn.NewOrchestrator(logger, c.Pool, c.Executor, notifiers, c.Journal, cfg.Transactions)
	if cfg.Chain.WebsocketURL != "" {
		headers := http.Header{}
		for key, value := range cfg.Chain.Headers {
			headers.Set(key, value)
		}
		c.Orchestrator.UseHeadSource(&websockets.HeadSubscriber{
			Logger:  logger,
			URL:     cfg.Chain.WebsocketURL,
			Headers: headers,
		})
	}

	if cfg.Pool.RehydrateInterval > 0 {
		c.hydrator = &pool.Hydrator{
			Logger:      logger.With("component", "endpoint_hydrator"),
			Pool:        c.Pool,
			RunInterval: cfg.Pool.RehydrateInterval,
		}
	}

	if cfg.PaginationEnabled() {
		c.records = newRecordPaginator(logger, cfg.Pagination, c.BatchReader)
	}

	return c, nil
}

func (c *Client) openJournal(ctx context.Context) (journal.Journal, error) {
	if c.config.Journal.Driver != config.JournalDriverPostgres {
		return journal.NewMemory(), nil
	}

	pgJournal, cleanup, err := journal.NewPostgres(ctx, c.config.Journal.DBConnectionString)
	if err != nil {
		return nil, fmt.Errorf("opening postgres journal: %w", err)
	}
	c.closers = append(c.closers, cleanup)
	return pgJournal, nil
}

// StartHydrator starts periodic re-admission of the configured endpoints, if configured.
func (c *Client) StartHydrator(ctx context.Context) error {
	if c.hydrator == nil {
		return nil
	}
	return c.hydrator.Start(ctx)
}

// HealthChecks returns the components reporting the client's readiness.
func (c *Client) HealthChecks() []health.Check {
	checks := []health.Check{c.Pool}
	if c.hydrator != nil {
		checks = append(checks, c.hydrator)
	}
	return checks
}

// Records returns the paginator over the configured record contract.
func (c *Client) Records() (*paginator.Paginator[Record], error) {
	if c.records == nil {
		return nil, ErrPaginationDisabled
	}
	return c.records, nil
}

// Balances returns the native balance of each owner, in owner order.
//
// The balances are read in one aggregate call if the facility is deployed, and with one
// eth_getBalance per owner otherwise.
func (c *Client) Balances(ctx context.Context, owners ...common.Address) ([]*big.Int, error) {
	calls := make([]multicall.Call, len(owners))
	for i, owner := range owners {
		call, err := c.BatchReader.EthBalanceCall(owner)
		if err != nil {
			return nil, err
		}
		calls[i] = call
	}

	results, err := c.BatchReader.Batch(ctx, calls)
	if err != nil {
		return nil, err
	}

	balances := make([]*big.Int, len(owners))
	if results == nil {
		for i, owner := range owners {
			var balance hexutil.Big
			if err := c.Executor.Call(ctx, "eth_getBalance", []any{owner, "latest"}, &balance); err != nil {
				return nil, fmt.Errorf("reading balance of %s: %w", owner, err)
			}
			balances[i] = balance.ToInt()
		}
		return balances, nil
	}

	for i, result := range results {
		values, err := calls[i].Decode(result)
		if err != nil {
			return nil, fmt.Errorf("reading balance of %s: %w", owners[i], err)
		}
		balance, ok := values[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("reading balance of %s: unexpected value %v", owners[i], values[0])
		}
		balances[i] = balance
	}
	return balances, nil
}

// Close releases the client's resources.
func (c *Client) Close() error {
	var errs []error
	for _, closer := range c.closers {
		errs = append(errs, closer())
	}
	return errors.Join(errs...)
}
