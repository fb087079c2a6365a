// Package paginator fetches records addressed by a dense id sequence, most recent first.
//
// Fetched records are memoized by id. A record is assumed immutable once it reached a
// terminal state: records that are not terminal yet are never kept in the cache, so they
// are fetched again on the next request.
package paginator

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pokt-network/poktroll/pkg/polylog"
	"github.com/viccon/sturdyc"

	"github.com/buildwithgrove/ledgerclient/metrics"
	"github.com/buildwithgrove/ledgerclient/multicall"
	"github.com/buildwithgrove/ledgerclient/network/concurrency"
)

// ErrNoRecords is returned by Source.Latest when the sequence is empty.
var ErrNoRecords = errors.New("no records")

const (
	defaultCacheCapacity = 100_000
	defaultPageSize      = 20
	defaultConcurrency   = 8

	numShards          = 10
	evictionPercentage = 10

	// noTTL keeps terminal records until they are evicted for capacity (~292 years).
	noTTL = time.Duration(math.MaxInt64)
)

// Source describes how to read one type of record.
type Source[R any] interface {
	// Latest returns the highest existing record id, or ErrNoRecords.
	Latest(ctx context.Context) (uint64, error)
	// Calls returns the reads that make up record id.
	Calls(id uint64) ([]multicall.Call, error)
	// Decode builds record id from the results of its reads, in Calls order.
	Decode(id uint64, results []multicall.Result) (R, error)
	// IsTerminal reports whether the record can no longer change.
	IsTerminal(record R) bool
}

// BatchReader runs a group of reads. It is satisfied by multicall.Reader.
type BatchReader interface {
	ReadAll(ctx context.Context, calls []multicall.Call) ([]multicall.Result, error)
}

type Config struct {
	CacheCapacity int `yaml:"cache_capacity"`
	// CacheTTL bounds how long a terminal record is kept. Zero keeps it until evicted.
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	PageSize    uint64        `yaml:"page_size"`
	Concurrency int           `yaml:"concurrency"`
}

func (c *Config) HydrateDefaults() {
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = defaultCacheCapacity
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = noTTL
	}
	if c.PageSize == 0 {
		c.PageSize = defaultPageSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
}

// Entry is one record of a page.
type Entry[R any] struct {
	ID     uint64
	Record R
}

// Paginator fetches and memoizes the records of one Source. It is safe for concurrent use.
type Paginator[R any] struct {
	logger polylog.Logger
	source Source[R]
	reader BatchReader
	config Config

	// cacheMu guards the swap of the cache on Reset.
	cacheMu sync.RWMutex
	cache   *sturdyc.Client[R]

	activeFetches atomic.Int64
}

func New[R any](logger polylog.Logger, source Source[R], reader BatchReader, config Config) *Paginator[R] {
	config.HydrateDefaults()

	return &Paginator[R]{
		logger: logger.With("component", "record_paginator"),
		source: source,
		reader: reader,
		config: config,
		cache:  newCache[R](config),
	}
}

func newCache[R any](config Config) *sturdyc.Client[R] {
	return sturdyc.New[R](
		config.CacheCapacity,
		numShards,
		config.CacheTTL,
		evictionPercentage,
	)
}

// FetchPage returns page `page` of pageSize records, page 0 holding the most recent ones.
// Zero values of pageSize and concurrencyLimit use the configured defaults.
func (p *Paginator[R]) FetchPage(ctx context.Context, page, pageSize uint64, concurrencyLimit int) ([]Entry[R], error) {
	if pageSize == 0 {
		pageSize = p.config.PageSize
	}

	latest, err := p.source.Latest(ctx)
	if errors.Is(err, ErrNoRecords) {
		return []Entry[R]{}, nil
	}
	if err != nil {
		return nil, err
	}

	window, ok := PageWindow(latest, page, pageSize)
	if !ok {
		return []Entry[R]{}, nil
	}

	return p.fetchWindow(ctx, window, concurrencyLimit)
}

// FetchWindow returns the records of window that exist, most recent first.
//
// At most concurrencyLimit records are fetched at a time. A record that cannot be fetched
// is left out of the result rather than failing the whole window.
func (p *Paginator[R]) FetchWindow(ctx context.Context, window Window, concurrencyLimit int) ([]Entry[R], error) {
	latest, err := p.source.Latest(ctx)
	if errors.Is(err, ErrNoRecords) {
		return []Entry[R]{}, nil
	}
	if err != nil {
		return nil, err
	}

	window, ok := window.Clamp(latest)
	if !ok {
		return []Entry[R]{}, nil
	}

	return p.fetchWindow(ctx, window, concurrencyLimit)
}

func (p *Paginator[R]) fetchWindow(ctx context.Context, window Window, concurrencyLimit int) ([]Entry[R], error) {
	entries := p.fetchIDs(ctx, window.IDs(), concurrencyLimit)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("window", window.String()).
		Int("fetched", len(entries)).
		Msg("fetched record window")
	return entries, nil
}

// fetchIDs fetches ids with bounded concurrency and returns the successful ones, in ids order.
func (p *Paginator[R]) fetchIDs(ctx context.Context, ids []uint64, concurrencyLimit int) []Entry[R] {
	if concurrencyLimit <= 0 {
		concurrencyLimit = p.config.Concurrency
	}
	limiter := concurrency.NewConcurrencyLimiter(concurrencyLimit)

	var (
		wg      sync.WaitGroup
		records = make([]R, len(ids))
		fetched = make([]bool, len(ids))
	)
	for i, id := range ids {
		if !limiter.Acquire(ctx) {
			p.logger.Debug().
				Int64("in_flight", limiter.ActiveRequests()).
				Int("skipped", len(ids)-i).
				Msg("context done: not fetching the remaining records")
			break
		}

		wg.Add(1)
		go func(i int, id uint64) {
			defer wg.Done()
			defer limiter.Release()

			record, err := p.Fetch(ctx, id)
			if err != nil {
				p.logger.Warn().Err(err).Uint64("record_id", id).Msg("could not fetch record: leaving it out of the page")
				return
			}
			records[i] = record
			fetched[i] = true
		}(i, id)
	}
	wg.Wait()

	p.logger.Debug().
		Int("ids", len(ids)).
		Int("concurrency", limiter.Limit()).
		Msg("fetched record ids")

	entries := make([]Entry[R], 0, len(ids))
	for i, id := range ids {
		if fetched[i] {
			entries = append(entries, Entry[R]{ID: id, Record: records[i]})
		}
	}
	return entries
}

// Fetch returns record id, from the cache if it holds it.
func (p *Paginator[R]) Fetch(ctx context.Context, id uint64) (R, error) {
	key := cacheKey(id)

	p.cacheMu.RLock()
	cache := p.cache
	p.cacheMu.RUnlock()

	if record, ok := cache.Get(key); ok {
		metrics.ObserveRecordCacheLookup(true)
		return record, nil
	}
	metrics.ObserveRecordCacheLookup(false)

	// GetOrFetch collapses concurrent fetches of the same id into one.
	record, err := cache.GetOrFetch(ctx, key, func(ctx context.Context) (R, error) {
		return p.fetch(ctx, id)
	})
	if err != nil {
		var zero R
		return zero, err
	}

	if !p.source.IsTerminal(record) {
		cache.Delete(key)
	}
	return record, nil
}

func (p *Paginator[R]) fetch(ctx context.Context, id uint64) (R, error) {
	var zero R

	metrics.SetActiveRecordFetches(p.activeFetches.Add(1))
	defer func() {
		metrics.SetActiveRecordFetches(p.activeFetches.Add(-1))
	}()

	calls, err := p.source.Calls(id)
	if err != nil {
		return zero, err
	}

	results, err := p.reader.ReadAll(ctx, calls)
	if err != nil {
		return zero, err
	}

	return p.source.Decode(id, results)
}

// Invalidate drops ids from the cache.
func (p *Paginator[R]) Invalidate(ids ...uint64) {
	p.cacheMu.RLock()
	defer p.cacheMu.RUnlock()

	for _, id := range ids {
		p.cache.Delete(cacheKey(id))
	}
}

// Reset drops every cached record.
func (p *Paginator[R]) Reset() {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	p.cache = newCache[R](p.config)
}

// CachedCount returns the number of records in the cache.
func (p *Paginator[R]) CachedCount() int {
	p.cacheMu.RLock()
	defer p.cacheMu.RUnlock()
	return p.cache.Size()
}

func cacheKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}
