// Package http sends JSON-RPC requests to ledger endpoints over HTTP.
//
// Every failure returned by the client is tagged with a protocol.ErrorKind at the
// point it is first observed: transport errors, deadlines, HTTP statuses, undecodable
// bodies and JSON-RPC error codes. Callers never need to inspect error messages.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/buildwithgrove/ledgerclient/log"
	"github.com/buildwithgrove/ledgerclient/metrics"
	"github.com/buildwithgrove/ledgerclient/network/concurrency"
	"github.com/buildwithgrove/ledgerclient/protocol"
	"github.com/buildwithgrove/ledgerclient/qos/jsonrpc"
)

// Config tunes the HTTP transport.
type Config struct {
	// Headers are set on every request, e.g. an API key header.
	Headers map[string]string
	// MaxResponseSize caps the size of a response body.
	MaxResponseSize int64
	// MaxConnsPerHost caps concurrent connections to a single endpoint.
	MaxConnsPerHost int
}

const defaultMaxConnsPerHost = 50

// Client is a JSON-RPC over HTTP client shared by every endpoint of a pool.
type Client struct {
	logger     polylog.Logger
	httpClient *http.Client
	bufferPool *concurrency.BufferPool
	headers    map[string]string

	activeRequests int64
	totalRequests  int64
}

// NewClient creates a client with transport settings tuned for many concurrent short requests.
// Timeouts are controlled by request contexts; the client-level timeout is only a backstop.
func NewClient(logger polylog.Logger, config Config) *Client {
	maxConnsPerHost := config.MaxConnsPerHost
	if maxConnsPerHost <= 0 {
		maxConnsPerHost = defaultMaxConnsPerHost
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     maxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &Client{
		logger: logger.With("component", "http_client"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,
		},
		bufferPool: concurrency.NewBufferPool(config.MaxResponseSize),
		headers:    config.Headers,
	}
}

// Call sends a JSON-RPC request for method to endpoint and decodes the result into result.
// A nil result discards the response's result field.
//
// A JSON-RPC error response is returned as a *protocol.ClassifiedError wrapping the
// *jsonrpc.ResponseError, so callers can still reach the error's code and data.
func (c *Client) Call(
	ctx context.Context,
	endpoint protocol.EndpointAddr,
	method string,
	params any,
	result any,
) (err error) {
	startTime := time.Now()
	defer func() {
		metrics.ObserveRPC(endpoint.Host(), method, protocol.KindOf(err), time.Since(startTime))
	}()

	req, err := jsonrpc.NewRequest(jsonrpc.Method(method), params)
	if err != nil {
		return protocol.NewError(protocol.KindMalformedArgs, endpoint, err)
	}

	reqBz, err := json.Marshal(req)
	if err != nil {
		return protocol.NewError(protocol.KindMalformedArgs, endpoint, fmt.Errorf("marshaling %s request: %w", method, err))
	}

	responseBz, err := c.post(ctx, endpoint, method, reqBz)
	if err != nil {
		return err
	}

	var response jsonrpc.Response
	if err := json.Unmarshal(responseBz, &response); err != nil {
		return protocol.NewError(
			protocol.KindTransport,
			endpoint,
			fmt.Errorf("undecodable %s response %q: %w", method, log.Preview(string(responseBz)), err),
		)
	}

	if err := response.Validate(req.ID); err != nil {
		return protocol.NewError(protocol.KindTransport, endpoint, fmt.Errorf("%s: %w", method, err))
	}

	if response.Error != nil {
		return protocol.NewError(response.Error.ErrorKind(), endpoint, response.Error)
	}

	if result == nil {
		return nil
	}

	if err := response.UnmarshalResult(result); err != nil {
		return protocol.NewError(protocol.KindTransport, endpoint, fmt.Errorf("decoding %s result: %w", method, err))
	}

	return nil
}

// post sends the payload and returns the body of a 2xx response.
func (c *Client) post(ctx context.Context, endpoint protocol.EndpointAddr, method string, payload []byte) ([]byte, error) {
	atomic.AddInt64(&c.activeRequests, 1)
	atomic.AddInt64(&c.totalRequests, 1)
	defer atomic.AddInt64(&c.activeRequests, -1)

	tracedCtx, timing := withTrace(ctx)

	httpReq, err := http.NewRequestWithContext(tracedCtx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, protocol.NewError(protocol.KindTransport, endpoint, fmt.Errorf("building HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		classified := c.classifyDoError(ctx, endpoint, err)
		c.logFailure(endpoint, method, 0, timing, classified)
		return nil, classified
	}
	defer resp.Body.Close()

	if err := EnsureHTTPSuccess(resp.StatusCode); err != nil {
		classified := protocol.NewError(KindForStatus(resp.StatusCode), endpoint, err)
		c.logFailure(endpoint, method, resp.StatusCode, timing, classified)
		return nil, classified
	}

	body, err := c.bufferPool.ReadWithBuffer(resp.Body)
	if err != nil {
		classified := c.classifyDoError(ctx, endpoint, fmt.Errorf("failed to read response body: %w", err))
		c.logFailure(endpoint, method, resp.StatusCode, timing, classified)
		return nil, classified
	}

	return body, nil
}

// classifyDoError tags transport-level failures.
// A caller cancellation is returned unclassified: it says nothing about the endpoint.
func (c *Client) classifyDoError(ctx context.Context, endpoint protocol.EndpointAddr, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return protocol.NewError(protocol.KindTimeout, endpoint, fmt.Errorf("request timeout: %w", err))
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return protocol.NewError(protocol.KindTimeout, endpoint, fmt.Errorf("request timeout: %w", err))
	}

	return protocol.NewError(protocol.KindTransport, endpoint, fmt.Errorf("connection error: %w", err))
}

// logFailure logs the timing breakdown of a failed request.
// Successful requests are not logged to keep the hot path quiet.
func (c *Client) logFailure(endpoint protocol.EndpointAddr, method string, statusCode int, timing *requestTiming, err error) {
	c.logger.With(
		"endpoint_host", endpoint.Host(),
		"method", method,
		"status_code", statusCode,
		"dns_lookup_ms", timing.dnsLookup.Milliseconds(),
		"connect_ms", timing.connect.Milliseconds(),
		"tls_ms", timing.tlsHandshake.Milliseconds(),
		"first_byte_ms", timing.firstByte.Milliseconds(),
		"total_ms", time.Since(timing.start).Milliseconds(),
		"timeout_ms", timing.contextTimeout.Milliseconds(),
		"active_requests", atomic.LoadInt64(&c.activeRequests),
		"total_requests", atomic.LoadInt64(&c.totalRequests),
	).Debug().Err(err).Msg("JSON-RPC request failed")
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
