// Package ledgertest provides an in-memory ledger transport for tests.
//
// A Transport routes every call to the Handler registered for the endpoint, records
// the call, and JSON round-trips the handler's result into the caller's result, as a
// real JSON-RPC transport would.
package ledgertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/buildwithgrove/ledgerclient/protocol"
)

// Handler answers one call. params is the JSON encoding of the call's params.
type Handler func(ctx context.Context, method string, params json.RawMessage) (any, error)

// Call is one recorded call.
type Call struct {
	Endpoint protocol.EndpointAddr
	Method   string
	Params   json.RawMessage
}

// Transport is an in-memory pool.Transport.
type Transport struct {
	mu       sync.Mutex
	handlers map[protocol.EndpointAddr]Handler
	calls    []Call
}

func NewTransport() *Transport {
	return &Transport{handlers: make(map[protocol.EndpointAddr]Handler)}
}

// Handle registers the handler of an endpoint, replacing any earlier one.
func (t *Transport) Handle(endpoint protocol.EndpointAddr, handler Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[endpoint] = handler
}

// Call implements pool.Transport. An endpoint with no handler fails with a transport error.
func (t *Transport) Call(ctx context.Context, endpoint protocol.EndpointAddr, method string, params any, result any) error {
	var paramsBz json.RawMessage
	if params != nil {
		bz, err := json.Marshal(params)
		if err != nil {
			return protocol.NewError(protocol.KindMalformedArgs, endpoint, err)
		}
		paramsBz = bz
	}

	t.mu.Lock()
	t.calls = append(t.calls, Call{Endpoint: endpoint, Method: method, Params: paramsBz})
	handler := t.handlers[endpoint]
	t.mu.Unlock()

	if handler == nil {
		return protocol.NewError(protocol.KindTransport, endpoint, errors.New("connection refused"))
	}

	value, err := handler(ctx, method, paramsBz)
	if err != nil {
		var classified *protocol.ClassifiedError
		if errors.As(err, &classified) && classified.Endpoint == "" {
			classified.Endpoint = endpoint
		}
		return err
	}

	if result == nil {
		return nil
	}

	bz, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ledgertest: marshaling result of %s: %w", method, err)
	}
	if err := json.Unmarshal(bz, result); err != nil {
		return protocol.NewError(protocol.KindTransport, endpoint, fmt.Errorf("decoding %s result: %w", method, err))
	}
	return nil
}

// Calls returns the recorded calls to endpoint, or to every endpoint if endpoint is empty.
func (t *Transport) Calls(endpoint protocol.EndpointAddr) []Call {
	t.mu.Lock()
	defer t.mu.Unlock()

	var calls []Call
	for _, call := range t.calls {
		if endpoint == "" || call.Endpoint == endpoint {
			calls = append(calls, call)
		}
	}
	return calls
}

// CallCount returns the number of recorded calls of method, to any endpoint.
func (t *Transport) CallCount(method string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	for _, call := range t.calls {
		if call.Method == method {
			count++
		}
	}
	return count
}

// Reset forgets the recorded calls.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
}

// Err builds a classified error for a handler to return.
func Err(kind protocol.ErrorKind) error {
	return protocol.NewError(kind, "", fmt.Errorf("simulated %s", kind))
}

// Node answers eth_chainId and eth_blockNumber, and forwards every other method to next.
// A nil next answers every other method as unavailable.
func Node(chainID, height uint64, next Handler) Handler {
	return func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		switch method {
		case "eth_chainId":
			return hexutil.Uint64(chainID), nil
		case "eth_blockNumber":
			return hexutil.Uint64(height), nil
		}
		if next == nil {
			return nil, Err(protocol.KindMethodUnavailable)
		}
		return next(ctx, method, params)
	}
}

// Failing fails every call with kind.
func Failing(kind protocol.ErrorKind) Handler {
	return func(context.Context, string, json.RawMessage) (any, error) {
		return nil, Err(kind)
	}
}

// Hanging blocks every call until its context is done.
func Hanging() Handler {
	return func(ctx context.Context, _ string, _ json.RawMessage) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// Methods dispatches calls by method name. Unknown methods are answered as unavailable.
func Methods(methods map[string]Handler) Handler {
	return func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		handler, ok := methods[method]
		if !ok {
			return nil, Err(protocol.KindMethodUnavailable)
		}
		return handler(ctx, method, params)
	}
}
