package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pokt-network/poktroll/pkg/polylog/polyzero"
	"github.com/stretchr/testify/require"

	"github.com/buildwithgrove/ledgerclient/protocol"
	"github.com/buildwithgrove/ledgerclient/qos/jsonrpc"
)

func TestEnsureHTTPSuccess(t *testing.T) {
	tests := []struct {
		name        string
		statusCode  int
		expectError bool
	}{
		{name: "200 OK", statusCode: http.StatusOK},
		{name: "204 No Content", statusCode: http.StatusNoContent},
		{name: "299 Last 2xx", statusCode: 299},
		{name: "100 Continue", statusCode: http.StatusContinue, expectError: true},
		{name: "301 Moved Permanently", statusCode: http.StatusMovedPermanently, expectError: true},
		{name: "429 Too Many Requests", statusCode: http.StatusTooManyRequests, expectError: true},
		{name: "503 Service Unavailable", statusCode: http.StatusServiceUnavailable, expectError: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := EnsureHTTPSuccess(tc.statusCode)
			if !tc.expectError {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrEndpointHTTPError)
			require.Contains(t, err.Error(), fmt.Sprintf("%d", tc.statusCode))
		})
	}
}

// rpcHandler answers every JSON-RPC request using respond, echoing the request ID.
func rpcHandler(t *testing.T, respond func(req jsonrpc.Request) (any, *jsonrpc.ResponseError)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req jsonrpc.Request
		require.NoError(t, json.Unmarshal(body, &req))

		result, rpcErr := respond(req)

		var response jsonrpc.Response
		if rpcErr != nil {
			response = jsonrpc.GetErrorResponse(req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		} else {
			response, err = jsonrpc.GetResultResponse(req.ID, result)
			require.NoError(t, err)
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}
}

func newTestClient() *Client {
	return NewClient(polyzero.NewLogger(), Config{})
}

func TestClient_Call(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, func(req jsonrpc.Request) (any, *jsonrpc.ResponseError) {
		require.Equal(t, jsonrpc.Method("eth_chainId"), req.Method)
		return "0x1", nil
	}))
	defer server.Close()

	var chainID string
	err := newTestClient().Call(context.Background(), protocol.EndpointAddr(server.URL), "eth_chainId", nil, &chainID)
	require.NoError(t, err)
	require.Equal(t, "0x1", chainID)
}

func TestClient_Call_SendsConfiguredHeaders(t *testing.T) {
	handler := rpcHandler(t, func(jsonrpc.Request) (any, *jsonrpc.ResponseError) {
		return "0x1", nil
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}))
	defer server.Close()

	endpoint := protocol.EndpointAddr(server.URL)

	withKey := NewClient(polyzero.NewLogger(), Config{Headers: map[string]string{"X-Api-Key": "secret"}})
	require.NoError(t, withKey.Call(context.Background(), endpoint, "eth_chainId", nil, nil))

	err := newTestClient().Call(context.Background(), endpoint, "eth_chainId", nil, nil)
	require.Equal(t, protocol.KindUnauthorized, protocol.KindOf(err))
}

func TestClient_Call_ClassifiesHTTPStatus(t *testing.T) {
	tests := []struct {
		statusCode   int
		expectedKind protocol.ErrorKind
	}{
		{statusCode: http.StatusUnauthorized, expectedKind: protocol.KindUnauthorized},
		{statusCode: http.StatusForbidden, expectedKind: protocol.KindForbidden},
		{statusCode: http.StatusTooManyRequests, expectedKind: protocol.KindRateLimited},
		{statusCode: http.StatusBadGateway, expectedKind: protocol.KindTransport},
		{statusCode: http.StatusServiceUnavailable, expectedKind: protocol.KindTransport},
	}

	for _, test := range tests {
		t.Run(fmt.Sprintf("status %d", test.statusCode), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(test.statusCode)
			}))
			defer server.Close()

			endpoint := protocol.EndpointAddr(server.URL)
			err := newTestClient().Call(context.Background(), endpoint, "eth_blockNumber", nil, nil)
			require.Equal(t, test.expectedKind, protocol.KindOf(err))

			var classified *protocol.ClassifiedError
			require.True(t, errors.As(err, &classified))
			require.Equal(t, endpoint, classified.Endpoint)
		})
	}
}

func TestClient_Call_ClassifiesJSONRPCErrors(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, func(jsonrpc.Request) (any, *jsonrpc.ResponseError) {
		return nil, &jsonrpc.ResponseError{Code: 3, Message: "execution reverted", Data: "0x08c379a0"}
	}))
	defer server.Close()

	err := newTestClient().Call(context.Background(), protocol.EndpointAddr(server.URL), "eth_call", []any{map[string]string{}, "latest"}, nil)
	require.Equal(t, protocol.KindExecutionReverted, protocol.KindOf(err))
	require.False(t, protocol.IsNetworkError(err))

	var rpcErr *jsonrpc.ResponseError
	require.True(t, errors.As(err, &rpcErr))
	data, ok := rpcErr.RevertData()
	require.True(t, ok)
	require.Equal(t, "0x08c379a0", data)
}

func TestClient_Call_UndecodableBodyIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>upstream error</html>"))
	}))
	defer server.Close()

	err := newTestClient().Call(context.Background(), protocol.EndpointAddr(server.URL), "eth_blockNumber", nil, nil)
	require.Equal(t, protocol.KindTransport, protocol.KindOf(err))
}

func TestClient_Call_DeadlineIsTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := newTestClient().Call(ctx, protocol.EndpointAddr(server.URL), "eth_blockNumber", nil, nil)
	require.Equal(t, protocol.KindTimeout, protocol.KindOf(err))
}

func TestClient_Call_CallerCancellationIsNotClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := newTestClient().Call(ctx, protocol.EndpointAddr(server.URL), "eth_blockNumber", nil, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, protocol.IsNetworkError(err))
}

func TestClient_Call_ConnectionRefusedIsTransport(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := protocol.EndpointAddr(server.URL)
	server.Close()

	err := newTestClient().Call(context.Background(), endpoint, "eth_chainId", nil, nil)
	require.Equal(t, protocol.KindTransport, protocol.KindOf(err))
}
