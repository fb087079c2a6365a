package ledgertest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/buildwithgrove/ledgerclient/protocol"
	"github.com/buildwithgrove/ledgerclient/qos/jsonrpc"
)

// NewServer starts an HTTP JSON-RPC server answering every request with handler.
// Handler errors are answered the way a node reports them: network-class kinds as
// HTTP statuses, and everything else as JSON-RPC errors.
func NewServer(handler Handler) *httptest.Server {
	return httptest.NewServer(ServeJSONRPC(handler))
}

// ServeJSONRPC adapts handler to an http.Handler.
func ServeJSONRPC(handler Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonrpc.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeResponse(w, jsonrpc.GetErrorResponse(jsonrpc.ID{}, jsonrpc.CodeParseError, err.Error(), nil))
			return
		}

		params, _ := req.Params.MarshalJSON()
		result, err := handler(r.Context(), string(req.Method), params)
		if err != nil {
			if status, ok := statusForKind(protocol.KindOf(err)); ok {
				w.WriteHeader(status)
				return
			}
			writeResponse(w, errorResponse(req.ID, err))
			return
		}

		response, err := jsonrpc.GetResultResponse(req.ID, result)
		if err != nil {
			writeResponse(w, jsonrpc.GetErrorResponse(req.ID, jsonrpc.CodeInternalError, err.Error(), nil))
			return
		}
		writeResponse(w, response)
	})
}

func errorResponse(id jsonrpc.ID, err error) jsonrpc.Response {
	var responseErr *jsonrpc.ResponseError
	if errors.As(err, &responseErr) {
		return jsonrpc.Response{ID: id, Version: jsonrpc.Version2, Error: responseErr}
	}

	code := jsonrpc.CodeInternalError
	switch protocol.KindOf(err) {
	case protocol.KindMethodUnavailable:
		code = jsonrpc.CodeMethodNotFound
	case protocol.KindMalformedArgs:
		code = jsonrpc.CodeInvalidParams
	case protocol.KindNotFound:
		code = jsonrpc.CodeResourceNotFound
	case protocol.KindExecutionReverted:
		code = jsonrpc.CodeExecutionRevertedGeth
	}
	return jsonrpc.GetErrorResponse(id, code, err.Error(), nil)
}

func statusForKind(kind protocol.ErrorKind) (int, bool) {
	switch kind {
	case protocol.KindUnauthorized:
		return http.StatusUnauthorized, true
	case protocol.KindForbidden:
		return http.StatusForbidden, true
	case protocol.KindRateLimited:
		return http.StatusTooManyRequests, true
	case protocol.KindTimeout:
		return http.StatusGatewayTimeout, true
	case protocol.KindTransport:
		return http.StatusBadGateway, true
	}
	return 0, false
}

func writeResponse(w http.ResponseWriter, response jsonrpc.Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}
