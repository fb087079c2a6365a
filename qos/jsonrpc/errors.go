package jsonrpc

import (
	"github.com/buildwithgrove/ledgerclient/protocol"
)

// Standard JSON-RPC 2.0 error codes.
// See https://www.jsonrpc.org/specification#error_object
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Ethereum JSON-RPC error codes.
// See EIP-1474: https://eips.ethereum.org/EIPS/eip-1474#error-codes
const (
	CodeInvalidInput            = -32000
	CodeResourceNotFound        = -32001
	CodeResourceUnavailable     = -32002
	CodeTransactionRejected     = -32003
	CodeMethodNotSupported      = -32004
	CodeLimitExceeded           = -32005
	CodeExecutionRevertedGeth   = 3
	CodeExecutionRevertedLegacy = -32015
)

// KindForCode maps a JSON-RPC error code to the kind of failure it reports.
//
// Codes that describe the call itself (bad params, missing method, revert) are domain-class:
// another endpoint would answer the same way. Codes that describe the endpoint's state
// (overloaded, internal failure, unavailable resource) are network-class.
func KindForCode(code int) protocol.ErrorKind {
	switch code {
	case CodeParseError, CodeInvalidRequest, CodeInvalidParams, CodeInvalidInput:
		return protocol.KindMalformedArgs
	case CodeMethodNotFound, CodeMethodNotSupported:
		return protocol.KindMethodUnavailable
	case CodeResourceNotFound:
		return protocol.KindNotFound
	case CodeTransactionRejected, CodeExecutionRevertedGeth, CodeExecutionRevertedLegacy:
		return protocol.KindExecutionReverted
	case CodeLimitExceeded:
		return protocol.KindRateLimited
	case CodeResourceUnavailable, CodeInternalError:
		return protocol.KindTransport
	}

	// -32099 to -32000 is reserved for implementation-defined server errors.
	if code >= -32099 && code <= -32000 {
		return protocol.KindTransport
	}

	return protocol.KindUnknown
}
