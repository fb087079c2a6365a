package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/buildwithgrove/ledgerclient/protocol"
)

// ErrEndpointHTTPError is returned when an endpoint responds with a non 2xx HTTP status code.
var ErrEndpointHTTPError = errors.New("endpoint returned non 2xx HTTP status code")

// EnsureHTTPSuccess returns an error if the status code is not a 2xx successful status code.
// Otherwise returns nil.
func EnsureHTTPSuccess(statusCode int) error {
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %d", ErrEndpointHTTPError, statusCode)
	}
	return nil
}

// KindForStatus classifies a non 2xx HTTP status code.
// Authentication and throttling statuses keep their own kind so admission can report them.
func KindForStatus(statusCode int) protocol.ErrorKind {
	switch statusCode {
	case http.StatusUnauthorized:
		return protocol.KindUnauthorized
	case http.StatusForbidden:
		return protocol.KindForbidden
	case http.StatusTooManyRequests:
		return protocol.KindRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return protocol.KindTimeout
	default:
		return protocol.KindTransport
	}
}
