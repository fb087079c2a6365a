package websockets

import "errors"

var (
	// ErrSubscriptionRejected indicates the endpoint answered eth_subscribe with an error,
	// e.g. because it does not support subscriptions.
	ErrSubscriptionRejected = errors.New("subscription rejected")

	// ErrSubscriptionMalformed indicates the endpoint's answer to eth_subscribe could not be understood.
	ErrSubscriptionMalformed = errors.New("malformed subscription response")
)
