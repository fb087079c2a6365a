package protocol

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind tags a failure with what went wrong, at the point the failure is first observed.
// The string values are used as-is in logs and metric labels.
type ErrorKind string

const (
	KindUnknown ErrorKind = "unknown"

	// Network-class kinds: the endpoint, not the call, is at fault.
	// Reads failing with these kinds are safe to retry on another endpoint.
	KindTimeout       ErrorKind = "timeout"
	KindRateLimited   ErrorKind = "rate_limited"
	KindUnauthorized  ErrorKind = "unauthorized"
	KindForbidden     ErrorKind = "forbidden"
	KindWrongIdentity ErrorKind = "wrong_identity"
	KindStale         ErrorKind = "stale"
	KindTransport     ErrorKind = "transport"

	// Domain-class kinds: the remote explicitly rejected the call's semantics.
	// Retrying on another endpoint would return the same answer.
	KindNotFound          ErrorKind = "not_found"
	KindMalformedArgs     ErrorKind = "malformed_args"
	KindMethodUnavailable ErrorKind = "method_unavailable"
	KindExecutionReverted ErrorKind = "execution_reverted"

	// Write outcome kinds.
	KindUserCancelled    ErrorKind = "user_cancelled"
	KindReverted         ErrorKind = "reverted"
	KindTimedOut         ErrorKind = "timed_out"
	KindSubmissionFailed ErrorKind = "submission_failed"
)

// ErrorClass groups error kinds by how they must be handled.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassNetwork
	ClassDomain
	ClassOutcome
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNetwork:
		return "network"
	case ClassDomain:
		return "domain"
	case ClassOutcome:
		return "outcome"
	default:
		return "unknown"
	}
}

// Class returns the handling class of the error kind.
func (k ErrorKind) Class() ErrorClass {
	switch k {
	case KindTimeout, KindRateLimited, KindUnauthorized, KindForbidden, KindWrongIdentity, KindStale, KindTransport:
		return ClassNetwork
	case KindNotFound, KindMalformedArgs, KindMethodUnavailable, KindExecutionReverted:
		return ClassDomain
	case KindUserCancelled, KindReverted, KindTimedOut, KindSubmissionFailed:
		return ClassOutcome
	default:
		return ClassUnknown
	}
}

// IsNetwork returns true if a read failing with this kind may be retried on another endpoint.
func (k ErrorKind) IsNetwork() bool {
	return k.Class() == ClassNetwork
}

// ErrPoolEmpty is returned when no endpoint passed admission.
// It is a hard failure: there is nothing to rotate to.
var ErrPoolEmpty = errors.New("endpoint pool is empty: no endpoint passed admission checks")

// kinded is satisfied by every error type carrying an ErrorKind.
type kinded interface {
	ErrorKind() ErrorKind
}

// ClassifiedError is a failure tagged with its kind and the endpoint it was observed on.
type ClassifiedError struct {
	Kind     ErrorKind
	Endpoint EndpointAddr
	Err      error
}

// NewError tags err with the supplied kind and endpoint.
func NewError(kind ErrorKind, endpoint EndpointAddr, err error) *ClassifiedError {
	return &ClassifiedError{
		Kind:     kind,
		Endpoint: endpoint,
		Err:      err,
	}
}

func (e *ClassifiedError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s from endpoint %s: %v", e.Kind, e.Endpoint, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

func (e *ClassifiedError) ErrorKind() ErrorKind {
	return e.Kind
}

// KindOf returns the kind of the first classified error in err's chain.
// A bare context deadline is reported as a timeout.
// It returns an empty kind for a nil error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var k kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	return KindUnknown
}

// IsNetworkError returns true if err is classified as a network-class failure.
func IsNetworkError(err error) bool {
	return KindOf(err).IsNetwork()
}

// Attempt records the outcome of one failed attempt against one endpoint.
type Attempt struct {
	Endpoint EndpointAddr
	Kind     ErrorKind
	Err      error
}

// ExhaustedError is returned once every allowed attempt at a read has failed.
// It lists every endpoint tried along with its classified reason, which
// separates a total outage from a partial one.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	reasons := make([]string, len(e.Attempts))
	for i, attempt := range e.Attempts {
		reasons[i] = fmt.Sprintf("%s: %s", attempt.Endpoint, attempt.Kind)
	}
	return fmt.Sprintf("all %d attempts failed [%s]", len(e.Attempts), strings.Join(reasons, ", "))
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// ErrorKind returns the last attempt's kind.
func (e *ExhaustedError) ErrorKind() ErrorKind {
	if len(e.Attempts) == 0 {
		return KindUnknown
	}
	return e.Attempts[len(e.Attempts)-1].Kind
}

// Endpoints returns the distinct endpoints tried, in the order they were first tried.
func (e *ExhaustedError) Endpoints() EndpointAddrList {
	seen := make(map[EndpointAddr]struct{}, len(e.Attempts))
	var endpoints EndpointAddrList
	for _, attempt := range e.Attempts {
		if _, ok := seen[attempt.Endpoint]; ok {
			continue
		}
		seen[attempt.Endpoint] = struct{}{}
		endpoints = append(endpoints, attempt.Endpoint)
	}
	return endpoints
}
