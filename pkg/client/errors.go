package client

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorClass classifies a failed lookup attempt.
type ErrorClass string

const (
	// ErrorClassThrottled represents HTTP 429. Retried indefinitely with a
	// fixed delay; the service is expected to eventually admit the request.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassTransient represents any other non-2xx/404 status or a
	// malformed response body. Retried against the bounded budget.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassTimeout represents a transport-level timeout.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassTransport represents a connection-level failure.
	ErrorClassTransport ErrorClass = "transport"
)

// LookupError is a failed lookup attempt with its classification.
type LookupError struct {
	StatusCode int
	Class      ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *LookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lookup %s error (status %d): %v", e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("lookup %s error (status %d)", e.Class, e.StatusCode)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *LookupError) Unwrap() error {
	return e.Err
}

// classifyTransport distinguishes timeouts from other connection-level
// failures.
func classifyTransport(err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}
	return ErrorClassTransport
}

// consumesBudget reports whether the error class draws on the bounded
// retry budget. Throttling retries are not budgeted.
func consumesBudget(class ErrorClass) bool {
	return class != ErrorClassThrottled
}
