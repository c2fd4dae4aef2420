package secretary

import (
	"fmt"
	"time"
)

// ProbeError wraps a failed presence lookup for the owner.
type ProbeError struct {
	OwnerID string
	Err     error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe presence of %s: %v", e.OwnerID, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// RateLimitedError is returned by the transport when it must back off for RetryAfter.
type RateLimitedError struct {
	Op         string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s", e.Op, e.RetryAfter)
}

// TransportError covers every other typing or send failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
