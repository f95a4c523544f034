// Package rmerrors gives the poll loop's error taxonomy concrete Go
// types instead of ad-hoc strings, so it can classify a failure by
// type-switching instead of sniffing error text.
package rmerrors

import (
	"fmt"

	"github.com/ratewatch/ci-rate-monitor/internal/ratelimit"
)

// TransportError wraps a DNS/connect/TLS/timeout failure.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError wraps a non-200 response. RateLimit is non-nil whenever the
// status was 403/429, carrying the message and rate-limit headers;
// callers pass it to ratelimit.Classify to decide between HTTP-generic
// and rate-limit handling.
type HTTPError struct {
	Status    int
	Body      string
	RateLimit *ratelimit.ErrorDetails
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("forge returned HTTP %d: %s", e.Status, e.Body)
}

// ParseError wraps a 200 response with an unparseable or structurally
// invalid body.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// StateIOError wraps a write failure for the persisted state. Inside the
// poll cycle it is logged and superseded by the next persist; a failure
// of the startup or final persist is returned from the loop's Run.
type StateIOError struct {
	Err error
}

func (e *StateIOError) Error() string { return fmt.Sprintf("state io: %v", e.Err) }
func (e *StateIOError) Unwrap() error { return e.Err }

// SpawnError means the child did not write its startup timestamp within
// the handshake timeout.
type SpawnError struct {
	Reason string
}

func (e *SpawnError) Error() string { return fmt.Sprintf("spawn handshake failed: %s", e.Reason) }
