package models

import (
	"errors"
	"fmt"
)

// Sentinel errors used across the acquisition engine. Sources wrap these so
// the retry executor can classify outcomes with errors.Is.
var (
	// ErrRateLimited marks a distinguished transient failure: the venue
	// rejected the call for exceeding a request quota.
	ErrRateLimited = errors.New("rate limited")

	// ErrPoolExhausted means no proxy was available and the direct
	// connection also failed. Transient, but without a rotation option.
	ErrPoolExhausted = errors.New("proxy pool exhausted")

	// ErrCacheMiss is returned by meta lookups for unseen keys.
	ErrCacheMiss = errors.New("cache meta not found")
)

// RequestError is a fatal-request failure: malformed parameters, unknown
// symbol, rejected authentication. Never retried.
type RequestError struct {
	Exchange string
	Reason   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: bad request: %s", e.Exchange, e.Reason)
}

// StatusError carries an HTTP-ish status code from a source so transport
// failures can be classified without the engine knowing any wire protocol.
type StatusError struct {
	Exchange string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.Exchange, e.Code)
}

// IsRateLimitStatus reports whether the code is a too-many-requests signal.
func (e *StatusError) IsRateLimitStatus() bool {
	return e.Code == 429 || e.Code == 418
}
