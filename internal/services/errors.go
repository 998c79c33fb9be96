// Package services defines the failure vocabulary shared by the external
// knowledge services (web search, site inspection, inference).
//
// The concrete clients live in sub-packages. They all report failures
// through the sentinels below so the cascade can tell a transient
// transport problem (worth one immediate retry) from a definitive one.
package services

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrTimeout means the service did not answer within the budget.
	ErrTimeout = errors.New("service timeout")
	// ErrServiceUnavailable means the service refused or failed the request.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrRateLimited means the service asked the caller to slow down.
	ErrRateLimited = errors.New("rate limited")
	// ErrMalformedResponse means the answer did not match the requested shape.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrDisabled means the service is switched off in configuration.
	ErrDisabled = errors.New("service disabled")
)

// Classify maps context and network errors onto the service sentinels.
// Errors that already wrap a sentinel are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, ErrRateLimited), errors.Is(err, ErrMalformedResponse),
		errors.Is(err, ErrDisabled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Join(ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Join(ErrTimeout, err)
	}
	return errors.Join(ErrServiceUnavailable, err)
}

// Transient reports whether an immediate retry may succeed.
// Timeouts are not transient: a retry would exceed the caller's budget.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrRateLimited)
}
