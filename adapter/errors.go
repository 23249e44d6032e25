package adapter

import (
	"errors"
	"fmt"
)

// ErrUnavailable indicates the adapter could not be constructed or used at
// all: an unknown adapter name, a missing SDK/plugin, or missing
// authentication. Non-retryable; the owning trial becomes infra_error (§7).
var ErrUnavailable = errors.New("adapter: unavailable")

// ErrTransient marks an error as retryable by the Trial Orchestrator:
// network failures, 5xx responses, HTTP 408/429, or provider-side rate
// limiting. Wrap provider errors with NewTransient to make them match
// errors.Is(err, ErrTransient).
var ErrTransient = errors.New("adapter: transient error")

// NewTransient wraps err so that errors.Is(result, ErrTransient) succeeds,
// signaling to the Trial Orchestrator that the call is safe to retry with
// backoff.
func NewTransient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err (or any error it wraps) was marked
// transient by NewTransient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// NewUnavailable wraps err so that errors.Is(result, ErrUnavailable)
// succeeds.
func NewUnavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
