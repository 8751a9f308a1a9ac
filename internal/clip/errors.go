package clip

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across subsystems.
var (
	// ErrQuotaExhausted stops a crawl loop cleanly when the provider
	// budget is spent. Callers treat it as control flow, not failure.
	ErrQuotaExhausted = errors.New("provider quota exhausted")

	// ErrRunInFlight is returned when a crawl with the same scope is
	// already running.
	ErrRunInFlight = errors.New("crawl run already in flight")

	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports malformed caller input: bad cron expressions,
// out-of-range parameters, unknown subjects.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// MappingError reports a provider record that could not be converted into
// a Clip. The record is skipped; the crawl continues.
type MappingError struct {
	ExternalID string
	Err        error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("map record %q: %v", e.ExternalID, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

// TransientError marks a failure worth retrying: network faults, provider
// 429/5xx responses, transient database errors.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
