package app

import (
	"errors"
	"fmt"

	"craftai/pkg/domain"
)

// Entitlement rejections are normal negative outcomes, not faults. They are
// idempotent, side-effect free, and never logged as errors.
var (
	// ErrPremiumRequired rejects a premium-gated capability for a free user.
	ErrPremiumRequired = errors.New("this feature is only available for premium subscriptions")
	// ErrLimitReached rejects a free user whose quota is exhausted.
	ErrLimitReached = errors.New("limit reached, upgrade to continue")
)

// ValidationError reports malformed or missing input. No adapter call is
// attempted and nothing is charged or persisted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// AdapterError reports a failed provider call. Timeout distinguishes a
// deadline expiry from a hard remote error so callers can decide
// retry-vs-surface without inspecting provider shapes.
type AdapterError struct {
	Capability domain.Capability
	Timeout    bool
	Err        error
}

func (e *AdapterError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s provider timed out: %v", e.Capability, e.Err)
	}
	return fmt.Sprintf("%s provider failed: %v", e.Capability, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// PersistenceError reports a ledger append that failed after a successful
// provider call. The generated artifact exists but is unrecorded; quota is
// never charged on this path.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persist generation: %v", e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }
