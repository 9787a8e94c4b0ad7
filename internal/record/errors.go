package record

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidationError indicates caller input outside the accepted domain
// (unknown scope or kind, importance out of range). Surfaces immediately.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError indicates an unknown record id on forget/promote/update.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record %s not found", e.ID)
}

// StoreUnavailableError indicates the record store could not be reached for
// a given scope partition. On the primary store/recall path it surfaces to
// the caller; on side-effect paths it is logged and swallowed.
type StoreUnavailableError struct {
	Scope Scope
	Err   error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable for scope %q: %v", e.Scope, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// ComputationError indicates malformed decay parameters, e.g. a non-positive
// half-life.
type ComputationError struct {
	Reason string
}

func (e *ComputationError) Error() string {
	return "computation error: " + e.Reason
}
