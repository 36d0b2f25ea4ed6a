/*
errors.go - Error kinds for the incentive engine

PURPOSE:
  Every failure the engine returns belongs to one of a small set of kinds.
  Callers branch on the kind with errors.Is and pull context out with errors.As.

ERROR KINDS:
  ErrValidation          malformed input, rejected before any state change
  ErrInvalidState        operation not legal from the current status
  ErrUnauthorized        actor is not the approver (or delegate) of an approval
  ErrConcurrencyConflict version mismatch on a conditional write
  ErrNoApplicableSlab    slab table does not cover an achievement value
  ErrNotFound            referenced plan, calculation or approval missing

USAGE:
  if errors.Is(err, incentive.ErrConcurrencyConflict) {
      // reload and retry
  }

SEE ALSO:
  - statemachine.go: returns InvalidStateError
  - approval.go: returns UnauthorizedError
  - store.go: stores return ConcurrencyConflictError
*/
package incentive

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input (zero target, overlapping slabs, bad currency).
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState is returned when an operation is not legal from the current status.
	ErrInvalidState = errors.New("invalid state")

	// ErrUnauthorized is returned when the actor may not act on an approval.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConcurrencyConflict is returned when a conditional write sees a different version.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrNoApplicableSlab is returned when no slab covers an achievement percentage.
	ErrNoApplicableSlab = errors.New("no applicable slab")

	// ErrNotFound is returned when a referenced entity doesn't exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InvalidStateError reports an action attempted from a status that does not allow it.
type InvalidStateError struct {
	Entity string
	ID     string
	Status string
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in status %s", e.Action, e.Entity, e.ID, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// UnauthorizedError reports an approval action by someone other than the assignee.
type UnauthorizedError struct {
	ApprovalID string
	ActorID    string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("actor %s may not act on approval %s", e.ActorID, e.ApprovalID)
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

// ConcurrencyConflictError is returned by stores when the expected version is stale.
type ConcurrencyConflictError struct {
	Entity          string
	ID              string
	ExpectedVersion int
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently (expected version %d)", e.Entity, e.ID, e.ExpectedVersion)
}

func (e *ConcurrencyConflictError) Unwrap() error { return ErrConcurrencyConflict }

// NoApplicableSlabError reports a gap in a plan's slab table.
type NoApplicableSlabError struct {
	PlanID      string
	Achievement Percentage
}

func (e *NoApplicableSlabError) Error() string {
	if e.PlanID == "" {
		return fmt.Sprintf("no slab covers achievement %s", e.Achievement)
	}
	return fmt.Sprintf("plan %s: no slab covers achievement %s", e.PlanID, e.Achievement)
}

func (e *NoApplicableSlabError) Unwrap() error { return ErrNoApplicableSlab }

// NotFound wraps ErrNotFound with the entity kind and id.
func NotFound(entity, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, entity, id)
}

// =============================================================================
// ERROR CLASSIFICATION HELPERS
// =============================================================================

// IsRetryable returns true if reloading and retrying the operation may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error was caused by the caller's input or action.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrNoApplicableSlab)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
