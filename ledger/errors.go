/*
errors.go - Error taxonomy for the ledger engine

PURPOSE:
  Every engine operation returns one of four error kinds so the caller
  (HTTP layer, CLI, tests) can translate outcomes without string matching.

ERROR CATEGORIES:
  1. Validation - missing field, malformed phone, non-positive amount
  2. Conflict   - duplicate phone or card number
  3. NotFound   - no member for an id or search keyword
  4. System     - the store failed; detail is logged, not surfaced

USAGE:
  if errors.Is(err, ledger.ErrConflict) {
      var ce *ledger.ConflictError
      errors.As(err, &ce) // ce.Field == "phone"
  }

SEE ALSO:
  - engine.go: Produces these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of every input rejection. No state is mutated.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a unique field is already taken.
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned when a member cannot be resolved.
	ErrNotFound = errors.New("not found")

	// ErrSystem wraps store failures.
	ErrSystem = errors.New("system error")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the rejected field and a human-readable reason.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ConflictError names the unique field that collided.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Field, e.Value)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// NotFoundError describes what was looked up.
type NotFoundError struct {
	Kind string // "member"
	Key  string // id or keyword
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// SystemError wraps a store failure. Error() only exposes the operation;
// the cause is kept for logging.
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("%s failed", e.Op)
}

func (e *SystemError) Unwrap() error {
	return ErrSystem
}

// Cause returns the underlying store error.
func (e *SystemError) Cause() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func memberNotFound(id int64) error {
	return &NotFoundError{Kind: "member", Key: fmt.Sprintf("%d", id)}
}

// asSystem wraps err as a SystemError unless it is already one of the
// engine's own error kinds.
func asSystem(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrSystem) {
		return err
	}
	return &SystemError{Op: op, Err: err}
}

// IsClientError returns true if the error is due to caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing member.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true for unique-field collisions.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
