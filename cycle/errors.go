/*
errors.go - Centralized error types for the cycle engine

PURPOSE:
  All engine errors in one place. Packages wrap these sentinels with
  structured context; the API layer classifies them into HTTP statuses
  via the Is* helpers at the bottom.

ERROR CATEGORIES:
  1. Validation errors - malformed input, never retried
  2. Conflict errors - uniqueness/state violations, caller must resolve
  3. Not-found errors - unknown ids
  4. Permission errors - role mismatch or cross-influencer access
  5. Transaction failures - storage-level, whole operation rolled back

USAGE:
    if cycle.IsConflict(err) {
        writeError(w, http.StatusConflict, "conflict", err)
    }
*/
package cycle

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks uniqueness or state-machine violations.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks a missing cycle, plan, influencer, sale or SKU.
	ErrNotFound = errors.New("not found")

	// ErrPermission marks a principal acting outside its role or record.
	ErrPermission = errors.New("permission denied")

	// ErrTransactionFailed marks a storage failure inside a multi-step
	// operation. The operation has been rolled back.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrCycleClosed is returned when mutating a closed cycle,
	// including attempts to close it again.
	ErrCycleClosed = errors.New("cycle is closed")

	// ErrAlreadyValidated is returned when approving a plan that is
	// already validated. Approval is not a silent no-op.
	ErrAlreadyValidated = errors.New("plan already validated")

	// ErrDuplicateOrderNumber is returned when a sale's order number
	// already exists.
	ErrDuplicateOrderNumber = errors.New("duplicate order number")

	// ErrNoImportableRows is returned by the bulk sales commit when not
	// a single row passed validation.
	ErrNoImportableRows = errors.New("no importable rows")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError carries a field-level message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError identifies which entity was missing.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DuplicateOrderError names the conflicting order number.
type DuplicateOrderError struct {
	OrderNumber string
}

func (e *DuplicateOrderError) Error() string {
	return fmt.Sprintf("order number %q already exists", e.OrderNumber)
}

func (e *DuplicateOrderError) Unwrap() error { return ErrDuplicateOrderNumber }

// CycleClosedError names the cycle a caller tried to mutate or re-close.
type CycleClosedError struct {
	CycleID  int64
	ClosedAt *time.Time
}

func (e *CycleClosedError) Error() string {
	if e.ClosedAt != nil {
		return fmt.Sprintf("cycle %d closed at %s", e.CycleID, e.ClosedAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("cycle %d is closed", e.CycleID)
}

func (e *CycleClosedError) Unwrap() error { return ErrCycleClosed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation reports whether the error is bad client input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict reports whether the error is a uniqueness or state
// violation the caller must resolve before resubmitting.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrCycleClosed) ||
		errors.Is(err, ErrAlreadyValidated) ||
		errors.Is(err, ErrDuplicateOrderNumber) ||
		errors.Is(err, ErrNoImportableRows)
}

// IsNotFound reports whether the error is a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPermission reports whether the error is an authorization failure.
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermission)
}
