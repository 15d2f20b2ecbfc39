/*
errors.go - Centralized error types for the leave ledger

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Domain and store packages wrap these with context; callers test them
  with errors.Is / errors.As. The HTTP layer maps them to status codes
  through Kind.

ERROR CATEGORIES:
  1. Validation - InvalidType, InvalidDateRange, HalfDayMismatch,
     ZeroDuration, OverlappingRequest, InvalidStatus, InvalidAmount
  2. Balance - InsufficientBalance (advisory at submit, authoritative at approve)
  3. Preconditions - NotFound, NotPending
  4. Access - Unauthenticated, Forbidden
  5. Store - TransactionAborted (the only retryable kind)

PROPAGATION:
  Validation errors are returned before any mutation. InsufficientBalance
  at approval time and TransactionAborted are raised inside the store
  transaction and roll it back completely.

USAGE:
  if errors.Is(err, generic.ErrNotPending) {
      // decision already taken, nothing was debited
  }

  var ib *generic.InsufficientBalanceError
  if errors.As(err, &ib) {
      fmt.Println(ib.Available, ib.Requested)
  }

SEE ALSO:
  - leave/ledger.go: Submission validation
  - leave/approval.go: Decide transaction
  - api/handlers.go: HTTP status mapping
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidType is returned when the leave type is not one of the known kinds.
	ErrInvalidType = errors.New("invalid leave type")

	// ErrInvalidDateRange is returned when a date fails to parse or end precedes start.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrHalfDayMismatch is returned when a half-day spans more than one date
	// or lacks an AM/PM part.
	ErrHalfDayMismatch = errors.New("half-day must be a single date with part AM or PM")

	// ErrZeroDuration is returned when the range contains no business days.
	ErrZeroDuration = errors.New("selected dates contain no business days")

	// ErrOverlappingRequest is returned when a pending or approved request of
	// the same employee overlaps the requested range.
	ErrOverlappingRequest = errors.New("overlapping leave exists")

	// ErrInsufficientBalance is returned when a paid balance cannot cover the request.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrNotPending is returned when a decision or cancellation targets a
	// request that already reached a terminal state.
	ErrNotPending = errors.New("request is not pending")

	// ErrForbidden is returned when the actor's role does not permit the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthenticated is returned when no valid identity accompanies a call.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrTransactionAborted is returned when the store gave up on a transaction
	// (timeout, lock contention, serialization failure). Safe to retry.
	ErrTransactionAborted = errors.New("transaction aborted")

	// ErrInvalidStatus is returned when a status filter is not recognised.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidAmount is returned when a grant is not a positive quantity.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAlreadyExists is returned on unique key violations (users, holidays).
	ErrAlreadyExists = errors.New("already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EntityID  EntityID
	LeaveType string
	Available Amount
	Requested Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: available %v, requested %v",
		e.LeaveType, e.Available.Value, e.Requested.Value)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// OverlapError describes the existing request that blocks a submission.
type OverlapError struct {
	ExistingID     RequestID
	Existing       Period
	ExistingStatus string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlapping leave exists: %s %s (%s)", e.ExistingID, e.Existing, e.ExistingStatus)
}

func (e *OverlapError) Unwrap() error {
	return ErrOverlappingRequest
}

// TransactionAbortedError wraps the store failure that ended a transaction.
type TransactionAbortedError struct {
	Op  string
	Err error
}

func (e *TransactionAbortedError) Error() string {
	return fmt.Sprintf("%s: transaction aborted: %v", e.Op, e.Err)
}

func (e *TransactionAbortedError) Unwrap() []error {
	return []error{ErrTransactionAborted, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionAborted)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidType) ||
		errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrHalfDayMismatch) ||
		errors.Is(err, ErrZeroDuration) ||
		errors.Is(err, ErrOverlappingRequest) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrNotPending) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrAlreadyExists)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Kind names the error kind of err, or "Internal" when it has none.
func Kind(err error) string {
	kinds := []struct {
		err  error
		name string
	}{
		{ErrInvalidType, "InvalidType"},
		{ErrInvalidDateRange, "InvalidDateRange"},
		{ErrHalfDayMismatch, "HalfDayMismatch"},
		{ErrZeroDuration, "ZeroDuration"},
		{ErrOverlappingRequest, "OverlappingRequest"},
		{ErrInsufficientBalance, "InsufficientBalance"},
		{ErrNotFound, "NotFound"},
		{ErrNotPending, "NotPending"},
		{ErrForbidden, "Forbidden"},
		{ErrUnauthenticated, "Unauthenticated"},
		{ErrTransactionAborted, "TransactionAborted"},
		{ErrInvalidStatus, "InvalidStatus"},
		{ErrInvalidAmount, "InvalidAmount"},
		{ErrAlreadyExists, "AlreadyExists"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}
