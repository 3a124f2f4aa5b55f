package services

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrValidation is wrapped by every error raised before a write is attempted
	// because the input is incomplete or references something that does not exist.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownBook is returned when a loan references a book id that does not resolve.
	ErrUnknownBook = fmt.Errorf("%w: book not found", ErrValidation)

	// ErrBookNotFound is returned when the book being updated does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrStudentNotFound is returned when the student being updated does not exist.
	ErrStudentNotFound = errors.New("student not found")

	// ErrLoanNotFound is returned when the loan being edited or returned does not exist.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrArchiveDisabled is returned by archive operations when no archive is configured.
	ErrArchiveDisabled = errors.New("backup archive not configured")
)

// StoreError reports a failed call to the entity store. The in-memory
// snapshot is never modified when one is returned.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
