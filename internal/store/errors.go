package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist in the
	// store. This is the generic version of the record-specific not found
	// errors (ErrTaskNotFound, ErrRunNotFound).
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an operation would create a duplicate of
	// a unique record, e.g. adding a task whose id already exists. Producers
	// must treat this as a programmer error, not retry it.
	ErrDuplicate = errors.New("record already exists")

	// ErrTaskTerminal is returned when a mutation targets a task that has
	// already reached completed or failed. Terminal records never change
	// status again.
	ErrTaskTerminal = errors.New("task is in a terminal state")

	// ErrInvalidRecord is returned when a record fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrTaskNotFound indicates that the requested task does not exist in the store.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// ErrRunNotFound indicates that the requested run does not exist in the store.
	ErrRunNotFound = fmt.Errorf("%w: run", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is a duplicate-record error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// StoreError is a custom error type for store-specific errors with
// additional context about the failed operation.
type StoreError struct {
	Record    string // The record type (e.g., "task", "run")
	Operation string // The operation that failed (e.g., "add", "set_status")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation on %s failed: %s: %v", e.Operation, e.Record, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Record, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given record type,
// operation, message, and wrapped error.
func NewStoreError(record, operation, message string, err error) *StoreError {
	return &StoreError{
		Record:    record,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
