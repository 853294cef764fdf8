package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError rejects a request synchronously, before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InsufficientStockError reports a shortfall. It is not fatal: the engine grants
// the partial amount and the caller decides whether to retry later.
type InsufficientStockError struct {
	ProductId int
	Color     string
	Size      string
	Requested int
	Granted   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d (%s/%s): requested %d, granted %d",
		e.ProductId, e.Color, e.Size, e.Requested, e.Granted)
}

func (e *InsufficientStockError) Shortfall() int {
	return e.Requested - e.Granted
}

// AlreadyProcessedError marks an item that must be skipped, not retried:
// a statement no longer pending, or a ship quantity exceeding the remaining
// reservation. Batch operations report it per item and continue.
type AlreadyProcessedError struct {
	Entity string
	ID     int
	State  string
}

func (e *AlreadyProcessedError) Error() string {
	return fmt.Sprintf("%s %d already processed (state=%s)", e.Entity, e.ID, e.State)
}

func IsAlreadyProcessedError(err error) bool {
	var ae *AlreadyProcessedError
	return errors.As(err, &ae)
}

// ConsistencyError is a detected mismatch between a stored counter and the
// value derivable from live records. Reported, never auto-corrected unless a
// fix is explicitly requested.
type ConsistencyError struct {
	Subject string
	Stored  int
	Derived int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s out of sync: stored=%d derived=%d", e.Subject, e.Stored, e.Derived)
}
