package core

import (
	"errors"
	"fmt"
)

// Sentinel errors callers classify with errors.Is.
var (
	ErrValidation           = errors.New("validation failed")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidReference     = errors.New("invalid account reference")
	ErrReferentialIntegrity = errors.New("cannot delete, has associated data")
	ErrNotFound             = errors.New("not found")
	ErrPartialPosting       = errors.New("partial posting")
)

// ValidationError reports a rejected input field. It matches ErrValidation
// and, when set, the more specific Err.
type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Msg: msg}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

// ReferenceError reports an account id that does not exist, is not
// visible to the actor, or has the wrong kind or scope for its role.
type ReferenceError struct {
	Role      string // origin, destination, category, counter
	AccountID string
	Reason    string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s account %q: %s", e.Role, e.AccountID, e.Reason)
}

func (e *ReferenceError) Unwrap() error { return ErrInvalidReference }

// PartialPostingError is returned when a posting failed halfway and the
// header it left behind could not be removed.
type PartialPostingError struct {
	TransactionID string
	Cause         error
	Compensation  error
}

func (e *PartialPostingError) Error() string {
	return fmt.Sprintf("transaction %s left without lines: %v (cleanup failed: %v)",
		e.TransactionID, e.Cause, e.Compensation)
}

func (e *PartialPostingError) Unwrap() []error {
	return []error{ErrPartialPosting, e.Cause}
}
