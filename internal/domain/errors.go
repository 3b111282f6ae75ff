package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConfiguration     = errors.New("bot settings not configured")
	ErrBotInactive       = errors.New("bot is not active")
	ErrValidation        = errors.New("validation failed")
	ErrDanglingReference = errors.New("dangling reference")
	ErrLockHeld          = errors.New("lock already held")

	// ErrOpportunityInactive is returned to the loser of a claim race. It
	// matches ErrNotFound so callers can treat both the same way.
	ErrOpportunityInactive = fmt.Errorf("opportunity no longer active: %w", ErrNotFound)
)

// ValidationError reports a malformed field in a settings update.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any *ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// DanglingReferenceError is returned by joined reads when a referenced row is
// missing. It indicates a broken store invariant.
type DanglingReferenceError struct {
	Entity string
	ID     string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("dangling reference: %s %q not found", e.Entity, e.ID)
}

// Is lets errors.Is(err, ErrDanglingReference) match any *DanglingReferenceError.
func (e *DanglingReferenceError) Is(target error) bool {
	return target == ErrDanglingReference
}
