// Package apperr defines the error kinds shared by every layer. Stores and
// the workflow engine wrap these sentinels with context; the HTTP layer
// maps them to status codes with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is returned when the actor lacks the capability
	// for an operation. It is raised before any entity state is read.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidTransition is returned when the requested edge does not
	// exist in the entity's state machine.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on uniqueness violations and on attempts to
	// create something whose preconditions are held by another record.
	ErrConflict = errors.New("conflict")

	// ErrValidation is returned for malformed or out-of-range input.
	ErrValidation = errors.New("validation error")
)

func PermissionDenied(format string, args ...any) error {
	return wrap(ErrPermissionDenied, format, args...)
}

func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func Conflict(format string, args ...any) error {
	return wrap(ErrConflict, format, args...)
}

func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// TransitionError describes a rejected state change.
type TransitionError struct {
	Machine string
	From    string
	To      string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move from %q to %q", e.Machine, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Kind returns the sentinel that err wraps, or nil for internal errors.
func Kind(err error) error {
	for _, k := range []error{ErrPermissionDenied, ErrInvalidTransition, ErrNotFound, ErrConflict, ErrValidation} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
