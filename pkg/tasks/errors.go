package tasks

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no row matches the owner+id predicate. A task
// owned by someone else and a task that does not exist are indistinguishable
// to the caller.
var ErrNotFound = errors.New("task not found")

// ValidationError reports a field constraint violation. Handlers map it to
// 400 with the field-level detail.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
