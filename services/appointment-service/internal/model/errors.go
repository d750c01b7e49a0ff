package model

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an entity does not exist in the caller's
// workspace.
var ErrNotFound = errors.New("not_found")

// ValidationError rejects an input naming the offending field. No partial
// mutation happens when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
