package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a video id is not present in the datastore.
var ErrNotFound = errors.New("video not found")

// ValidationError reports a missing or malformed client supplied field.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func notFound(id string) error {
	return fmt.Errorf("video %q: %w", id, ErrNotFound)
}
