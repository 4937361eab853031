package config

import (
	"errors"
	"fmt"
)

// ErrConfiguration matches every *Error via errors.Is.
var ErrConfiguration = errors.New("configuration error")

// Error reports a missing required option or a forbidden option value.
type Error struct {
	Key     string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("configuration error: %s", e.Message)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Message)
}

// Is makes errors.Is(err, ErrConfiguration) true for any *Error.
func (e *Error) Is(target error) bool {
	return target == ErrConfiguration
}

// Forbidden creates an Error for a value the option may not take.
func Forbidden(key, message string) *Error {
	return &Error{Key: key, Message: message}
}

// IsConfigurationError returns true if err is or wraps a configuration error.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
