package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced medicine, schedule or record
// has no row in storage. Point lookups return (nil, nil) instead.
var ErrNotFound = errors.New("not found")

// ValidationError rejects malformed input before anything is written.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
