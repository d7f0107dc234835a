package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrExamNotFound is returned when the exam ID does not exist.
	ErrExamNotFound = errors.New("exam not found")
	// ErrExamClosed is returned when a submission arrives after the window end.
	ErrExamClosed = errors.New("exam window is closed")
	// ErrDuplicateSubmission is returned on a second submit for the same user/exam.
	ErrDuplicateSubmission = errors.New("exam already submitted")
	// ErrValidation marks malformed create/update input.
	ErrValidation = errors.New("validation failed")
)

// Validationf wraps ErrValidation with a human-readable reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
