package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyReviewed indicates a request left the pending state before this review.
	ErrAlreadyReviewed = errors.New("request already reviewed")
	// ErrPermission indicates the actor lacks the role required for the operation.
	ErrPermission = errors.New("permission denied")
	// ErrNoOp indicates the proposed change would not alter stock.
	ErrNoOp = errors.New("adjustment is a no-op")
)

// ValidationError reports malformed or disallowed input on a named field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UserSafeMessage translates internal errors into operator-facing text.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidation(err):
		return err.Error()
	case errors.Is(err, ErrNotFound):
		return "record not found"
	case errors.Is(err, ErrAlreadyReviewed):
		return "this request was already reviewed"
	case errors.Is(err, ErrPermission):
		return "you are not allowed to perform this action"
	case errors.Is(err, ErrNoOp):
		return "target stock equals current stock"
	default:
		return "internal error, please retry"
	}
}
