// Package apperror defines the application's error taxonomy.
//
// Every domain failure is an *AppError wrapping one of the sentinel errors
// below. Callers test the kind with errors.Is (the sentinel) and read the
// human-readable message or offending field with errors.As (the *AppError).
// Only the HTTP layer turns these into status codes.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("validation error")
	ErrConflict             = errors.New("conflict")
	ErrForbidden            = errors.New("forbidden")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrConstraint           = errors.New("constraint violation")
	ErrAuthRequest          = errors.New("auth request failed")
	ErrNoFileSelected       = errors.New("no file selected")
	ErrUpload               = errors.New("upload failed")
	ErrScoring              = errors.New("scoring failed")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrSubmit               = errors.New("submit failed")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error from a collaborator
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause, so errors.Is matches
// either ErrUpload and, say, context.DeadlineExceeded on the same error.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// MissingField is the ValidationError raised when a required input is absent.
func MissingField(field string) *AppError {
	return ValidationFailed(field, fmt.Sprintf("%s is required", field))
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Busy reports that an operation on the resource is already in flight.
func Busy(resource, id, state string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s %s is busy (%s)", resource, id, state),
	}
}

// LimitReached reports that a per-user or server-wide capacity is used up.
// It is a conflict: the request may succeed once something is released.
func LimitReached(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// ConstraintViolation wraps a uniqueness or foreign-key rejection reported by
// the store. The store's own message is kept so it can be shown verbatim.
func ConstraintViolation(resource string, cause error) *AppError {
	return &AppError{
		Err:     ErrConstraint,
		Message: fmt.Sprintf("%s rejected by store: %v", resource, cause),
		Cause:   cause,
	}
}

func AuthRequest(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrAuthRequest,
		Message: message,
		Cause:   cause,
	}
}

func NoFileSelected() *AppError {
	return &AppError{
		Err:     ErrNoFileSelected,
		Message: "please select a file",
		Field:   "file",
	}
}

func Upload(cause error) *AppError {
	return &AppError{
		Err:     ErrUpload,
		Message: fmt.Sprintf("upload failed: %v", cause),
		Cause:   cause,
	}
}

func Scoring(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrScoring,
		Message: message,
		Cause:   cause,
	}
}

func ConfirmationRequired(message string) *AppError {
	return &AppError{
		Err:     ErrConfirmationRequired,
		Message: message,
	}
}

// SubmitFailed carries the store's message unchanged; it is shown to the user as is.
func SubmitFailed(cause error) *AppError {
	return &AppError{
		Err:     ErrSubmit,
		Message: cause.Error(),
		Cause:   cause,
	}
}

// FieldOf returns the offending field of a validation-style error, or "".
func FieldOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
