package restkit

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRegistrationConflict is returned when registering an endpoint, unit,
// or property whose route would collide with one already registered under
// a different owner.
var ErrRegistrationConflict = errors.New("restkit: registration conflict")

// Error is an error with an associated HTTP status code. Handlers return
// it to control the code and message of the error envelope; any other
// error is reported as a 500.
type Error struct {
	Code    int    // HTTP status code
	Message string // client-facing message, placed in the error envelope
	Err     error  // underlying error, logged but never sent to the client
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with the given status code and message.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// BadRequest returns a 400 error.
func BadRequest(message string) *Error {
	return &Error{Code: http.StatusBadRequest, Message: message}
}

// Unauthorized returns a 401 error.
func Unauthorized(message string) *Error {
	return &Error{Code: http.StatusUnauthorized, Message: message}
}

// Forbidden returns a 403 error.
func Forbidden(message string) *Error {
	return &Error{Code: http.StatusForbidden, Message: message}
}

// NotFound returns a 404 error.
func NotFound(message string) *Error {
	return &Error{Code: http.StatusNotFound, Message: message}
}

// Internal returns a 500 error wrapping err.
func Internal(message string, err error) *Error {
	return &Error{Code: http.StatusInternalServerError, Message: message, Err: err}
}
