// Package apperror is the error vocabulary shared by every Stockroom layer.
// An AppError pairs an error class with an HTTP status and a message that is
// safe to show a client; the Echo error handler turns it into a response.
//
// Repositories and services wrap infrastructure failures in NewInternal or
// NewUnavailable. Raw driver errors never reach the client.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error classes carried in AppError.Type.
const (
	TypeValidation = "validation_error"
	TypeBadRequest = "bad_request"
	TypeAuth       = "auth_error"
	TypeForbidden  = "forbidden"
	TypeNotFound   = "not_found"
	TypeConflict   = "conflict_error"
	TypeDependency = "dependency_error"
	TypeInternal   = "internal_error"
)

// msgInternal is all a client learns about an unexpected failure.
const msgInternal = "An unexpected error occurred. Please try again."

// AppError is a classified error. Internal holds the cause for logs only.
type AppError struct {
	Code     int    `json:"-"`
	Type     string `json:"type"`
	Message  string `json:"message"`
	Internal error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Internal
}

func newError(code int, typ, message string, cause error) *AppError {
	return &AppError{Code: code, Type: typ, Message: message, Internal: cause}
}

// NewValidation reports input that fails validation (422).
func NewValidation(message string) *AppError {
	return newError(http.StatusUnprocessableEntity, TypeValidation, message, nil)
}

// NewBadRequest reports a malformed request or an unusable reset link (400).
func NewBadRequest(message string) *AppError {
	return newError(http.StatusBadRequest, TypeBadRequest, message, nil)
}

// NewUnauthorized reports a missing or rejected credential (401).
func NewUnauthorized(message string) *AppError {
	return newError(http.StatusUnauthorized, TypeAuth, message, nil)
}

// NewForbidden reports a request refused outright, such as a cross-site
// write (403).
func NewForbidden(message string) *AppError {
	return newError(http.StatusForbidden, TypeForbidden, message, nil)
}

// NewNotFound reports a missing identity or record (404).
func NewNotFound(message string) *AppError {
	return newError(http.StatusNotFound, TypeNotFound, message, nil)
}

// NewConflict reports a uniqueness violation such as a taken email (409).
func NewConflict(message string) *AppError {
	return newError(http.StatusConflict, TypeConflict, message, nil)
}

// NewUnavailable reports a failed downstream dependency, such as the mail
// relay (503). The client may retry.
func NewUnavailable(message string, err error) *AppError {
	return newError(http.StatusServiceUnavailable, TypeDependency, message, err)
}

// NewInternal hides err behind a generic 500 message.
func NewInternal(err error) *AppError {
	return newError(http.StatusInternalServerError, TypeInternal, msgInternal, err)
}

var errMissingContext = errors.New("missing required context")

// NewMissingContext is returned by handlers whose identity was never set,
// meaning the gateway middleware was not applied.
func NewMissingContext() *AppError {
	return NewInternal(errMissingContext)
}

// SafeMessage returns the client-safe message of err. Errors that are not
// AppErrors get a generic message.
func SafeMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the HTTP status of err, or 500 when it is not an AppError.
func SafeCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
