// Package errors carries HTTP-aware application errors. Handlers turn any
// error into a status, a machine-readable code and a client-safe message
// with Classify.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels for the error kinds every layer may report.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyExists  = errors.New("resource already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrServiceUnavail = errors.New("service unavailable")
)

// AppError is an error with the status and code it should be reported with.
// Message is shown to clients; Err is not.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// New creates an AppError. cause stays reachable through errors.Is.
func New(code, message string, status int, cause error) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: cause}
}

func NotFound(resource, id string) *AppError {
	return New("NOT_FOUND", fmt.Sprintf("%s %s not found", resource, id), http.StatusNotFound, ErrNotFound)
}

func AlreadyExists(resource, field, value string) *AppError {
	return New("ALREADY_EXISTS", fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		http.StatusConflict, ErrAlreadyExists)
}

func InvalidInput(message string) *AppError {
	return New("INVALID_INPUT", message, http.StatusBadRequest, ErrInvalidInput)
}

func Unauthorized(message string) *AppError {
	return New("UNAUTHORIZED", message, http.StatusUnauthorized, ErrUnauthorized)
}

func Forbidden(message string) *AppError {
	return New("FORBIDDEN", message, http.StatusForbidden, ErrForbidden)
}

// Internal hides err behind a generic 500 message.
func Internal(err error) *AppError {
	return New("INTERNAL_ERROR", internalMessage, http.StatusInternalServerError, err)
}

// StoreUnavailable reports a backing store that failed or timed out. The
// whole request may be retried.
func StoreUnavailable(err error) *AppError {
	return New("STORE_UNAVAILABLE", "storage temporarily unavailable, retry later",
		http.StatusServiceUnavailable, errors.Join(ErrServiceUnavail, err))
}

const internalMessage = "an internal error occurred"

// kinds maps bare sentinels to what the client sees. Order matters when an
// error wraps several sentinels.
var kinds = []struct {
	sentinel error
	status   int
	code     string
	message  string
}{
	{ErrServiceUnavail, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "storage temporarily unavailable, retry later"},
	{ErrNotFound, http.StatusNotFound, "NOT_FOUND", "resource not found"},
	{ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS", "resource already exists"},
	{ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT", "invalid input"},
	{ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"},
	{ErrForbidden, http.StatusForbidden, "FORBIDDEN", "forbidden"},
}

// Classify returns the status, code and client message for err. The first
// AppError in the chain wins; otherwise a known sentinel; otherwise 500.
func Classify(err error) (status int, code, message string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Code, appErr.Message
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.status, k.code, k.message
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", internalMessage
}

// HTTPStatus returns the status Classify would report.
func HTTPStatus(err error) int {
	status, _, _ := Classify(err)
	return status
}
