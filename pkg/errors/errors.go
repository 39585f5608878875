package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/lib/pq"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	ErrInvalidTransition = New("INVALID_TRANSITION", http.StatusConflict, "enrollment status transition not allowed")
	ErrProgramMismatch   = New("PROGRAM_MISMATCH", http.StatusBadRequest, "operation not valid for this program")
	ErrDuplicateSend     = New("DUPLICATE_SEND", http.StatusConflict, "already sent")
	ErrProviderFailure   = New("PROVIDER_FAILURE", http.StatusBadGateway, "external provider request failed")
)

// ErrCacheMiss signals an absent cache entry. Callers fall through to
// the primary store; it never reaches an HTTP response.
var ErrCacheMiss = errors.New("cache miss")

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if pqErr := pqError(err); pqErr != nil {
		return pqErr
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// pqError maps well-known Postgres constraint violations to friendly
// messages instead of leaking driver internals.
func pqError(err error) *Error {
	var pgErr *pq.Error
	if !errors.As(err, &pgErr) {
		return nil
	}
	switch pgErr.Code {
	case "23505": // unique_violation
		return Wrap(err, ErrConflict.Code, ErrConflict.Status, "a record with these values already exists")
	case "23503": // foreign_key_violation
		return Wrap(err, ErrPreconditionFailed.Code, ErrPreconditionFailed.Status, "referenced record does not exist")
	case "23502": // not_null_violation
		return Wrap(err, ErrValidation.Code, ErrValidation.Status, "a required value is missing")
	}
	return nil
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
