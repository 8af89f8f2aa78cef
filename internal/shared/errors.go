package shared

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error for transport mapping.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindForbidden
	KindUnauthorized
)

// Error is a coded domain error. Code is the stable identifier surfaced to API
// clients (LP_NOT_FOUND, INVALID_QUANTITY, ...).
type Error struct {
	Code    string
	Kind    Kind
	Message string
	Details map[string]string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches errors carrying the same code, so sentinels survive WithMessage.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// WithMessage returns a copy of e with a request specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// WithDetails returns a copy of e carrying field level details.
func (e *Error) WithDetails(details map[string]string) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Code: code, Kind: kind, Message: message}
}

// Validation builds a 400 class error.
func Validation(code, message string) *Error { return newError(KindValidation, code, message) }

// NotFound builds a 404 class error.
func NotFound(code, message string) *Error { return newError(KindNotFound, code, message) }

// Conflict builds a 409 class error.
func Conflict(code, message string) *Error { return newError(KindConflict, code, message) }

// Forbidden builds a 403 class error.
func Forbidden(code, message string) *Error { return newError(KindForbidden, code, message) }

// Unauthorized builds a 401 class error.
func Unauthorized(code, message string) *Error { return newError(KindUnauthorized, code, message) }

// AsError unwraps err into a coded domain error.
func AsError(err error) (*Error, bool) {
	var coded *Error
	if errors.As(err, &coded) {
		return coded, true
	}
	return nil, false
}

var (
	// ErrValidation is returned when a request body fails structural validation.
	ErrValidation = Validation("VALIDATION_ERROR", "request validation failed")
	// ErrUnauthenticated indicates a missing or unknown credential.
	ErrUnauthenticated = Unauthorized("UNAUTHENTICATED", "authentication required")
	// ErrForbidden indicates the caller lacks a permission.
	ErrForbidden = Forbidden("FORBIDDEN", "insufficient permissions")
	// ErrDuplicateRequest is returned when an Idempotency-Key was already processed.
	ErrDuplicateRequest = Conflict("DUPLICATE_REQUEST", "request with this idempotency key was already processed")
	// ErrInvalidID is returned for malformed path identifiers.
	ErrInvalidID = Validation("INVALID_ID", "identifier must be a valid UUID")
)
