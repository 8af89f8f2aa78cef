// Package httpx provides HTTP request and response helpers for JSON handlers.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// StatusFor maps a domain error to its HTTP status. Unknown errors are 500.
func StatusFor(err error) int {
	coded, ok := shared.AsError(err)
	if !ok {
		if errors.Is(err, errBodyTooLarge) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusInternalServerError
	}
	switch coded.Kind {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindConflict:
		return http.StatusConflict
	case shared.KindForbidden:
		return http.StatusForbidden
	case shared.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err as {error, message} and returns the status used.
// Internal errors never leak their message.
func RespondError(w http.ResponseWriter, err error) int {
	status := StatusFor(err)
	coded, ok := shared.AsError(err)
	if !ok || status == http.StatusInternalServerError {
		body := ErrorBody{Error: "INTERNAL_ERROR", Message: "unexpected error"}
		if status == http.StatusRequestEntityTooLarge {
			body = ErrorBody{Error: "PAYLOAD_TOO_LARGE"}
		}
		JSON(w, status, body)
		return status
	}
	JSON(w, status, ErrorBody{Error: coded.Code, Message: coded.Message, Details: coded.Details})
	return status
}
