package api

import (
	"encoding/json"
	"net/http"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
)

// ErrorCode is the machine-matchable code of an error response. Codes of
// domain errors are their kind names.
type ErrorCode string

const (
	// ErrCodeInvalidRequest indicates malformed or invalid request data.
	ErrCodeInvalidRequest = ErrorCode(errors.KindInvalidArgument)

	// ErrCodeForbidden indicates the client is not allowed to use the API.
	ErrCodeForbidden ErrorCode = "Forbidden"

	// ErrCodeVerificationFailed indicates the system does not match the desired state.
	ErrCodeVerificationFailed = ErrorCode(errors.KindVerification)

	// ErrCodeNotImplemented indicates the requested change is not supported.
	ErrCodeNotImplemented = ErrorCode(errors.KindNotImplemented)

	// ErrCodeTimeout indicates an operation did not finish in time.
	ErrCodeTimeout = ErrorCode(errors.KindTimeout)

	// ErrCodeConfigError indicates the service configuration is invalid.
	ErrCodeConfigError = ErrorCode(errors.KindConfig)

	// ErrCodeBackendError indicates the networking backend failed.
	ErrCodeBackendError = ErrorCode(errors.KindBackend)

	// ErrCodeInternalError indicates an internal server error.
	ErrCodeInternalError = ErrorCode(errors.KindBug)
)

// APIError represents a structured API error response.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorResponse wraps an APIError for JSON responses.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// NewAPIError creates a new APIError with the given code and message.
func NewAPIError(code ErrorCode, message string) APIError {
	return APIError{Code: code, Message: message}
}

// WriteError writes an error response to the HTTP response writer.
func WriteError(w http.ResponseWriter, statusCode int, err APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: err})
}

// WriteInvalidRequest writes a 400 Bad Request error.
func WriteInvalidRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, NewAPIError(ErrCodeInvalidRequest, message))
}

// WriteForbidden writes a 403 Forbidden error.
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, NewAPIError(ErrCodeForbidden, message))
}

// WriteInternalError writes a 500 Internal Server Error.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, NewAPIError(ErrCodeInternalError, message))
}

// WriteDomainError writes err with the status and code of its kind.
func WriteDomainError(w http.ResponseWriter, err error) {
	status, code := statusOf(errors.KindOf(err))
	WriteError(w, status, NewAPIError(code, err.Error()))
}

func statusOf(kind errors.Kind) (int, ErrorCode) {
	switch kind {
	case errors.KindInvalidArgument:
		return http.StatusBadRequest, ErrCodeInvalidRequest
	case errors.KindVerification:
		return http.StatusConflict, ErrCodeVerificationFailed
	case errors.KindNotImplemented:
		return http.StatusNotImplemented, ErrCodeNotImplemented
	case errors.KindTimeout:
		return http.StatusGatewayTimeout, ErrCodeTimeout
	case errors.KindConfig:
		return http.StatusInternalServerError, ErrCodeConfigError
	case errors.KindBackend:
		return http.StatusInternalServerError, ErrCodeBackendError
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}
