package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "idverify/pkg/domain-errors"
)

// ErrorResponse is the wire shape of every error body.
type ErrorResponse struct {
	Error            string   `json:"error"`
	ErrorDescription string   `json:"error_description,omitempty"`
	ErrorMessages    []string `json:"error_messages,omitempty"`
	ErrorDetails     any      `json:"error_details,omitempty"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into status and wire code.
// Errors that carry no domain code are reported as server_error.
func WriteError(w http.ResponseWriter, err error) {
	status, body := ErrorBody(err)
	WriteJSON(w, status, body)
}

// ErrorBody returns the status and body WriteError would emit.
func ErrorBody(err error) (int, ErrorResponse) {
	de, ok := dErrors.As(err)
	if !ok {
		return http.StatusInternalServerError, ErrorResponse{Error: "server_error"}
	}

	status, code := statusFor(de.Code)
	if status == http.StatusInternalServerError {
		return status, ErrorResponse{Error: code}
	}
	return status, ErrorResponse{
		Error:            code,
		ErrorDescription: de.Message,
		ErrorMessages:    de.Messages,
	}
}

// statusFor keeps not_found on the invalid_request wire code; clients
// distinguish it by the 404 status only.
func statusFor(code dErrors.Code) (int, string) {
	switch code {
	case dErrors.CodeInvalidRequest, dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput:
		return http.StatusBadRequest, "invalid_request"
	case dErrors.CodeNotFound:
		return http.StatusNotFound, "invalid_request"
	case dErrors.CodePreHookValidation:
		return http.StatusBadRequest, "pre_hook_validation_failed"
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized, "invalid_token"
	case dErrors.CodeInvalidCredentials:
		return http.StatusUnauthorized, "unauthorized"
	case dErrors.CodeForbidden:
		return http.StatusForbidden, "access_denied"
	case dErrors.CodeConflict:
		return http.StatusConflict, "conflict"
	case dErrors.CodeInvariantViolation:
		return http.StatusUnprocessableEntity, "invalid_request"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}
