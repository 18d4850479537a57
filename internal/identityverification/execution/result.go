// Package execution dispatches a process's execution variant and normalises
// what came back.
package execution

import (
	"fmt"
	"net/http"

	"idverify/internal/identityverification/models"
)

// Status categories reported in execution_failed details.
const (
	CategorySuccess     = "success"
	CategoryClientError = "client_error"
	CategoryServerError = "server_error"
)

// Result is the normalised outcome of one execution.
type Result struct {
	Type       models.ExecutionType
	StatusCode int
	// UpstreamStatusCode is the code before response resolve rules ran.
	UpstreamStatusCode int
	Headers            http.Header
	Body               map[string]any
}

// Success reports a 2xx status.
func (r *Result) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusCategory classifies the status code.
func (r *Result) StatusCategory() string {
	switch {
	case r.Success():
		return CategorySuccess
	case r.StatusCode >= 400 && r.StatusCode < 500:
		return CategoryClientError
	default:
		return CategoryServerError
	}
}

// Failure is returned when an execution finished with a non-2xx status after
// all retries.
type Failure struct {
	Result *Result
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s execution failed with status %d", f.Result.Type, f.Result.StatusCode)
}

// CallerStatus is the HTTP status reported to the verification caller.
// Client errors and 5xx other than 500 are mirrored; anything that is not a
// 4xx or 5xx becomes 500.
func (f *Failure) CallerStatus() int {
	code := f.Result.StatusCode
	switch {
	case code >= 400 && code < 600:
		return code
	default:
		return http.StatusInternalServerError
	}
}

// Details is the error_details object of an execution_failed response.
func (f *Failure) Details() map[string]any {
	body := f.Result.Body
	if body == nil {
		body = map[string]any{}
	}
	return map[string]any{
		"execution_type":  string(f.Result.Type),
		"status_category": f.Result.StatusCategory(),
		"status_code":     f.Result.StatusCode,
		"response_body":   body,
	}
}
