package execution

import (
	"context"
	"fmt"
	"net/http"

	"idverify/internal/identityverification/models"
)

// HTTPExecutor performs http_request executions.
type HTTPExecutor interface {
	Execute(ctx context.Context, cfg *models.HTTPRequestConfig, params map[string]any) (*Result, error)
}

// StatusResolver remaps an upstream status through response resolve rules.
type StatusResolver interface {
	Resolve(ctx context.Context, configs []models.ResponseResolveConfig, status int, headers http.Header, body map[string]any) int
}

// Dispatcher selects the execution strategy for a process.
type Dispatcher struct {
	http     HTTPExecutor
	resolver StatusResolver
}

// NewDispatcher constructs a Dispatcher. resolver may be nil.
func NewDispatcher(httpExecutor HTTPExecutor, resolver StatusResolver) *Dispatcher {
	return &Dispatcher{http: httpExecutor, resolver: resolver}
}

// Execute runs cfg. A non-2xx outcome is returned alongside a *Failure so
// callers can both record history and report the upstream details.
func (d *Dispatcher) Execute(ctx context.Context, cfg models.ExecutionConfig, params map[string]any) (*Result, error) {
	var res *Result
	switch cfg.Type {
	case models.ExecutionNoAction, "":
		res = &Result{Type: models.ExecutionNoAction, StatusCode: http.StatusOK, UpstreamStatusCode: http.StatusOK, Body: map[string]any{}}
	case models.ExecutionMock:
		res = mockResult(cfg.Mock)
	case models.ExecutionHTTPRequest:
		if d.http == nil {
			return nil, fmt.Errorf("http_request execution is not available")
		}
		var err error
		res, err = d.http.Execute(ctx, cfg.HTTPRequest, params)
		if err != nil {
			return nil, err
		}
		if d.resolver != nil && cfg.HTTPRequest != nil {
			res.StatusCode = d.resolver.Resolve(ctx, cfg.HTTPRequest.ResponseResolveConfigs, res.UpstreamStatusCode, res.Headers, res.Body)
		}
	default:
		return nil, fmt.Errorf("unsupported execution type %q", cfg.Type)
	}

	if !res.Success() {
		return res, &Failure{Result: res}
	}
	return res, nil
}

func mockResult(cfg *models.MockConfig) *Result {
	status := http.StatusOK
	body := map[string]any{}
	if cfg != nil {
		if cfg.StatusCode != 0 {
			status = cfg.StatusCode
		}
		if cfg.ResponseBody != nil {
			body = cfg.ResponseBody
		}
	}
	return &Result{Type: models.ExecutionMock, StatusCode: status, UpstreamStatusCode: status, Headers: http.Header{}, Body: body}
}
