// Package httpexec performs http_request executions: request building from
// mapping rules, authentication, and the retry loop.
package httpexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"idverify/internal/identityverification/execution"
	"idverify/internal/identityverification/mapping"
	"idverify/internal/identityverification/metrics"
	"idverify/internal/identityverification/models"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxResponseBytes      = 10 << 20
	contentTypeJSON       = "application/json"
	contentTypeForm       = "application/x-www-form-urlencoded"
	idempotencyKeyHeader  = "Idempotency-Key"
)

// Executor runs http_request executions.
type Executor struct {
	client  *http.Client
	mapper  *mapping.Mapper
	tokens  *TokenSource
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithHTTPClient sets the base client. Its Timeout is replaced per call by
// request_timeout_seconds.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) {
		e.client = client
	}
}

func WithTokenSource(tokens *TokenSource) Option {
	return func(e *Executor) {
		e.tokens = tokens
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// New constructs an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		client: cleanhttp.DefaultPooledClient(),
		logger: slog.Default(),
		tracer: otel.Tracer("idverify/httpexec"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tokens == nil {
		e.tokens = NewTokenSource(e.client, 5*time.Minute)
	}
	e.mapper = mapping.New(e.logger)
	return e
}

type outbound struct {
	method  string
	url     string
	headers map[string]string
	body    []byte
}

// Execute sends the request described by cfg, with values drawn from params.
// Transport failures are returned as synthetic results, never as errors; an
// error means the configuration itself could not be turned into a request.
func (e *Executor) Execute(ctx context.Context, cfg *models.HTTPRequestConfig, params map[string]any) (*execution.Result, error) {
	if cfg == nil {
		return nil, errors.New("http_request execution requires http_request configuration")
	}
	correlationID := newCorrelationID()
	ctx, span := e.tracer.Start(ctx, "httpexec.Execute", trace.WithAttributes(
		attribute.String("http.method", methodOf(cfg)),
		attribute.String("correlation_id", correlationID),
	))
	defer span.End()

	policy, err := newRetryPolicy(cfg.RetryConfiguration)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	req, err := e.build(ctx, cfg, params)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res, err := e.send(ctx, cfg, req, policy, correlationID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if isOAuth(cfg.AuthType) && (res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden) {
		e.logger.WarnContext(ctx, "upstream rejected oauth token, retrying with a fresh token",
			"correlation_id", correlationID,
			"status_code", res.StatusCode,
		)
		e.tokens.Invalidate(ctx, cfg.AuthType, cfg.OAuthAuthorization)
		res, err = e.send(ctx, cfg, req, policy, correlationID)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))
	if !res.Success() {
		span.SetStatus(codes.Error, "upstream returned "+strconv.Itoa(res.StatusCode))
		e.logger.WarnContext(ctx, "http request execution failed",
			"correlation_id", correlationID,
			"status_code", res.StatusCode,
			"url", redactURL(req.url),
		)
	}
	return res, nil
}

func (e *Executor) build(ctx context.Context, cfg *models.HTTPRequestConfig, params map[string]any) (*outbound, error) {
	method := methodOf(cfg)

	rawURL := mapping.Interpolate(cfg.URL, e.mapper.ToPathParams(ctx, cfg.PathMappingRules, params))
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid http_request url %q", rawURL)
	}
	if len(cfg.QueryMappingRules) > 0 {
		q := u.Query()
		for k, values := range e.mapper.ToQuery(ctx, cfg.QueryMappingRules, params) {
			for _, v := range values {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	headers := e.mapper.ToHeaders(ctx, cfg.HeaderMappingRules, params)
	contentType := headerValue(headers, "Content-Type")
	if contentType == "" {
		contentType = contentTypeJSON
		headers["Content-Type"] = contentType
	}

	var body []byte
	if method != http.MethodGet && method != http.MethodHead {
		mapped := e.mapper.Apply(ctx, cfg.BodyMappingRules, params, nil)
		if strings.HasPrefix(strings.ToLower(contentType), contentTypeForm) {
			body = []byte(formEncode(mapped).Encode())
		} else {
			body, err = json.Marshal(mapped)
			if err != nil {
				return nil, fmt.Errorf("encode request body: %w", err)
			}
		}
	}

	return &outbound{method: method, url: u.String(), headers: headers, body: body}, nil
}

func (e *Executor) send(ctx context.Context, cfg *models.HTTPRequestConfig, out *outbound, policy retryPolicy, correlationID string) (*execution.Result, error) {
	timeout := defaultRequestTimeout
	if cfg.RequestTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	}
	httpClient := *e.client
	httpClient.Timeout = timeout

	lastStatus := 0
	rc := &retryablehttp.Client{
		HTTPClient:   &httpClient,
		RetryMax:     policy.maxRetries,
		CheckRetry:   policy.checkRetry(out.method),
		Backoff:      policy.backoff(),
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
		RequestLogHook: func(_ retryablehttp.Logger, r *http.Request, attempt int) {
			e.metrics.IncOutboundAttempt(out.method)
			if attempt > 0 {
				e.metrics.IncOutboundRetry(strconv.Itoa(lastStatus))
			}
			e.logger.InfoContext(ctx, "outbound request attempt",
				"correlation_id", correlationID,
				"method", r.Method,
				"url", redactURL(r.URL.String()),
				"attempt", attempt+1,
			)
		},
		ResponseLogHook: func(_ retryablehttp.Logger, resp *http.Response) {
			lastStatus = resp.StatusCode
		},
	}

	var rawBody any
	if out.body != nil {
		rawBody = out.body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, out.method, out.url, rawBody)
	if err != nil {
		return nil, fmt.Errorf("build outbound request: %w", err)
	}
	for k, v := range out.headers {
		req.Header.Set(k, v)
	}
	if policy.idempotencyRequired {
		req.Header.Set(idempotencyKeyHeader, uuid.NewString())
	}

	if isOAuth(cfg.AuthType) {
		token, err := e.tokens.Token(ctx, cfg.AuthType, cfg.OAuthAuthorization)
		if err != nil {
			e.logger.WarnContext(ctx, "oauth token request failed",
				"correlation_id", correlationID,
				"error", err.Error(),
			)
			return e.networkResult(err, out.method, policy), nil
		}
		req.Header.Set("Authorization", "Bearer "+token)
	} else if err := applyStaticAuth(req.Request, cfg, out.body, e.now()); err != nil {
		return nil, err
	}

	resp, err := rc.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.WarnContext(ctx, "outbound request failed",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		return e.networkResult(err, out.method, policy), nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return e.networkResult(err, out.method, policy), nil
	}
	return &execution.Result{
		Type:               models.ExecutionHTTPRequest,
		StatusCode:         resp.StatusCode,
		UpstreamStatusCode: resp.StatusCode,
		Headers:            resp.Header.Clone(),
		Body:               decodeBody(raw),
	}, nil
}

func (e *Executor) networkResult(err error, method string, policy retryPolicy) *execution.Result {
	f := classifyNetworkError(err)
	return &execution.Result{
		Type:               models.ExecutionHTTPRequest,
		StatusCode:         f.status,
		UpstreamStatusCode: f.status,
		Headers:            http.Header{},
		Body:               syntheticBody(err, f, policy.retryableStatus(method, f.status)),
	}
}

// decodeBody returns JSON objects as-is; anything else is kept under "raw".
func decodeBody(raw []byte) map[string]any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err == nil && obj != nil {
		return obj
	}
	var other any
	if err := json.Unmarshal(trimmed, &other); err == nil {
		return map[string]any{"raw": other}
	}
	return map[string]any{"raw": string(trimmed)}
}

func formEncode(body map[string]any) url.Values {
	form := url.Values{}
	for k, v := range body {
		if list, ok := v.([]any); ok {
			for _, item := range list {
				form.Add(k, mapping.Stringify(item))
			}
			continue
		}
		form.Set(k, mapping.Stringify(v))
	}
	return form
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func methodOf(cfg *models.HTTPRequestConfig) string {
	if cfg.Method == "" {
		return http.MethodPost
	}
	return strings.ToUpper(cfg.Method)
}

func isOAuth(authType string) bool {
	return authType == models.AuthOAuth2 || authType == models.AuthOAuth2ClientCredentials
}

func newCorrelationID() string {
	return "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// redactURL drops the query string, which may carry credentials.
func redactURL(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
