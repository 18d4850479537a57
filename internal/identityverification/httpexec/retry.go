package httpexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"

	"idverify/internal/identityverification/models"
)

// StatusClientClosed is the non-standard status some providers use for
// "client closed request". It is retried only when the body says so.
const StatusClientClosed = 499

var (
	defaultRetryableStatusCodes = []int{408, 429, 500, 502, 503, 504}
	defaultBackoffDelays        = []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}
)

// retryPolicy is the parsed form of a retry_configuration.
type retryPolicy struct {
	maxRetries          int
	retryableStatuses   []int
	idempotencyRequired bool
	delays              []time.Duration
}

// newRetryPolicy resolves defaults. A nil configuration disables retries.
func newRetryPolicy(cfg *models.RetryConfiguration) (retryPolicy, error) {
	if cfg == nil {
		return retryPolicy{}, nil
	}
	p := retryPolicy{
		maxRetries:          max(cfg.MaxRetries, 0),
		retryableStatuses:   cfg.RetryableStatusCodes,
		idempotencyRequired: cfg.IdempotencyRequired,
	}
	if len(p.retryableStatuses) == 0 {
		p.retryableStatuses = defaultRetryableStatusCodes
	}
	delays, err := ParseBackoffDelays(cfg.BackoffDelays)
	if err != nil {
		return retryPolicy{}, err
	}
	if len(delays) == 0 {
		delays = defaultBackoffDelays
	}
	p.delays = delays
	return p, nil
}

// ParseBackoffDelays parses ISO-8601 durations such as "PT1S" or "PT0.5S".
func ParseBackoffDelays(raw []string) ([]time.Duration, error) {
	out := make([]time.Duration, 0, len(raw))
	for _, s := range raw {
		d, err := duration.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse backoff delay %q: %w", s, err)
		}
		out = append(out, d.ToTimeDuration())
	}
	return out, nil
}

func isIdempotentMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// retryableStatus reports whether status may be retried for method.
func (p retryPolicy) retryableStatus(method string, status int) bool {
	if p.maxRetries == 0 || !slices.Contains(p.retryableStatuses, status) {
		return false
	}
	return isIdempotentMethod(method) || !p.idempotencyRequired
}

// delay returns the wait before retry number attempt (0-based). Past the end
// of the configured list the last delay repeats.
func (p retryPolicy) delay(attempt int) time.Duration {
	if len(p.delays) == 0 {
		return 0
	}
	if attempt >= len(p.delays) {
		return p.delays[len(p.delays)-1]
	}
	return p.delays[attempt]
}

// retryAfter reads an integer Retry-After header in seconds.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	raw := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// bodySaysRetryable peeks at a JSON body for "retryable": true and restores
// the body for later readers.
func bodySaysRetryable(resp *http.Response) bool {
	if resp == nil || resp.Body == nil {
		return false
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return false
	}
	var probe struct {
		Retryable bool `json:"retryable"`
	}
	if json.Unmarshal(raw, &probe) != nil {
		return false
	}
	return probe.Retryable
}

// checkRetry builds the retryablehttp.CheckRetry for one call. Network
// errors are classified into synthetic statuses and retried like real ones.
func (p retryPolicy) checkRetry(method string) func(ctx context.Context, resp *http.Response, err error) (bool, error) {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		status := 0
		switch {
		case err != nil:
			status = classifyNetworkError(err).status
		case resp != nil:
			status = resp.StatusCode
		}
		if status == StatusClientClosed {
			return p.maxRetries > 0 && bodySaysRetryable(resp), nil
		}
		return p.retryableStatus(method, status), nil
	}
}

// backoff builds the retryablehttp.Backoff for one call.
func (p retryPolicy) backoff() func(_, _ time.Duration, attemptNum int, resp *http.Response) time.Duration {
	return func(_, _ time.Duration, attemptNum int, resp *http.Response) time.Duration {
		if d, ok := retryAfter(resp); ok {
			return d
		}
		return p.delay(attemptNum)
	}
}
