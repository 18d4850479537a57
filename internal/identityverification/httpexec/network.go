package httpexec

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"syscall"
)

// Network failure categories reported in retry_info.
const (
	CategoryConnection = "connection"
	CategoryTimeout    = "timeout"
	CategoryNetwork    = "network"
)

type networkFailure struct {
	status   int
	category string
	reason   string
}

// classifyNetworkError maps transport errors onto the synthetic statuses
// callers see: refused or unreachable hosts are 503, timeouts 504, the rest 502.
func classifyNetworkError(err error) networkFailure {
	if errors.Is(err, context.DeadlineExceeded) {
		return networkFailure{status: http.StatusGatewayTimeout, category: CategoryTimeout, reason: "request timed out"}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return networkFailure{status: http.StatusGatewayTimeout, category: CategoryTimeout, reason: "request timed out"}
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return networkFailure{status: http.StatusServiceUnavailable, category: CategoryConnection, reason: "connection refused"}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return networkFailure{status: http.StatusServiceUnavailable, category: CategoryConnection, reason: "host lookup failed"}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return networkFailure{status: http.StatusServiceUnavailable, category: CategoryConnection, reason: "connection failed"}
	}
	return networkFailure{status: http.StatusBadGateway, category: CategoryNetwork, reason: "network failure"}
}

// syntheticBody is the response body recorded for a call that never got an
// HTTP response.
func syntheticBody(err error, f networkFailure, retryable bool) map[string]any {
	desc := err.Error()
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		desc = urlErr.Err.Error()
	}
	return map[string]any{
		"error":             "network_error",
		"error_description": desc,
		"retry_info": map[string]any{
			"retryable": retryable,
			"reason":    f.reason,
			"category":  f.category,
		},
	}
}
