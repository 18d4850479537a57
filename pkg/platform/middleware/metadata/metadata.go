package metadata

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"idverify/pkg/requestcontext"
)

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them to the context. Apply early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DescribeUserAgent returns the browser name and operating system of a
// User-Agent string. Empty input yields empty strings.
func DescribeUserAgent(raw string) (browser, os string) {
	if raw == "" {
		return "", ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		name, _ := ua.Browser()
		return name, "bot"
	}
	name, _ := ua.Browser()
	return name, ua.OS()
}

// Attributes is the request_attributes document exposed to mapping rules.
func Attributes(r *http.Request) map[string]any {
	ctx := r.Context()
	raw := requestcontext.UserAgent(ctx)
	browser, os := DescribeUserAgent(raw)
	return map[string]any{
		"ip_address": requestcontext.ClientIP(ctx),
		"user_agent": raw,
		"browser":    browser,
		"os":         os,
		"method":     r.Method,
		"path":       r.URL.Path,
	}
}

// ClientIPFromRequest extracts the real client IP, honouring proxy headers.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// first hop is the original client
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if r.RemoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
