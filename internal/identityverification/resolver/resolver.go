// Package resolver remaps upstream responses to caller-visible status codes.
package resolver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"idverify/internal/identityverification/condition"
	"idverify/internal/identityverification/models"
)

// Resolver evaluates response_resolve_configs.
type Resolver struct {
	logger *slog.Logger
}

// New constructs a Resolver.
func New(logger *slog.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Resolve returns the mapped status of the first matching rule, or status
// unchanged when none match.
func (r *Resolver) Resolve(ctx context.Context, configs []models.ResponseResolveConfig, status int, headers http.Header, body map[string]any) int {
	if len(configs) == 0 {
		return status
	}
	doc := Context(status, headers, body)
	for i, cfg := range configs {
		var (
			ok  bool
			err error
		)
		if strings.EqualFold(cfg.MatchMode, models.MatchModeAny) {
			ok, err = condition.Any(cfg.Conditions, doc)
		} else {
			ok, err = condition.All(cfg.Conditions, doc)
		}
		if err != nil {
			if r.logger != nil {
				r.logger.WarnContext(ctx, "response resolve condition failed",
					"rule_index", i,
					"error", err.Error(),
				)
			}
			continue
		}
		if ok {
			return cfg.MappedStatusCode
		}
	}
	return status
}

// Context is the document resolve conditions are evaluated against. Header
// names are lower-cased and single values are flattened to strings.
func Context(status int, headers http.Header, body map[string]any) map[string]any {
	hdrs := make(map[string]any, len(headers))
	for k, values := range headers {
		key := strings.ToLower(k)
		if len(values) == 1 {
			hdrs[key] = values[0]
			continue
		}
		list := make([]any, len(values))
		for i, v := range values {
			list[i] = v
		}
		hdrs[key] = list
	}
	if body == nil {
		body = map[string]any{}
	}
	return map[string]any{
		"status_code":      float64(status),
		"response_headers": hdrs,
		"response_body":    body,
	}
}
