// Package cache serves verification configurations read-through by
// (tenant, type). Backends are replaceable; a failing backend degrades to the
// source store.
package cache

import (
	"context"
	"log/slog"

	"idverify/internal/identityverification/metrics"
	"idverify/internal/identityverification/models"
)

// Source is the authoritative configuration lookup.
type Source interface {
	FindByType(ctx context.Context, tenantID, verificationType string) (*models.Configuration, error)
}

// Backend stores configurations under a (tenant, type) key.
type Backend interface {
	Get(ctx context.Context, tenantID, verificationType string) (*models.Configuration, bool, error)
	Set(ctx context.Context, cfg *models.Configuration) error
	Delete(ctx context.Context, tenantID, verificationType string) error
}

// Configurations is a read-through cache in front of Source.
type Configurations struct {
	source  Source
	backend Backend
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Configurations)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Configurations) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Configurations) {
		c.metrics = m
	}
}

func New(source Source, backend Backend, opts ...Option) *Configurations {
	c := &Configurations{source: source, backend: backend, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FindByType returns the cached configuration or loads and caches it.
// Source errors, including not-found, are returned unchanged and never cached.
func (c *Configurations) FindByType(ctx context.Context, tenantID, verificationType string) (*models.Configuration, error) {
	cfg, ok, err := c.backend.Get(ctx, tenantID, verificationType)
	if err != nil {
		c.logger.WarnContext(ctx, "configuration cache read failed",
			"tenant_id", tenantID,
			"type", verificationType,
			"error", err.Error(),
		)
	}
	if ok {
		c.metrics.IncConfigCache(true)
		return cfg, nil
	}
	c.metrics.IncConfigCache(false)

	cfg, err = c.source.FindByType(ctx, tenantID, verificationType)
	if err != nil {
		return nil, err
	}
	if err := c.backend.Set(ctx, cfg); err != nil {
		c.logger.WarnContext(ctx, "configuration cache write failed",
			"tenant_id", tenantID,
			"type", verificationType,
			"error", err.Error(),
		)
	}
	return cfg, nil
}

// Invalidate drops the cached entry for one (tenant, type).
func (c *Configurations) Invalidate(ctx context.Context, tenantID, verificationType string) {
	if err := c.backend.Delete(ctx, tenantID, verificationType); err != nil {
		c.logger.WarnContext(ctx, "configuration cache invalidation failed",
			"tenant_id", tenantID,
			"type", verificationType,
			"error", err.Error(),
		)
	}
}

func key(tenantID, verificationType string) string {
	return "idv:config:" + tenantID + ":" + verificationType
}
