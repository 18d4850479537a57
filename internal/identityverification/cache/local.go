package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"idverify/internal/identityverification/models"
)

// Local is an in-process backend built on go-cache.
type Local struct {
	items *gocache.Cache
}

// NewLocal expires entries after ttl.
func NewLocal(ttl time.Duration) *Local {
	return &Local{items: gocache.New(ttl, 2*ttl)}
}

func (l *Local) Get(_ context.Context, tenantID, verificationType string) (*models.Configuration, bool, error) {
	v, ok := l.items.Get(key(tenantID, verificationType))
	if !ok {
		return nil, false, nil
	}
	return v.(*models.Configuration), true, nil
}

func (l *Local) Set(_ context.Context, cfg *models.Configuration) error {
	l.items.SetDefault(key(cfg.TenantID, cfg.Type), cfg)
	return nil
}

func (l *Local) Delete(_ context.Context, tenantID, verificationType string) error {
	l.items.Delete(key(tenantID, verificationType))
	return nil
}
