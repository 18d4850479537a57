// Package configuration persists verification configurations.
package configuration

import (
	"context"
	"sort"
	"sync"

	"idverify/internal/identityverification/models"
	"idverify/pkg/platform/sentinel"
)

// InMemory stores configurations keyed by tenant and id. Stored values are
// treated as immutable; updates replace the pointer.
type InMemory struct {
	mu      sync.RWMutex
	configs map[string]map[string]*models.Configuration
}

// NewInMemory returns an empty store.
func NewInMemory() *InMemory {
	return &InMemory{configs: make(map[string]map[string]*models.Configuration)}
}

func (s *InMemory) Create(_ context.Context, cfg *models.Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant := s.configs[cfg.TenantID]
	if tenant == nil {
		tenant = make(map[string]*models.Configuration)
		s.configs[cfg.TenantID] = tenant
	}
	if _, exists := tenant[cfg.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range tenant {
		if existing.Type == cfg.Type {
			return sentinel.ErrConflict
		}
	}
	tenant[cfg.ID] = cfg
	return nil
}

func (s *InMemory) Update(_ context.Context, cfg *models.Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant := s.configs[cfg.TenantID]
	if _, ok := tenant[cfg.ID]; !ok {
		return sentinel.ErrNotFound
	}
	for id, existing := range tenant {
		if id != cfg.ID && existing.Type == cfg.Type {
			return sentinel.ErrConflict
		}
	}
	tenant[cfg.ID] = cfg
	return nil
}

func (s *InMemory) Delete(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant := s.configs[tenantID]
	if _, ok := tenant[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(tenant, id)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, tenantID, id string) (*models.Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[tenantID][id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cfg, nil
}

func (s *InMemory) FindByType(_ context.Context, tenantID, verificationType string) (*models.Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cfg := range s.configs[tenantID] {
		if cfg.Type == verificationType {
			return cfg, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// List returns configurations ordered by type.
func (s *InMemory) List(_ context.Context, tenantID string, limit, offset int) ([]*models.Configuration, error) {
	s.mu.RLock()
	all := make([]*models.Configuration, 0, len(s.configs[tenantID]))
	for _, cfg := range s.configs[tenantID] {
		all = append(all, cfg)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Type < all[j].Type })
	return window(all, limit, offset), nil
}

func (s *InMemory) Count(_ context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.configs[tenantID]), nil
}

func window[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end]
}
