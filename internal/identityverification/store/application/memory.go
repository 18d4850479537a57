// Package application persists verification applications with optimistic
// versioning.
package application

import (
	"context"
	"sort"
	"sync"

	"idverify/internal/identityverification/models"
	"idverify/pkg/platform/sentinel"
)

// InMemory stores copies of applications so callers never share state with
// the store.
type InMemory struct {
	mu   sync.RWMutex
	apps map[string]*models.Application
}

// NewInMemory returns an empty store.
func NewInMemory() *InMemory {
	return &InMemory{apps: make(map[string]*models.Application)}
}

func (s *InMemory) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.apps[app.ID]; exists {
		return sentinel.ErrConflict
	}
	app.Version = 1
	s.apps[app.ID] = app.Clone()
	return nil
}

// UpdateIfVersion writes app only if the stored version still equals
// expected, then bumps app.Version.
func (s *InMemory) UpdateIfVersion(_ context.Context, app *models.Application, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.apps[app.ID]
	if !ok || current.TenantID != app.TenantID {
		return sentinel.ErrNotFound
	}
	if current.Version != expected {
		return sentinel.ErrConflict
	}
	app.Version = expected + 1
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, tenantID, userID, id string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.apps[id]
	if !ok || app.TenantID != tenantID || app.UserID != userID {
		return nil, sentinel.ErrNotFound
	}
	return app.Clone(), nil
}

func (s *InMemory) FindByExternalID(_ context.Context, tenantID, verificationType, externalID string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if externalID == "" {
		return nil, sentinel.ErrNotFound
	}
	for _, app := range s.apps {
		if app.TenantID == tenantID && app.Type == verificationType && app.ExternalApplicationID == externalID {
			return app.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// List returns matching applications, newest first.
func (s *InMemory) List(_ context.Context, q models.ApplicationQuery) ([]*models.Application, error) {
	matched := s.match(q)
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].RequestedAt.Equal(matched[j].RequestedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].RequestedAt.After(matched[j].RequestedAt)
	})
	if q.Offset >= len(matched) {
		return []*models.Application{}, nil
	}
	end := len(matched)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	return matched[q.Offset:end], nil
}

func (s *InMemory) Count(_ context.Context, q models.ApplicationQuery) (int, error) {
	return len(s.match(q)), nil
}

func (s *InMemory) Delete(_ context.Context, tenantID, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps[id]
	if !ok || app.TenantID != tenantID || app.UserID != userID {
		return sentinel.ErrNotFound
	}
	delete(s.apps, id)
	return nil
}

func (s *InMemory) match(q models.ApplicationQuery) []*models.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Application
	for _, app := range s.apps {
		if q.Matches(app) {
			out = append(out, app.Clone())
		}
	}
	return out
}
