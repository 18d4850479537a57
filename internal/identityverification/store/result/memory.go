// Package result persists verified-claims results.
package result

import (
	"context"
	"sort"
	"sync"

	"idverify/internal/identityverification/models"
	"idverify/pkg/platform/sentinel"
)

// InMemory keeps results keyed by id.
type InMemory struct {
	mu      sync.RWMutex
	results map[string]*models.VerificationResult
}

// NewInMemory returns an empty store.
func NewInMemory() *InMemory {
	return &InMemory{results: make(map[string]*models.VerificationResult)}
}

func (s *InMemory) Create(_ context.Context, r *models.VerificationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.results[r.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *r
	s.results[r.ID] = &cp
	return nil
}

// List returns matching results, most recently verified first.
func (s *InMemory) List(_ context.Context, q models.ResultQuery) ([]*models.VerificationResult, error) {
	matched := s.match(q)
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].VerifiedAt.Equal(matched[j].VerifiedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].VerifiedAt.After(matched[j].VerifiedAt)
	})
	if q.Offset >= len(matched) {
		return []*models.VerificationResult{}, nil
	}
	end := len(matched)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	return matched[q.Offset:end], nil
}

func (s *InMemory) Count(_ context.Context, q models.ResultQuery) (int, error) {
	return len(s.match(q)), nil
}

func (s *InMemory) match(q models.ResultQuery) []*models.VerificationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.VerificationResult
	for _, r := range s.results {
		if q.Matches(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}
