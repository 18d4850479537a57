// Package management implements tenant-admin CRUD over verification
// configurations. Every mutating call can run as a dry run.
package management

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"idverify/internal/identityverification/models"
	"idverify/internal/identityverification/prehook"
	dErrors "idverify/pkg/domain-errors"
	"idverify/pkg/platform/sentinel"
	"idverify/pkg/requestcontext"
)

const (
	defaultLimit = 20
	maxLimit     = 1000
)

type Store interface {
	Create(ctx context.Context, cfg *models.Configuration) error
	Update(ctx context.Context, cfg *models.Configuration) error
	Delete(ctx context.Context, tenantID, id string) error
	FindByID(ctx context.Context, tenantID, id string) (*models.Configuration, error)
	FindByType(ctx context.Context, tenantID, verificationType string) (*models.Configuration, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]*models.Configuration, error)
	Count(ctx context.Context, tenantID string) (int, error)
}

// Invalidator drops cached configurations after a write.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID, verificationType string)
}

type Service struct {
	store    Store
	cache    Invalidator
	prehooks *prehook.Validator
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithInvalidator wires the configuration cache.
func WithInvalidator(cache Invalidator) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithPreHookValidator makes validation accept the same pre-hook types the
// engine was built with.
func WithPreHookValidator(v *prehook.Validator) Option {
	return func(s *Service) {
		s.prehooks = v
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("configuration store is required")
	}
	s := &Service{
		store:    store,
		prehooks: prehook.New(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Mutation is the outcome of a create, update or delete.
type Mutation struct {
	DryRun bool                  `json:"dry_run"`
	Diff   []string              `json:"diff,omitempty"`
	Result *models.Configuration `json:"result"`
}

func (s *Service) Create(ctx context.Context, tenantID string, cfg *models.Configuration, dryRun bool) (*Mutation, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	cfg.TenantID = tenantID
	if msgs := Validate(cfg, s.prehooks); len(msgs) > 0 {
		return nil, dErrors.WithMessages(dErrors.CodeInvalidRequest, msgs)
	}

	if _, err := s.store.FindByType(ctx, tenantID, cfg.Type); err == nil {
		return nil, dErrors.Newf(dErrors.CodeConflict, "identity verification type %s already exists", cfg.Type)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check configuration type")
	}

	now := requestcontext.Now(ctx)
	cfg.CreatedAt, cfg.UpdatedAt = now, now
	if dryRun {
		return &Mutation{DryRun: true, Result: cfg}, nil
	}

	if err := s.store.Create(ctx, cfg); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "identity verification type %s already exists", cfg.Type)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create configuration")
	}
	s.invalidate(ctx, tenantID, cfg.Type)
	s.logger.InfoContext(ctx, "identity verification configuration created",
		"request_id", requestcontext.RequestID(ctx),
		"tenant_id", tenantID,
		"configuration_id", cfg.ID,
		"type", cfg.Type,
	)
	return &Mutation{Result: cfg}, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (*models.Configuration, error) {
	cfg, err := s.store.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return cfg, nil
}

func (s *Service) List(ctx context.Context, tenantID string, limit, offset int) (*models.Page[*models.Configuration], error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	total, err := s.store.Count(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count configurations")
	}
	list, err := s.store.List(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list configurations")
	}
	if list == nil {
		list = []*models.Configuration{}
	}
	return &models.Page[*models.Configuration]{List: list, TotalCount: total, Limit: limit, Offset: offset}, nil
}

// Update replaces the configuration and reports which top-level keys changed.
func (s *Service) Update(ctx context.Context, tenantID, id string, cfg *models.Configuration, dryRun bool) (*Mutation, error) {
	current, err := s.store.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	cfg.ID = id
	cfg.TenantID = tenantID
	if msgs := Validate(cfg, s.prehooks); len(msgs) > 0 {
		return nil, dErrors.WithMessages(dErrors.CodeInvalidRequest, msgs)
	}
	if cfg.Type != current.Type {
		if other, err := s.store.FindByType(ctx, tenantID, cfg.Type); err == nil && other.ID != id {
			return nil, dErrors.Newf(dErrors.CodeConflict, "identity verification type %s already exists", cfg.Type)
		}
	}

	diff, err := Diff(current, cfg)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compare configurations")
	}
	cfg.CreatedAt = current.CreatedAt
	cfg.UpdatedAt = requestcontext.Now(ctx)
	if dryRun {
		return &Mutation{DryRun: true, Diff: diff, Result: cfg}, nil
	}

	if err := s.store.Update(ctx, cfg); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "identity verification type %s already exists", cfg.Type)
		}
		return nil, wrapStoreErr(err)
	}
	s.invalidate(ctx, tenantID, current.Type)
	if cfg.Type != current.Type {
		s.invalidate(ctx, tenantID, cfg.Type)
	}
	s.logger.InfoContext(ctx, "identity verification configuration updated",
		"request_id", requestcontext.RequestID(ctx),
		"tenant_id", tenantID,
		"configuration_id", id,
		"diff", diff,
	)
	return &Mutation{Diff: diff, Result: cfg}, nil
}

func (s *Service) Delete(ctx context.Context, tenantID, id string, dryRun bool) (*Mutation, error) {
	current, err := s.store.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if dryRun {
		return &Mutation{DryRun: true, Result: current}, nil
	}
	if err := s.store.Delete(ctx, tenantID, id); err != nil {
		return nil, wrapStoreErr(err)
	}
	s.invalidate(ctx, tenantID, current.Type)
	s.logger.InfoContext(ctx, "identity verification configuration deleted",
		"request_id", requestcontext.RequestID(ctx),
		"tenant_id", tenantID,
		"configuration_id", id,
	)
	return &Mutation{Result: current}, nil
}

// Diff lists the top-level configuration keys whose JSON differs, in the
// order they appear in the encoded document.
func Diff(before, after *models.Configuration) ([]string, error) {
	a, err := topLevel(before)
	if err != nil {
		return nil, err
	}
	b, err := topLevel(after)
	if err != nil {
		return nil, err
	}

	diff := []string{}
	seen := map[string]bool{}
	for _, k := range b.keys {
		seen[k] = true
		if !bytes.Equal(a.values[k], b.values[k]) {
			diff = append(diff, k)
		}
	}
	for _, k := range a.keys {
		if !seen[k] {
			diff = append(diff, k)
		}
	}
	return diff, nil
}

type encodedTop struct {
	keys   []string
	values map[string]json.RawMessage
}

func topLevel(cfg *models.Configuration) (encodedTop, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return encodedTop{}, err
	}
	ordered := models.NewOrdered[json.RawMessage]()
	if err := json.Unmarshal(raw, ordered); err != nil {
		return encodedTop{}, err
	}
	out := encodedTop{keys: ordered.Keys(), values: make(map[string]json.RawMessage, ordered.Len())}
	for _, k := range out.keys {
		v, _ := ordered.Get(k)
		var compact bytes.Buffer
		if err := json.Compact(&compact, v); err != nil {
			return encodedTop{}, err
		}
		out.values[k] = compact.Bytes()
	}
	return out, nil
}

func (s *Service) invalidate(ctx context.Context, tenantID, verificationType string) {
	if s.cache == nil {
		return
	}
	s.cache.Invalidate(ctx, tenantID, verificationType)
}

func wrapStoreErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "identity verification configuration is not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "configuration store failure")
}
