// Package service orchestrates identity-verification processes, callbacks,
// standalone result registration and the owner-facing queries.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"idverify/internal/identityverification/assembler"
	"idverify/internal/identityverification/events"
	"idverify/internal/identityverification/execution"
	"idverify/internal/identityverification/mapping"
	"idverify/internal/identityverification/metrics"
	"idverify/internal/identityverification/models"
	"idverify/internal/identityverification/prehook"
	"idverify/internal/identityverification/transition"
	dErrors "idverify/pkg/domain-errors"
	"idverify/pkg/platform/sentinel"
)

// maxWriteAttempts bounds optimistic re-application after version conflicts.
const maxWriteAttempts = 3

type ConfigurationSource interface {
	FindByType(ctx context.Context, tenantID, verificationType string) (*models.Configuration, error)
}

type ApplicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	UpdateIfVersion(ctx context.Context, app *models.Application, expected int64) error
	FindByID(ctx context.Context, tenantID, userID, id string) (*models.Application, error)
	FindByExternalID(ctx context.Context, tenantID, verificationType, externalID string) (*models.Application, error)
	List(ctx context.Context, q models.ApplicationQuery) ([]*models.Application, error)
	Count(ctx context.Context, q models.ApplicationQuery) (int, error)
	Delete(ctx context.Context, tenantID, userID, id string) error
}

type ResultStore interface {
	Create(ctx context.Context, r *models.VerificationResult) error
	List(ctx context.Context, q models.ResultQuery) ([]*models.VerificationResult, error)
	Count(ctx context.Context, q models.ResultQuery) (int, error)
}

type Executor interface {
	Execute(ctx context.Context, cfg models.ExecutionConfig, params map[string]any) (*execution.Result, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, e events.Event)
}

// Service runs verification pipelines against tenant configuration.
type Service struct {
	configs      ConfigurationSource
	applications ApplicationStore
	results      ResultStore
	executor     Executor

	mapper      *mapping.Mapper
	prehooks    *prehook.Validator
	transitions *transition.Evaluator
	assembler   *assembler.Assembler

	events  EventPublisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	newID   func() string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithPreHookValidator replaces the built-in pre-hook verifiers.
func WithPreHookValidator(v *prehook.Validator) Option {
	return func(s *Service) {
		s.prehooks = v
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithIDGenerator overrides application and result id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// New constructs a Service.
func New(configs ConfigurationSource, applications ApplicationStore, results ResultStore, executor Executor, opts ...Option) (*Service, error) {
	if configs == nil {
		return nil, errors.New("configuration source is required")
	}
	if applications == nil {
		return nil, errors.New("application store is required")
	}
	if results == nil {
		return nil, errors.New("result store is required")
	}
	if executor == nil {
		return nil, errors.New("executor is required")
	}

	s := &Service{
		configs:      configs,
		applications: applications,
		results:      results,
		executor:     executor,
		prehooks:     prehook.New(),
		logger:       slog.Default(),
		tracer:       otel.Tracer("idverify/service"),
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mapper = mapping.New(s.logger)
	s.transitions = transition.New(s.logger)
	s.assembler = assembler.New(s.mapper, assembler.WithIDGenerator(s.newID))
	return s, nil
}

// loadConfiguration resolves the tenant's verification type and rejects
// disabled types.
func (s *Service) loadConfiguration(ctx context.Context, tenantID, verificationType string) (*models.Configuration, error) {
	cfg, err := s.configs.FindByType(ctx, tenantID, verificationType)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "identity verification type %s is not found", verificationType)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity verification configuration")
	}
	if !cfg.Enabled() {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "identity verification type is disabled")
	}
	return cfg, nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, e)
}

// createResult persists an assembled result and announces it.
func (s *Service) createResult(ctx context.Context, r *models.VerificationResult, clientID, requestID string) error {
	if err := s.results.Create(ctx, r); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save verification result")
	}
	s.metrics.IncResultCreated(r.Source)
	s.publish(ctx, events.Event{
		Type:             events.TypeResultRegistered,
		TenantID:         r.TenantID,
		UserID:           r.UserID,
		ClientID:         clientID,
		VerificationType: r.Type,
		ApplicationID:    r.ApplicationID,
		RequestID:        requestID,
		Detail:           map[string]any{"result_id": r.ID, "source": r.Source},
	})
	return nil
}

func storeError(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "%s is not found", what)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+what)
}

// callbackKind infers examination or result from a callback process name.
func callbackKind(name string) string {
	name = strings.TrimPrefix(name, "callback-")
	switch {
	case strings.Contains(name, transition.KindExamination):
		return transition.KindExamination
	case strings.Contains(name, transition.KindResult):
		return transition.KindResult
	}
	return name
}
