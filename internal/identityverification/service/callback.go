package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"idverify/internal/identityverification/events"
	"idverify/internal/identityverification/execution"
	"idverify/internal/identityverification/mapping"
	"idverify/internal/identityverification/models"
	"idverify/internal/identityverification/schema"
	"idverify/internal/identityverification/transition"
	dErrors "idverify/pkg/domain-errors"
	"idverify/pkg/platform/secrets"
	"idverify/pkg/platform/sentinel"
	"idverify/pkg/requestcontext"
)

const callbackPrefix = "callback-"

// Credentials are the Basic Auth pair presented by an external system.
type Credentials struct {
	Username string
	Password string
	Present  bool
}

type CallbackRequest struct {
	TenantID    string
	Type        string
	Name        string
	Body        map[string]any
	Credentials Credentials
	RequestID   string
}

type RegisterRequest struct {
	TenantID    string
	Type        string
	Body        map[string]any
	Credentials Credentials
	RequestID   string
}

// Callback resumes the application named by the body's external id.
func (s *Service) Callback(ctx context.Context, req CallbackRequest) (map[string]any, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "identityverification.callback", trace.WithAttributes(
		attribute.String("idv.tenant_id", req.TenantID),
		attribute.String("idv.type", req.Type),
		attribute.String("idv.callback", req.Name),
	))
	defer span.End()

	err := s.callback(ctx, req)
	s.metrics.ObserveProcess(req.Type, callbackPrefix+req.Name, outcomeOf(err), start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcomeOf(err))
		return nil, err
	}
	return map[string]any{}, nil
}

func (s *Service) callback(ctx context.Context, req CallbackRequest) error {
	cfg, err := s.loadConfiguration(ctx, req.TenantID, req.Type)
	if err != nil {
		return err
	}
	if err := authenticate(cfg.Common, req.Credentials); err != nil {
		s.logger.WarnContext(ctx, "callback authentication failed",
			"request_id", req.RequestID,
			"type", req.Type,
			"callback", req.Name,
		)
		return err
	}

	name := callbackPrefix + req.Name
	def, ok := cfg.Process(name)
	if !ok {
		name = req.Name
		if def, ok = cfg.Process(name); !ok {
			return dErrors.Newf(dErrors.CodeNotFound, "identity verification callback %s is not found", req.Name)
		}
	}

	body := req.Body
	if body == nil {
		body = map[string]any{}
	}
	if msgs := schema.Validate(body, def.Request.Schema); len(msgs) > 0 {
		s.metrics.IncSchemaViolation(cfg.Type, name)
		s.logger.WarnContext(ctx, "identity verification callback is invalid",
			"request_id", req.RequestID,
			"type", cfg.Type,
			"callback", name,
			"error_count", len(msgs),
			"errors", msgs,
		)
		return dErrors.WithMessages(dErrors.CodeInvalidRequest, msgs)
	}

	var externalID string
	if param := cfg.Common.CallbackApplicationIDParam; param != "" {
		externalID = mapping.Stringify(body[param])
	}
	app, err := s.applications.FindByExternalID(ctx, req.TenantID, cfg.Type, externalID)
	if err != nil {
		return storeError(err, "application")
	}

	base := map[string]any{
		"request_body":       body,
		"request_attributes": map[string]any{},
		"user":               map[string]any{"sub": app.UserID},
		"application":        app.Document(),
	}
	result, err := s.executor.Execute(ctx, def.Execution, base)
	var failure *execution.Failure
	if errors.As(err, &failure) {
		return failure
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to execute identity verification callback")
	}

	now := requestcontext.Now(ctx)
	kind := callbackKind(req.Name)
	for attempt := 1; ; attempt++ {
		working := app.Clone()
		previous := working.Status
		doc := s.applyCallback(ctx, cfg, def, name, kind, working, result, base, now)

		err := s.applications.UpdateIfVersion(ctx, working, app.Version)
		if err == nil {
			if cfg.IsApprovedStatus(working.Status) && !cfg.IsApprovedStatus(previous) {
				r := s.assembler.FromApplication(ctx, cfg, working, doc, now)
				if err := s.createResult(ctx, r, working.ClientID, req.RequestID); err != nil {
					return err
				}
			}
			s.publish(ctx, events.Event{
				Type:             events.ApplicationType(name),
				TenantID:         req.TenantID,
				UserID:           working.UserID,
				ClientID:         working.ClientID,
				VerificationType: cfg.Type,
				ApplicationID:    working.ID,
				Process:          name,
				RequestID:        req.RequestID,
				Detail:           map[string]any{"status": working.Status},
			})
			return nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return storeError(err, "application")
		}
		if attempt == maxWriteAttempts {
			return dErrors.New(dErrors.CodeConflict, "application was modified concurrently")
		}
		if app, err = s.applications.FindByID(ctx, app.TenantID, app.UserID, app.ID); err != nil {
			return storeError(err, "application")
		}
		base["application"] = app.Document()
	}
}

// applyCallback is applyEffects for callbacks: a process without transitions
// falls back to the default status of its kind.
func (s *Service) applyCallback(
	ctx context.Context,
	cfg *models.Configuration,
	def models.ProcessDefinition,
	name, kind string,
	app *models.Application,
	result *execution.Result,
	base map[string]any,
	now time.Time,
) map[string]any {
	doc := s.applyEffects(ctx, cfg, def, name, app, result, base, now)
	if def.Transition.Len() > 0 {
		return doc
	}
	if status, ok := transition.CallbackDefault(kind); ok {
		app.Transit(status, cfg.IsTerminalStatus(status), now)
		doc["application"] = app.Document()
	}
	return doc
}

// Register stores a result pushed by an external system, bypassing any
// application.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (map[string]any, error) {
	ctx, span := s.tracer.Start(ctx, "identityverification.register", trace.WithAttributes(
		attribute.String("idv.tenant_id", req.TenantID),
		attribute.String("idv.type", req.Type),
	))
	defer span.End()

	resp, err := s.register(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcomeOf(err))
	}
	return resp, err
}

func (s *Service) register(ctx context.Context, req RegisterRequest) (map[string]any, error) {
	cfg, err := s.loadConfiguration(ctx, req.TenantID, req.Type)
	if err != nil {
		return nil, err
	}
	if err := authenticate(cfg.Common, req.Credentials); err != nil {
		return nil, err
	}
	if cfg.Registration == nil {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "identity verification registration is not configured")
	}

	body := req.Body
	if body == nil {
		body = map[string]any{}
	}
	if msgs := schema.Validate(body, cfg.Registration.Request.Schema); len(msgs) > 0 {
		s.metrics.IncSchemaViolation(cfg.Type, "registration")
		return nil, dErrors.WithMessages(dErrors.CodeInvalidRequest, msgs)
	}
	userID := mapping.Stringify(body["user_id"])
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "user_id is missing")
	}

	now := requestcontext.Now(ctx)
	doc := map[string]any{
		"request_body": body,
		"user":         map[string]any{"sub": userID},
		"application":  map[string]any{},
	}
	r := s.assembler.Standalone(ctx, cfg, req.TenantID, userID, doc, now)
	if err := s.createResult(ctx, r, "", req.RequestID); err != nil {
		return nil, err
	}

	doc["result"] = map[string]any{
		"id":              r.ID,
		"verified_claims": r.VerifiedClaims,
		"source_details":  r.SourceDetails,
		"verified_at":     r.VerifiedAt.Format(time.RFC3339),
	}
	return s.mapper.Apply(ctx, cfg.Registration.Response.BodyMappingRules, doc, nil), nil
}

// authenticate enforces common.auth_type=basic. Username comparison is
// constant-time; the password may be stored as a bcrypt hash.
func authenticate(common models.CommonConfig, creds Credentials) error {
	if common.AuthType != models.AuthBasic {
		return nil
	}
	if !creds.Present || common.BasicAuth == nil {
		return dErrors.New(dErrors.CodeInvalidCredentials, "basic authentication is required")
	}
	userOK := subtle.ConstantTimeCompare([]byte(creds.Username), []byte(common.BasicAuth.Username)) == 1
	passErr := secrets.Verify(creds.Password, common.BasicAuth.Password)
	if !userOK || passErr != nil {
		return dErrors.New(dErrors.CodeInvalidCredentials, "invalid credentials")
	}
	return nil
}
