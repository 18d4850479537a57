package service

import (
	"context"
	"errors"
	"maps"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"idverify/internal/identityverification/dependency"
	"idverify/internal/identityverification/events"
	"idverify/internal/identityverification/execution"
	"idverify/internal/identityverification/mapping"
	"idverify/internal/identityverification/models"
	"idverify/internal/identityverification/prehook"
	"idverify/internal/identityverification/schema"
	dErrors "idverify/pkg/domain-errors"
	"idverify/pkg/platform/sentinel"
	"idverify/pkg/requestcontext"
)

// User is the authenticated caller of a process.
type User struct {
	ID       string
	ClientID string
	// Claims is the token claim set; it is the user document seen by
	// pre-hooks and mapping rules.
	Claims map[string]any
}

func (u User) document() map[string]any {
	doc := make(map[string]any, len(u.Claims)+2)
	maps.Copy(doc, u.Claims)
	if _, ok := doc["sub"]; !ok && u.ID != "" {
		doc["sub"] = u.ID
	}
	if _, ok := doc["client_id"]; !ok && u.ClientID != "" {
		doc["client_id"] = u.ClientID
	}
	return doc
}

// ProcessRequest is one call of a named process. ApplicationID is empty on
// the call that creates the application.
type ProcessRequest struct {
	TenantID      string
	Type          string
	Process       string
	ApplicationID string
	User          User
	Body          map[string]any
	Attributes    map[string]any
	RequestID     string
}

type ProcessResponse struct {
	ApplicationID string
	Status        string
	Body          map[string]any
}

// Process runs schema, dependency and pre-hook checks, executes the process,
// applies transitions and store mappings, assembles a result on approval and
// maps the response.
func (s *Service) Process(ctx context.Context, req ProcessRequest) (*ProcessResponse, error) {
	start := time.Now()
	ctx = requestcontext.WithTenantID(ctx, req.TenantID)
	ctx, span := s.tracer.Start(ctx, "identityverification.process", trace.WithAttributes(
		attribute.String("idv.tenant_id", req.TenantID),
		attribute.String("idv.type", req.Type),
		attribute.String("idv.process", req.Process),
	))
	defer span.End()

	resp, err := s.process(ctx, req)
	outcome := outcomeOf(err)
	s.metrics.ObserveProcess(req.Type, req.Process, outcome, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	} else {
		span.SetAttributes(attribute.String("idv.status", resp.Status))
	}
	return resp, err
}

func (s *Service) process(ctx context.Context, req ProcessRequest) (*ProcessResponse, error) {
	cfg, err := s.loadConfiguration(ctx, req.TenantID, req.Type)
	if err != nil {
		return nil, err
	}
	def, ok := cfg.Process(req.Process)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "identity verification process %s is not found", req.Process)
	}

	var app *models.Application
	if req.ApplicationID != "" {
		app, err = s.applications.FindByID(ctx, req.TenantID, req.User.ID, req.ApplicationID)
		if err != nil {
			return nil, storeError(err, "application")
		}
		if app.Type != cfg.Type {
			return nil, dErrors.New(dErrors.CodeNotFound, "application is not found")
		}
	}

	body := req.Body
	if body == nil {
		body = map[string]any{}
	}
	if msgs := schema.Validate(body, def.Request.Schema); len(msgs) > 0 {
		s.metrics.IncSchemaViolation(cfg.Type, req.Process)
		s.logger.WarnContext(ctx, "identity verification request is invalid",
			"request_id", req.RequestID,
			"type", cfg.Type,
			"process", req.Process,
			"error_count", len(msgs),
			"errors", msgs,
		)
		return nil, dErrors.WithMessages(dErrors.CodeInvalidRequest, msgs)
	}
	if msgs := s.preconditions(req, def, body, app); len(msgs) > 0 {
		return nil, dErrors.WithMessages(dErrors.CodePreHookValidation, msgs)
	}

	now := requestcontext.Now(ctx)
	base := requestDocument(req, body, app)

	result, err := s.executor.Execute(ctx, def.Execution, base)
	var failure *execution.Failure
	if errors.As(err, &failure) {
		s.recordFailure(ctx, req, app, failure)
		return nil, failure
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to execute identity verification process")
	}

	var previous string
	var doc map[string]any
	if app == nil {
		app = models.NewApplication(s.newID(), req.TenantID, req.User.ClientID, req.User.ID, cfg.Type, now)
		previous = app.Status
		doc = s.applyEffects(ctx, cfg, def, req.Process, app, result, base, now)
		if err := s.applications.Create(ctx, app); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save application")
		}
	} else {
		app, doc, previous, err = s.saveSuccess(ctx, cfg, def, req, body, app, result, base, now)
		if err != nil {
			return nil, err
		}
	}

	if cfg.IsApprovedStatus(app.Status) && !cfg.IsApprovedStatus(previous) {
		r := s.assembler.FromApplication(ctx, cfg, app, doc, now)
		if err := s.createResult(ctx, r, req.User.ClientID, req.RequestID); err != nil {
			return nil, err
		}
	}

	s.publish(ctx, events.Event{
		Type:             events.ApplicationType(req.Process),
		TenantID:         req.TenantID,
		UserID:           req.User.ID,
		ClientID:         req.User.ClientID,
		VerificationType: cfg.Type,
		ApplicationID:    app.ID,
		Process:          req.Process,
		RequestID:        req.RequestID,
		Detail:           map[string]any{"status": app.Status},
	})

	respBody := s.mapper.Apply(ctx, def.Response.BodyMappingRules, doc, nil)
	respBody["id"] = app.ID
	return &ProcessResponse{ApplicationID: app.ID, Status: app.Status, Body: respBody}, nil
}

// preconditions runs the dependency check and pre-hook verifications
// against the application's current history.
func (s *Service) preconditions(req ProcessRequest, def models.ProcessDefinition, body map[string]any, app *models.Application) []string {
	completed := app.CompletedProcesses()
	specs := def.PreHook.Verifications

	var msgs []string
	if def.Dependencies != nil && !prehook.HasProcessSequence(specs) {
		msgs = append(msgs, dependency.Check(req.Process, def.Dependencies, completed)...)
	}
	msgs = append(msgs, s.prehooks.Validate(prehook.Input{
		Process:      req.Process,
		Dependencies: def.Dependencies,
		Request:      body,
		User:         req.User.document(),
		Completed:    completed,
	}, specs)...)
	return msgs
}

// saveSuccess writes this call's effects with an optimistic version check.
// On conflict the fresh record is re-checked and the effects re-applied.
func (s *Service) saveSuccess(
	ctx context.Context,
	cfg *models.Configuration,
	def models.ProcessDefinition,
	req ProcessRequest,
	body map[string]any,
	app *models.Application,
	result *execution.Result,
	base map[string]any,
	now time.Time,
) (*models.Application, map[string]any, string, error) {
	for attempt := 1; ; attempt++ {
		working := app.Clone()
		previous := working.Status
		doc := s.applyEffects(ctx, cfg, def, req.Process, working, result, base, now)

		err := s.applications.UpdateIfVersion(ctx, working, app.Version)
		if err == nil {
			return working, doc, previous, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, nil, "", storeError(err, "application")
		}
		if attempt == maxWriteAttempts {
			return nil, nil, "", dErrors.New(dErrors.CodeConflict, "application was modified concurrently")
		}

		s.logger.InfoContext(ctx, "application changed during process, re-applying",
			"request_id", req.RequestID,
			"application_id", app.ID,
			"process", req.Process,
			"attempt", attempt,
		)
		fresh, err := s.applications.FindByID(ctx, req.TenantID, req.User.ID, app.ID)
		if err != nil {
			return nil, nil, "", storeError(err, "application")
		}
		if msgs := s.preconditions(req, def, body, fresh); len(msgs) > 0 {
			return nil, nil, "", dErrors.WithMessages(dErrors.CodePreHookValidation, msgs)
		}
		app = fresh
		base["application"] = fresh.Document()
	}
}

// applyEffects mutates app with the outcome of a successful execution and
// returns the mapping context after the transition.
func (s *Service) applyEffects(
	ctx context.Context,
	cfg *models.Configuration,
	def models.ProcessDefinition,
	process string,
	app *models.Application,
	result *execution.Result,
	base map[string]any,
	now time.Time,
) map[string]any {
	doc := maps.Clone(base)
	doc["response_body"] = result.Body
	doc["response_status_code"] = result.StatusCode

	app.RecordSuccess(process)
	app.ApplicationDetails = s.mapper.Apply(ctx, def.Store.ApplicationDetailsMappingRules, doc, app.ApplicationDetails)
	captureExternal(cfg, app, result)
	doc["application"] = app.Document()

	if status, ok := s.transitions.Evaluate(ctx, def.Transition, doc); ok {
		app.Transit(status, cfg.IsTerminalStatus(status), now)
		doc["application"] = app.Document()
	}
	return doc
}

// captureExternal records the upstream's application id and merges the
// response body into external_application_details.
func captureExternal(cfg *models.Configuration, app *models.Application, result *execution.Result) {
	if cfg.Common.ExternalService != "" {
		app.ExternalService = cfg.Common.ExternalService
	}
	if param := cfg.Common.CallbackApplicationIDParam; param != "" {
		if v, ok := result.Body[param]; ok && v != nil {
			if id := mapping.Stringify(v); id != "" {
				app.ExternalApplicationID = id
			}
		}
	}
	if result.Type == models.ExecutionNoAction || len(result.Body) == 0 {
		return
	}
	if app.ExternalApplicationDetails == nil {
		app.ExternalApplicationDetails = map[string]any{}
	}
	maps.Copy(app.ExternalApplicationDetails, models.CopyDocument(result.Body))
}

// recordFailure counts a failed execution on an existing application. The
// failure itself is still returned to the caller if the write fails.
func (s *Service) recordFailure(ctx context.Context, req ProcessRequest, app *models.Application, failure *execution.Failure) {
	s.logger.WarnContext(ctx, "identity verification execution failed",
		"request_id", req.RequestID,
		"type", req.Type,
		"process", req.Process,
		"status_code", failure.Result.StatusCode,
		"status_category", failure.Result.StatusCategory(),
	)
	e := events.Event{
		Type:             events.TypeApplicationFailure,
		TenantID:         req.TenantID,
		UserID:           req.User.ID,
		ClientID:         req.User.ClientID,
		VerificationType: req.Type,
		Process:          req.Process,
		RequestID:        req.RequestID,
		Detail:           map[string]any{"execution_result": failure.Details()},
	}
	if app == nil {
		s.publish(ctx, e)
		return
	}
	e.ApplicationID = app.ID
	s.publish(ctx, e)

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		working := app.Clone()
		working.RecordFailure(req.Process)
		err := s.applications.UpdateIfVersion(ctx, working, app.Version)
		if err == nil {
			return
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			break
		}
		fresh, ferr := s.applications.FindByID(ctx, req.TenantID, req.User.ID, app.ID)
		if ferr != nil {
			break
		}
		app = fresh
	}
	s.logger.WarnContext(ctx, "failed to record execution failure",
		"request_id", req.RequestID,
		"application_id", app.ID,
		"process", req.Process,
	)
}

func requestDocument(req ProcessRequest, body map[string]any, app *models.Application) map[string]any {
	appDoc := map[string]any{}
	if app != nil {
		appDoc = app.Document()
	}
	attrs := req.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	return map[string]any{
		"request_body":       body,
		"request_attributes": attrs,
		"user":               req.User.document(),
		"application":        appDoc,
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	var failure *execution.Failure
	if errors.As(err, &failure) {
		return string(dErrors.CodeExecutionFailed)
	}
	if de, ok := dErrors.As(err); ok {
		return string(de.Code)
	}
	return "error"
}
