// Package handler exposes the identity-verification engine over HTTP: the
// owner-facing /me routes, the Basic-Auth callback and registration routes,
// and the management API for configurations.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"idverify/internal/identityverification/execution"
	"idverify/internal/identityverification/models"
	"idverify/internal/identityverification/service"
	dErrors "idverify/pkg/domain-errors"
	"idverify/pkg/platform/httputil"
	"idverify/pkg/platform/middleware/auth"
	"idverify/pkg/platform/middleware/metadata"
	"idverify/pkg/requestcontext"
)

// maxBodyBytes bounds inbound JSON documents.
const maxBodyBytes = 1 << 20

// Service defines the verification operations the handler needs.
type Service interface {
	Process(ctx context.Context, req service.ProcessRequest) (*service.ProcessResponse, error)
	Callback(ctx context.Context, req service.CallbackRequest) (map[string]any, error)
	Register(ctx context.Context, req service.RegisterRequest) (map[string]any, error)
	ListApplications(ctx context.Context, q models.ApplicationQuery) (*models.Page[*models.Application], error)
	DeleteApplication(ctx context.Context, tenantID, userID, verificationType, id string) error
	ListResults(ctx context.Context, q models.ResultQuery) (*models.Page[*models.VerificationResult], error)
}

// Handler wires verification endpoints to the service.
type Handler struct {
	service      Service
	logger       *slog.Logger
	jwtValidator auth.JWTValidator
}

// New constructs a verification handler.
func New(service Service, logger *slog.Logger, jwtValidator auth.JWTValidator) *Handler {
	return &Handler{
		service:      service,
		logger:       logger,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the tenant-scoped routes. r is expected to sit under a
// /{tenant} prefix.
func (h *Handler) Register(r chi.Router) {
	r.Use(TenantFromPath)

	r.Group(func(me chi.Router) {
		me.Use(auth.RequireAuth(h.jwtValidator, h.logger))
		me.Route("/v1/me/identity-verification", func(r chi.Router) {
			r.Get("/applications", h.HandleListApplications)
			r.Post("/applications/{type}/{process}", h.HandleApply)
			r.Post("/applications/{type}/{id}/{process}", h.HandleProcess)
			r.Delete("/applications/{type}/{id}", h.HandleDeleteApplication)
			r.Get("/results", h.HandleListResults)
		})
	})

	r.Post("/v1/identity-verification/{type}/callbacks/{callbackName}", h.HandleCallback)
	r.Post("/v1/identity-verification/{type}/results", h.HandleRegisterResult)
}

// TenantFromPath copies the {tenant} route parameter into the context.
func TenantFromPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tenant := chi.URLParam(r, "tenant"); tenant != "" {
			r = r.WithContext(requestcontext.WithTenantID(r.Context(), tenant))
		}
		next.ServeHTTP(w, r)
	})
}

// HandleApply handles the first process call of a type, which creates the
// application.
func (h *Handler) HandleApply(w http.ResponseWriter, r *http.Request) {
	h.runProcess(w, r, "")
}

// HandleProcess handles a process call against an existing application.
func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	h.runProcess(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) runProcess(w http.ResponseWriter, r *http.Request, applicationID string) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	userID := requestcontext.UserID(ctx)
	if userID == "" {
		h.logger.ErrorContext(ctx, "userID missing from context despite auth middleware",
			"request_id", requestID,
		)
		writeError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	body, err := decodeBody(r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid identity verification request body",
			"request_id", requestID,
			"error", err.Error(),
		)
		writeError(w, err)
		return
	}

	req := service.ProcessRequest{
		TenantID:      requestcontext.TenantID(ctx),
		Type:          chi.URLParam(r, "type"),
		Process:       chi.URLParam(r, "process"),
		ApplicationID: applicationID,
		User: service.User{
			ID:       userID,
			ClientID: requestcontext.ClientID(ctx),
			Claims:   requestcontext.UserClaims(ctx),
		},
		Body:       body,
		Attributes: metadata.Attributes(r),
		RequestID:  requestID,
	}
	resp, err := h.service.Process(ctx, req)
	if err != nil {
		h.logFailure(ctx, "identity verification process failed", err,
			"type", req.Type,
			"process", req.Process,
			"application_id", applicationID,
		)
		writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "identity verification process completed",
		"request_id", requestID,
		"type", req.Type,
		"process", req.Process,
		"application_id", resp.ApplicationID,
		"status", resp.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, resp.Body)
}

// HandleListApplications handles GET /v1/me/identity-verification/applications.
// A filter that matches nothing is an empty page, never a 404.
func (h *Handler) HandleListApplications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := parseApplicationQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	q.TenantID = requestcontext.TenantID(ctx)
	q.UserID = requestcontext.UserID(ctx)

	page, err := h.service.ListApplications(ctx, q)
	if err != nil {
		h.logFailure(ctx, "failed to list applications", err)
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

// HandleDeleteApplication handles DELETE .../applications/{type}/{id}.
func (h *Handler) HandleDeleteApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := h.service.DeleteApplication(ctx,
		requestcontext.TenantID(ctx),
		requestcontext.UserID(ctx),
		chi.URLParam(r, "type"),
		chi.URLParam(r, "id"),
	)
	if err != nil {
		h.logFailure(ctx, "failed to delete application", err, "application_id", chi.URLParam(r, "id"))
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListResults handles GET /v1/me/identity-verification/results.
func (h *Handler) HandleListResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := parseResultQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	q.TenantID = requestcontext.TenantID(ctx)
	q.UserID = requestcontext.UserID(ctx)

	page, err := h.service.ListResults(ctx, q)
	if err != nil {
		h.logFailure(ctx, "failed to list verification results", err)
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

// HandleCallback handles an external system's push for an application.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	req := service.CallbackRequest{
		TenantID:    requestcontext.TenantID(ctx),
		Type:        chi.URLParam(r, "type"),
		Name:        chi.URLParam(r, "callbackName"),
		Body:        body,
		Credentials: credentials(r),
		RequestID:   requestcontext.RequestID(ctx),
	}
	resp, err := h.service.Callback(ctx, req)
	if err != nil {
		h.logFailure(ctx, "identity verification callback failed", err,
			"type", req.Type,
			"callback", req.Name,
		)
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleRegisterResult handles standalone result ingestion.
func (h *Handler) HandleRegisterResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	req := service.RegisterRequest{
		TenantID:    requestcontext.TenantID(ctx),
		Type:        chi.URLParam(r, "type"),
		Body:        body,
		Credentials: credentials(r),
		RequestID:   requestcontext.RequestID(ctx),
	}
	resp, err := h.service.Register(ctx, req)
	if err != nil {
		h.logFailure(ctx, "identity verification result registration failed", err, "type", req.Type)
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// logFailure logs client-side failures at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append([]any{"request_id", requestcontext.RequestID(ctx), "error", err.Error()}, attrs...)
	var failure *execution.Failure
	if errors.As(err, &failure) {
		h.logger.WarnContext(ctx, msg, attrs...)
		return
	}
	if de, ok := dErrors.As(err); ok && de.Code != dErrors.CodeInternal {
		h.logger.WarnContext(ctx, msg, attrs...)
		return
	}
	h.logger.ErrorContext(ctx, msg, attrs...)
}

func credentials(r *http.Request) service.Credentials {
	username, password, ok := r.BasicAuth()
	return service.Credentials{Username: username, Password: password, Present: ok}
}

// decodeBody reads a JSON object. An empty body is an empty object.
func decodeBody(r *http.Request) (map[string]any, error) {
	body := map[string]any{}
	if r.Body == nil {
		return body, nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "request body must be a JSON object")
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

// basicChallenge is sent with every failed callback credential check.
const basicChallenge = `Basic realm="identity-verification", charset="UTF-8"`

// writeError extends httputil.WriteError with execution failures, whose
// status mirrors the upstream call, and with the Basic Auth challenge.
func writeError(w http.ResponseWriter, err error) {
	if dErrors.HasCode(err, dErrors.CodeInvalidCredentials) {
		w.Header().Set("WWW-Authenticate", basicChallenge)
	}
	var failure *execution.Failure
	if errors.As(err, &failure) {
		httputil.WriteJSON(w, failure.CallerStatus(), httputil.ErrorResponse{
			Error:            string(dErrors.CodeExecutionFailed),
			ErrorDescription: failure.Error(),
			ErrorDetails:     failure.Details(),
		})
		return
	}
	httputil.WriteError(w, err)
}
