package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"idverify/internal/identityverification/management"
	"idverify/internal/identityverification/models"
	dErrors "idverify/pkg/domain-errors"
	"idverify/pkg/platform/httputil"
	"idverify/pkg/platform/middleware/admin"
	"idverify/pkg/requestcontext"
)

// ManagementService defines configuration CRUD for tenant administrators.
type ManagementService interface {
	Create(ctx context.Context, tenantID string, cfg *models.Configuration, dryRun bool) (*management.Mutation, error)
	Get(ctx context.Context, tenantID, id string) (*models.Configuration, error)
	List(ctx context.Context, tenantID string, limit, offset int) (*models.Page[*models.Configuration], error)
	Update(ctx context.Context, tenantID, id string, cfg *models.Configuration, dryRun bool) (*management.Mutation, error)
	Delete(ctx context.Context, tenantID, id string, dryRun bool) (*management.Mutation, error)
}

// ManagementHandler serves the configuration management API.
type ManagementHandler struct {
	service    ManagementService
	logger     *slog.Logger
	adminToken string
}

func NewManagement(service ManagementService, logger *slog.Logger, adminToken string) *ManagementHandler {
	return &ManagementHandler{
		service:    service,
		logger:     logger,
		adminToken: adminToken,
	}
}

// Register mounts the management routes, with and without an organization
// prefix.
func (h *ManagementHandler) Register(r chi.Router) {
	routes := func(r chi.Router) {
		r.Use(admin.RequireAdminToken(h.adminToken, h.logger))
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
	}
	r.Route("/v1/management/tenants/{tenantId}/identity-verification-configurations", routes)
	r.Route("/v1/management/organizations/{orgId}/tenants/{tenantId}/identity-verification-configurations", routes)
}

func (h *ManagementHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenantId")
	dryRun, err := parseDryRun(r)
	if err != nil {
		writeError(w, err)
		return
	}
	cfg, err := decodeConfiguration(r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.service.Create(ctx, tenantID, cfg, dryRun)
	if err != nil {
		h.logError(ctx, "failed to create configuration", err, tenantID)
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if res.DryRun {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, res)
}

func (h *ManagementHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenantId")
	limit, offset, err := parseWindow(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := h.service.List(ctx, tenantID, limit, offset)
	if err != nil {
		h.logError(ctx, "failed to list configurations", err, tenantID)
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *ManagementHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenantId")
	cfg, err := h.service.Get(ctx, tenantID, chi.URLParam(r, "id"))
	if err != nil {
		h.logError(ctx, "failed to get configuration", err, tenantID)
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cfg)
}

func (h *ManagementHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenantId")
	dryRun, err := parseDryRun(r)
	if err != nil {
		writeError(w, err)
		return
	}
	cfg, err := decodeConfiguration(r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.service.Update(ctx, tenantID, chi.URLParam(r, "id"), cfg, dryRun)
	if err != nil {
		h.logError(ctx, "failed to update configuration", err, tenantID)
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *ManagementHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenantId")
	dryRun, err := parseDryRun(r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.service.Delete(ctx, tenantID, chi.URLParam(r, "id"), dryRun)
	if err != nil {
		h.logError(ctx, "failed to delete configuration", err, tenantID)
		writeError(w, err)
		return
	}
	if res.DryRun {
		httputil.WriteJSON(w, http.StatusOK, res)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ManagementHandler) logError(ctx context.Context, msg string, err error, tenantID string) {
	level := slog.LevelWarn
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"tenant_id", tenantID,
		"error", err.Error(),
	)
}

func parseDryRun(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("dry_run")
	if raw == "" {
		return false, nil
	}
	dryRun, err := strconv.ParseBool(raw)
	if err != nil {
		return false, dErrors.New(dErrors.CodeInvalidRequest, "dry_run must be true or false")
	}
	return dryRun, nil
}

func decodeConfiguration(r *http.Request) (*models.Configuration, error) {
	var cfg models.Configuration
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&cfg); err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "request body must be a configuration document")
	}
	return &cfg, nil
}
