// Package handler wires the validation endpoints to the validation
// service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"veritax/internal/catalog"
	"veritax/internal/offline"
	"veritax/internal/validation"
	"veritax/pkg/domain"
	dErrors "veritax/pkg/domain-errors"
	"veritax/pkg/platform/httputil"
	"veritax/pkg/requestcontext"
)

// Service defines the validation operations the handler depends on.
type Service interface {
	Validate(ctx context.Context, req validation.ValidateRequest) (*validation.Run, error)
	GetRun(ctx context.Context, id domain.RunID) (validation.Run, error)
	ReloadPackages(ctx context.Context) catalog.Snapshot
	OfflineStatus() offline.Status
	CatalogSnapshot() catalog.Snapshot
	Probe(url string) validation.ProbeResult
}

// Handler exposes validation over HTTP.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a validation handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public validation endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/validate", h.HandleValidate)
	r.Get("/v1/runs/{id}", h.HandleGetRun)
	r.Get("/v1/offline-status", h.HandleOfflineStatus)
	r.Get("/v1/catalog", h.HandleCatalog)
	r.Get("/v1/resolve", h.HandleResolve)
}

// RegisterAdmin mounts the mutating admin endpoints behind the given
// auth middleware.
func (h *Handler) RegisterAdmin(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Group(func(g chi.Router) {
		g.Use(auth)
		g.Post("/v1/admin/packages/reload", h.HandleReloadPackages)
	})
}

// ValidateRequest is the POST /v1/validate payload.
type ValidateRequest struct {
	InstancePath         string   `json:"instance_path"`
	Profile              string   `json:"profile,omitempty"`
	DTSFirstSchemas      []string `json:"dts_first_schemas,omitempty"`
	AllowInstanceRewrite bool     `json:"allow_instance_rewrite,omitempty"`
	CacheDir             string   `json:"cache_dir,omitempty"`
}

// HandleValidate handles POST /v1/validate requests.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.Decode[ValidateRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	if req.InstancePath == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "instance_path is required"))
		return
	}

	run, err := h.service.Validate(ctx, validation.ValidateRequest{
		InstancePath:         req.InstancePath,
		Profile:              req.Profile,
		DTSFirstSchemas:      req.DTSFirstSchemas,
		AllowInstanceRewrite: req.AllowInstanceRewrite,
		CacheDir:             req.CacheDir,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "validation run failed",
			"request_id", requestID,
			"instance", req.InstancePath,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "validation run served",
		"request_id", requestID,
		"run_id", run.ID,
		"status", run.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, run)
}

// HandleGetRun handles GET /v1/runs/{id} requests.
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid run id"))
		return
	}
	run, err := h.service.GetRun(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}

// HandleOfflineStatus handles GET /v1/offline-status requests.
func (h *Handler) HandleOfflineStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.service.OfflineStatus())
}

// HandleCatalog handles GET /v1/catalog requests.
func (h *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.service.CatalogSnapshot())
}

// HandleResolve handles GET /v1/resolve?url= requests.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "url query parameter is required"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.service.Probe(url))
}

// HandleReloadPackages handles POST /v1/admin/packages/reload requests.
func (h *Handler) HandleReloadPackages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap := h.service.ReloadPackages(ctx)
	h.logger.InfoContext(ctx, "packages reloaded",
		"request_id", requestcontext.RequestID(ctx),
		"packages", len(snap.Packages),
	)
	httputil.WriteJSON(w, http.StatusOK, snap)
}
