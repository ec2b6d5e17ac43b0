// Package api provides the read-only HTTP status API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/artpar/deckhand/internal/shell/docker"
	"github.com/artpar/deckhand/internal/shell/engine"
)

// =============================================================================
// Handler
// =============================================================================

// Handler serves deployment status over HTTP. All endpoints are read-only;
// mutations go through the CLI.
type Handler struct {
	engine *engine.Engine
	docker docker.Client
	logger *slog.Logger
}

// NewHandler creates an API handler.
func NewHandler(e *engine.Engine, d docker.Client, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		engine: e,
		docker: d,
		logger: l,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)

	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/deployments", func(r chi.Router) {
			r.Get("/", h.handleListDeployments)
			r.Get("/{project}", h.handleGetProject)
			r.Get("/{project}/instances", h.handleListInstances)
		})
	})

	return r
}

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}

	if err := h.docker.Ping(r.Context()); err != nil {
		checks["docker"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}
	checks["docker"] = "ok"

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Deployment Handlers
// =============================================================================

func (h *Handler) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	deployments, err := h.engine.ListProjects(r.Context())
	if err != nil {
		h.logger.Error("failed to list deployments", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list deployments", "internal_error")
		return
	}

	resp := DeploymentListResponse{
		Deployments: make([]DeploymentResponse, 0, len(deployments)),
		Total:       len(deployments),
	}
	for _, d := range deployments {
		resp.Deployments = append(resp.Deployments, deploymentToResponse(d))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")

	status, err := h.engine.Ps(r.Context(), project)
	if err != nil {
		if errors.Is(err, engine.ErrDeploymentNotFound) {
			h.writeError(w, http.StatusNotFound, "deployment not found", "not_found")
			return
		}
		h.logger.Error("failed to get project status", "project", project, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get project status", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, ProjectStatusResponse{
		Project:   status.Project,
		Status:    string(status.Status),
		CreatedAt: status.CreatedAt,
		Services:  status.Services,
	})
}

func (h *Handler) handleListInstances(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")

	status, err := h.engine.Ps(r.Context(), project)
	if err != nil {
		if errors.Is(err, engine.ErrDeploymentNotFound) {
			h.writeError(w, http.StatusNotFound, "deployment not found", "not_found")
			return
		}
		h.logger.Error("failed to list instances", "project", project, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list instances", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, InstanceListResponse{
		Instances: status.Services,
		Total:     len(status.Services),
	})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
