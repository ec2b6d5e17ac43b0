package api

import (
	"time"

	"github.com/artpar/deckhand/internal/shell/engine"
	"github.com/artpar/deckhand/internal/shell/store"
)

// =============================================================================
// Response Types
// =============================================================================

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ErrorResponse is the error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// DeploymentResponse is one deployment in list responses.
type DeploymentResponse struct {
	ID        string    `json:"id"`
	Project   string    `json:"project"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeploymentListResponse is the deployment list response.
type DeploymentListResponse struct {
	Deployments []DeploymentResponse `json:"deployments"`
	Total       int                  `json:"total"`
}

// ProjectStatusResponse is the detailed per-project status response.
type ProjectStatusResponse struct {
	Project   string                 `json:"project"`
	Status    string                 `json:"status"`
	CreatedAt time.Time              `json:"created_at"`
	Services  []engine.ServiceStatus `json:"services"`
}

// InstanceListResponse lists the service instances of one project.
type InstanceListResponse struct {
	Instances []engine.ServiceStatus `json:"instances"`
	Total     int                    `json:"total"`
}

func deploymentToResponse(d store.Deployment) DeploymentResponse {
	return DeploymentResponse{
		ID:        d.ID,
		Project:   d.Project,
		Status:    string(d.Status),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
