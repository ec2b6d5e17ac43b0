package store

import (
	"context"
	"time"

	"github.com/artpar/deckhand/internal/core/deployment"
)

// =============================================================================
// Record Types
// =============================================================================

// DeploymentStatus is the lifecycle status of a recorded deployment.
type DeploymentStatus string

const (
	DeploymentStatusDeploying DeploymentStatus = "deploying"
	DeploymentStatusRunning   DeploymentStatus = "running"
	DeploymentStatusDegraded  DeploymentStatus = "degraded"
	DeploymentStatusStopped   DeploymentStatus = "stopped"
)

// Deployment is one recorded `up` of a project.
type Deployment struct {
	ID         string           `json:"id"` // uuid
	Project    string           `json:"project"`
	Descriptor string           `json:"descriptor"` // raw YAML as submitted
	Status     DeploymentStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// InstanceRecord is the persisted view of a service instance.
type InstanceRecord struct {
	DeploymentID string                   `json:"deployment_id"`
	ServiceName  string                   `json:"service_name"`
	ContainerID  string                   `json:"container_id"`
	State        deployment.InstanceState `json:"state"`
	ExitCode     int                      `json:"exit_code"`
	RestartCount int                      `json:"restart_count"`
	StartedAt    time.Time                `json:"started_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for deployment state. The engine
// records what it started so `ps` and `down` work across CLI invocations.
type Store interface {
	// Deployment operations
	CreateDeployment(ctx context.Context, d *Deployment) error
	GetDeployment(ctx context.Context, project string) (*Deployment, error)
	UpdateDeploymentStatus(ctx context.Context, id string, status DeploymentStatus) error
	DeleteDeployment(ctx context.Context, id string) error
	ListDeployments(ctx context.Context) ([]Deployment, error)

	// Instance operations
	UpsertInstance(ctx context.Context, rec *InstanceRecord) error
	ListInstances(ctx context.Context, deploymentID string) ([]InstanceRecord, error)
	DeleteInstances(ctx context.Context, deploymentID string) error

	Close() error
}
