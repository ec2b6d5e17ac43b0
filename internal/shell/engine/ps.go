package engine

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"

	"github.com/artpar/deckhand/internal/core/deployment"
	"github.com/artpar/deckhand/internal/shell/docker"
	"github.com/artpar/deckhand/internal/shell/store"
)

// =============================================================================
// Ps
// =============================================================================

// ServiceStatus is the observed state of one service, merging the persisted
// record with a live runtime inspection.
type ServiceStatus struct {
	ServiceName  string                   `json:"service_name"`
	ContainerID  string                   `json:"container_id"`
	State        deployment.InstanceState `json:"state"`
	Health       string                   `json:"health,omitempty"`
	ExitCode     int                      `json:"exit_code"`
	RestartCount int                      `json:"restart_count"`
	StartedAt    time.Time                `json:"started_at"`
	Ports        []docker.PortBinding     `json:"ports,omitempty"`
}

// ProjectStatus is the observed state of a whole deployment.
type ProjectStatus struct {
	Project   string                 `json:"project"`
	Status    store.DeploymentStatus `json:"status"`
	CreatedAt time.Time              `json:"created_at"`
	Services  []ServiceStatus        `json:"services"`
}

// Ps reports the live status of a deployed project. Persisted records give the
// service list; each container is inspected for its current state so the view
// reflects the runtime, not the last write.
func (e *Engine) Ps(ctx context.Context, project string) (*ProjectStatus, error) {
	rec, err := e.store.GetDeployment(ctx, project)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewDeployError("ps", project, "", "no deployment recorded", ErrDeploymentNotFound)
		}
		return nil, err
	}

	records, err := e.store.ListInstances(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	status := &ProjectStatus{
		Project:   rec.Project,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt,
	}

	for _, r := range records {
		svc := ServiceStatus{
			ServiceName:  r.ServiceName,
			ContainerID:  r.ContainerID,
			State:        r.State,
			ExitCode:     r.ExitCode,
			RestartCount: r.RestartCount,
			StartedAt:    r.StartedAt,
		}

		info, err := e.docker.InspectContainer(ctx, r.ContainerID)
		if err == nil {
			svc.State = containerState(info)
			svc.Health = info.Health
			svc.ExitCode = info.ExitCode
			svc.Ports = info.Ports
		} else if errors.Is(err, docker.ErrContainerNotFound) {
			svc.State = deployment.InstanceExited
		}

		status.Services = append(status.Services, svc)
	}

	sort.Slice(status.Services, func(i, j int) bool {
		return status.Services[i].ServiceName < status.Services[j].ServiceName
	})
	return status, nil
}

// containerState maps a runtime container status to an instance state.
func containerState(info *docker.ContainerInfo) deployment.InstanceState {
	switch info.Status {
	case docker.ContainerStatusRunning:
		return deployment.InstanceRunning
	case docker.ContainerStatusRestarting:
		return deployment.InstanceRestarting
	case docker.ContainerStatusCreated:
		return deployment.InstanceCreated
	case docker.ContainerStatusExited, docker.ContainerStatusDead:
		if info.ExitCode != 0 {
			return deployment.InstanceFailed
		}
		return deployment.InstanceExited
	default:
		return deployment.InstanceState(info.Status)
	}
}

// ListProjects returns every recorded deployment.
func (e *Engine) ListProjects(ctx context.Context) ([]store.Deployment, error) {
	return e.store.ListDeployments(ctx)
}

// =============================================================================
// Logs
// =============================================================================

// Logs streams a service's container logs. The caller closes the reader.
func (e *Engine) Logs(ctx context.Context, project, service string, opts docker.LogOptions) (io.ReadCloser, error) {
	name := deployment.ContainerName(project, service)
	info, err := e.docker.InspectContainer(ctx, name)
	if err != nil {
		return nil, NewDeployError("logs", project, service, "container not found", err)
	}
	return e.docker.ContainerLogs(ctx, info.ID, opts)
}
