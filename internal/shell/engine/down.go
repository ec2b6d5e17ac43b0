package engine

import (
	"context"
	"errors"

	"github.com/artpar/deckhand/internal/core/compose"
	"github.com/artpar/deckhand/internal/core/deployment"
	"github.com/artpar/deckhand/internal/shell/docker"
	"github.com/artpar/deckhand/internal/shell/store"
)

// =============================================================================
// Down
// =============================================================================

// DownOptions configures teardown behavior.
type DownOptions struct {
	// RemoveVolumes also deletes the project's named volumes. Off by
	// default: data outlives teardown unless explicitly requested.
	RemoveVolumes bool
}

// Down tears down a project: containers stop and are removed in reverse
// dependency order, then project networks are removed, then optionally
// project volumes. External resources are never touched. Teardown is best
// effort; it continues past individual failures and returns them joined.
func (e *Engine) Down(ctx context.Context, project string, opts DownOptions) error {
	rec, err := e.store.GetDeployment(ctx, project)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NewDeployError("down", project, "", "no deployment recorded", ErrDeploymentNotFound)
		}
		return err
	}

	desc, err := compose.Parse([]byte(rec.Descriptor))
	if err != nil {
		return NewDeployError("down", project, "", "stored descriptor no longer parses: "+err.Error(), err)
	}

	ordered, err := deployment.Order(desc.Services)
	if err != nil {
		return err
	}

	var errs []error

	// Dependents stop before their dependencies.
	for i := len(ordered) - 1; i >= 0; i-- {
		svc := ordered[i]
		e.markStopped(project, svc.Name)
		if err := e.removeService(ctx, project, svc.Name); err != nil {
			errs = append(errs, err)
		}
	}

	for _, net := range desc.Networks {
		if net.External {
			continue
		}
		if err := e.removeNetworkByName(ctx, deployment.NetworkName(project, net.Name)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.removeNetworkByName(ctx, deployment.DefaultNetworkName(project)); err != nil {
		errs = append(errs, err)
	}

	if opts.RemoveVolumes {
		for _, vol := range desc.Volumes {
			if vol.External {
				continue
			}
			name := deployment.VolumeName(project, vol.Name)
			if err := e.docker.RemoveVolume(ctx, name, false); err != nil && !errors.Is(err, docker.ErrVolumeNotFound) {
				errs = append(errs, err)
			} else {
				e.logger.Info("volume removed", "volume", name)
			}
		}
	}

	if err := e.store.DeleteInstances(ctx, rec.ID); err != nil {
		errs = append(errs, err)
	}
	if err := e.store.DeleteDeployment(ctx, rec.ID); err != nil {
		errs = append(errs, err)
	}
	e.forgetProject(project)

	e.logger.Info("project torn down", "project", project, "errors", len(errs))
	return errors.Join(errs...)
}

// removeService stops and removes a service's container, tolerating absence.
func (e *Engine) removeService(ctx context.Context, project, service string) error {
	name := deployment.ContainerName(project, service)
	info, err := e.docker.InspectContainer(ctx, name)
	if err != nil {
		if errors.Is(err, docker.ErrContainerNotFound) {
			return nil
		}
		return err
	}

	timeout := e.opts.StopTimeout
	if info.Status == docker.ContainerStatusRunning {
		if err := e.docker.StopContainer(ctx, info.ID, &timeout); err != nil {
			e.logger.Warn("graceful stop failed, forcing removal", "service", service, "error", err)
		}
	}
	if err := e.docker.RemoveContainer(ctx, info.ID, docker.RemoveOptions{Force: true}); err != nil {
		return err
	}

	e.logger.Info("service removed", "project", project, "service", service)
	return nil
}

// removeNetworkByName removes a network, tolerating absence and networks
// still holding endpoints from other projects.
func (e *Engine) removeNetworkByName(ctx context.Context, name string) error {
	info, err := e.docker.InspectNetwork(ctx, name)
	if err != nil {
		return nil // already gone
	}
	if err := e.docker.RemoveNetwork(ctx, info.ID); err != nil {
		return err
	}
	e.logger.Info("network removed", "network", name)
	return nil
}
