package engine

import (
	"context"
	"net/netip"

	"github.com/artpar/deckhand/internal/core/compose"
	"github.com/artpar/deckhand/internal/core/deployment"
	"github.com/artpar/deckhand/internal/shell/docker"
)

// =============================================================================
// Network Provisioning
// =============================================================================

// ProvisionNetworks creates the declared networks plus the implicit project
// network. Idempotent: networks already created by this project are reused.
// Returns the descriptor name -> runtime name mapping services attach with.
func (e *Engine) ProvisionNetworks(ctx context.Context, project string, networks []compose.Network) (map[string]string, error) {
	names := make(map[string]string, len(networks)+1)

	defaultName := deployment.DefaultNetworkName(project)
	names["default"] = defaultName
	if err := e.provisionNetwork(ctx, project, compose.Network{Name: "default", Driver: "bridge"}, defaultName); err != nil {
		return nil, err
	}

	for _, net := range networks {
		if net.Name == "default" {
			continue
		}
		runtimeName := deployment.NetworkName(project, net.Name)
		if net.External {
			// External networks must already exist; never created or removed.
			runtimeName = net.Name
			if _, err := e.docker.InspectNetwork(ctx, runtimeName); err != nil {
				return nil, NewDeployError("provision_network", project, net.Name,
					"external network does not exist", ErrExternalResourceMissing)
			}
			names[net.Name] = runtimeName
			continue
		}
		if err := e.provisionNetwork(ctx, project, net, runtimeName); err != nil {
			return nil, err
		}
		names[net.Name] = runtimeName
	}

	return names, nil
}

func (e *Engine) provisionNetwork(ctx context.Context, project string, net compose.Network, runtimeName string) error {
	existing, err := e.docker.InspectNetwork(ctx, runtimeName)
	if err == nil {
		if existing.Labels[deployment.LabelProject] != project {
			return NewDeployError("provision_network", project, net.Name,
				"network name already in use by another owner", ErrNetworkConflict)
		}
		e.logger.Debug("network exists, reusing", "network", runtimeName)
		return nil
	}

	if net.Subnet != "" {
		if err := e.checkSubnetFree(ctx, net.Subnet); err != nil {
			return NewDeployError("provision_network", project, net.Name, err.Error(), ErrNetworkConflict)
		}
	}

	driver := net.Driver
	if driver == "" {
		driver = "bridge"
	}

	labels := map[string]string{
		deployment.LabelManaged: "true",
		deployment.LabelProject: project,
		deployment.LabelNetwork: net.Name,
	}
	for k, v := range net.Labels {
		labels[k] = v
	}

	_, err = e.docker.CreateNetwork(ctx, docker.NetworkSpec{
		Name:       runtimeName,
		Driver:     driver,
		Subnet:     net.Subnet,
		IPRange:    net.IPRange,
		Gateway:    net.Gateway,
		Internal:   net.Internal,
		Attachable: net.Attachable,
		Labels:     labels,
	})
	if err != nil {
		return NewDeployError("provision_network", project, net.Name, err.Error(), ErrNetworkConflict)
	}

	e.logger.Info("network created", "network", runtimeName, "driver", driver, "subnet", net.Subnet)
	return nil
}

// checkSubnetFree rejects subnets overlapping any existing runtime network,
// including those of other projects.
func (e *Engine) checkSubnetFree(ctx context.Context, subnet string) error {
	prefix, err := netip.ParsePrefix(subnet)
	if err != nil {
		return err
	}

	existing, err := e.docker.ListNetworks(ctx)
	if err != nil {
		return err
	}

	for _, net := range existing {
		for _, cidr := range net.Subnets {
			other, err := netip.ParsePrefix(cidr)
			if err != nil {
				continue
			}
			if prefix.Overlaps(other) {
				return &DeployError{
					Op:      "check_subnet",
					Target:  net.Name,
					Message: "subnet " + subnet + " overlaps existing network " + net.Name + " (" + cidr + ")",
					Err:     ErrNetworkConflict,
				}
			}
		}
	}
	return nil
}

// =============================================================================
// Volume Provisioning
// =============================================================================

// ProvisionVolumes creates the declared named volumes. Idempotent for volumes
// this project owns; a same-named volume owned elsewhere is a conflict so a
// deployment never silently mounts foreign data.
func (e *Engine) ProvisionVolumes(ctx context.Context, project string, volumes []compose.Volume) error {
	for _, vol := range volumes {
		if vol.External {
			if _, err := e.docker.InspectVolume(ctx, vol.Name); err != nil {
				return NewDeployError("provision_volume", project, vol.Name,
					"external volume does not exist", ErrExternalResourceMissing)
			}
			continue
		}

		runtimeName := deployment.VolumeName(project, vol.Name)
		existing, err := e.docker.InspectVolume(ctx, runtimeName)
		if err == nil {
			if existing.Labels[deployment.LabelProject] != project {
				return NewDeployError("provision_volume", project, vol.Name,
					"volume name already in use by another owner", ErrVolumeConflict)
			}
			e.logger.Debug("volume exists, reusing", "volume", runtimeName)
			continue
		}

		labels := map[string]string{
			deployment.LabelManaged: "true",
			deployment.LabelProject: project,
			deployment.LabelVolume:  vol.Name,
		}
		for k, v := range vol.Labels {
			labels[k] = v
		}

		if _, err := e.docker.CreateVolume(ctx, docker.VolumeSpec{
			Name:   runtimeName,
			Driver: vol.Driver,
			Labels: labels,
		}); err != nil {
			return NewDeployError("provision_volume", project, vol.Name, err.Error(), ErrVolumeConflict)
		}

		e.logger.Info("volume created", "volume", runtimeName)
	}
	return nil
}

// =============================================================================
// Image Materialization
// =============================================================================

// MaterializeImage ensures the plan's image is locally available, building it
// from the declared context when one is given and pulling it otherwise.
// Images already present are not re-pulled.
func (e *Engine) MaterializeImage(ctx context.Context, project string, plan deployment.ContainerPlan) error {
	if plan.Build != nil {
		dockerfile := plan.Build.Dockerfile
		if dockerfile == "" {
			dockerfile = "Dockerfile"
		}
		e.logger.Info("building image", "service", plan.ServiceName, "context", plan.Build.Context, "tag", plan.Image)
		err := e.docker.BuildImage(ctx, docker.BuildOptions{
			ContextDir: plan.Build.Context,
			Dockerfile: dockerfile,
			Target:     plan.Build.Target,
			Tag:        plan.Image,
			Labels: map[string]string{
				deployment.LabelManaged: "true",
				deployment.LabelProject: project,
				deployment.LabelService: plan.ServiceName,
			},
		})
		if err != nil {
			return NewDeployError("build_image", project, plan.ServiceName, err.Error(), ErrImageResolution)
		}
		return nil
	}

	exists, err := e.docker.ImageExists(ctx, plan.Image)
	if err != nil {
		return NewDeployError("inspect_image", project, plan.ServiceName, err.Error(), ErrImageResolution)
	}
	if exists {
		e.logger.Debug("image present locally", "image", plan.Image)
		return nil
	}

	e.logger.Info("pulling image", "service", plan.ServiceName, "image", plan.Image)
	if err := e.docker.PullImage(ctx, plan.Image, docker.PullOptions{}); err != nil {
		return NewDeployError("pull_image", project, plan.ServiceName, err.Error(), ErrImageResolution)
	}
	return nil
}
