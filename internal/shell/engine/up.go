package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/deckhand/internal/core/compose"
	"github.com/artpar/deckhand/internal/core/deployment"
	"github.com/artpar/deckhand/internal/shell/docker"
	"github.com/artpar/deckhand/internal/shell/store"
)

// =============================================================================
// Up
// =============================================================================

// UpParams carries the inputs for a deployment.
type UpParams struct {
	Project    string
	Descriptor *compose.Descriptor
	RawYAML    []byte            // persisted verbatim for later ps/down
	Variables  map[string]string // ${VAR} substitution values
}

// UpResult summarizes what a deployment did.
type UpResult struct {
	DeploymentID string
	Started      []string
	Failed       []string
	Skipped      []string
}

// Up deploys a descriptor: provisions networks and volumes, materializes
// images, then starts services layer by layer in dependency order. Services
// within a layer start concurrently. When a service fails, its transitive
// dependents are skipped but everything already running is left running; the
// first failure is returned alongside the partial result.
func (e *Engine) Up(ctx context.Context, params UpParams) (*UpResult, error) {
	desc := params.Descriptor

	layers, err := deployment.Layers(desc.Services)
	if err != nil {
		return nil, err
	}

	rec, err := e.recordDeployment(ctx, params)
	if err != nil {
		return nil, err
	}
	result := &UpResult{DeploymentID: rec.ID}

	// Networks and volumes provision in parallel; both must finish before
	// any container starts.
	var (
		wg           sync.WaitGroup
		networkNames map[string]string
		netErr       error
		volErr       error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		networkNames, netErr = e.ProvisionNetworks(ctx, params.Project, desc.Networks)
	}()
	go func() {
		defer wg.Done()
		volErr = e.ProvisionVolumes(ctx, params.Project, desc.Volumes)
	}()
	wg.Wait()
	if netErr != nil {
		e.failDeployment(ctx, rec.ID)
		return result, netErr
	}
	if volErr != nil {
		e.failDeployment(ctx, rec.ID)
		return result, volErr
	}

	plans := e.buildPlans(params, networkNames)

	failed := make(map[string]error)
	e.materializeImages(ctx, params.Project, plans, failed)

	for _, layer := range layers {
		e.startLayer(ctx, rec.ID, params.Project, layer, plans, failed)
	}

	// Partition outcomes deterministically.
	var firstErr error
	for _, svc := range flatten(layers) {
		err, bad := failed[svc.Name]
		switch {
		case !bad:
			result.Started = append(result.Started, svc.Name)
		case isSkip(err):
			result.Skipped = append(result.Skipped, svc.Name)
		default:
			result.Failed = append(result.Failed, svc.Name)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	sort.Strings(result.Started)
	sort.Strings(result.Failed)
	sort.Strings(result.Skipped)

	status := store.DeploymentStatusRunning
	if len(result.Failed) > 0 || len(result.Skipped) > 0 {
		status = store.DeploymentStatusDegraded
	}
	if err := e.store.UpdateDeploymentStatus(ctx, rec.ID, status); err != nil {
		e.logger.Error("failed to update deployment status", "deployment_id", rec.ID, "error", err)
	}

	e.logger.Info("deployment finished",
		"project", params.Project,
		"started", len(result.Started),
		"failed", len(result.Failed),
		"skipped", len(result.Skipped))

	return result, firstErr
}

// recordDeployment creates or refreshes the persisted deployment row. A
// re-up of an existing project reuses its deployment ID.
func (e *Engine) recordDeployment(ctx context.Context, params UpParams) (*store.Deployment, error) {
	existing, err := e.store.GetDeployment(ctx, params.Project)
	if err == nil {
		if err := e.store.UpdateDeploymentStatus(ctx, existing.ID, store.DeploymentStatusDeploying); err != nil {
			return nil, err
		}
		return existing, nil
	}

	rec := &store.Deployment{
		ID:         uuid.NewString(),
		Project:    params.Project,
		Descriptor: string(params.RawYAML),
		Status:     store.DeploymentStatusDeploying,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := e.store.CreateDeployment(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (e *Engine) failDeployment(ctx context.Context, id string) {
	if err := e.store.UpdateDeploymentStatus(ctx, id, store.DeploymentStatusDegraded); err != nil {
		e.logger.Error("failed to update deployment status", "deployment_id", id, "error", err)
	}
}

// buildPlans computes the container plan for every service.
func (e *Engine) buildPlans(params UpParams, networkNames map[string]string) map[string]deployment.ContainerPlan {
	plans := make(map[string]deployment.ContainerPlan, len(params.Descriptor.Services))
	for _, svc := range params.Descriptor.Services {
		nets := make([]string, 0, len(svc.Networks))
		for _, n := range svc.Networks {
			if runtime, ok := networkNames[n]; ok {
				nets = append(nets, runtime)
			}
		}
		if len(nets) == 0 {
			nets = []string{networkNames["default"]}
		}
		plans[svc.Name] = deployment.BuildContainerPlan(deployment.BuildContainerPlanParams{
			Project:   params.Project,
			Service:   svc,
			Variables: params.Variables,
			Networks:  nets,
		})
	}
	return plans
}

// materializeImages pulls or builds every service image up front, bounded by
// the layer concurrency limit. Failures are recorded per service so dependents
// get skipped instead of starting against a missing image.
func (e *Engine) materializeImages(ctx context.Context, project string, plans map[string]deployment.ContainerPlan, failed map[string]error) {
	names := make([]string, 0, len(plans))
	for name := range plans {
		names = append(names, name)
	}
	sort.Strings(names)

	sem := make(chan struct{}, e.opts.LayerConcurrency)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, name := range names {
		plan := plans[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := e.MaterializeImage(ctx, project, plan); err != nil {
				e.logger.Error("image materialization failed", "service", plan.ServiceName, "error", err)
				mu.Lock()
				failed[plan.ServiceName] = err
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

// startLayer starts every startable service of one dependency layer
// concurrently and waits for the layer to settle.
func (e *Engine) startLayer(ctx context.Context, deploymentID, project string, layer []compose.Service, plans map[string]deployment.ContainerPlan, failed map[string]error) {
	// Skip decisions happen before anything launches; dependencies always
	// live in earlier layers, which have settled by now.
	var startable []compose.Service
	for _, svc := range layer {
		if _, bad := failed[svc.Name]; bad {
			continue
		}
		if dep, bad := failedDependency(svc, failed); bad {
			failed[svc.Name] = NewDeployError("start_service", project, svc.Name,
				"dependency "+dep+" failed", ErrDependencyFailed)
			e.logger.Warn("skipping service, dependency failed", "service", svc.Name, "dependency", dep)
			continue
		}
		startable = append(startable, svc)
	}

	sem := make(chan struct{}, e.opts.LayerConcurrency)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, svc := range startable {
		svc := svc
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := e.startService(ctx, deploymentID, project, svc, plans[svc.Name]); err != nil {
				e.logger.Error("service start failed", "service", svc.Name, "error", err)
				mu.Lock()
				failed[svc.Name] = err
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

// startService creates and starts one container, replacing any stale
// container holding the name, and waits for readiness.
func (e *Engine) startService(ctx context.Context, deploymentID, project string, svc compose.Service, plan deployment.ContainerPlan) error {
	logger := e.logger.With("project", project, "service", svc.Name)

	if stale, err := e.docker.InspectContainer(ctx, plan.Name); err == nil {
		logger.Debug("removing stale container", "container_id", stale.ID)
		if err := e.docker.RemoveContainer(ctx, stale.ID, docker.RemoveOptions{Force: true}); err != nil {
			return NewDeployError("start_service", project, svc.Name, "failed to replace stale container: "+err.Error(), ErrStartFailure)
		}
	}

	spec := containerSpec(plan)
	if e.opts.Detached {
		name, maxRetry := deployment.RuntimeRestartPolicy(plan.Restart, e.opts.MaxRestartAttempts)
		spec.RestartPolicy = docker.RestartPolicy{Name: name, MaximumRetryCount: maxRetry}
	}

	containerID, err := e.docker.CreateContainer(ctx, spec)
	if err != nil {
		return NewDeployError("start_service", project, svc.Name, err.Error(), ErrStartFailure)
	}

	if err := e.docker.StartContainer(ctx, containerID); err != nil {
		return NewDeployError("start_service", project, svc.Name, err.Error(), ErrStartFailure)
	}

	inst := deployment.Instance{
		ServiceName: svc.Name,
		ContainerID: containerID,
		State:       deployment.InstanceStarting,
		StartedAt:   time.Now().UTC(),
	}
	e.trackInstance(project, inst)
	e.mu.Lock()
	e.policies[instanceKey(project, svc.Name)] = plan.Restart
	e.mu.Unlock()
	e.persistInstance(ctx, deploymentID, inst)

	if err := e.waitReady(ctx, plan, containerID); err != nil {
		inst.State = deployment.InstanceFailed
		e.trackInstance(project, inst)
		e.persistInstance(ctx, deploymentID, inst)
		return err
	}

	inst.State = deployment.InstanceRunning
	e.trackInstance(project, inst)
	e.persistInstance(ctx, deploymentID, inst)
	logger.Info("service started", "container_id", containerID)
	return nil
}

// waitReady blocks until the container is ready: running for plain services,
// reporting healthy when a health check is declared.
func (e *Engine) waitReady(ctx context.Context, plan deployment.ContainerPlan, containerID string) error {
	deadline := time.Now().Add(e.opts.StartTimeout)

	for {
		info, err := e.docker.InspectContainer(ctx, containerID)
		if err != nil {
			return NewDeployError("wait_ready", "", plan.ServiceName, err.Error(), ErrStartFailure)
		}

		switch info.Status {
		case docker.ContainerStatusRunning:
			if plan.HealthCheck == nil {
				return nil
			}
			switch info.Health {
			case "healthy":
				return nil
			case "unhealthy":
				return NewDeployError("wait_ready", "", plan.ServiceName, "container is unhealthy", ErrStartFailure)
			}
			// "starting" or not yet reported: keep polling
		case docker.ContainerStatusExited, docker.ContainerStatusDead:
			return NewDeployError("wait_ready", "", plan.ServiceName,
				"container exited during startup", ErrStartFailure)
		}

		if time.Now().After(deadline) {
			return NewDeployError("wait_ready", "", plan.ServiceName,
				"timed out waiting for readiness", ErrStartFailure)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// persistInstance writes an instance record, logging store failures instead
// of aborting the deployment.
func (e *Engine) persistInstance(ctx context.Context, deploymentID string, inst deployment.Instance) {
	rec := &store.InstanceRecord{
		DeploymentID: deploymentID,
		ServiceName:  inst.ServiceName,
		ContainerID:  inst.ContainerID,
		State:        inst.State,
		ExitCode:     inst.ExitCode,
		RestartCount: inst.RestartCount,
		StartedAt:    inst.StartedAt,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := e.store.UpsertInstance(ctx, rec); err != nil {
		e.logger.Error("failed to persist instance", "service", inst.ServiceName, "error", err)
	}
}

// containerSpec converts a plan into a runtime container spec.
func containerSpec(plan deployment.ContainerPlan) docker.ContainerSpec {
	spec := docker.ContainerSpec{
		Name:           plan.Name,
		Image:          plan.Image,
		Command:        plan.Command,
		Entrypoint:     plan.Entrypoint,
		Env:            plan.Env,
		Labels:         plan.Labels,
		Networks:       plan.Networks,
		NetworkAliases: plan.NetworkAliases,
	}
	for _, p := range plan.Ports {
		spec.Ports = append(spec.Ports, docker.PortBinding{
			ContainerPort: p.ContainerPort,
			HostPort:      p.HostPort,
			Protocol:      p.Protocol,
			HostIP:        p.HostIP,
		})
	}
	for _, v := range plan.Volumes {
		spec.Volumes = append(spec.Volumes, docker.VolumeMount{
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}
	if plan.HealthCheck != nil {
		spec.HealthCheck = &docker.HealthCheck{
			Test:        plan.HealthCheck.Test,
			Interval:    plan.HealthCheck.Interval,
			Timeout:     plan.HealthCheck.Timeout,
			Retries:     plan.HealthCheck.Retries,
			StartPeriod: plan.HealthCheck.StartPeriod,
		}
	}
	return spec
}

// failedDependency returns the first dependency of svc recorded as failed.
func failedDependency(svc compose.Service, failed map[string]error) (string, bool) {
	for _, dep := range svc.DependsOn {
		if _, bad := failed[dep]; bad {
			return dep, true
		}
	}
	return "", false
}

// isSkip reports whether an error marks a skipped (not failed) service.
func isSkip(err error) bool {
	return errors.Is(err, ErrDependencyFailed)
}

func flatten(layers [][]compose.Service) []compose.Service {
	var out []compose.Service
	for _, layer := range layers {
		out = append(out, layer...)
	}
	return out
}
