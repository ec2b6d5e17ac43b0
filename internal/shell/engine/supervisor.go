package engine

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/deckhand/internal/core/compose"
	"github.com/artpar/deckhand/internal/core/deployment"
	"github.com/artpar/deckhand/internal/shell/store"
)

// =============================================================================
// Restart Supervisor
// =============================================================================

// Watch supervises a project's running instances until ctx is canceled. Each
// instance gets a waiter goroutine; when its container exits, the declared
// restart policy decides whether the container is started again. Used in
// foreground mode; detached deployments lean on the runtime daemon instead.
func (e *Engine) Watch(ctx context.Context, project string) error {
	rec, err := e.store.GetDeployment(ctx, project)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, inst := range e.Instances(project) {
		if inst.State != deployment.InstanceRunning {
			continue
		}
		inst := inst
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.superviseInstance(ctx, rec.ID, project, inst.ServiceName)
		}()
	}

	wg.Wait()
	return ctx.Err()
}

// superviseInstance waits on one container in a loop, restarting it per the
// declared policy until the policy, the attempts ceiling, an operator stop,
// or ctx ends the loop.
func (e *Engine) superviseInstance(ctx context.Context, deploymentID, project, service string) {
	logger := e.logger.With("project", project, "service", service)

	for {
		inst, ok := e.Instance(project, service)
		if !ok {
			return
		}

		var result WaitOutcome
		select {
		case <-ctx.Done():
			return
		case res := <-e.docker.WaitContainer(ctx, inst.ContainerID):
			if res.Err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error("container wait failed", "error", res.Err)
				return
			}
			result = WaitOutcome{ExitCode: res.ExitCode}
		}

		policy := e.restartPolicyFor(ctx, project, service)
		decision := deployment.RestartDecision{
			Policy:       policy,
			ExitCode:     result.ExitCode,
			RestartCount: inst.RestartCount,
			MaxAttempts:  e.opts.MaxRestartAttempts,
			Stopped:      e.isStopped(project, service),
		}

		if !deployment.ShouldRestart(decision) {
			state := deployment.InstanceExited
			// An operator stop is never a failure, whatever the exit code.
			if !decision.Stopped && (result.ExitCode != 0 || deployment.ExceededAttempts(decision)) {
				state = deployment.InstanceFailed
			}
			updated, _ := e.updateInstance(project, service, func(i *deployment.Instance) {
				i.State = state
				i.ExitCode = result.ExitCode
			})
			e.persistInstance(ctx, deploymentID, updated)
			e.markDegraded(ctx, deploymentID, state)
			logger.Info("instance settled", "state", state, "exit_code", result.ExitCode)
			return
		}

		updated, _ := e.updateInstance(project, service, func(i *deployment.Instance) {
			i.State = deployment.InstanceRestarting
			i.ExitCode = result.ExitCode
			i.RestartCount++
		})
		e.persistInstance(ctx, deploymentID, updated)
		logger.Info("restarting instance", "exit_code", result.ExitCode, "restart_count", updated.RestartCount)

		if err := e.docker.StartContainer(ctx, updated.ContainerID); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("restart failed", "error", err)
			failed, _ := e.updateInstance(project, service, func(i *deployment.Instance) {
				i.State = deployment.InstanceFailed
			})
			e.persistInstance(ctx, deploymentID, failed)
			e.markDegraded(ctx, deploymentID, deployment.InstanceFailed)
			return
		}

		running, _ := e.updateInstance(project, service, func(i *deployment.Instance) {
			i.State = deployment.InstanceRunning
			i.StartedAt = time.Now().UTC()
		})
		e.persistInstance(ctx, deploymentID, running)
	}
}

// WaitOutcome is a container exit observed by the supervisor.
type WaitOutcome struct {
	ExitCode int
}

// restartPolicyFor looks up the declared restart policy, preferring the
// in-process registry and falling back to the stored descriptor when the
// instance was started by an earlier invocation.
func (e *Engine) restartPolicyFor(ctx context.Context, project, service string) compose.RestartPolicy {
	e.mu.Lock()
	policy, ok := e.policies[instanceKey(project, service)]
	e.mu.Unlock()
	if ok {
		return policy
	}

	rec, err := e.store.GetDeployment(ctx, project)
	if err != nil {
		return compose.RestartNo
	}
	desc, err := compose.Parse([]byte(rec.Descriptor))
	if err != nil {
		return compose.RestartNo
	}
	svc, ok := desc.Service(service)
	if !ok || svc.Restart == "" {
		return compose.RestartNo
	}
	return svc.Restart
}

// markDegraded flips the deployment status when an instance fails.
func (e *Engine) markDegraded(ctx context.Context, deploymentID string, state deployment.InstanceState) {
	if state != deployment.InstanceFailed {
		return
	}
	if err := e.store.UpdateDeploymentStatus(ctx, deploymentID, store.DeploymentStatusDegraded); err != nil {
		e.logger.Error("failed to mark deployment degraded", "deployment_id", deploymentID, "error", err)
	}
}
