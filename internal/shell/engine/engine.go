// Package engine orchestrates deployments: it provisions networks and
// volumes, materializes images, starts containers in dependency order, and
// supervises restarts. Planning decisions live in internal/core; this package
// executes them against the Docker runtime and records state in the store.
package engine

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/artpar/deckhand/internal/core/compose"
	"github.com/artpar/deckhand/internal/core/deployment"
	"github.com/artpar/deckhand/internal/shell/docker"
	"github.com/artpar/deckhand/internal/shell/store"
)

// =============================================================================
// Engine
// =============================================================================

// Options configures engine behavior.
type Options struct {
	// StartTimeout bounds the wait for a single service to become ready.
	StartTimeout time.Duration

	// StopTimeout is handed to the runtime when stopping containers.
	StopTimeout time.Duration

	// MaxRestartAttempts caps supervisor restarts per instance; 0 means
	// unlimited.
	MaxRestartAttempts int

	// Detached delegates restart supervision to the runtime daemon instead
	// of the engine's own supervisor.
	Detached bool

	// LayerConcurrency caps how many services of one dependency layer start
	// at once.
	LayerConcurrency int
}

// DefaultOptions returns default engine options.
func DefaultOptions() Options {
	return Options{
		StartTimeout:       60 * time.Second,
		StopTimeout:        10 * time.Second,
		MaxRestartAttempts: 0,
		LayerConcurrency:   4,
	}
}

// Engine executes deployment plans against a container runtime.
type Engine struct {
	docker docker.Client
	store  store.Store
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	instances map[string]*deployment.Instance  // keyed by project/service
	stopped   map[string]bool                  // operator-stopped instances
	policies  map[string]compose.RestartPolicy // declared restart policies
}

// New creates an engine.
func New(dockerClient docker.Client, s store.Store, opts Options, logger *slog.Logger) *Engine {
	if opts.StartTimeout == 0 {
		opts.StartTimeout = 60 * time.Second
	}
	if opts.StopTimeout == 0 {
		opts.StopTimeout = 10 * time.Second
	}
	if opts.LayerConcurrency == 0 {
		opts.LayerConcurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		docker:    dockerClient,
		store:     s,
		opts:      opts,
		logger:    logger.With("component", "engine"),
		instances: make(map[string]*deployment.Instance),
		stopped:   make(map[string]bool),
		policies:  make(map[string]compose.RestartPolicy),
	}
}

// instanceKey builds the registry key for a project's service.
func instanceKey(project, service string) string {
	return project + "/" + service
}

// trackInstance registers or replaces an instance in the registry.
func (e *Engine) trackInstance(project string, inst deployment.Instance) {
	e.mu.Lock()
	defer e.mu.Unlock()
	copied := inst
	e.instances[instanceKey(project, inst.ServiceName)] = &copied
	delete(e.stopped, instanceKey(project, inst.ServiceName))
}

// markStopped flags an instance as operator-stopped so the supervisor does
// not restart it.
func (e *Engine) markStopped(project, service string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped[instanceKey(project, service)] = true
}

// isStopped reports whether the operator stopped the instance.
func (e *Engine) isStopped(project, service string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped[instanceKey(project, service)]
}

// Instance returns a copy of a tracked instance.
func (e *Engine) Instance(project, service string) (deployment.Instance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instances[instanceKey(project, service)]
	if !ok {
		return deployment.Instance{}, false
	}
	return *inst, true
}

// Instances returns copies of all tracked instances for a project.
func (e *Engine) Instances(project string) []deployment.Instance {
	e.mu.Lock()
	defer e.mu.Unlock()
	prefix := project + "/"
	out := make([]deployment.Instance, 0, len(e.instances))
	for key, inst := range e.instances {
		if strings.HasPrefix(key, prefix) {
			out = append(out, *inst)
		}
	}
	return out
}

// updateInstance applies fn to a tracked instance under the lock and returns
// the updated copy.
func (e *Engine) updateInstance(project, service string, fn func(*deployment.Instance)) (deployment.Instance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instances[instanceKey(project, service)]
	if !ok {
		return deployment.Instance{}, false
	}
	fn(inst)
	return *inst, true
}

// forgetProject drops all registry entries for a project.
func (e *Engine) forgetProject(project string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prefix := project + "/"
	for key := range e.instances {
		if strings.HasPrefix(key, prefix) {
			delete(e.instances, key)
		}
	}
	for key := range e.stopped {
		if strings.HasPrefix(key, prefix) {
			delete(e.stopped, key)
		}
	}
	for key := range e.policies {
		if strings.HasPrefix(key, prefix) {
			delete(e.policies, key)
		}
	}
}
