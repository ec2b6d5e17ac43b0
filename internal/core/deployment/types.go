package deployment

import (
	"time"

	"github.com/artpar/deckhand/internal/core/compose"
)

// =============================================================================
// Container Plan Types
// =============================================================================

// ContainerPlan is a planned container configuration, ready for the shell to
// execute. The declared restart policy is carried on the plan; depending on
// mode, either the engine's supervisor applies it or it is mapped to a
// runtime-level policy for the daemon.
type ContainerPlan struct {
	ServiceName    string
	Name           string
	Image          string
	Build          *compose.BuildConfig
	Command        []string
	Entrypoint     []string
	Env            map[string]string
	Labels         map[string]string
	Ports          []PortPlan
	Volumes        []VolumePlan
	Networks       []string
	NetworkAliases map[string][]string // network name -> DNS aliases
	Restart        compose.RestartPolicy
	HealthCheck    *HealthCheckPlan
}

// PortPlan is a planned port binding.
type PortPlan struct {
	ContainerPort int
	HostPort      int
	Protocol      string
	HostIP        string
}

// VolumePlan is a planned volume mount.
type VolumePlan struct {
	Source   string
	Target   string
	ReadOnly bool
}

// HealthCheckPlan is a planned health check with parsed durations.
type HealthCheckPlan struct {
	Test        []string
	Interval    time.Duration
	Timeout     time.Duration
	Retries     int
	StartPeriod time.Duration
}

// =============================================================================
// Instance Types
// =============================================================================

// InstanceState is the lifecycle state of a running service instance.
type InstanceState string

const (
	InstanceCreated    InstanceState = "created"
	InstanceStarting   InstanceState = "starting"
	InstanceRunning    InstanceState = "running"
	InstanceRestarting InstanceState = "restarting"
	InstanceExited     InstanceState = "exited"
	InstanceFailed     InstanceState = "failed"
)

// Instance is the runtime record of one started service. Instances are owned
// and mutated exclusively by the engine; everything else sees copies.
type Instance struct {
	ServiceName  string        `json:"service_name"`
	ContainerID  string        `json:"container_id"`
	State        InstanceState `json:"state"`
	ExitCode     int           `json:"exit_code"`
	RestartCount int           `json:"restart_count"`
	StartedAt    time.Time     `json:"started_at"`
}

// =============================================================================
// Label Constants
// =============================================================================

const (
	LabelManaged = "com.deckhand.managed"
	LabelProject = "com.deckhand.project"
	LabelService = "com.deckhand.service"
	LabelNetwork = "com.deckhand.network"
	LabelVolume  = "com.deckhand.volume"
)
