package compose

// =============================================================================
// Descriptor - Main Output Type
// =============================================================================

// Descriptor is a fully parsed and validated deployment descriptor.
// It is the Deckhand-specific representation, decoupled from compose-go types,
// and is immutable once returned by Parse.
type Descriptor struct {
	Services []Service `json:"services" yaml:"services"`
	Networks []Network `json:"networks,omitempty" yaml:"networks,omitempty"`
	Volumes  []Volume  `json:"volumes,omitempty" yaml:"volumes,omitempty"`
}

// Service returns the service with the given name, or false if absent.
func (d *Descriptor) Service(name string) (Service, bool) {
	for _, svc := range d.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return Service{}, false
}

// =============================================================================
// Service Types
// =============================================================================

// Service is a single deployable unit of the descriptor.
type Service struct {
	Name        string            `json:"name" yaml:"name"`
	Image       string            `json:"image,omitempty" yaml:"image,omitempty"`
	Build       *BuildConfig      `json:"build,omitempty" yaml:"build,omitempty"`
	Command     []string          `json:"command,omitempty" yaml:"command,omitempty"`
	Entrypoint  []string          `json:"entrypoint,omitempty" yaml:"entrypoint,omitempty"`
	Ports       []Port            `json:"ports,omitempty" yaml:"ports,omitempty"`
	Environment map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
	Volumes     []VolumeMount     `json:"volumes,omitempty" yaml:"volumes,omitempty"`
	Networks    []string          `json:"networks,omitempty" yaml:"networks,omitempty"`
	DependsOn   []string          `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Restart     RestartPolicy     `json:"restart,omitempty" yaml:"restart,omitempty"`
	HealthCheck *HealthCheck      `json:"healthcheck,omitempty" yaml:"healthcheck,omitempty"`
	Labels      map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// BuildConfig describes a local build context used instead of a pre-built image.
type BuildConfig struct {
	Context    string `json:"context" yaml:"context"`
	Dockerfile string `json:"dockerfile,omitempty" yaml:"dockerfile,omitempty"`
	Target     string `json:"target,omitempty" yaml:"target,omitempty"`
}

// Port is a single port mapping.
type Port struct {
	Target    uint32 `json:"target" yaml:"target"`                           // Container port
	Published uint32 `json:"published,omitempty" yaml:"published,omitempty"` // Host port (0 = dynamic)
	Protocol  string `json:"protocol,omitempty" yaml:"protocol,omitempty"`   // tcp, udp
	HostIP    string `json:"host_ip,omitempty" yaml:"host_ip,omitempty"`     // Bind IP
}

// VolumeMount is a volume mount in a service.
type VolumeMount struct {
	Type     VolumeMountType `json:"type" yaml:"type"`     // bind, volume, tmpfs
	Source   string          `json:"source" yaml:"source"` // Path or volume name
	Target   string          `json:"target" yaml:"target"` // Container path
	ReadOnly bool            `json:"read_only" yaml:"read_only"`
}

// VolumeMountType is the kind of a volume mount.
type VolumeMountType string

const (
	VolumeMountTypeBind   VolumeMountType = "bind"
	VolumeMountTypeVolume VolumeMountType = "volume"
	VolumeMountTypeTmpfs  VolumeMountType = "tmpfs"
)

// RestartPolicy governs whether a service process is relaunched after exit.
type RestartPolicy string

const (
	RestartNo            RestartPolicy = "no"
	RestartAlways        RestartPolicy = "always"
	RestartOnFailure     RestartPolicy = "on-failure"
	RestartUnlessStopped RestartPolicy = "unless-stopped"
)

// Valid reports whether the policy is one of the supported values.
// An empty policy is valid and means "no".
func (p RestartPolicy) Valid() bool {
	switch p {
	case "", RestartNo, RestartAlways, RestartOnFailure, RestartUnlessStopped:
		return true
	}
	return false
}

// HealthCheck is an optional readiness probe declared on a service.
// When present, dependents wait for the probe to pass instead of bare
// process-started liveness.
type HealthCheck struct {
	Test        []string `json:"test" yaml:"test"`
	Interval    string   `json:"interval,omitempty" yaml:"interval,omitempty"`
	Timeout     string   `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retries     int      `json:"retries,omitempty" yaml:"retries,omitempty"`
	StartPeriod string   `json:"start_period,omitempty" yaml:"start_period,omitempty"`
}

// =============================================================================
// Network Types
// =============================================================================

// Network is a named virtual network definition.
type Network struct {
	Name       string            `json:"name" yaml:"name"`
	Driver     string            `json:"driver,omitempty" yaml:"driver,omitempty"` // default "bridge"
	Subnet     string            `json:"subnet,omitempty" yaml:"subnet,omitempty"` // CIDR
	IPRange    string            `json:"ip_range,omitempty" yaml:"ip_range,omitempty"`
	Gateway    string            `json:"gateway,omitempty" yaml:"gateway,omitempty"`
	External   bool              `json:"external" yaml:"external"`
	Internal   bool              `json:"internal" yaml:"internal"`
	Attachable bool              `json:"attachable" yaml:"attachable"`
	Labels     map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// =============================================================================
// Volume Types
// =============================================================================

// Volume is a named persistent volume definition.
type Volume struct {
	Name     string            `json:"name" yaml:"name"`
	Driver   string            `json:"driver,omitempty" yaml:"driver,omitempty"` // default "local"
	External bool              `json:"external" yaml:"external"`
	Labels   map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}
