package deployment

import (
	"time"

	"github.com/artpar/deckhand/internal/core/compose"
)

// =============================================================================
// Container Plan Building Functions
// =============================================================================

// BuildContainerPlanParams carries the inputs for BuildContainerPlan.
type BuildContainerPlanParams struct {
	Project   string
	Service   compose.Service
	Variables map[string]string
	// Networks the container attaches to (runtime names). When the
	// descriptor declares none, this is the implicit project network.
	Networks []string
}

// BuildContainerPlan transforms a descriptor service into a container plan
// the shell can execute via the Docker API. Pure function.
//
// The plan:
//   - names the container {project}_{service}
//   - substitutes ${VAR} placeholders in the environment
//   - prefixes named volumes with the project name
//   - registers the service name as a DNS alias on every attached network
//   - parses health check durations
func BuildContainerPlan(params BuildContainerPlanParams) ContainerPlan {
	svc := params.Service

	plan := ContainerPlan{
		ServiceName: svc.Name,
		Name:        ContainerName(params.Project, svc.Name),
		Image:       svc.Image,
		Build:       svc.Build,
		Command:     svc.Command,
		Entrypoint:  svc.Entrypoint,
		Env:         SubstituteEnvironment(svc.Environment, params.Variables),
		Labels: map[string]string{
			LabelManaged: "true",
			LabelProject: params.Project,
			LabelService: svc.Name,
		},
		Networks:       params.Networks,
		NetworkAliases: make(map[string][]string, len(params.Networks)),
		Restart:        svc.Restart,
	}

	if plan.Image == "" && svc.Build != nil {
		plan.Image = ImageName(params.Project, svc.Name)
	}
	if plan.Restart == "" {
		plan.Restart = compose.RestartNo
	}

	// Name-based discovery: the bare service name resolves on every network
	// the container joins.
	for _, net := range params.Networks {
		plan.NetworkAliases[net] = []string{svc.Name}
	}

	for _, p := range svc.Ports {
		plan.Ports = append(plan.Ports, PortPlan{
			ContainerPort: int(p.Target),
			HostPort:      int(p.Published),
			Protocol:      p.Protocol,
			HostIP:        p.HostIP,
		})
	}

	for _, v := range svc.Volumes {
		source := v.Source
		if v.Type == compose.VolumeMountTypeVolume {
			source = VolumeName(params.Project, v.Source)
		}
		plan.Volumes = append(plan.Volumes, VolumePlan{
			Source:   source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	for k, v := range svc.Labels {
		plan.Labels[k] = v
	}

	if svc.HealthCheck != nil {
		plan.HealthCheck = buildHealthCheckPlan(svc.HealthCheck)
	}

	return plan
}

// buildHealthCheckPlan parses the string durations of a descriptor health
// check. Unparseable durations are left zero and the runtime applies its
// defaults.
func buildHealthCheckPlan(hc *compose.HealthCheck) *HealthCheckPlan {
	plan := &HealthCheckPlan{
		Test:    hc.Test,
		Retries: hc.Retries,
	}
	if d, err := time.ParseDuration(hc.Interval); err == nil {
		plan.Interval = d
	}
	if d, err := time.ParseDuration(hc.Timeout); err == nil {
		plan.Timeout = d
	}
	if d, err := time.ParseDuration(hc.StartPeriod); err == nil {
		plan.StartPeriod = d
	}
	return plan
}
