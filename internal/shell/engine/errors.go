package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

// Sentinel errors for deployment orchestration.
var (
	// ErrNetworkConflict indicates a requested network could not be
	// provisioned because its name or subnet collides with an existing one.
	ErrNetworkConflict = errors.New("network conflict")

	// ErrVolumeConflict indicates a volume with the requested name exists
	// but is not managed by this project.
	ErrVolumeConflict = errors.New("volume conflict")

	// ErrExternalResourceMissing indicates a resource declared external
	// does not exist on the runtime.
	ErrExternalResourceMissing = errors.New("external resource missing")

	// ErrImageResolution indicates an image could neither be pulled nor built.
	ErrImageResolution = errors.New("image resolution failed")

	// ErrStartFailure indicates a container failed to create, start, or
	// become ready within the start timeout.
	ErrStartFailure = errors.New("service start failed")

	// ErrDependencyFailed indicates a service was skipped because one of
	// its dependencies failed to start.
	ErrDependencyFailed = errors.New("dependency failed")

	// ErrDeploymentNotFound indicates no recorded deployment exists for
	// the project.
	ErrDeploymentNotFound = errors.New("deployment not found")
)

// DeployError provides context about a deployment operation failure.
type DeployError struct {
	Op      string // Operation: "provision_network", "start_service", etc.
	Project string
	Target  string // Service, network, or volume name
	Message string
	Err     error
}

func (e *DeployError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("engine: %s %s/%s: %s", e.Op, e.Project, e.Target, e.Message)
	}
	return fmt.Sprintf("engine: %s %s: %s", e.Op, e.Project, e.Message)
}

func (e *DeployError) Unwrap() error {
	return e.Err
}

// NewDeployError creates a DeployError.
func NewDeployError(op, project, target, message string, err error) *DeployError {
	return &DeployError{Op: op, Project: project, Target: target, Message: message, Err: err}
}
