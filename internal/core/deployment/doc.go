// Package deployment provides pure functions for deployment planning.
//
// This package is the functional core that turns a validated descriptor into
// an executable plan. All functions are pure (no I/O, no side effects); the
// imperative shell (internal/shell/engine) executes the plans via the Docker
// API.
//
//   - Naming: project-scoped resource names (NetworkName, VolumeName, ContainerName)
//   - Ordering: deterministic dependency order (Order, Layers)
//   - Variables: environment placeholder substitution (SubstituteVariables)
//   - Planning: container plans from descriptor services (BuildContainerPlan)
package deployment
