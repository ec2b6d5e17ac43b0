package deployment

import "fmt"

// =============================================================================
// Resource Naming Functions
// =============================================================================

// DefaultNetworkName generates the implicit project network name used when a
// descriptor declares no networks.
// Pattern: deckhand_{project}
func DefaultNetworkName(project string) string {
	return fmt.Sprintf("deckhand_%s", project)
}

// NetworkName generates the runtime name for a declared network.
// Pattern: {project}_{networkName}
//
// Example:
//
//	NetworkName("shop", "frontend") // returns "shop_frontend"
func NetworkName(project, networkName string) string {
	return fmt.Sprintf("%s_%s", project, networkName)
}

// VolumeName generates the runtime name for a declared volume.
// Pattern: {project}_{volumeName}
func VolumeName(project, volumeName string) string {
	return fmt.Sprintf("%s_%s", project, volumeName)
}

// ContainerName generates the container name for a service.
// Pattern: {project}_{serviceName}
//
// Example:
//
//	ContainerName("shop", "backend") // returns "shop_backend"
func ContainerName(project, serviceName string) string {
	return fmt.Sprintf("%s_%s", project, serviceName)
}

// ImageName generates the tag for a locally built service image.
// Pattern: {project}_{serviceName}:latest
func ImageName(project, serviceName string) string {
	return fmt.Sprintf("%s_%s:latest", project, serviceName)
}
