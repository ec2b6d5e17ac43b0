package compose

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"
)

// =============================================================================
// Descriptor Validation
// =============================================================================

// Validate performs referential integrity checks on a descriptor:
//
//   - depends_on targets name declared services and form no cycle
//   - named-volume mounts resolve to declared volumes
//   - service network references resolve to declared networks
//   - ports are in range and no host port is published twice
//   - network subnets are valid CIDRs and do not overlap pairwise
//
// Parse calls this automatically; it is exported so descriptors assembled in
// code (e.g., tests) can be checked too.
func Validate(desc *Descriptor) error {
	serviceNames := make(map[string]bool, len(desc.Services))
	for _, svc := range desc.Services {
		serviceNames[svc.Name] = true
	}

	networkNames := make(map[string]bool, len(desc.Networks))
	for _, net := range desc.Networks {
		networkNames[net.Name] = true
	}

	volumeNames := make(map[string]bool, len(desc.Volumes))
	for _, vol := range desc.Volumes {
		volumeNames[vol.Name] = true
	}

	for _, svc := range desc.Services {
		for _, dep := range svc.DependsOn {
			if !serviceNames[dep] {
				return NewParseError(
					"services."+svc.Name+".depends_on",
					fmt.Sprintf("unknown service %q", dep),
					ErrUnknownDependency,
				)
			}
		}
		for _, net := range svc.Networks {
			if !networkNames[net] {
				return NewParseError(
					"services."+svc.Name+".networks",
					fmt.Sprintf("unknown network %q", net),
					ErrUnknownNetwork,
				)
			}
		}
		for _, mount := range svc.Volumes {
			if mount.Type == VolumeMountTypeVolume && !volumeNames[mount.Source] {
				return NewParseError(
					"services."+svc.Name+".volumes",
					fmt.Sprintf("unknown volume %q", mount.Source),
					ErrUnknownVolume,
				)
			}
		}
	}

	if err := validateNoCycles(desc.Services); err != nil {
		return err
	}
	if err := validatePorts(desc.Services); err != nil {
		return err
	}
	if err := validateSubnets(desc.Networks); err != nil {
		return err
	}

	return nil
}

// validateNoCycles rejects descriptors whose depends_on relation contains a
// cycle. The error names the participating services.
func validateNoCycles(services []Service) error {
	deps := make(map[string][]string, len(services))
	for _, svc := range services {
		deps[svc.Name] = svc.DependsOn
	}

	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var cycle []string
	var visit func(node string) bool
	visit = func(node string) bool {
		visited[node] = true
		onStack[node] = true

		for _, dep := range deps[node] {
			if dep == node {
				cycle = []string{node}
				return true
			}
			if !visited[dep] {
				if visit(dep) {
					return true
				}
			} else if onStack[dep] {
				for name, on := range onStack {
					if on {
						cycle = append(cycle, name)
					}
				}
				return true
			}
		}

		onStack[node] = false
		return false
	}

	for _, svc := range services {
		if !visited[svc.Name] {
			if visit(svc.Name) {
				sort.Strings(cycle)
				return NewParseError(
					"services",
					"circular dependency involving: "+strings.Join(cycle, ", "),
					ErrCircularDependency,
				)
			}
		}
	}

	return nil
}

// validatePorts validates port ranges and rejects duplicate host ports.
func validatePorts(services []Service) error {
	published := make(map[string]string) // "port/proto" -> service name
	for _, svc := range services {
		for i, port := range svc.Ports {
			field := fmt.Sprintf("services.%s.ports[%d]", svc.Name, i)
			if port.Target == 0 {
				return NewParseError(field, "target port cannot be 0", ErrServiceInvalidPort)
			}
			if port.Target > 65535 {
				return NewParseError(field, "target port must be <= 65535", ErrServiceInvalidPort)
			}
			if port.Published > 65535 {
				return NewParseError(field, "published port must be <= 65535", ErrServiceInvalidPort)
			}
			if port.Published == 0 {
				continue // dynamic host port, no conflict possible
			}
			proto := port.Protocol
			if proto == "" {
				proto = "tcp"
			}
			key := fmt.Sprintf("%d/%s", port.Published, proto)
			if owner, taken := published[key]; taken {
				return NewParseError(
					field,
					fmt.Sprintf("host port %s already published by service %q", key, owner),
					ErrDuplicateHostPort,
				)
			}
			published[key] = svc.Name
		}
	}
	return nil
}

// validateSubnets parses each declared subnet and rejects pairwise overlaps.
// External networks are excluded: their addressing is owned elsewhere.
func validateSubnets(networks []Network) error {
	type ownedSubnet struct {
		name   string
		prefix netip.Prefix
	}

	var subnets []ownedSubnet
	for _, net := range networks {
		if net.External || net.Subnet == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(net.Subnet)
		if err != nil {
			return NewParseError(
				"networks."+net.Name+".subnet",
				fmt.Sprintf("invalid CIDR %q", net.Subnet),
				ErrInvalidSubnet,
			)
		}
		if net.IPRange != "" {
			ipRange, err := netip.ParsePrefix(net.IPRange)
			if err != nil {
				return NewParseError(
					"networks."+net.Name+".ip_range",
					fmt.Sprintf("invalid CIDR %q", net.IPRange),
					ErrInvalidSubnet,
				)
			}
			if !prefix.Overlaps(ipRange) || ipRange.Bits() < prefix.Bits() {
				return NewParseError(
					"networks."+net.Name+".ip_range",
					fmt.Sprintf("ip_range %q is not contained in subnet %q", net.IPRange, net.Subnet),
					ErrInvalidSubnet,
				)
			}
		}
		subnets = append(subnets, ownedSubnet{name: net.Name, prefix: prefix})
	}

	for i := 0; i < len(subnets); i++ {
		for j := i + 1; j < len(subnets); j++ {
			if subnets[i].prefix.Overlaps(subnets[j].prefix) {
				return NewParseError(
					"networks."+subnets[j].name+".subnet",
					fmt.Sprintf("subnet %s overlaps subnet %s of network %q",
						subnets[j].prefix, subnets[i].prefix, subnets[i].name),
					ErrSubnetOverlap,
				)
			}
		}
	}

	return nil
}
