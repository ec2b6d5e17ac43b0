package deployment

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/deckhand/internal/core/compose"
)

// =============================================================================
// Ordering Errors
// =============================================================================

// ErrCircularDependency is returned when the depends_on relation is cyclic.
var ErrCircularDependency = errors.New("dependency cycle detected")

// CycleError names the services participating in a dependency cycle.
type CycleError struct {
	Services []string // sorted
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle involving: %s", strings.Join(e.Services, ", "))
}

func (e *CycleError) Unwrap() error {
	return ErrCircularDependency
}

// =============================================================================
// Service Ordering Functions
// =============================================================================

// Order computes a linear start order using Kahn's algorithm: every service
// appears after all of its depends_on targets. Ties are broken
// lexicographically on service name, so identical input always yields an
// identical order.
//
// If the relation contains a cycle, Order returns a CycleError and no partial
// order.
//
// Example:
//
//	// client -> backend -> mongo
//	services := []compose.Service{
//	    {Name: "client", DependsOn: []string{"backend"}},
//	    {Name: "backend", DependsOn: []string{"mongo"}},
//	    {Name: "mongo"},
//	}
//	ordered, _ := Order(services)
//	// Result: [mongo, backend, client]
func Order(services []compose.Service) ([]compose.Service, error) {
	if len(services) == 0 {
		return nil, nil
	}

	serviceMap := make(map[string]compose.Service, len(services))
	inDegree := make(map[string]int, len(services))
	dependents := make(map[string][]string)

	for _, svc := range services {
		serviceMap[svc.Name] = svc
		inDegree[svc.Name] = len(svc.DependsOn)
		for _, dep := range svc.DependsOn {
			dependents[dep] = append(dependents[dep], svc.Name)
		}
	}

	// Candidate set of zero in-degree services, kept sorted so the
	// lexicographically smallest name is always selected next.
	var ready []string
	for name, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	result := make([]compose.Service, 0, len(services))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		result = append(result, serviceMap[name])

		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				// Insert keeping ready sorted.
				i := sort.SearchStrings(ready, dep)
				ready = append(ready, "")
				copy(ready[i+1:], ready[i:])
				ready[i] = dep
			}
		}
	}

	if len(result) < len(services) {
		return nil, cycleError(services, result)
	}

	return result, nil
}

// Layers groups services into dependency layers: every service in layer i
// depends only on services in layers before i. Services within a layer have
// no dependency relationship and may be started concurrently. Each layer is
// sorted lexicographically.
//
// Same cycle contract as Order.
func Layers(services []compose.Service) ([][]compose.Service, error) {
	if len(services) == 0 {
		return nil, nil
	}

	serviceMap := make(map[string]compose.Service, len(services))
	inDegree := make(map[string]int, len(services))
	dependents := make(map[string][]string)

	for _, svc := range services {
		serviceMap[svc.Name] = svc
		inDegree[svc.Name] = len(svc.DependsOn)
		for _, dep := range svc.DependsOn {
			dependents[dep] = append(dependents[dep], svc.Name)
		}
	}

	var ready []string
	for name, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, name)
		}
	}

	var layers [][]compose.Service
	placed := 0
	for len(ready) > 0 {
		sort.Strings(ready)

		layer := make([]compose.Service, 0, len(ready))
		var next []string
		for _, name := range ready {
			layer = append(layer, serviceMap[name])
			placed++
			for _, dep := range dependents[name] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		layers = append(layers, layer)
		ready = next
	}

	if placed < len(services) {
		var flat []compose.Service
		for _, layer := range layers {
			flat = append(flat, layer...)
		}
		return nil, cycleError(services, flat)
	}

	return layers, nil
}

// cycleError builds a CycleError from the services the sort could not place.
func cycleError(all, placed []compose.Service) *CycleError {
	done := make(map[string]bool, len(placed))
	for _, svc := range placed {
		done[svc.Name] = true
	}

	var remaining []string
	for _, svc := range all {
		if !done[svc.Name] {
			remaining = append(remaining, svc.Name)
		}
	}
	sort.Strings(remaining)

	return &CycleError{Services: remaining}
}
