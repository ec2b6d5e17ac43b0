// Package compose contains pure functions for parsing and validating
// deployment descriptors. All functions are free of I/O and side effects.
package compose

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Input validation errors
	ErrEmptyInput = errors.New("descriptor is empty")

	// YAML parsing errors
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// Descriptor structure errors
	ErrNoServices = errors.New("descriptor must define at least one service")

	// Service validation errors
	ErrServiceNoImage     = errors.New("service must have image or build")
	ErrServiceInvalidPort = errors.New("invalid port configuration")
	ErrDuplicateHostPort  = errors.New("host port published more than once")
	ErrCircularDependency = errors.New("circular dependency detected")
	ErrUnknownDependency  = errors.New("depends_on references unknown service")

	// Reference integrity errors
	ErrUnknownVolume  = errors.New("mount references undeclared volume")
	ErrUnknownNetwork = errors.New("service references undeclared network")

	// Network addressing errors
	ErrInvalidSubnet = errors.New("invalid subnet CIDR")
	ErrSubnetOverlap = errors.New("network subnets overlap")

	// Unsupported feature errors
	ErrUnsupportedFeature = errors.New("unsupported descriptor feature")
)

// ParseError wraps errors with context about where parsing failed.
type ParseError struct {
	Field   string // e.g., "services.web.ports[0]"
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(field, message string, err error) *ParseError {
	return &ParseError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
