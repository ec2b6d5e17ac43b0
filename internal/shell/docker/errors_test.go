package docker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDockerError_Format(t *testing.T) {
	tests := []struct {
		name     string
		err      *DockerError
		expected string
	}{
		{
			"with id",
			NewDockerError("StartContainer", "container", "abc123", "container not found", ErrContainerNotFound),
			"StartContainer container abc123: container not found",
		},
		{
			"entity only",
			NewDockerError("ListContainers", "container", "", "daemon unreachable", ErrConnectionFailed),
			"ListContainers container: daemon unreachable",
		},
		{
			"op only",
			NewDockerError("Ping", "", "", "failed to ping docker", ErrConnectionFailed),
			"Ping: failed to ping docker",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestDockerError_Unwrap(t *testing.T) {
	err := NewDockerError("CreateNetwork", "network", "shop_frontend", "subnet overlaps", ErrSubnetTaken)
	assert.True(t, errors.Is(err, ErrSubnetTaken))
	assert.False(t, errors.Is(err, ErrNetworkNotFound))
}
