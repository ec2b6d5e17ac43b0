package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Referential Integrity Tests
// =============================================================================

func TestValidate_UnknownDependency(t *testing.T) {
	desc := &Descriptor{
		Services: []Service{
			{Name: "web", Image: "nginx", DependsOn: []string{"ghost"}},
		},
	}
	err := Validate(desc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownDependency)
	assert.Contains(t, err.Error(), "ghost")
}

func TestValidate_UnknownVolume(t *testing.T) {
	desc := &Descriptor{
		Services: []Service{
			{
				Name:  "db",
				Image: "postgres:15",
				Volumes: []VolumeMount{
					{Type: VolumeMountTypeVolume, Source: "pgdata", Target: "/var/lib/postgresql/data"},
				},
			},
		},
	}
	err := Validate(desc)
	assert.ErrorIs(t, err, ErrUnknownVolume)

	desc.Volumes = []Volume{{Name: "pgdata"}}
	assert.NoError(t, Validate(desc))
}

func TestValidate_BindMountNeedsNoDeclaration(t *testing.T) {
	desc := &Descriptor{
		Services: []Service{
			{
				Name:  "web",
				Image: "nginx",
				Volumes: []VolumeMount{
					{Type: VolumeMountTypeBind, Source: "/etc/nginx", Target: "/etc/nginx"},
				},
			},
		},
	}
	assert.NoError(t, Validate(desc))
}

func TestValidate_UnknownNetwork(t *testing.T) {
	desc := &Descriptor{
		Services: []Service{
			{Name: "web", Image: "nginx", Networks: []string{"backplane"}},
		},
	}
	err := Validate(desc)
	assert.ErrorIs(t, err, ErrUnknownNetwork)

	desc.Networks = []Network{{Name: "backplane"}}
	assert.NoError(t, Validate(desc))
}

// =============================================================================
// Cycle Detection Tests
// =============================================================================

func TestValidate_SelfDependency(t *testing.T) {
	desc := &Descriptor{
		Services: []Service{
			{Name: "a", Image: "img", DependsOn: []string{"a"}},
		},
	}
	err := Validate(desc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircularDependency)
	assert.Contains(t, err.Error(), "a")
}

func TestValidate_ThreeNodeCycle(t *testing.T) {
	desc := &Descriptor{
		Services: []Service{
			{Name: "a", Image: "img", DependsOn: []string{"b"}},
			{Name: "b", Image: "img", DependsOn: []string{"c"}},
			{Name: "c", Image: "img", DependsOn: []string{"a"}},
		},
	}
	err := Validate(desc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircularDependency)
	// All participants must be named.
	assert.Contains(t, err.Error(), "a")
	assert.Contains(t, err.Error(), "b")
	assert.Contains(t, err.Error(), "c")
}

func TestValidate_DiamondIsNotACycle(t *testing.T) {
	desc := &Descriptor{
		Services: []Service{
			{Name: "web", Image: "img", DependsOn: []string{"api", "cache"}},
			{Name: "api", Image: "img", DependsOn: []string{"db"}},
			{Name: "cache", Image: "img", DependsOn: []string{"db"}},
			{Name: "db", Image: "img"},
		},
	}
	assert.NoError(t, Validate(desc))
}

// =============================================================================
// Port Tests
// =============================================================================

func TestValidate_Ports(t *testing.T) {
	tests := []struct {
		name    string
		port    Port
		wantErr error
	}{
		{"valid", Port{Target: 80, Published: 8080}, nil},
		{"zero target", Port{Target: 0, Published: 8080}, ErrServiceInvalidPort},
		{"target too large", Port{Target: 70000}, ErrServiceInvalidPort},
		{"published too large", Port{Target: 80, Published: 70000}, ErrServiceInvalidPort},
		{"dynamic published", Port{Target: 80}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := &Descriptor{
				Services: []Service{{Name: "web", Image: "nginx", Ports: []Port{tt.port}}},
			}
			err := Validate(desc)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_DuplicateHostPort(t *testing.T) {
	desc := &Descriptor{
		Services: []Service{
			{Name: "a", Image: "img", Ports: []Port{{Target: 80, Published: 8080}}},
			{Name: "b", Image: "img", Ports: []Port{{Target: 81, Published: 8080}}},
		},
	}
	err := Validate(desc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateHostPort)
	assert.Contains(t, err.Error(), `service "a"`)
}

func TestValidate_SameHostPortDifferentProtocol(t *testing.T) {
	desc := &Descriptor{
		Services: []Service{
			{Name: "a", Image: "img", Ports: []Port{{Target: 53, Published: 53, Protocol: "udp"}}},
			{Name: "b", Image: "img", Ports: []Port{{Target: 53, Published: 53, Protocol: "tcp"}}},
		},
	}
	assert.NoError(t, Validate(desc))
}

// =============================================================================
// Subnet Tests
// =============================================================================

func TestValidate_InvalidSubnet(t *testing.T) {
	desc := &Descriptor{
		Services: []Service{{Name: "a", Image: "img"}},
		Networks: []Network{{Name: "front", Subnet: "not-a-cidr"}},
	}
	err := Validate(desc)
	assert.ErrorIs(t, err, ErrInvalidSubnet)
}

func TestValidate_SubnetOverlap(t *testing.T) {
	desc := &Descriptor{
		Services: []Service{{Name: "a", Image: "img"}},
		Networks: []Network{
			{Name: "front", Subnet: "172.20.0.0/16"},
			{Name: "back", Subnet: "172.20.0.0/16"},
		},
	}
	err := Validate(desc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubnetOverlap)
	assert.Contains(t, err.Error(), "front")
}

func TestValidate_NestedSubnetOverlap(t *testing.T) {
	desc := &Descriptor{
		Services: []Service{{Name: "a", Image: "img"}},
		Networks: []Network{
			{Name: "front", Subnet: "10.0.0.0/8"},
			{Name: "back", Subnet: "10.1.0.0/16"},
		},
	}
	assert.ErrorIs(t, Validate(desc), ErrSubnetOverlap)
}

func TestValidate_DisjointSubnets(t *testing.T) {
	desc := &Descriptor{
		Services: []Service{{Name: "a", Image: "img"}},
		Networks: []Network{
			{Name: "front", Subnet: "172.20.0.0/16"},
			{Name: "back", Subnet: "172.21.0.0/16"},
		},
	}
	assert.NoError(t, Validate(desc))
}

func TestValidate_ExternalNetworkSubnetIgnored(t *testing.T) {
	desc := &Descriptor{
		Services: []Service{{Name: "a", Image: "img"}},
		Networks: []Network{
			{Name: "front", Subnet: "172.20.0.0/16"},
			{Name: "shared", Subnet: "172.20.0.0/16", External: true},
		},
	}
	assert.NoError(t, Validate(desc))
}

func TestValidate_IPRangeOutsideSubnet(t *testing.T) {
	desc := &Descriptor{
		Services: []Service{{Name: "a", Image: "img"}},
		Networks: []Network{
			{Name: "front", Subnet: "172.20.0.0/16", IPRange: "172.30.0.0/24"},
		},
	}
	assert.ErrorIs(t, Validate(desc), ErrInvalidSubnet)
}
