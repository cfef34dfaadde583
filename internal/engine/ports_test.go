package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanPortsSimpleAndMappedForFirstReplica(t *testing.T) {
	ports := []PortSpec{
		{Kind: PortSimple, ContainerPort: 8080},
		{Kind: PortMapped, HostPort: 9000, ContainerPort: 9090},
	}
	bindings, err := PlanPorts(ports, 0)
	require.NoError(t, err)
	require.Len(t, bindings, 2)
	assert.EqualValues(t, 8080, bindings[0].HostPort)
	assert.EqualValues(t, 8080, bindings[0].ContainerPort)
	assert.EqualValues(t, 9000, bindings[1].HostPort)
	assert.EqualValues(t, 9090, bindings[1].ContainerPort)
}

func TestPlanPortsShiftsHostPortByReplicaIndex(t *testing.T) {
	ports := []PortSpec{
		{Kind: PortSimple, ContainerPort: 80},
		{Kind: PortMapped, HostPort: 9000, ContainerPort: 9090},
	}

	first, err := PlanPorts(ports, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 80, first[0].HostPort)
	assert.EqualValues(t, 9000, first[1].HostPort)

	second, err := PlanPorts(ports, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 81, second[0].HostPort)
	assert.EqualValues(t, 9001, second[1].HostPort)

	// Container ports never shift, only host ports.
	assert.EqualValues(t, 80, second[0].ContainerPort)
	assert.EqualValues(t, 9090, second[1].ContainerPort)
}

func TestPlanPortsRejectsDuplicateContainerPort(t *testing.T) {
	ports := []PortSpec{
		{Kind: PortSimple, ContainerPort: 8080},
		{Kind: PortMapped, HostPort: 9000, ContainerPort: 8080},
	}
	_, err := PlanPorts(ports, 0)
	assert.Error(t, err)
}

func TestPlanPortsEmpty(t *testing.T) {
	bindings, err := PlanPorts(nil, 0)
	require.NoError(t, err)
	assert.Empty(t, bindings)
}
