package engine

import "fmt"

// PortBinding is one resolved host<->container port mapping ready to hand
// to the runtime client.
type PortBinding struct {
	HostPort      uint16
	ContainerPort uint16
	Protocol      string // always "tcp" for this agent
}

// PlanPorts turns an app's starting_ports list into the concrete bindings
// one specific replica gets. Per spec §4.3, binds[P] = P + replica_index:
// a bare container-port entry P is bound on the host at P itself plus the
// replica's zero-based ordinal, and a {host: container} mapped entry
// shifts its declared host port the same way, so replica 0 of a
// multi-instance app binds the declared port exactly and every later
// replica gets the next one up instead of colliding with it on the same
// host.
func PlanPorts(ports []PortSpec, replicaIndex int) ([]PortBinding, error) {
	bindings := make([]PortBinding, 0, len(ports))
	seen := make(map[uint16]bool, len(ports))
	for _, p := range ports {
		if seen[p.ContainerPort] {
			return nil, fmt.Errorf("duplicate container port %d in starting_ports", p.ContainerPort)
		}
		seen[p.ContainerPort] = true

		declaredHost := p.ContainerPort
		if p.Kind == PortMapped {
			declaredHost = p.HostPort
		}

		bindings = append(bindings, PortBinding{
			HostPort:      declaredHost + uint16(replicaIndex),
			ContainerPort: p.ContainerPort,
			Protocol:      "tcp",
		})
	}
	return bindings, nil
}
