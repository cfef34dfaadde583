// Package engine implements the worker's reconciliation core: the data
// model published by the manager, the lifecycle operators that drive
// Docker to match it, the health watcher, and the bootstrap sequence that
// wires them together.
package engine

import (
	"encoding/json"
	"fmt"
)

// PortKind distinguishes the two shapes starting_ports entries can take.
type PortKind int

const (
	// PortSimple is a bare container port P; PlanPorts binds it on the host
	// at P plus the replica's zero-based ordinal.
	PortSimple PortKind = iota
	// PortMapped is an explicit host->container port binding.
	PortMapped
)

// PortSpec is a tagged union over the two encodings the manager sends in
// an app's starting_ports list: a bare integer, or a single-key
// {"host": container} mapping object.
type PortSpec struct {
	Kind          PortKind
	ContainerPort uint16
	HostPort      uint16 // only meaningful when Kind == PortMapped
}

// UnmarshalJSON accepts either a JSON number or a single-key object whose
// key and value are both port numbers (as ints or numeric strings).
func (p *PortSpec) UnmarshalJSON(data []byte) error {
	var asInt uint16
	if err := json.Unmarshal(data, &asInt); err == nil {
		p.Kind = PortSimple
		p.ContainerPort = asInt
		return nil
	}

	var asMap map[string]json.Number
	if err := json.Unmarshal(data, &asMap); err != nil {
		return fmt.Errorf("starting_ports entry %s is neither a port number nor a host:container mapping", string(data))
	}
	if len(asMap) != 1 {
		return fmt.Errorf("starting_ports mapping entry must have exactly one key, got %d", len(asMap))
	}
	for hostStr, containerNum := range asMap {
		host, err := parsePort(hostStr)
		if err != nil {
			return fmt.Errorf("starting_ports host key %q: %w", hostStr, err)
		}
		container, err := parsePort(containerNum.String())
		if err != nil {
			return fmt.Errorf("starting_ports container value %q: %w", containerNum.String(), err)
		}
		p.Kind = PortMapped
		p.HostPort = host
		p.ContainerPort = container
	}
	return nil
}

// MarshalJSON renders the spec back into the wire shape it was read from.
func (p PortSpec) MarshalJSON() ([]byte, error) {
	if p.Kind == PortSimple {
		return json.Marshal(p.ContainerPort)
	}
	m := map[string]uint16{fmt.Sprintf("%d", p.HostPort): p.ContainerPort}
	return json.Marshal(m)
}

func parsePort(s string) (uint16, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n < 0 || n > 65535 {
		return 0, fmt.Errorf("port %d out of range", n)
	}
	return uint16(n), nil
}

// ScaleKind distinguishes the one recognized key of containers_per.
type ScaleKind int

const (
	ScalePerCPU ScaleKind = iota
	ScalePerMemoryMiB
	ScalePerInstance
)

// ScalePolicy is a tagged union over containers_per's single recognized
// key: cpu, memory/mem, or server/instance.
type ScalePolicy struct {
	Kind  ScaleKind
	Value float64
}

// UnmarshalJSON decodes the single-key containers_per object.
func (s *ScalePolicy) UnmarshalJSON(data []byte) error {
	var raw map[string]json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("containers_per must be a single-key object: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("containers_per must have exactly one key, got %d", len(raw))
	}
	for key, num := range raw {
		val, err := num.Float64()
		if err != nil {
			return fmt.Errorf("containers_per value %q is not numeric: %w", num.String(), err)
		}
		switch key {
		case "cpu":
			s.Kind = ScalePerCPU
		case "memory", "mem":
			s.Kind = ScalePerMemoryMiB
		case "server", "instance":
			s.Kind = ScalePerInstance
		default:
			return fmt.Errorf("containers_per key %q is not one of cpu, memory, mem, server, instance", key)
		}
		s.Value = val
	}
	return nil
}

// MarshalJSON renders the policy back to its single-key wire shape.
func (s ScalePolicy) MarshalJSON() ([]byte, error) {
	var key string
	switch s.Kind {
	case ScalePerCPU:
		key = "cpu"
	case ScalePerMemoryMiB:
		key = "memory"
	case ScalePerInstance:
		key = "server"
	}
	return json.Marshal(map[string]float64{key: s.Value})
}

// AppSpec is one application entry inside a device-group snapshot.
type AppSpec struct {
	AppName       string      `json:"app_name"`
	AppID         int64       `json:"app_id"`
	DockerImage   string      `json:"docker_image"`
	Running       bool        `json:"running"`
	RollingReset  bool        `json:"rolling_restart"`
	ContainersPer ScalePolicy `json:"containers_per"`
	StartingPorts []PortSpec  `json:"starting_ports,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
}

// DeviceGroupSnapshot is the manager's full published state for one
// device group: the ordered app list and the counters that drive
// reconciliation decisions. apps is an ordered sequence on the wire
// (§3), not an object, so it can carry two entries sharing one
// app_name — which Validate rejects as malformed rather than silently
// collapsing.
type DeviceGroupSnapshot struct {
	DeviceGroupID int64     `json:"device_group_id"`
	PruneID       int64     `json:"prune_id"`
	AppsList      []string  `json:"apps_list"`
	Apps          []AppSpec `json:"apps"`
}

// indexByName builds the name -> AppSpec index callers need for lookups,
// since apps is carried as an ordered slice on the wire rather than a map.
func (d DeviceGroupSnapshot) indexByName() map[string]AppSpec {
	idx := make(map[string]AppSpec, len(d.Apps))
	for _, a := range d.Apps {
		idx[a.AppName] = a
	}
	return idx
}

// Validate enforces the §3 invariants: no two entries in apps share an
// app_name, and apps_list and apps agree on membership exactly.
func (d DeviceGroupSnapshot) Validate() error {
	seenApps := make(map[string]bool, len(d.Apps))
	for _, a := range d.Apps {
		if seenApps[a.AppName] {
			return fmt.Errorf("apps contains duplicate app_name %q", a.AppName)
		}
		seenApps[a.AppName] = true
	}

	if len(d.AppsList) != len(d.Apps) {
		return fmt.Errorf("apps_list has %d entries but apps has %d", len(d.AppsList), len(d.Apps))
	}
	seen := make(map[string]bool, len(d.AppsList))
	for _, name := range d.AppsList {
		if seen[name] {
			return fmt.Errorf("apps_list contains duplicate entry %q", name)
		}
		seen[name] = true
		if !seenApps[name] {
			return fmt.Errorf("apps_list entry %q has no corresponding apps entry", name)
		}
	}
	return nil
}

// DecodeSnapshot decodes and validates a device-group snapshot in one step,
// the single point where manager JSON becomes domain types.
func DecodeSnapshot(data []byte) (DeviceGroupSnapshot, error) {
	var snap DeviceGroupSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return DeviceGroupSnapshot{}, fmt.Errorf("malformed device group snapshot: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return DeviceGroupSnapshot{}, fmt.Errorf("invalid device group snapshot: %w", err)
	}
	return snap, nil
}
