package engine

import (
	"fmt"
	"math"
)

// HostFacts is the subset of host introspection the scale resolver needs.
type HostFacts struct {
	CPUCores    int
	TotalMemMiB uint64
}

// ResolveReplicas computes containers_required for an app, following
// worker.py's containers_required exactly: cpu -> floor(cpu_cores*value),
// memory -> floor(total_mem_mb/value), server/instance -> value itself.
func ResolveReplicas(policy ScalePolicy, host HostFacts) (int, error) {
	switch policy.Kind {
	case ScalePerCPU:
		if policy.Value <= 0 {
			return 0, fmt.Errorf("containers_per.cpu must be positive, got %v", policy.Value)
		}
		n := int(math.Floor(float64(host.CPUCores) * policy.Value))
		if n < 0 {
			n = 0
		}
		return n, nil
	case ScalePerMemoryMiB:
		if policy.Value <= 0 {
			return 0, fmt.Errorf("containers_per.memory must be positive, got %v", policy.Value)
		}
		n := int(float64(host.TotalMemMiB) / policy.Value)
		if n < 0 {
			n = 0
		}
		return n, nil
	case ScalePerInstance:
		if policy.Value < 0 {
			return 0, fmt.Errorf("containers_per.server must not be negative, got %v", policy.Value)
		}
		return int(policy.Value), nil
	default:
		return 0, fmt.Errorf("unrecognized containers_per kind %d", policy.Kind)
	}
}
