// Package hostfacts reports the host's CPU and memory capacity, backing
// the per-CPU and per-memory containers_per scale policies. Adapted to use
// github.com/shirou/gopsutil/v4 instead of worker.py's psutil-equivalent
// /proc parsing, matching the library's presence elsewhere in the example
// pack (promoted here from an indirect to a direct dependency).
package hostfacts

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/nebulaorch/worker/internal/engine"
)

// Collect reads the current host's CPU core count and total memory.
func Collect() (engine.HostFacts, error) {
	cores, err := cpu.Counts(true)
	if err != nil {
		return engine.HostFacts{}, fmt.Errorf("hostfacts: cpu.Counts: %w", err)
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return engine.HostFacts{}, fmt.Errorf("hostfacts: mem.VirtualMemory: %w", err)
	}
	return engine.HostFacts{
		CPUCores:    cores,
		TotalMemMiB: vm.Total / (1024 * 1024),
	}, nil
}
