package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// fakeRuntime is an in-memory Runtime used across the engine package's
// tests, standing in for internal/dockerrt the way the teacher's own
// AppManager is exercised against a real Docker daemon only in
// integration environments.
type fakeRuntime struct {
	mu          sync.Mutex
	nextID      int
	containers  map[string]ContainerSummary
	startSpecs  []StartSpec
	pulls       []string
	prunes      int
	networkName string
	failStart   bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{containers: make(map[string]ContainerSummary)}
}

func (f *fakeRuntime) EnsureNetwork(ctx context.Context, name, driver string) error {
	f.networkName = name
	return nil
}

func (f *fakeRuntime) PullImage(ctx context.Context, ref ImageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls = append(f.pulls, ref.String())
	return nil
}

func (f *fakeRuntime) StartContainer(ctx context.Context, spec StartSpec) (ContainerSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStart {
		return ContainerSummary{}, fmt.Errorf("fakeRuntime: forced start failure")
	}
	f.startSpecs = append(f.startSpecs, spec)
	f.nextID++
	id := fmt.Sprintf("c%d", f.nextID)
	cs := ContainerSummary{
		ID:           id,
		Name:         fmt.Sprintf("%s-%d", spec.AppName, spec.ReplicaIndex),
		AppName:      spec.AppName,
		ReplicaIndex: spec.ReplicaIndex,
		Running:      true,
	}
	f.containers[id] = cs
	return cs, nil
}

func (f *fakeRuntime) ListContainers(ctx context.Context, appName string) ([]ContainerSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ContainerSummary
	for _, c := range f.containers {
		if appName == "" || c.AppName == appName {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRuntime) StopContainer(ctx context.Context, id string, timeoutSeconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[id]; ok {
		c.Running = false
		f.containers[id] = c
	}
	return nil
}

func (f *fakeRuntime) RemoveContainer(ctx context.Context, id string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, id)
	return nil
}

func (f *fakeRuntime) InspectHealth(ctx context.Context, id string) (ContainerSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return ContainerSummary{}, fmt.Errorf("fakeRuntime: container %s not found", id)
	}
	return c, nil
}

func (f *fakeRuntime) PruneImages(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prunes++
	return nil
}

func (f *fakeRuntime) RegistryLogin(ctx context.Context, registry, user, password string) error {
	return nil
}

func (f *fakeRuntime) setHealth(appName string, replicaIndex int, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.containers {
		if c.AppName == appName && c.ReplicaIndex == replicaIndex {
			c.HealthStatus = status
			f.containers[id] = c
		}
	}
}

func (f *fakeRuntime) startSpecFor(appName string, replicaIndex int) (StartSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.startSpecs {
		if s.AppName == appName && s.ReplicaIndex == replicaIndex {
			return s, true
		}
	}
	return StartSpec{}, false
}

func (f *fakeRuntime) count(appName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.containers {
		if c.AppName == appName {
			n++
		}
	}
	return n
}
