package engine

import "context"

// ContainerSummary is the subset of a running/stopped container's state
// the reconciliation engine and health watcher need, independent of the
// concrete runtime SDK.
type ContainerSummary struct {
	ID            string
	Name          string
	AppName       string
	ReplicaIndex  int
	Running       bool
	HealthStatus  string // "", "starting", "healthy", "unhealthy" — mirrors Docker's own health states
}

// StartSpec is everything the runtime needs to create and start one
// replica container.
type StartSpec struct {
	AppName      string
	ReplicaIndex int
	Image        ImageRef
	Ports        []PortBinding
	Env          map[string]string
	NetworkName  string
}

// Runtime is the worker's entire dependency on the container engine. A
// concrete implementation lives in internal/dockerrt; tests use a fake.
type Runtime interface {
	EnsureNetwork(ctx context.Context, name, driver string) error
	PullImage(ctx context.Context, ref ImageRef) error
	StartContainer(ctx context.Context, spec StartSpec) (ContainerSummary, error)
	ListContainers(ctx context.Context, appName string) ([]ContainerSummary, error)
	StopContainer(ctx context.Context, id string, timeoutSeconds int) error
	RemoveContainer(ctx context.Context, id string, force bool) error
	InspectHealth(ctx context.Context, id string) (ContainerSummary, error)
	PruneImages(ctx context.Context) error
	RegistryLogin(ctx context.Context, registry, user, password string) error
}
