// Package dockerrt implements engine.Runtime against the Docker Engine
// API, adapted from the container-lifecycle calls in the teacher
// controller's manager.go and nginx.go (NewAppManager's ensureNetwork,
// startContainer, Stop, ReconcileApp's container listing by label).
package dockerrt

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/nebulaorch/worker/internal/engine"
)

const (
	labelApp     = "nebula.app"
	labelReplica = "nebula.replica"
)

// Client wraps a docker/docker SDK client to satisfy engine.Runtime.
type Client struct {
	docker *client.Client
}

// New creates a runtime client negotiating the API version with the local
// daemon, matching NewAppManager's client.FromEnv +
// client.WithAPIVersionNegotiation() construction.
func New() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("dockerrt: failed to create docker client: %w", err)
	}
	return &Client{docker: cli}, nil
}

// EnsureNetwork creates the named bridge network if it doesn't already
// exist, adapted from NewAppManager's ensureNetwork.
func (c *Client) EnsureNetwork(ctx context.Context, name, driver string) error {
	_, err := c.docker.NetworkInspect(ctx, name, types.NetworkInspectOptions{})
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("dockerrt: inspect network %s: %w", name, err)
	}
	log.Printf("dockerrt: creating network %s (%s)", name, driver)
	_, err = c.docker.NetworkCreate(ctx, name, types.NetworkCreate{Driver: driver})
	if err != nil {
		return fmt.Errorf("dockerrt: create network %s: %w", name, err)
	}
	return nil
}

// PullImage pulls the parsed image reference, discarding the streamed pull
// progress (the teacher repo does the same in manager.go's startContainer
// pull step).
func (c *Client) PullImage(ctx context.Context, ref engine.ImageRef) error {
	full := ref.String()
	rc, err := c.docker.ImagePull(ctx, full, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("dockerrt: pull %s: %w", full, err)
	}
	defer rc.Close()
	buf := make([]byte, 32*1024)
	for {
		if _, err := rc.Read(buf); err != nil {
			break
		}
	}
	return nil
}

// RegistryLogin authenticates against a private registry before pulling
// from it. Empty user/password is a no-op, matching worker.py's
// conditional docker login.
func (c *Client) RegistryLogin(ctx context.Context, registry, user, password string) error {
	if user == "" {
		return nil
	}
	_, err := c.docker.RegistryLogin(ctx, types.AuthConfig{
		Username:      user,
		Password:      password,
		ServerAddress: registry,
	})
	if err != nil {
		return fmt.Errorf("dockerrt: registry login to %s: %w", registry, err)
	}
	return nil
}

// StartContainer creates and starts one replica container, adapted from
// AppManager.startContainer: container.Config/HostConfig construction,
// label stamping for later ReconcileApp-style discovery, and network
// attachment.
func (c *Client) StartContainer(ctx context.Context, spec engine.StartSpec) (engine.ContainerSummary, error) {
	name := fmt.Sprintf("%s-%d", spec.AppName, spec.ReplicaIndex)

	exposed := map[nat.Port]struct{}{}
	portBindings := nat.PortMap{}
	for _, b := range spec.Ports {
		p := nat.Port(fmt.Sprintf("%d/%s", b.ContainerPort, b.Protocol))
		exposed[p] = struct{}{}
		hostPort := ""
		if b.HostPort != 0 {
			hostPort = strconv.Itoa(int(b.HostPort))
		}
		portBindings[p] = append(portBindings[p], nat.PortBinding{HostIP: "0.0.0.0", HostPort: hostPort})
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	containerCfg := &container.Config{
		Image:        spec.Image.String(),
		Env:          env,
		ExposedPorts: exposed,
		Labels: map[string]string{
			labelApp:     spec.AppName,
			labelReplica: strconv.Itoa(spec.ReplicaIndex),
		},
	}
	hostCfg := &container.HostConfig{
		PortBindings:  portBindings,
		RestartPolicy: container.RestartPolicy{Name: "unless-stopped"},
	}
	netCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			spec.NetworkName: {},
		},
	}

	created, err := c.docker.ContainerCreate(ctx, containerCfg, hostCfg, netCfg, nil, name)
	if err != nil {
		return engine.ContainerSummary{}, fmt.Errorf("dockerrt: create container %s: %w", name, err)
	}
	if err := c.docker.ContainerStart(ctx, created.ID, types.ContainerStartOptions{}); err != nil {
		return engine.ContainerSummary{}, fmt.Errorf("dockerrt: start container %s: %w", name, err)
	}

	return engine.ContainerSummary{
		ID:           created.ID,
		Name:         name,
		AppName:      spec.AppName,
		ReplicaIndex: spec.ReplicaIndex,
		Running:      true,
	}, nil
}

// ListContainers lists every container (running or stopped) labeled for
// appName, or every nebula-managed container when appName is empty —
// matching worker.py's list_containers(app_name="") meaning "all".
func (c *Client) ListContainers(ctx context.Context, appName string) ([]engine.ContainerSummary, error) {
	args := filters.NewArgs()
	if appName == "" {
		args.Add("label", labelApp)
	} else {
		args.Add("label", fmt.Sprintf("%s=%s", labelApp, appName))
	}

	containers, err := c.docker.ContainerList(ctx, types.ContainerListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("dockerrt: list containers: %w", err)
	}

	out := make([]engine.ContainerSummary, 0, len(containers))
	for _, ctr := range containers {
		idx, _ := strconv.Atoi(ctr.Labels[labelReplica])
		name := strings.TrimPrefix(firstOrEmpty(ctr.Names), "/")
		out = append(out, engine.ContainerSummary{
			ID:           ctr.ID,
			Name:         name,
			AppName:      ctr.Labels[labelApp],
			ReplicaIndex: idx,
			Running:      ctr.State == "running",
		})
	}
	return out, nil
}

func firstOrEmpty(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// StopContainer stops a container within timeoutSeconds, matching
// AppManager.Stop's container.StopOptions{Timeout} usage.
func (c *Client) StopContainer(ctx context.Context, id string, timeoutSeconds int) error {
	t := timeoutSeconds
	if err := c.docker.ContainerStop(ctx, id, container.StopOptions{Timeout: &t}); err != nil {
		return fmt.Errorf("dockerrt: stop container %s: %w", id, err)
	}
	return nil
}

// RemoveContainer removes a container, optionally forcing removal of a
// still-running one (used by roll/stop_and_remove semantics).
func (c *Client) RemoveContainer(ctx context.Context, id string, force bool) error {
	if err := c.docker.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: force}); err != nil {
		return fmt.Errorf("dockerrt: remove container %s: %w", id, err)
	}
	return nil
}

// InspectHealth reports Docker's own health status for a container —
// the worker never runs its own HTTP probes, only reads what the runtime
// already reports (Health.Status, when the image defines a HEALTHCHECK).
func (c *Client) InspectHealth(ctx context.Context, id string) (engine.ContainerSummary, error) {
	info, err := c.docker.ContainerInspect(ctx, id)
	if err != nil {
		return engine.ContainerSummary{}, fmt.Errorf("dockerrt: inspect %s: %w", id, err)
	}
	status := ""
	if info.State != nil && info.State.Health != nil {
		status = info.State.Health.Status
	}
	idx, _ := strconv.Atoi(info.Config.Labels[labelReplica])
	return engine.ContainerSummary{
		ID:           info.ID,
		Name:         strings.TrimPrefix(info.Name, "/"),
		AppName:      info.Config.Labels[labelApp],
		ReplicaIndex: idx,
		Running:      info.State != nil && info.State.Running,
		HealthStatus: status,
	}, nil
}

// PruneImages removes dangling images, matching worker.py's
// docker_socket.prune_images() call.
func (c *Client) PruneImages(ctx context.Context) error {
	_, err := c.docker.ImagesPrune(ctx, filters.NewArgs())
	if err != nil {
		return fmt.Errorf("dockerrt: prune images: %w", err)
	}
	return nil
}
