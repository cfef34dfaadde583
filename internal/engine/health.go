package engine

import (
	"context"
	"fmt"
	"log"
	"time"
)

// HealthWatcher polls the runtime's own container health status every
// tick and restarts any container it reports unhealthy. It never probes a
// container itself — it only reads what the runtime already reports,
// matching the Non-goal that this agent adds no health checking beyond
// the runtime's. The goroutine/ticker shape is adapted from the teacher's
// HealthChecker in health.go; the check mechanism itself is replaced with
// Docker-native health-status inspection to match worker.py's
// check_container_healthy / restart_unhealthy_containers.
type HealthWatcher struct {
	rt          Runtime
	networkName string
	interval    time.Duration
	restart     func(ctx context.Context, appName string, replicaIndex int) error
	audit       AuditSink
}

// NewHealthWatcher builds a watcher. restart is invoked with the app name
// and replica index of a container found unhealthy; callers typically
// wire this to a single-replica recreate against Operators. audit may be
// nil when no audit database is configured.
func NewHealthWatcher(rt Runtime, interval time.Duration, restart func(ctx context.Context, appName string, replicaIndex int) error, audit AuditSink) *HealthWatcher {
	return &HealthWatcher{rt: rt, interval: interval, restart: restart, audit: audit}
}

// Run loops until ctx is canceled, matching worker.py's
// restart_unhealthy_containers infinite loop with its 10s sleep — except
// that a listing/inspection failure here is logged and retried rather
// than treated as fatal, since a transient Docker API hiccup should not
// bring the whole agent down the way the reconciliation loop's fatal
// conditions do.
func (w *HealthWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.checkOnce(ctx)
		}
	}
}

func (w *HealthWatcher) checkOnce(ctx context.Context) {
	containers, err := w.rt.ListContainers(ctx, "")
	if err != nil {
		log.Printf("health watcher: list containers failed: %v", err)
		return
	}
	for _, c := range containers {
		if !c.Running {
			continue
		}
		info, err := w.rt.InspectHealth(ctx, c.ID)
		if err != nil {
			log.Printf("health watcher: inspect %s failed: %v", c.Name, err)
			continue
		}
		if info.HealthStatus == "unhealthy" {
			log.Printf("health watcher: %s replica %d is unhealthy, restarting", info.AppName, info.ReplicaIndex)
			if err := w.restart(ctx, info.AppName, info.ReplicaIndex); err != nil {
				log.Printf("health watcher: restart %s replica %d failed: %v", info.AppName, info.ReplicaIndex, err)
			} else {
				logAudit(w.audit, info.AppName, "health_restart", fmt.Sprintf("replica %d restarted after unhealthy status", info.ReplicaIndex))
			}
		}
	}
}

// RestartReplica stops and removes one unhealthy replica and starts a
// fresh container in its place, reusing the same app spec and index.
func (o *Operators) RestartReplica(ctx context.Context, app AppSpec, host HostFacts, replicaIndex int) error {
	containers, err := o.rt.ListContainers(ctx, app.AppName)
	if err != nil {
		return err
	}
	for _, c := range containers {
		if c.ReplicaIndex == replicaIndex {
			if err := o.stopAndRemove(ctx, c.ID); err != nil {
				return err
			}
			break
		}
	}
	img, err := ParseImageRef(app.DockerImage)
	if err != nil {
		return err
	}
	ports, err := PlanPorts(app.StartingPorts, replicaIndex-1)
	if err != nil {
		return err
	}
	_, err = o.rt.StartContainer(ctx, StartSpec{
		AppName:      app.AppName,
		ReplicaIndex: replicaIndex,
		Image:        img,
		Ports:        ports,
		Env:          app.Env,
		NetworkName:  o.networkName,
	})
	return err
}
