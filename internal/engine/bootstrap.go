package engine

import (
	"context"
	"log"
	"time"
)

// BootConfig carries everything Bootstrap needs that isn't already
// wrapped behind the Runtime/Snapshotter/Publisher interfaces, mirroring
// the settings worker.py's __main__ block reads before entering its main
// loop.
type BootConfig struct {
	DeviceGroupName       string
	NetworkName           string
	NetworkDriver         string
	RegistryURL           string
	RegistryUser          string
	RegistryPassword      string
	MaxWorkers            int
	MaxRestartWait        time.Duration
	HealthCheckInterval   time.Duration
	PollInterval          time.Duration
	ReportingFailHard     bool
	WorkerID              string
}

// Agent is the fully wired, running worker: the reconciler, the health
// watcher, and the operators they share.
type Agent struct {
	Ops         *Operators
	Reconciler  *Reconciler
	Health      *HealthWatcher
	host        HostFacts
	snapshotter Snapshotter
	cfg         BootConfig
}

// Bootstrap performs the ten-step startup sequence worker.py's
// __main__ block runs before its reconciliation loop: ensure the bridge
// network, log in to the registry if credentials are configured, wipe
// every previously-managed container for a
// clean slate, fetch the first snapshot (retrying forever while the
// device group is reported absent), bring up every app marked running in
// that first snapshot, and hand back an Agent ready to run its
// reconciliation and health-watch loops. Bootstrap does not check that
// the manager is reachable; cmd/worker calls CheckAPI before it. Any
// failure before the clean
// slate step is fatal, matching worker.py's fail-fast posture; the
// initial-snapshot retry loop is the one deliberate exception, since a
// device group that doesn't exist yet is an expected transient state
// during cluster setup, not an error.
func Bootstrap(ctx context.Context, rt Runtime, snap Snapshotter, publisher Publisher, auditSink AuditSink, host HostFacts, cfg BootConfig) (*Agent, error) {
	if err := rt.EnsureNetwork(ctx, cfg.NetworkName, cfg.NetworkDriver); err != nil {
		return nil, err
	}

	if cfg.RegistryUser != "" {
		if err := rt.RegistryLogin(ctx, cfg.RegistryURL, cfg.RegistryUser, cfg.RegistryPassword); err != nil {
			return nil, err
		}
	}

	ops := NewOperators(rt, cfg.NetworkName, cfg.MaxWorkers, cfg.MaxRestartWait)

	log.Printf("bootstrap: wiping all previously managed containers for a clean slate")
	if err := ops.Stop(ctx, ""); err != nil {
		return nil, err
	}

	fresh := fetchInitialSnapshot(ctx, snap, cfg.DeviceGroupName)

	log.Printf("bootstrap: starting the apps marked running among the %d apps in the initial snapshot", len(fresh.AppsList))
	freshIndex := fresh.indexByName()
	for _, appName := range fresh.AppsList {
		app := freshIndex[appName]
		if !app.Running {
			continue
		}
		if err := ops.Start(ctx, app, host, true); err != nil {
			log.Printf("bootstrap: initial start of %s failed: %v", appName, err)
		}
	}

	advisor := NewAdvisor(cfg.PollInterval)
	reporter := NewReporter(cfg.WorkerID, publisher, cfg.ReportingFailHard, advisor)

	reconciler := NewReconciler(ops, host, reporter, auditSink)
	reconciler.cached = &fresh

	health := NewHealthWatcher(rt, cfg.HealthCheckInterval, func(ctx context.Context, appName string, replicaIndex int) error {
		cached := reconciler.Cached()
		if cached == nil {
			return nil
		}
		app, ok := cached.indexByName()[appName]
		if !ok {
			return nil
		}
		return ops.RestartReplica(ctx, app, host, replicaIndex)
	}, auditSink)

	return &Agent{Ops: ops, Reconciler: reconciler, Health: health, host: host, snapshotter: snap, cfg: cfg}, nil
}

// fetchInitialSnapshot retries forever while the manager reports the
// device group absent, matching worker.py's infinite retry around a 403 /
// device_group_exists == False response during initial bring-up. Any
// other fetch failure is fatal.
func fetchInitialSnapshot(ctx context.Context, snap Snapshotter, deviceGroupName string) DeviceGroupSnapshot {
	backoffDelay := 2 * time.Second
	for {
		fresh, err := snap.FetchSnapshot(ctx, deviceGroupName)
		if err == nil {
			return fresh
		}
		if isDeviceGroupAbsent(err) {
			log.Printf("bootstrap: device group %s does not exist yet, retrying in %s", deviceGroupName, backoffDelay)
			select {
			case <-time.After(backoffDelay):
			case <-ctx.Done():
				Fatal("bootstrap: context canceled waiting for device group %s to exist", deviceGroupName)
			}
			continue
		}
		Fatal("bootstrap: failed to fetch initial snapshot: %v", err)
	}
}

// isDeviceGroupAbsent is a narrow hook so this package doesn't need to
// import managerclient (which imports engine) just to compare a sentinel
// error; callers pass a Snapshotter whose FetchSnapshot error satisfies
// this check via errors.Is against managerclient.ErrDeviceGroupAbsent.
var isDeviceGroupAbsent = func(err error) bool { return false }

// SetDeviceGroupAbsentCheck lets main wire the concrete error comparison
// without creating an import cycle between engine and managerclient.
func SetDeviceGroupAbsentCheck(f func(error) bool) {
	isDeviceGroupAbsent = f
}

// RunReconciliationLoop polls the manager every cfg.PollInterval and runs
// one reconciliation cycle per fetch, until ctx is canceled. Fetch errors
// are logged and retried on the next tick rather than treated as fatal,
// since managerclient.FetchSnapshot already exhausts its own bounded
// backoff before returning one.
func (a *Agent) RunReconciliationLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fresh, err := a.snapshotter.FetchSnapshot(ctx, a.cfg.DeviceGroupName)
			if err != nil {
				log.Printf("reconciliation loop: fetch snapshot failed: %v", err)
				continue
			}
			a.Reconciler.RunCycle(ctx, fresh)
		}
	}
}
