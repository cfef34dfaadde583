package engine

import (
	"context"
	"log"
)

// Snapshotter fetches the manager's current view of the device group.
type Snapshotter interface {
	FetchSnapshot(ctx context.Context, deviceGroupName string) (DeviceGroupSnapshot, error)
}

// Reconciler holds the single authoritative in-memory snapshot cache and
// drives one diff-and-dispatch cycle per tick, matching worker.py's main
// while True loop: per-app app_id comparison decides start/restart/roll/
// stop, apps missing from the fresh apps_list are stopped (whether or not
// device_group_id advanced), prune_id differences drive image pruning, and
// the cache is only replaced when the fetched snapshot is not stale. This cache is rebuilt from scratch on every
// process start — nothing here is read from or written to disk.
type Reconciler struct {
	rt       *Operators
	host     HostFacts
	cached   *DeviceGroupSnapshot
	reporter *Reporter
	audit    AuditSink
}

// NewReconciler builds a Reconciler with no cached snapshot; the first
// cycle always treats every app in the fetched snapshot as new. audit may
// be nil when no audit database is configured.
func NewReconciler(ops *Operators, host HostFacts, reporter *Reporter, audit AuditSink) *Reconciler {
	return &Reconciler{rt: ops, host: host, reporter: reporter, audit: audit}
}

// Cached returns the currently cached snapshot, or nil before the first
// successful cycle.
func (r *Reconciler) Cached() *DeviceGroupSnapshot {
	return r.cached
}

// RunCycle runs one reconciliation pass against the freshly fetched
// snapshot.
func (r *Reconciler) RunCycle(ctx context.Context, fresh DeviceGroupSnapshot) {
	freshIndex := fresh.indexByName()
	var cachedIndex map[string]AppSpec
	if r.cached != nil {
		cachedIndex = r.cached.indexByName()
	}

	for _, appName := range fresh.AppsList {
		app := freshIndex[appName]
		var old *AppSpec
		if r.cached != nil {
			if o, ok := cachedIndex[appName]; ok {
				old = &o
			}
		}
		r.reconcileApp(ctx, appName, app, old)
	}

	if r.cached != nil {
		for _, appName := range r.cached.AppsList {
			if _, stillPresent := freshIndex[appName]; !stillPresent {
				log.Printf("reconciler: app %s removed from device group, stopping its containers", appName)
				if err := r.rt.Stop(ctx, appName); err != nil {
					log.Printf("reconciler: stop removed app %s failed: %v", appName, err)
				} else {
					logAudit(r.audit, appName, "removed", "app removed from device group, containers stopped")
				}
			}
		}
	}

	if r.cached == nil || fresh.PruneID > r.cached.PruneID {
		log.Printf("reconciler: prune_id advanced to %d, pruning images", fresh.PruneID)
		if err := r.rt.rt.PruneImages(ctx); err != nil {
			log.Printf("reconciler: prune images failed: %v", err)
		}
	}

	if r.cached == nil || fresh.DeviceGroupID >= r.cached.DeviceGroupID {
		snapCopy := fresh
		r.cached = &snapCopy
	} else {
		log.Printf("reconciler: fetched device_group_id %d is behind cached %d, discarding stale snapshot", fresh.DeviceGroupID, r.cached.DeviceGroupID)
	}

	if r.reporter != nil {
		r.reporter.Report(ctx, fresh)
	}
}

func (r *Reconciler) reconcileApp(ctx context.Context, appName string, app AppSpec, old *AppSpec) {
	if old != nil {
		if app.AppID < old.AppID {
			log.Printf("reconciler: app %s app_id decreased (%d -> %d), ignoring this cycle's action", appName, old.AppID, app.AppID)
			return
		}
		if app.AppID == old.AppID {
			return
		}
	}

	// running==false always wins, regardless of any rolling_restart flag
	// carried over from a prior poll: an app the manager just told the
	// worker to stop must never be rolled (which would start replicas) or
	// restarted. Only once running==true do we consider rolling_restart,
	// and only when the app was already running locally — rolling a
	// replica set that doesn't exist yet is just a start.
	switch {
	case !app.Running:
		if err := r.rt.Stop(ctx, appName); err != nil {
			log.Printf("reconciler: stop %s failed: %v", appName, err)
			return
		}
		logAudit(r.audit, appName, "stopped", "app stopped per running=false")
	case app.RollingReset && old != nil && old.Running:
		if err := r.rt.Roll(ctx, app, r.host, true); err != nil {
			log.Printf("reconciler: roll %s failed: %v", appName, err)
			return
		}
		logAudit(r.audit, appName, "rolled", "rolling restart completed")
	default:
		if err := r.rt.Start(ctx, app, r.host, true); err != nil {
			log.Printf("reconciler: start %s failed: %v", appName, err)
			return
		}
		logAudit(r.audit, appName, "started", "app started or restarted")
	}
}
