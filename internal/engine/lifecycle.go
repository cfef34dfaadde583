package engine

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Operators drives the four lifecycle operations (start/stop/restart/roll)
// against a Runtime, adapted from worker.py's start_containers /
// stop_containers / restart_containers / roll_containers and from the
// teacher's AppManager fan-out pattern in manager.go's Start/Stop, but
// bounded by a worker pool instead of one goroutine per container.
type Operators struct {
	rt          Runtime
	networkName string
	maxWorkers  int
	maxJitter   time.Duration
	rng         *rand.Rand
	rngMu       sync.Mutex
}

// NewOperators builds an Operators bound to rt. maxWorkers caps concurrent
// start/stop fan-out (recommended cpu_cores*4 per the concurrency model);
// maxRestartWait bounds the startup jitter sleep worker.py applies before
// restart/roll.
func NewOperators(rt Runtime, networkName string, maxWorkers int, maxRestartWait time.Duration) *Operators {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Operators{
		rt:          rt,
		networkName: networkName,
		maxWorkers:  maxWorkers,
		maxJitter:   maxRestartWait,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (o *Operators) jitterSleep(ctx context.Context) {
	if o.maxJitter <= 0 {
		return
	}
	o.rngMu.Lock()
	d := time.Duration(o.rng.Int63n(int64(o.maxJitter)))
	o.rngMu.Unlock()
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// planStartSpecs builds one StartSpec per replica index in [startAt, count).
// Each replica's ports are planned with its own zero-based ordinal (i) so
// binds[P] = P + replica_index, per spec: the first replica binds the
// declared port itself, the second binds declared+1, and so on, so
// multiple replicas of one app never collide on the same host port.
func planStartSpecs(app AppSpec, host HostFacts, networkName string, startAt, count int) ([]StartSpec, error) {
	img, err := ParseImageRef(app.DockerImage)
	if err != nil {
		return nil, fmt.Errorf("app %s: %w", app.AppName, err)
	}
	specs := make([]StartSpec, 0, count-startAt)
	for i := startAt; i < count; i++ {
		ports, err := PlanPorts(app.StartingPorts, i)
		if err != nil {
			return nil, fmt.Errorf("app %s: %w", app.AppName, err)
		}
		specs = append(specs, StartSpec{
			AppName:      app.AppName,
			ReplicaIndex: i + 1,
			Image:        img,
			Ports:        ports,
			Env:          app.Env,
			NetworkName:  networkName,
		})
	}
	return specs, nil
}

// fanOut runs fn over items with at most o.maxWorkers concurrent calls,
// waiting for every call to finish before returning — the bounded
// replacement for the teacher's unbounded per-container goroutine fan-out.
func (o *Operators) fanOut(items int, fn func(i int) error) []error {
	errs := make([]error, items)
	sem := make(chan struct{}, o.maxWorkers)
	var wg sync.WaitGroup
	for i := 0; i < items; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = fn(i)
		}(i)
	}
	wg.Wait()
	return errs
}

// Start creates containers_required(app) replicas for an app that has
// none running yet. If containers already exist for the app it delegates
// to Restart, matching worker.py's start_containers behavior.
func (o *Operators) Start(ctx context.Context, app AppSpec, host HostFacts, pull bool) error {
	existing, err := o.rt.ListContainers(ctx, app.AppName)
	if err != nil {
		return fmt.Errorf("start %s: list existing containers: %w", app.AppName, err)
	}
	if len(existing) > 0 {
		log.Printf("start %s: %d containers already present, delegating to restart", app.AppName, len(existing))
		return o.Restart(ctx, app, host, pull)
	}
	if !app.Running {
		return nil
	}

	count, err := ResolveReplicas(app.ContainersPer, host)
	if err != nil {
		return fmt.Errorf("start %s: %w", app.AppName, err)
	}

	if pull {
		img, err := ParseImageRef(app.DockerImage)
		if err != nil {
			return fmt.Errorf("start %s: %w", app.AppName, err)
		}
		if err := o.rt.PullImage(ctx, img); err != nil {
			return fmt.Errorf("start %s: %w", app.AppName, err)
		}
	}

	specs, err := planStartSpecs(app, host, o.networkName, 0, count)
	if err != nil {
		return err
	}

	errs := o.fanOut(len(specs), func(i int) error {
		_, err := o.rt.StartContainer(ctx, specs[i])
		return err
	})
	return firstError(errs)
}

// Stop stops and removes every container the runtime lists for appName.
// An empty appName means "all managed containers", matching worker.py's
// stop_containers({"app_name": ""}) clean-slate call.
func (o *Operators) Stop(ctx context.Context, appName string) error {
	containers, err := o.rt.ListContainers(ctx, appName)
	if err != nil {
		return fmt.Errorf("stop %s: list containers: %w", labelOrAll(appName), err)
	}
	errs := o.fanOut(len(containers), func(i int) error {
		return o.stopAndRemove(ctx, containers[i].ID)
	})
	return firstError(errs)
}

func (o *Operators) stopAndRemove(ctx context.Context, id string) error {
	if err := o.rt.StopContainer(ctx, id, 10); err != nil {
		log.Printf("stop_and_remove: stop %s failed, attempting removal anyway: %v", id, err)
	}
	if err := o.rt.RemoveContainer(ctx, id, true); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return nil
}

func labelOrAll(appName string) string {
	if appName == "" {
		return "<all>"
	}
	return appName
}

// Restart applies a jittered sleep, optionally pulls, stops all existing
// replicas, then starts count fresh ones without pulling again — matching
// worker.py's restart_containers.
func (o *Operators) Restart(ctx context.Context, app AppSpec, host HostFacts, pull bool) error {
	o.jitterSleep(ctx)

	if pull {
		img, err := ParseImageRef(app.DockerImage)
		if err != nil {
			return fmt.Errorf("restart %s: %w", app.AppName, err)
		}
		if err := o.rt.PullImage(ctx, img); err != nil {
			return fmt.Errorf("restart %s: %w", app.AppName, err)
		}
	}

	if err := o.Stop(ctx, app.AppName); err != nil {
		return fmt.Errorf("restart %s: %w", app.AppName, err)
	}

	count, err := ResolveReplicas(app.ContainersPer, host)
	if err != nil {
		return fmt.Errorf("restart %s: %w", app.AppName, err)
	}
	specs, err := planStartSpecs(app, host, o.networkName, 0, count)
	if err != nil {
		return err
	}
	errs := o.fanOut(len(specs), func(i int) error {
		_, err := o.rt.StartContainer(ctx, specs[i])
		return err
	})
	return firstError(errs)
}

// Roll replaces replicas one at a time with a fixed pause between them,
// matching worker.py's roll_containers: containers are sorted by name,
// each is stopped and removed, and — for indices still needed under the
// current replica count — immediately replaced before the next one is
// touched. This is strictly serial by design (unlike Start/Stop/Restart),
// so an in-flight roll never drops below n-1 healthy replicas.
func (o *Operators) Roll(ctx context.Context, app AppSpec, host HostFacts, pull bool) error {
	o.jitterSleep(ctx)

	if pull {
		img, err := ParseImageRef(app.DockerImage)
		if err != nil {
			return fmt.Errorf("roll %s: %w", app.AppName, err)
		}
		if err := o.rt.PullImage(ctx, img); err != nil {
			return fmt.Errorf("roll %s: %w", app.AppName, err)
		}
	}

	existing, err := o.rt.ListContainers(ctx, app.AppName)
	if err != nil {
		return fmt.Errorf("roll %s: list containers: %w", app.AppName, err)
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i].Name < existing[j].Name })

	needed, err := ResolveReplicas(app.ContainersPer, host)
	if err != nil {
		return fmt.Errorf("roll %s: %w", app.AppName, err)
	}

	img, err := ParseImageRef(app.DockerImage)
	if err != nil {
		return fmt.Errorf("roll %s: %w", app.AppName, err)
	}

	for idx, ctr := range existing {
		if err := o.stopAndRemove(ctx, ctr.ID); err != nil {
			return fmt.Errorf("roll %s: replica %d: %w", app.AppName, idx, err)
		}
		if idx < needed {
			ports, err := PlanPorts(app.StartingPorts, idx)
			if err != nil {
				return fmt.Errorf("roll %s: %w", app.AppName, err)
			}
			spec := StartSpec{
				AppName:      app.AppName,
				ReplicaIndex: idx + 1,
				Image:        img,
				Ports:        ports,
				Env:          app.Env,
				NetworkName:  o.networkName,
			}
			if _, err := o.rt.StartContainer(ctx, spec); err != nil {
				return fmt.Errorf("roll %s: replica %d: %w", app.AppName, idx, err)
			}
		}
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// If the target count grew beyond the previously-existing replica
	// count, start the remaining new replicas after the roll.
	if needed > len(existing) {
		specs, err := planStartSpecs(app, host, o.networkName, len(existing), needed)
		if err != nil {
			return err
		}
		errs := o.fanOut(len(specs), func(i int) error {
			_, err := o.rt.StartContainer(ctx, specs[i])
			return err
		})
		return firstError(errs)
	}
	return nil
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
