package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshotter struct {
	snap DeviceGroupSnapshot
	err  error
	// absentCallsLeft simulates ErrDeviceGroupAbsent for the first N calls.
	absentCallsLeft int
}

var errFakeDeviceGroupAbsent = errors.New("fake device group absent")

func (f *fakeSnapshotter) FetchSnapshot(ctx context.Context, deviceGroupName string) (DeviceGroupSnapshot, error) {
	if f.absentCallsLeft > 0 {
		f.absentCallsLeft--
		return DeviceGroupSnapshot{}, errFakeDeviceGroupAbsent
	}
	if f.err != nil {
		return DeviceGroupSnapshot{}, f.err
	}
	return f.snap, nil
}

func TestBootstrapStartsRunningAppsFromInitialSnapshot(t *testing.T) {
	SetDeviceGroupAbsentCheck(func(err error) bool { return errors.Is(err, errFakeDeviceGroupAbsent) })
	defer SetDeviceGroupAbsentCheck(func(err error) bool { return false })

	rt := newFakeRuntime()
	snap := &fakeSnapshotter{snap: snapshotWith(1, 0, testApp("web", 2))}

	agent, err := Bootstrap(context.Background(), rt, snap, nil, nil, HostFacts{}, BootConfig{
		NetworkName: "nebula",
		MaxWorkers:  4,
		WorkerID:    "worker-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rt.count("web"))
	require.NotNil(t, agent.Reconciler.Cached())
	assert.EqualValues(t, 1, agent.Reconciler.Cached().DeviceGroupID)
}

func TestBootstrapRetriesWhileDeviceGroupAbsent(t *testing.T) {
	SetDeviceGroupAbsentCheck(func(err error) bool { return errors.Is(err, errFakeDeviceGroupAbsent) })
	defer SetDeviceGroupAbsentCheck(func(err error) bool { return false })

	rt := newFakeRuntime()
	snap := &fakeSnapshotter{absentCallsLeft: 2, snap: snapshotWith(1, 0, testApp("web", 1))}

	done := make(chan struct{})
	var agent *Agent
	var err error
	go func() {
		agent, err = Bootstrap(context.Background(), rt, snap, nil, nil, HostFacts{}, BootConfig{
			NetworkName: "nebula",
			MaxWorkers:  4,
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("bootstrap did not return after device group became available")
	}
	require.NoError(t, err)
	assert.Equal(t, 1, rt.count("web"))
}

func TestBootstrapWipesPreviouslyManagedContainersFirst(t *testing.T) {
	SetDeviceGroupAbsentCheck(func(err error) bool { return false })
	defer SetDeviceGroupAbsentCheck(func(err error) bool { return false })

	rt := newFakeRuntime()
	// Simulate containers left running from a previous process lifetime.
	rt.StartContainer(context.Background(), StartSpec{AppName: "stale", ReplicaIndex: 1, Image: ImageRef{Registry: DefaultRegistry, Repo: "x", Tag: "latest"}})

	snap := &fakeSnapshotter{snap: snapshotWith(1, 0)}
	_, err := Bootstrap(context.Background(), rt, snap, nil, nil, HostFacts{}, BootConfig{
		NetworkName: "nebula",
		MaxWorkers:  4,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, rt.count("stale"))
}

func TestAgentRunReconciliationLoopStopsOnContextCancel(t *testing.T) {
	SetDeviceGroupAbsentCheck(func(err error) bool { return false })
	defer SetDeviceGroupAbsentCheck(func(err error) bool { return false })

	rt := newFakeRuntime()
	snap := &fakeSnapshotter{snap: snapshotWith(1, 0, testApp("web", 1))}
	agent, err := Bootstrap(context.Background(), rt, snap, nil, nil, HostFacts{}, BootConfig{
		NetworkName:  "nebula",
		MaxWorkers:   4,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		agent.RunReconciliationLoop(ctx)
		close(loopDone)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-loopDone:
	case <-time.After(time.Second):
		t.Fatal("reconciliation loop did not stop after context cancel")
	}
}
