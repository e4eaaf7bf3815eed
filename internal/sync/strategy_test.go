package sync

import (
	"context"
	"testing"
	"time"

	"github.com/greengrass-edge/shadow-sync/internal/shadowid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alwaysConnected struct{}

func (alwaysConnected) Connected() bool { return true }

type toggleConnectivity struct{ connected bool }

func (t *toggleConnectivity) Connected() bool { return t.connected }

func TestRealtimeStrategy_DrainsPutRequests(t *testing.T) {
	t.Parallel()

	queue := NewRequestQueue(10, BetweenDeviceAndCloud)
	exec := &scriptedExecutor{errs: []error{nil}}
	retryer := NewRetryer(exec, 3, nil)
	retryer.sleepFunc = noSleep

	strategy := NewRealtimeStrategy(queue, retryer, alwaysConnected{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, strategy.Start(ctx, 2))
	defer strategy.Stop()

	id, _ := shadowid.New("T", "")
	strategy.PutSyncRequest(&Request{Variant: LocalUpdate, ID: id})

	require.Eventually(t, func() bool {
		return exec.calls >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestRealtimeStrategy_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	queue := NewRequestQueue(10, BetweenDeviceAndCloud)
	exec := &scriptedExecutor{errs: []error{nil}}
	retryer := NewRetryer(exec, 3, nil)
	retryer.sleepFunc = noSleep

	strategy := NewRealtimeStrategy(queue, retryer, alwaysConnected{}, nil, nil)
	require.NoError(t, strategy.Start(context.Background(), 1))

	strategy.Stop()
	assert.NotPanics(t, func() { strategy.Stop() })
}

func TestRealtimeStrategy_ReconnectInjectsFullSync(t *testing.T) {
	t.Parallel()

	queue := NewRequestQueue(10, BetweenDeviceAndCloud)
	exec := &scriptedExecutor{errs: []error{nil}}
	retryer := NewRetryer(exec, 3, nil)
	retryer.sleepFunc = noSleep

	probe := &toggleConnectivity{connected: false}
	id, _ := shadowid.New("T", "")

	strategy := NewRealtimeStrategy(queue, retryer, probe, func() []shadowid.Identity {
		return []shadowid.Identity{id}
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, strategy.Start(ctx, 1))
	defer strategy.Stop()

	time.Sleep(20 * time.Millisecond)
	probe.connected = true

	require.Eventually(t, func() bool {
		return exec.calls >= 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestPeriodicStrategy_DrainsOnTick(t *testing.T) {
	t.Parallel()

	queue := NewRequestQueue(10, BetweenDeviceAndCloud)
	exec := &scriptedExecutor{errs: []error{nil}}
	retryer := NewRetryer(exec, 3, nil)
	retryer.sleepFunc = noSleep

	strategy := NewPeriodicStrategy(queue, retryer, alwaysConnected{}, nil, 20*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, _ := shadowid.New("T", "")
	strategy.PutSyncRequest(&Request{Variant: LocalUpdate, ID: id})

	require.NoError(t, strategy.Start(ctx, 0))
	defer strategy.Stop()

	require.Eventually(t, func() bool {
		return exec.calls >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestPeriodicStrategy_CoalescesBetweenTicks(t *testing.T) {
	t.Parallel()

	queue := NewRequestQueue(10, BetweenDeviceAndCloud)
	id, _ := shadowid.New("T", "")

	queue.Put(&Request{Variant: LocalUpdate, ID: id, LocalPayload: &Update{State: State{Reported: map[string]Node{"x": float64(1)}}}})
	queue.Put(&Request{Variant: LocalUpdate, ID: id, LocalPayload: &Update{State: State{Reported: map[string]Node{"y": float64(2)}}}})

	assert.Equal(t, 9, queue.RemainingCapacity())
}
