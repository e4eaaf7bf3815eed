package sync

import (
	"context"
	"testing"
	"time"

	"github.com/greengrass-edge/shadow-sync/internal/shadowid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, *scriptedExecutor) {
	t.Helper()

	queue := NewRequestQueue(10, BetweenDeviceAndCloud)
	exec := &scriptedExecutor{errs: []error{nil, nil, nil}}
	retryer := NewRetryer(exec, 3, nil)
	retryer.sleepFunc = noSleep

	strategy := NewRealtimeStrategy(queue, retryer, alwaysConnected{}, nil, nil)

	return NewHandler(strategy, queue, 1, nil), exec
}

func TestHandler_StartInjectsFullSyncPerIdentity(t *testing.T) {
	t.Parallel()

	handler, exec := newTestHandler(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := Configuration{Things: []NamedShadowSet{
		{ThingName: "device-1", Classic: true, NamedShadows: []string{"config"}},
	}}

	require.NoError(t, handler.StartSyncingShadows(ctx, config))
	defer handler.StopSyncingShadows()

	require.Eventually(t, func() bool {
		return exec.calls >= 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, config, handler.Configuration())
}

func TestHandler_StopSyncingShadowsIdempotent(t *testing.T) {
	t.Parallel()

	handler, _ := newTestHandler(t)

	require.NoError(t, handler.StartSyncingShadows(context.Background(), Configuration{}))
	handler.StopSyncingShadows()

	assert.NotPanics(t, func() { handler.StopSyncingShadows() })
}

func TestHandler_ApplyConfigurationRestartsWithNewSet(t *testing.T) {
	t.Parallel()

	handler, exec := newTestHandler(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, handler.StartSyncingShadows(ctx, Configuration{}))

	newConfig := Configuration{Things: []NamedShadowSet{{ThingName: "device-2", Classic: true}}}
	require.NoError(t, handler.ApplyConfiguration(ctx, newConfig))
	defer handler.StopSyncingShadows()

	require.Eventually(t, func() bool {
		return exec.calls >= 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, newConfig, handler.Configuration())
}

func TestHandler_OnLocalUpdateEnqueuesRequest(t *testing.T) {
	t.Parallel()

	handler, exec := newTestHandler(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, handler.StartSyncingShadows(ctx, Configuration{}))
	defer handler.StopSyncingShadows()

	id, err := shadowid.New("device-3", "")
	require.NoError(t, err)

	version := int64(1)
	handler.OnLocalUpdate(id, &Update{Version: &version})

	require.Eventually(t, func() bool {
		return exec.calls >= 1
	}, time.Second, 5*time.Millisecond)
}
