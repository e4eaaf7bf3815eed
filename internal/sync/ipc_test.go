package sync

import (
	"context"
	"testing"
	"time"

	"github.com/greengrass-edge/shadow-sync/internal/shadowid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedUsageNotifier struct {
	bytes int64
}

func (n fixedUsageNotifier) CurrentUsageBytes() (int64, error) {
	return n.bytes, nil
}

func newTestIngress(t *testing.T) (*LocalIngress, *Handler, *scriptedExecutor) {
	t.Helper()

	return newTestIngressWithGate(t, nil)
}

func newTestIngressWithGate(t *testing.T, gate *CapacityGate) (*LocalIngress, *Handler, *scriptedExecutor) {
	t.Helper()

	store := newTestStore(t)

	queue := NewRequestQueue(10, BetweenDeviceAndCloud)
	exec := &scriptedExecutor{errs: []error{nil, nil, nil}}
	retryer := NewRetryer(exec, 3, nil)
	retryer.sleepFunc = noSleep
	strategy := NewRealtimeStrategy(queue, retryer, alwaysConnected{}, nil, nil)
	handler := NewHandler(strategy, queue, 1, nil)

	require.NoError(t, handler.StartSyncingShadows(context.Background(), Configuration{}))
	t.Cleanup(handler.StopSyncingShadows)

	locks := NewLockRegistry()

	return NewLocalIngress(store, handler, locks, gate, DefaultMaxDocumentSize), handler, exec
}

func TestLocalIngress_UpdateShadowCreatesDocument(t *testing.T) {
	t.Parallel()

	ingress, _, exec := newTestIngress(t)
	id, err := shadowid.New("thing-1", "")
	require.NoError(t, err)

	doc, err := ingress.UpdateShadow(context.Background(), id, []byte(`{"state":{"reported":{"on":true}}}`), "token-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version)
	assert.Equal(t, true, doc.State.Reported["on"])

	require.Eventually(t, func() bool {
		return exec.calls >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestLocalIngress_UpdateShadowRejectsMalformedPayload(t *testing.T) {
	t.Parallel()

	ingress, _, _ := newTestIngress(t)
	id, err := shadowid.New("thing-2", "")
	require.NoError(t, err)

	_, err = ingress.UpdateShadow(context.Background(), id, []byte(`not json`), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestLocalIngress_DeleteShadowTombstonesAndNotifies(t *testing.T) {
	t.Parallel()

	ingress, _, exec := newTestIngress(t)
	id, err := shadowid.New("thing-3", "")
	require.NoError(t, err)

	_, err = ingress.UpdateShadow(context.Background(), id, []byte(`{"state":{"reported":{"on":true}}}`), "")
	require.NoError(t, err)

	require.NoError(t, ingress.DeleteShadow(context.Background(), id))

	doc, err := ingress.GetShadow(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.True(t, doc.Deleted)

	require.Eventually(t, func() bool {
		return exec.calls >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestLocalIngress_DeleteShadowMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	ingress, _, _ := newTestIngress(t)
	id, err := shadowid.New("thing-4", "")
	require.NoError(t, err)

	err = ingress.DeleteShadow(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestLocalIngress_UpdateShadowRejectedWhenCapacityExceeded(t *testing.T) {
	t.Parallel()

	gate := NewCapacityGate(fixedUsageNotifier{bytes: 100 * 1024 * 1024}, 1)
	require.NoError(t, gate.Sample())
	require.True(t, gate.Exceeded())

	ingress, _, exec := newTestIngressWithGate(t, gate)
	id, err := shadowid.New("thing-6", "")
	require.NoError(t, err)

	_, err = ingress.UpdateShadow(context.Background(), id, []byte(`{"state":{"reported":{"on":true}}}`), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceError)

	doc, err := ingress.GetShadow(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, doc, "rejected update must not mutate the store")

	assert.Zero(t, exec.calls, "rejected update must never reach the executor")
}

func TestLocalIngress_ListNamedShadowsDelegatesToStore(t *testing.T) {
	t.Parallel()

	ingress, _, _ := newTestIngress(t)
	id, err := shadowid.New("thing-5", "config")
	require.NoError(t, err)

	_, err = ingress.UpdateShadow(context.Background(), id, []byte(`{"state":{"reported":{"v":1}}}`), "")
	require.NoError(t, err)

	names, next, err := ingress.ListNamedShadows(context.Background(), "thing-5", 10, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"config"}, names)
	assert.Empty(t, next)
}
