package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDiskNotifier struct {
	usage int64
	err   error
}

func (f *fakeDiskNotifier) CurrentUsageBytes() (int64, error) {
	return f.usage, f.err
}

func TestCapacityGate_BelowCeilingNotExceeded(t *testing.T) {
	t.Parallel()

	notifier := &fakeDiskNotifier{usage: 1024}
	gate := NewCapacityGate(notifier, 16)

	require.NoError(t, gate.Sample())
	assert.False(t, gate.Exceeded())
}

func TestCapacityGate_AboveCeilingExceeded(t *testing.T) {
	t.Parallel()

	notifier := &fakeDiskNotifier{usage: 17 * 1024 * 1024}
	gate := NewCapacityGate(notifier, 16)

	require.NoError(t, gate.Sample())
	assert.True(t, gate.Exceeded())
}

func TestCapacityGate_RecoversWhenUsageDrops(t *testing.T) {
	t.Parallel()

	notifier := &fakeDiskNotifier{usage: 17 * 1024 * 1024}
	gate := NewCapacityGate(notifier, 16)

	require.NoError(t, gate.Sample())
	require.True(t, gate.Exceeded())

	notifier.usage = 1024
	require.NoError(t, gate.Sample())
	assert.False(t, gate.Exceeded())
}
