package sync

import (
	"sync/atomic"
)

// DefaultMaxDiskUtilizationMB is the default ceiling: 16 MiB.
const DefaultMaxDiskUtilizationMB = 16

// DiskSpaceNotifier reports the current on-disk byte usage of the shadow
// store's storage directory. Implemented by the host runtime; defined here
// at the consumer, per "accept interfaces, return structs."
type DiskSpaceNotifier interface {
	CurrentUsageBytes() (int64, error)
}

// CapacityGate is an admission-control check: while disk usage exceeds the
// configured ceiling, local writes are rejected. It runs its own sampling
// on a dedicated goroutine and exposes an atomic boolean so writers sample
// it without taking a lock.
type CapacityGate struct {
	ceilingBytes int64
	exceeded     atomic.Bool
	notifier     DiskSpaceNotifier
}

// NewCapacityGate builds a gate with the given ceiling in megabytes (<=0
// uses DefaultMaxDiskUtilizationMB).
func NewCapacityGate(notifier DiskSpaceNotifier, ceilingMB int) *CapacityGate {
	if ceilingMB <= 0 {
		ceilingMB = DefaultMaxDiskUtilizationMB
	}

	return &CapacityGate{ceilingBytes: int64(ceilingMB) * 1024 * 1024, notifier: notifier}
}

// Sample refreshes the gate's exceeded flag from the notifier. Call this
// from a single dedicated polling goroutine; Sample itself is not safe for
// concurrent use.
func (g *CapacityGate) Sample() error {
	usage, err := g.notifier.CurrentUsageBytes()
	if err != nil {
		return err
	}

	g.exceeded.Store(usage > g.ceilingBytes)

	return nil
}

// Exceeded reports the last-sampled capacity state, safe to call
// concurrently from any writer without blocking on Sample.
func (g *CapacityGate) Exceeded() bool {
	return g.exceeded.Load()
}
