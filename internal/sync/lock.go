package sync

import (
	stdsync "sync"

	"github.com/greengrass-edge/shadow-sync/internal/shadowid"
)

// LockRegistry maps a shadow identity to a mutex-like handle created on
// first use. Handles are never removed: the identity set
// is small and long-lived, so unbounded growth is not a practical concern.
type LockRegistry struct {
	mu    stdsync.Mutex
	locks map[string]*stdsync.Mutex
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*stdsync.Mutex)}
}

// Lock acquires the per-identity mutex for id, creating it on first use.
func (r *LockRegistry) Lock(id shadowid.Identity) {
	r.handle(id).Lock()
}

// Unlock releases the per-identity mutex for id.
func (r *LockRegistry) Unlock(id shadowid.Identity) {
	r.handle(id).Unlock()
}

func (r *LockRegistry) handle(id shadowid.Identity) *stdsync.Mutex {
	key := id.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.locks[key]
	if !ok {
		m = &stdsync.Mutex{}
		r.locks[key] = m
	}

	return m
}
