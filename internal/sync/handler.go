package sync

import (
	"context"
	"log/slog"
	stdsync "sync"

	"github.com/greengrass-edge/shadow-sync/internal/shadowid"
)

// Handler is the top-level sync orchestrator: it holds the
// active Configuration and direction, applies configuration diffs
// atomically, injects startup/reconnect full-syncs, and translates local
// CRUD completions and cloud events into queued requests.
type Handler struct {
	mu     stdsync.RWMutex
	config Configuration

	strategy Strategy
	queue    *RequestQueue
	logger   *slog.Logger

	workers int
}

// NewHandler builds a Handler bound to the given strategy/queue. workers is
// passed through to strategy.Start for real-time strategies.
func NewHandler(strategy Strategy, queue *RequestQueue, workers int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	if workers <= 0 {
		workers = 1
	}

	return &Handler{strategy: strategy, queue: queue, workers: workers, logger: logger}
}

// StartSyncingShadows applies config and starts the strategy, injecting a
// FullShadowSync for every enrolled identity.
func (h *Handler) StartSyncingShadows(ctx context.Context, config Configuration) error {
	h.mu.Lock()
	h.config = config
	h.mu.Unlock()

	if err := h.strategy.Start(ctx, h.workers); err != nil {
		return err
	}

	for _, id := range config.Identities() {
		h.strategy.PutSyncRequest(&Request{Variant: FullShadowSync, ID: id})
	}

	return nil
}

// StopSyncingShadows stops the strategy idempotently.
func (h *Handler) StopSyncingShadows() {
	h.strategy.Stop()
}

// ApplyConfiguration applies a configuration change atomically: stop the
// strategy, swap in the new configuration, then start it back up.
func (h *Handler) ApplyConfiguration(ctx context.Context, config Configuration) error {
	h.strategy.Stop()

	h.mu.Lock()
	h.config = config
	h.mu.Unlock()

	return h.StartSyncingShadows(ctx, config)
}

// Configuration returns the currently active configuration.
func (h *Handler) Configuration() Configuration {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.config
}

// OnLocalUpdate translates a completed local write into a LocalUpdate
// request.
func (h *Handler) OnLocalUpdate(id shadowid.Identity, update *Update) {
	h.strategy.PutSyncRequest(&Request{Variant: LocalUpdate, ID: id, LocalPayload: update})
}

// OnLocalDelete translates a completed local delete into a LocalDelete
// request.
func (h *Handler) OnLocalDelete(id shadowid.Identity) {
	h.strategy.PutSyncRequest(&Request{Variant: LocalDelete, ID: id})
}

// OnCloudUpdate translates an observed cloud change into a CloudUpdate
// request.
func (h *Handler) OnCloudUpdate(id shadowid.Identity, doc *Document, version int64) {
	h.strategy.PutSyncRequest(&Request{Variant: CloudUpdate, ID: id, CloudDocument: doc, CloudVersion: version})
}

// OnCloudDelete translates an observed cloud tombstone into a CloudDelete
// request.
func (h *Handler) OnCloudDelete(id shadowid.Identity) {
	h.strategy.PutSyncRequest(&Request{Variant: CloudDelete, ID: id})
}
