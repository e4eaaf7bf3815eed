package sync

import (
	"context"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/greengrass-edge/shadow-sync/internal/shadowid"
)

// DefaultPeriodicDelay is the default tick interval for PeriodicStrategy.
const DefaultPeriodicDelay = 5 * time.Minute

// PeriodicStrategy drains the queue to empty on a fixed tick rather than
// continuously. Between ticks, PutSyncRequest still
// coalesces through the same RequestQueue.
type PeriodicStrategy struct {
	queue      *RequestQueue
	retryer    *Retryer
	probe      ConnectivityProbe
	identities func() []shadowid.Identity
	delay      time.Duration
	logger     *slog.Logger

	mu      stdsync.Mutex
	syncing bool
	cancel  context.CancelFunc
	done    chan struct{}

	wasConnected bool
}

// NewPeriodicStrategy builds a periodic strategy that ticks every delay
// (<=0 uses DefaultPeriodicDelay).
func NewPeriodicStrategy(queue *RequestQueue, retryer *Retryer, probe ConnectivityProbe, identities func() []shadowid.Identity, delay time.Duration, logger *slog.Logger) *PeriodicStrategy {
	if delay <= 0 {
		delay = DefaultPeriodicDelay
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PeriodicStrategy{queue: queue, retryer: retryer, probe: probe, identities: identities, delay: delay, logger: logger}
}

// Start launches the single ticking goroutine. workers is accepted for
// Strategy contract parity but unused: a periodic drain is single-threaded
// by design.
func (s *PeriodicStrategy) Start(ctx context.Context, _ int) error {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return nil
	}

	s.queue.Reopen()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.syncing = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.tickLoop(runCtx)

	return nil
}

// Stop is idempotent; it cancels the tick loop and waits for the current
// drain to finish.
func (s *PeriodicStrategy) Stop() {
	s.mu.Lock()
	if !s.syncing {
		s.mu.Unlock()
		return
	}

	s.syncing = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if done != nil {
		<-done
	}
}

func (s *PeriodicStrategy) tickLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.delay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drain(ctx)
		}
	}
}

// drain empties the queue one request at a time, same per-request logic as
// the real-time strategy.
func (s *PeriodicStrategy) drain(ctx context.Context) {
	if s.probe != nil && !s.probe.Connected() {
		s.wasConnected = false
		return
	}

	if s.probe != nil && !s.wasConnected {
		s.wasConnected = true

		if s.identities != nil {
			for _, id := range s.identities() {
				s.queue.Put(&Request{Variant: FullShadowSync, ID: id})
			}
		}
	}

	for {
		if ctx.Err() != nil {
			return
		}

		req, ok := s.queue.TryPoll()
		if !ok {
			return
		}

		outcome := s.retryer.Run(ctx, req)
		reenqueueAfterRun(s.queue, req, outcome)
	}
}

// PutSyncRequest enqueues req for the next tick.
func (s *PeriodicStrategy) PutSyncRequest(req *Request) bool {
	return s.queue.Put(req)
}

// ClearSyncQueue empties the queue.
func (s *PeriodicStrategy) ClearSyncQueue() {
	s.queue.Clear()
}

// RemainingCapacity reports free queue slots.
func (s *PeriodicStrategy) RemainingCapacity() int {
	return s.queue.RemainingCapacity()
}
