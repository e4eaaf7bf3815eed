package sync

import (
	"context"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/greengrass-edge/shadow-sync/internal/shadowid"
)

// RealtimeStrategy drains the queue with a fixed pool of worker goroutines,
// each looping poll -> retryer.run. Grounded on the
// worker-pool consumer pattern in worker.go, generalized from a bounded
// upload-task channel to the identity-keyed RequestQueue.
type RealtimeStrategy struct {
	queue     *RequestQueue
	retryer   *Retryer
	probe     ConnectivityProbe
	logger    *slog.Logger
	identities func() []shadowid.Identity

	mu      stdsync.Mutex
	syncing bool
	cancel  context.CancelFunc
	wg      stdsync.WaitGroup

	wasConnected bool
}

// NewRealtimeStrategy builds a real-time strategy over queue, executing
// through retryer, gated by probe. identities supplies the enrolled set for
// reconnect full-sync injection.
func NewRealtimeStrategy(queue *RequestQueue, retryer *Retryer, probe ConnectivityProbe, identities func() []shadowid.Identity, logger *slog.Logger) *RealtimeStrategy {
	if logger == nil {
		logger = slog.Default()
	}

	return &RealtimeStrategy{queue: queue, retryer: retryer, probe: probe, identities: identities, logger: logger}
}

// Start launches workers goroutines draining the queue.
func (s *RealtimeStrategy) Start(ctx context.Context, workers int) error {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return nil
	}

	s.queue.Reopen()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.syncing = true
	s.mu.Unlock()

	if workers <= 0 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		s.wg.Add(1)

		go s.workerLoop(runCtx)
	}

	return nil
}

// Stop is idempotent: it interrupts waiters, waits for workers to finish
// their in-flight request, and clears the syncing flag.
func (s *RealtimeStrategy) Stop() {
	s.mu.Lock()
	if !s.syncing {
		s.mu.Unlock()
		return
	}

	s.syncing = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	s.queue.Close()
	s.wg.Wait()
}

func (s *RealtimeStrategy) workerLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		if !s.gateOnConnectivity(ctx) {
			return
		}

		req, ok := s.queue.Poll()
		if !ok {
			return
		}

		outcome := s.retryer.Run(ctx, req)
		reenqueueAfterRun(s.queue, req, outcome)
	}
}

// gateOnConnectivity blocks draining while disconnected, still allowing
// Put to succeed (the queue itself remains open). On reconnect it injects a
// FullShadowSync for every enrolled identity before resuming.
func (s *RealtimeStrategy) gateOnConnectivity(ctx context.Context) bool {
	if s.probe == nil {
		return true
	}

	for !s.probe.Connected() {
		s.mu.Lock()
		s.wasConnected = false
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Second):
		}
	}

	s.mu.Lock()
	reconnected := !s.wasConnected
	s.wasConnected = true
	s.mu.Unlock()

	if reconnected && s.identities != nil {
		for _, id := range s.identities() {
			s.queue.Put(&Request{Variant: FullShadowSync, ID: id})
		}
	}

	return true
}

// PutSyncRequest enqueues req; it fails (returns false) only if the queue
// has been closed.
func (s *RealtimeStrategy) PutSyncRequest(req *Request) bool {
	return s.queue.Put(req)
}

// ClearSyncQueue empties the queue.
func (s *RealtimeStrategy) ClearSyncQueue() {
	s.queue.Clear()
}

// RemainingCapacity reports free queue slots.
func (s *RealtimeStrategy) RemainingCapacity() int {
	return s.queue.RemainingCapacity()
}
