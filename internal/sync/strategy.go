package sync

import "context"

// ConnectivityProbe reports whether the cloud endpoint is currently
// reachable. Implemented by the host runtime / cloud client; defined here
// at the consumer.
type ConnectivityProbe interface {
	Connected() bool
}

// Strategy is the common contract both sync schedulers satisfy.
type Strategy interface {
	Start(ctx context.Context, workers int) error
	Stop()
	PutSyncRequest(req *Request) bool
	ClearSyncQueue()
	RemainingCapacity() int
}

// reenqueueAfterRun applies the outcome of one Retryer.Run to the queue:
// Retry re-offers the same request, MutateToFullSync replaces it with a
// FullShadowSync for the same identity, and Done/Dropped/Interrupted need
// no further queue action.
func reenqueueAfterRun(queue *RequestQueue, req *Request, outcome Outcome) {
	switch outcome {
	case OutcomeRetry:
		// OfferAndTake hands back the head it removed; put it back so the
		// only net change is req being re-queued.
		if next, ok := queue.OfferAndTake(req, false); ok {
			queue.PutAtHead(next)
		}
	case OutcomeMutateToFullSync:
		mutated := &Request{Variant: FullShadowSync, ID: req.ID, EnqueuedAt: req.EnqueuedAt}
		queue.PutAtHead(mutated)
	}
}
