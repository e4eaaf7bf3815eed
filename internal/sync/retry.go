package sync

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Retry policy constants: base 1s, cap 60s, ±10% jitter,
// 5 attempts. Grounded on the Graph client's exponential-backoff
// constants, narrowed from ±25% to the ±10% this design calls for.
const (
	DefaultMaxAttempts = 5
	baseRetryBackoff   = 1 * time.Second
	maxRetryBackoff    = 60 * time.Second
	retryBackoffFactor = 2.0
	retryJitterFrac    = 0.10
)

// Outcome classifies what the caller (a Strategy) should do after Retryer.Run
// returns.
type Outcome int

const (
	// OutcomeDone means the request completed; nothing further to do.
	OutcomeDone Outcome = iota
	// OutcomeRetry means the request should be re-offered to the queue
	// (non-blocking) for another attempt; the Retryer has already slept
	// out its own backoff budget and given up internally, or the caller
	// invoked Run with a single-shot budget.
	OutcomeRetry
	// OutcomeMutateToFullSync means the request should be replaced with a
	// FullShadowSync for the same identity and re-enqueued at the head.
	OutcomeMutateToFullSync
	// OutcomeDropped means the request was logged and discarded (Fatal or
	// InvalidArguments).
	OutcomeDropped
	// OutcomeInterrupted means the context was canceled mid-attempt.
	OutcomeInterrupted
)

// Executor runs one sync request to completion or failure. Implemented by
// the per-variant dispatch in executor.go; defined here at the consumer
// (the Retryer) per "accept interfaces, return structs."
type Executor interface {
	Execute(ctx context.Context, req *Request) error
}

// Retryer wraps Executor.Execute with an error-classification/backoff
// policy: retryable failures get exponential backoff up to maxAttempts,
// everything else is surfaced immediately.
type Retryer struct {
	exec        Executor
	maxAttempts int
	logger      *slog.Logger

	// sleepFunc is overridable in tests to avoid real delays, matching the
	// Graph client's sleepFunc field.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewRetryer builds a Retryer with the default policy. maxAttempts<=0 uses
// DefaultMaxAttempts.
func NewRetryer(exec Executor, maxAttempts int, logger *slog.Logger) *Retryer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Retryer{exec: exec, maxAttempts: maxAttempts, logger: logger, sleepFunc: sleepCtx}
}

// Run executes req, retrying transient failures in-loop up to maxAttempts
// with exponential backoff before giving up and asking the caller to
// re-offer the request. It never retries Conflict/UnknownShadow itself —
// those mutate immediately.
func (r *Retryer) Run(ctx context.Context, req *Request) Outcome {
	var attempt int

	for {
		err := r.exec.Execute(ctx, req)
		if err == nil {
			return OutcomeDone
		}

		if errors.Is(err, ErrInterrupted) || ctx.Err() != nil {
			return OutcomeInterrupted
		}

		sentinel := Classify(err)

		switch sentinel {
		case ErrConflict, ErrVersionConflict, ErrUnknownShadow:
			r.logger.Warn("sync request conflict, mutating to full sync",
				slog.String("identity", req.Key()),
				slog.String("variant", req.Variant.String()),
				slog.String("error", err.Error()),
			)

			return OutcomeMutateToFullSync

		case ErrFatal, ErrInvalidArguments, ErrUnauthorized:
			r.logger.Error("sync request dropped",
				slog.String("identity", req.Key()),
				slog.String("variant", req.Variant.String()),
				slog.String("error", err.Error()),
			)

			return OutcomeDropped

		case ErrRetryable:
			if attempt >= r.maxAttempts-1 {
				r.logger.Warn("sync request exhausted retries, re-offering",
					slog.String("identity", req.Key()),
					slog.Int("attempts", attempt+1),
				)

				return OutcomeRetry
			}

			backoff := calcRetryBackoff(attempt)

			r.logger.Debug("retrying sync request",
				slog.String("identity", req.Key()),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if sleepErr := r.sleepFunc(ctx, backoff); sleepErr != nil {
				return OutcomeInterrupted
			}

			attempt++

			continue

		default:
			r.logger.Error("sync request dropped: unclassified error",
				slog.String("identity", req.Key()),
				slog.String("error", err.Error()),
			)

			return OutcomeDropped
		}
	}
}

func calcRetryBackoff(attempt int) time.Duration {
	backoff := float64(baseRetryBackoff) * math.Pow(retryBackoffFactor, float64(attempt))
	if backoff > float64(maxRetryBackoff) {
		backoff = float64(maxRetryBackoff)
	}

	jitter := backoff * retryJitterFrac * (rand.Float64()*2 - 1)
	backoff += jitter

	return time.Duration(backoff)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
