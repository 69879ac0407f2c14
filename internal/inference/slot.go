package inference

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// #region config

// SlotConfig bounds one tier: how many callers may wait behind the one
// running call, and the hard wall-clock limit per call. Time spent queued
// does not count against Timeout.
type SlotConfig struct {
	MaxQueue int           `yaml:"max_queue" validate:"gte=0"`
	Timeout  time.Duration `yaml:"timeout" validate:"gt=0"`
}

// #endregion

// #region slot

// Slot serialises calls to one backend. At most one call runs; up to
// MaxQueue more block waiting; anything beyond that gets ErrBusy.
type Slot struct {
	tier    Tier
	backend Backend
	timeout time.Duration

	run   *semaphore.Weighted
	admit *semaphore.Weighted
}

type slotResult struct {
	out Output
	err error
}

// NewSlot wraps backend. A nil backend makes every call fail with
// ErrModelUnavailable, which is how an unconfigured tier is represented.
func NewSlot(tier Tier, backend Backend, cfg SlotConfig) *Slot {
	return &Slot{
		tier:    tier,
		backend: backend,
		timeout: cfg.Timeout,
		run:     semaphore.NewWeighted(1),
		admit:   semaphore.NewWeighted(int64(max(cfg.MaxQueue, 0)) + 1),
	}
}

// Tier returns the tier this slot guards.
func (s *Slot) Tier() Tier { return s.tier }

// Available reports whether a backend is configured.
func (s *Slot) Available() bool { return s != nil && s.backend != nil }

// Generate runs prompt on the backend under the slot's limits.
// If ctx is cancelled or the timeout fires, the in-flight call is abandoned
// and its result discarded; the slot frees once the backend returns.
func (s *Slot) Generate(ctx context.Context, prompt string) (Output, error) {
	if !s.Available() {
		tier := TierFast
		if s != nil {
			tier = s.tier
		}
		return Output{}, NewUnavailableError(tier, nil)
	}
	if !s.admit.TryAcquire(1) {
		return Output{}, fmt.Errorf("%s tier: %w", s.tier, ErrBusy)
	}
	defer s.admit.Release(1)

	// Queue wait is bounded by ctx only; the timeout starts with the call.
	if err := s.run.Acquire(ctx, 1); err != nil {
		return Output{}, err
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	done := make(chan slotResult, 1)
	go func() {
		defer s.run.Release(1)
		out, err := s.backend.Generate(callCtx, prompt)
		done <- slotResult{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if callCtx.Err() != nil {
				return Output{}, s.ctxErr(ctx)
			}
			return Output{}, NewUnavailableError(s.tier, r.err)
		}
		return r.out, nil
	case <-callCtx.Done():
		return Output{}, s.ctxErr(ctx)
	}
}

// ctxErr separates caller cancellation from the slot's own timeout.
func (s *Slot) ctxErr(parent context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%s tier after %s: %w", s.tier, s.timeout, ErrTimeout)
}

// #endregion
