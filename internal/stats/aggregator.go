// Package stats holds the per-process routing and arbitration counters.
//
// An Aggregator is created once by the composition root and passed
// explicitly to the router, arbitrator and telemetry recorder. Tests create
// their own, so counters never leak between them.
package stats

import (
	"sync/atomic"
)

// #region aggregator

// Aggregator counts routing outcomes, arbitration tiers and telemetry writes.
// All methods are safe for concurrent use.
type Aggregator struct {
	fastResolved atomic.Int64
	escalated    atomic.Int64
	deepDirect   atomic.Int64
	degraded     atomic.Int64
	noInference  atomic.Int64
	busy         atomic.Int64

	arbitrated [5]atomic.Int64 // indexed P0..P4

	telemetryWritten atomic.Int64
	telemetryFailed  atomic.Int64
	telemetryDropped atomic.Int64
}

// New returns a zeroed aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// #endregion

// #region routing

// RouteOutcome names how a single query was resolved.
type RouteOutcome string

const (
	OutcomeFastResolved RouteOutcome = "fast_resolved"
	OutcomeEscalated    RouteOutcome = "escalated"
	OutcomeDeepDirect   RouteOutcome = "deep_direct"
	OutcomeDegraded     RouteOutcome = "degraded"
	OutcomeNoInference  RouteOutcome = "no_inference"
)

// ObserveRoute counts one routed query.
func (a *Aggregator) ObserveRoute(o RouteOutcome) {
	if a == nil {
		return
	}
	switch o {
	case OutcomeFastResolved:
		a.fastResolved.Add(1)
	case OutcomeEscalated:
		a.escalated.Add(1)
	case OutcomeDeepDirect:
		a.deepDirect.Add(1)
	case OutcomeDegraded:
		a.degraded.Add(1)
	case OutcomeNoInference:
		a.noInference.Add(1)
	}
}

// ObserveBusy counts a tier rejecting a call because its queue was full.
func (a *Aggregator) ObserveBusy() {
	if a == nil {
		return
	}
	a.busy.Add(1)
}

// #endregion

// #region arbitration

// ObserveArbitration counts one decision at priority index 0 (P0) through 4 (P4).
func (a *Aggregator) ObserveArbitration(priorityIndex int) {
	if a == nil || priorityIndex < 0 || priorityIndex >= len(a.arbitrated) {
		return
	}
	a.arbitrated[priorityIndex].Add(1)
}

// #endregion

// #region telemetry

// ObserveTelemetryWrite counts a sink write attempt.
func (a *Aggregator) ObserveTelemetryWrite(err error) {
	if a == nil {
		return
	}
	if err != nil {
		a.telemetryFailed.Add(1)
		return
	}
	a.telemetryWritten.Add(1)
}

// ObserveTelemetryDrop counts an event discarded under backpressure.
func (a *Aggregator) ObserveTelemetryDrop() {
	if a == nil {
		return
	}
	a.telemetryDropped.Add(1)
}

// #endregion

// #region snapshot

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	FastResolved int64    `json:"fast_resolved"`
	Escalated    int64    `json:"escalated"`
	DeepDirect   int64    `json:"deep_direct"`
	Degraded     int64    `json:"degraded"`
	NoInference  int64    `json:"no_inference"`
	Busy         int64    `json:"busy"`
	Arbitrated   [5]int64 `json:"arbitrated"`

	TelemetryWritten int64 `json:"telemetry_written"`
	TelemetryFailed  int64 `json:"telemetry_failed"`
	TelemetryDropped int64 `json:"telemetry_dropped"`
}

// Snapshot copies the current counter values.
func (a *Aggregator) Snapshot() Snapshot {
	if a == nil {
		return Snapshot{}
	}
	s := Snapshot{
		FastResolved:     a.fastResolved.Load(),
		Escalated:        a.escalated.Load(),
		DeepDirect:       a.deepDirect.Load(),
		Degraded:         a.degraded.Load(),
		NoInference:      a.noInference.Load(),
		Busy:             a.busy.Load(),
		TelemetryWritten: a.telemetryWritten.Load(),
		TelemetryFailed:  a.telemetryFailed.Load(),
		TelemetryDropped: a.telemetryDropped.Load(),
	}
	for i := range a.arbitrated {
		s.Arbitrated[i] = a.arbitrated[i].Load()
	}
	return s
}

// Routed is the number of queries that produced a result (including fallbacks).
func (s Snapshot) Routed() int64 {
	return s.FastResolved + s.Escalated + s.DeepDirect + s.Degraded + s.NoInference
}

// FastShare is the fraction of routed queries answered by the fast tier.
// Returns 0 when nothing has been routed.
func (s Snapshot) FastShare() float64 {
	total := s.Routed()
	if total == 0 {
		return 0
	}
	return float64(s.FastResolved) / float64(total)
}

// #endregion
