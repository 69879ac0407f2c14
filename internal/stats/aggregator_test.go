package stats

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregator_CountsAndShare(t *testing.T) {
	a := New()
	a.ObserveRoute(OutcomeFastResolved)
	a.ObserveRoute(OutcomeFastResolved)
	a.ObserveRoute(OutcomeEscalated)
	a.ObserveRoute(OutcomeDeepDirect)
	a.ObserveBusy()
	a.ObserveArbitration(1)
	a.ObserveArbitration(7) // out of range, ignored
	a.ObserveTelemetryWrite(nil)
	a.ObserveTelemetryWrite(errors.New("disk full"))
	a.ObserveTelemetryDrop()

	s := a.Snapshot()
	assert.EqualValues(t, 2, s.FastResolved)
	assert.EqualValues(t, 4, s.Routed())
	assert.InDelta(t, 0.5, s.FastShare(), 1e-9)
	assert.EqualValues(t, 1, s.Busy)
	assert.Equal(t, [5]int64{0, 1, 0, 0, 0}, s.Arbitrated)
	assert.EqualValues(t, 1, s.TelemetryWritten)
	assert.EqualValues(t, 1, s.TelemetryFailed)
	assert.EqualValues(t, 1, s.TelemetryDropped)
}

func TestAggregator_NilSafe(t *testing.T) {
	var a *Aggregator
	a.ObserveRoute(OutcomeEscalated)
	a.ObserveArbitration(0)
	assert.Equal(t, Snapshot{}, a.Snapshot())
	assert.Zero(t, a.Snapshot().FastShare())
}

func TestAggregator_IsolatedAndConcurrent(t *testing.T) {
	a, b := New(), New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.ObserveRoute(OutcomeFastResolved)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 50, a.Snapshot().FastResolved)
	assert.Zero(t, b.Snapshot().FastResolved)
}
