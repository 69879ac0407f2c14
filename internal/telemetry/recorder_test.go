package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-triage/internal/arbitration"
	"github.com/danielpatrickdp/adaptive-triage/internal/stats"
)

// #region helpers

// memSink records events; when gate is set each write waits on it.
type memSink struct {
	mu      sync.Mutex
	events  []Event
	err     error
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
	closed  bool
}

func (s *memSink) Write(ctx context.Context, e Event) error {
	if s.started != nil {
		s.once.Do(func() { close(s.started) })
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// #endregion helpers

func TestRecorder_WritesAndDrainsOnClose(t *testing.T) {
	sink := &memSink{}
	agg := stats.New()
	r := NewRecorder(sink, DefaultRecorderConfig(), RecorderOptions{Stats: agg})

	for i := 0; i < 20; i++ {
		assert.True(t, r.RecordRouting(sampleRouting()))
	}
	assert.True(t, r.RecordArbitration(arbitration.Decision{FindingID: "f-9"}))
	require.NoError(t, r.Close())

	assert.Equal(t, 21, sink.len())
	assert.True(t, sink.closed)
	assert.EqualValues(t, 21, agg.Snapshot().TelemetryWritten)

	assert.False(t, r.RecordRouting(sampleRouting()), "closed recorder rejects")
	assert.EqualValues(t, 1, agg.Snapshot().TelemetryDropped)
	assert.NoError(t, r.Close())
}

func TestRecorder_DropsWhenBufferStaysFull(t *testing.T) {
	sink := &memSink{gate: make(chan struct{}), started: make(chan struct{})}
	agg := stats.New()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	r := NewRecorder(sink, RecorderConfig{Buffer: 1, MaxBlock: time.Millisecond, WriteTimeout: time.Minute},
		RecorderOptions{Stats: agg, Metrics: m})

	require.True(t, r.RecordRouting(sampleRouting()))
	<-sink.started // writer holds the first event

	require.True(t, r.RecordRouting(sampleRouting()), "fills the buffer")

	begin := time.Now()
	assert.False(t, r.RecordRouting(sampleRouting()), "buffer full")
	assert.Less(t, time.Since(begin), 500*time.Millisecond, "bounded wait")

	close(sink.gate)
	require.NoError(t, r.Close())

	s := agg.Snapshot()
	assert.EqualValues(t, 1, s.TelemetryDropped)
	assert.EqualValues(t, 2, s.TelemetryWritten)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.writes.WithLabelValues("ok")))
}

func TestRecorder_WriteFailureCountedNotSurfaced(t *testing.T) {
	sink := &memSink{err: errors.New("disk full")}
	agg := stats.New()
	r := NewRecorder(sink, DefaultRecorderConfig(), RecorderOptions{Stats: agg})

	assert.True(t, r.RecordRouting(sampleRouting()))
	assert.True(t, r.RecordRouting(sampleRouting()))
	require.NoError(t, r.Close())

	s := agg.Snapshot()
	assert.EqualValues(t, 2, s.TelemetryFailed)
	assert.Zero(t, s.TelemetryWritten)
}

func TestRecorder_WriteTimeoutAppliesPerWrite(t *testing.T) {
	sink := &memSink{gate: make(chan struct{})}
	agg := stats.New()
	r := NewRecorder(sink, RecorderConfig{Buffer: 4, WriteTimeout: 10 * time.Millisecond}, RecorderOptions{Stats: agg})

	r.RecordRouting(sampleRouting())
	r.RecordRouting(sampleRouting())
	require.NoError(t, r.Close())

	assert.EqualValues(t, 2, agg.Snapshot().TelemetryFailed)
}

func TestRecorder_NilSinkDiscards(t *testing.T) {
	r := NewRecorder(nil, RecorderConfig{}, RecorderOptions{})
	assert.True(t, r.RecordRouting(sampleRouting()))
	assert.NoError(t, r.Close())
}

func TestRecorder_ConcurrentRecordAndClose(t *testing.T) {
	sink := &memSink{}
	r := NewRecorder(sink, RecorderConfig{Buffer: 8, MaxBlock: time.Millisecond, WriteTimeout: time.Second}, RecorderOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.RecordRouting(sampleRouting())
			}
		}()
	}
	time.Sleep(time.Millisecond)
	require.NoError(t, r.Close())
	wg.Wait()
	assert.LessOrEqual(t, sink.len(), 400)
}
