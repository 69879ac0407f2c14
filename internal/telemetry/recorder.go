package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/danielpatrickdp/adaptive-triage/internal/stats"
)

// #region config

// RecorderConfig bounds how much a slow sink can cost the request path.
type RecorderConfig struct {
	// Buffer is the number of events queued for the background writer.
	Buffer int `yaml:"buffer" validate:"gte=1"`
	// MaxBlock is how long Record waits on a full buffer before dropping.
	MaxBlock time.Duration `yaml:"max_block" validate:"gte=0"`
	// WriteTimeout caps a single sink write.
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gt=0"`
}

// DefaultRecorderConfig buffers 256 events, blocks at most 5ms and gives each
// write 2s.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		Buffer:       256,
		MaxBlock:     5 * time.Millisecond,
		WriteTimeout: 2 * time.Second,
	}
}

// #endregion config

// #region metrics

// Metrics holds the recorder's collectors. A nil *Metrics records nothing.
type Metrics struct {
	writes  *prometheus.CounterVec
	dropped prometheus.Counter
}

// NewMetrics registers the telemetry collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "telemetry",
			Name:      "writes_total",
			Help:      "Sink writes by result (ok, error)",
		}, []string{"result"}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "telemetry",
			Name:      "dropped_total",
			Help:      "Events discarded because the buffer stayed full",
		}),
	}
}

func (m *Metrics) write(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.writes.WithLabelValues("error").Inc()
		return
	}
	m.writes.WithLabelValues("ok").Inc()
}

func (m *Metrics) drop() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// #endregion metrics

// #region recorder

// RecorderOptions carries the recorder's optional collaborators.
type RecorderOptions struct {
	Stats   *stats.Aggregator
	Metrics *Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Recorder queues events for a single background writer. Record never returns
// an error: write failures are logged and counted, never surfaced to the
// request that produced the event.
type Recorder struct {
	sink    Sink
	cfg     RecorderConfig
	stats   *stats.Aggregator
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time

	ch   chan Event
	done chan struct{}

	mu     sync.RWMutex
	closed bool

	dropWarn  *rate.Sometimes
	writeWarn *rate.Sometimes
}

// NewRecorder starts the background writer. A nil sink discards events.
func NewRecorder(sink Sink, cfg RecorderConfig, opts RecorderOptions) *Recorder {
	if sink == nil {
		sink = Discard{}
	}
	def := DefaultRecorderConfig()
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	r := &Recorder{
		sink:      sink,
		cfg:       cfg,
		stats:     opts.Stats,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "telemetry"),
		now:       now,
		ch:        make(chan Event, cfg.Buffer),
		done:      make(chan struct{}),
		dropWarn:  &rate.Sometimes{First: 1, Interval: 30 * time.Second},
		writeWarn: &rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
	go r.run()
	return r
}

// Record queues e. It waits at most MaxBlock for buffer space and reports
// whether the event was accepted. Dropped events are counted.
func (r *Recorder) Record(e Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped("recorder closed")
		return false
	}

	select {
	case r.ch <- e:
		return true
	default:
	}
	if r.cfg.MaxBlock <= 0 {
		r.dropped("buffer full")
		return false
	}

	timer := time.NewTimer(r.cfg.MaxBlock)
	defer timer.Stop()
	select {
	case r.ch <- e:
		return true
	case <-timer.C:
		r.dropped("buffer full")
		return false
	}
}

// RecordRouting wraps rec in an event and queues it.
func (r *Recorder) RecordRouting(rec RoutingRecord) bool {
	e, err := NewRoutingEvent(rec, r.now())
	if err != nil {
		r.logger.Error("encode routing event", "error", err)
		return false
	}
	return r.Record(e)
}

// RecordArbitration wraps d in an event and queues it.
func (r *Recorder) RecordArbitration(d ArbitrationRecord) bool {
	e, err := NewArbitrationEvent(d, r.now())
	if err != nil {
		r.logger.Error("encode arbitration event", "error", err)
		return false
	}
	return r.Record(e)
}

func (r *Recorder) dropped(reason string) {
	r.stats.ObserveTelemetryDrop()
	r.metrics.drop()
	r.dropWarn.Do(func() {
		r.logger.Warn("telemetry event dropped", "reason", reason)
	})
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
		err := r.sink.Write(ctx, e)
		cancel()

		r.stats.ObserveTelemetryWrite(err)
		r.metrics.write(err)
		if err != nil {
			r.writeWarn.Do(func() {
				r.logger.Warn("telemetry write failed", "event", e.ID, "type", e.Type, "error", err)
			})
		}
	}
}

// Close stops accepting events, waits for the queue to drain and closes the sink.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	<-r.done
	return r.sink.Close()
}

// #endregion recorder
