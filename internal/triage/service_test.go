package triage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-triage/internal/arbitration"
	"github.com/danielpatrickdp/adaptive-triage/internal/complexity"
	"github.com/danielpatrickdp/adaptive-triage/internal/inference"
	"github.com/danielpatrickdp/adaptive-triage/internal/patterns"
	"github.com/danielpatrickdp/adaptive-triage/internal/prompt"
	"github.com/danielpatrickdp/adaptive-triage/internal/router"
	"github.com/danielpatrickdp/adaptive-triage/internal/stats"
	"github.com/danielpatrickdp/adaptive-triage/internal/telemetry"
)

// #region harness

const (
	simpleQuery = "What does this helper return?"
	mediumQuery = "Refactor the architecture of the concurrent job scheduler"
)

var sameVector = inference.EmbedderFunc(func(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
})

func answer(text string, certainty float64) inference.Backend {
	return inference.BackendFunc(func(context.Context, string) (inference.Output, error) {
		return inference.Output{Text: text, Certainty: &certainty, Model: "fake"}, nil
	})
}

var failing = inference.BackendFunc(func(context.Context, string) (inference.Output, error) {
	return inference.Output{}, errors.New("connection refused")
})

var hanging = inference.BackendFunc(func(ctx context.Context, _ string) (inference.Output, error) {
	<-ctx.Done()
	return inference.Output{}, ctx.Err()
})

type harness struct {
	svc      *Service
	store    *patterns.SQLiteStore
	sink     *telemetry.SQLiteSink
	recorder *telemetry.Recorder
	stats    *stats.Aggregator
}

func newHarness(t *testing.T, fast, deep inference.Backend) harness {
	t.Helper()
	store, err := patterns.OpenSQLite(filepath.Join(t.TempDir(), "triage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sink, err := telemetry.NewSQLiteSink(store.DB())
	require.NoError(t, err)

	agg := stats.New()
	rec := telemetry.NewRecorder(sink, telemetry.DefaultRecorderConfig(), telemetry.RecorderOptions{Stats: agg})
	t.Cleanup(func() { rec.Close() })

	slotCfg := inference.SlotConfig{MaxQueue: 2, Timeout: 50 * time.Millisecond}
	resilient := patterns.NewResilient(store, nil)
	svc := New(Deps{
		Classifier: complexity.NewClassifier(complexity.DefaultConfig()),
		Builder:    prompt.NewBuilder(sameVector, resilient, prompt.DefaultConfig(), nil),
		Router: router.New(
			inference.NewSlot(inference.TierFast, fast, slotCfg),
			inference.NewSlot(inference.TierDeep, deep, slotCfg),
			router.DefaultPolicy(),
			router.Options{Stats: agg},
		),
		Arbitrator:      arbitration.New(arbitration.DefaultTable(), arbitration.Options{Stats: agg}),
		Store:           resilient,
		Recorder:        rec,
		Stats:           agg,
		FastShareTarget: 0.6,
	})
	return harness{svc: svc, store: store, sink: sink, recorder: rec, stats: agg}
}

// events flushes the recorder and reads back what reached the sink.
func (h harness) events(t *testing.T, typ telemetry.EventType) []telemetry.Event {
	t.Helper()
	require.NoError(t, h.recorder.Close())
	evs, err := h.sink.Events(context.Background(), telemetry.Filter{Type: typ})
	require.NoError(t, err)
	return evs
}

// #endregion harness

// #region route-tests

func TestClassifyAndRoute_FastAnswerRememberedAndRecorded(t *testing.T) {
	h := newHarness(t, answer("It returns the parsed config and any read error.", 0.95), answer("deep", 0.9))
	ctx := context.Background()

	resp, err := h.svc.ClassifyAndRoute(ctx, simpleQuery)
	require.NoError(t, err)
	assert.Equal(t, inference.TierFast, resp.TierUsed)
	assert.False(t, resp.Escalated)
	assert.False(t, resp.Degraded)
	assert.InDelta(t, 0.95, resp.Confidence, 1e-9)
	assert.Equal(t, complexity.BucketSimple, resp.Bucket)
	assert.Equal(t, router.ReasonConfident, resp.Reason)
	require.NotEmpty(t, resp.PatternID)

	stored, err := h.store.Get(ctx, resp.PatternID)
	require.NoError(t, err)
	assert.Equal(t, simpleQuery, stored.SourceText)
	assert.Equal(t, patterns.OutcomeUnknown, stored.Outcome)

	// The remembered answer comes back as context for a similar question.
	again, err := h.svc.ClassifyAndRoute(ctx, "What does that helper return?")
	require.NoError(t, err)
	assert.Equal(t, 1, again.ContextCount)
	assert.False(t, again.RetrievalDegraded)

	evs := h.events(t, telemetry.EventRouting)
	require.Len(t, evs, 2)
	rec, err := evs[0].Routing()
	require.NoError(t, err)
	assert.Equal(t, telemetry.Digest(simpleQuery), rec.QueryDigest)
	assert.Equal(t, router.ReasonConfident, rec.Decision.Reason)
	assert.Equal(t, 0.7, rec.Threshold)
	assert.EqualValues(t, 2, h.stats.Snapshot().TelemetryWritten)
}

func TestClassifyAndRoute_DeepTimeoutFallsBackToContext(t *testing.T) {
	h := newHarness(t, answer("fast", 0.95), hanging)
	ctx := context.Background()
	require.NoError(t, h.store.Upsert(ctx, patterns.Entry{
		Embedding:    []float32{1, 0, 0},
		SourceText:   "How should the job scheduler be restructured?",
		ResponseText: "Split dispatch from execution and give each worker its own queue.",
	}))

	resp, err := h.svc.ClassifyAndRoute(ctx, mediumQuery)
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, router.ReasonDeepTimeout, resp.Reason)
	assert.Equal(t, 1, resp.ContextCount)
	assert.Contains(t, resp.Response, "Split dispatch from execution")
	assert.Contains(t, resp.Response, router.DegradedMarker)
	assert.Less(t, resp.Confidence, 0.5)
	assert.Empty(t, resp.PatternID, "fallbacks are not remembered")

	n, err := h.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClassifyAndRoute_NoInference(t *testing.T) {
	h := newHarness(t, nil, failing)

	resp, err := h.svc.ClassifyAndRoute(context.Background(), simpleQuery)
	require.ErrorIs(t, err, router.ErrNoInferenceAvailable)
	assert.True(t, resp.NoInference)
	assert.True(t, resp.Degraded)
	assert.Equal(t, router.ReasonNoInference, resp.Reason)
	assert.Empty(t, resp.PatternID)

	evs := h.events(t, telemetry.EventRouting)
	require.Len(t, evs, 1)
	rec, err := evs[0].Routing()
	require.NoError(t, err)
	assert.True(t, rec.NoInference)
	assert.EqualValues(t, 1, h.stats.Snapshot().NoInference)
}

func TestClassifyAndRoute_Cancelled(t *testing.T) {
	h := newHarness(t, answer("fast", 0.95), answer("deep", 0.9))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.ClassifyAndRoute(ctx, simpleQuery)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.events(t, telemetry.EventRouting))
}

// #endregion route-tests

// #region arbitration-tests

func TestScoreAndArbitrate_RecordsDecision(t *testing.T) {
	h := newHarness(t, nil, nil)

	resp := h.svc.ScoreAndArbitrate(context.Background(), arbitration.Finding{
		Category:    string(arbitration.CategoryDependency),
		Description: "circular import between config and router",
		Location:    "internal/config/config.go:12",
	})
	assert.Equal(t, Scores{Complexity: 3, Importance: 4, Deferability: 4, Impact: 4}, resp.Scores)
	assert.Equal(t, 15, resp.Total)
	assert.Equal(t, arbitration.P1, resp.PriorityTier)
	assert.Equal(t, arbitration.ActionBatchSession, resp.Action)
	assert.NotEmpty(t, resp.FindingID)

	evs := h.events(t, telemetry.EventArbitration)
	require.Len(t, evs, 1)
	d, err := evs[0].Arbitration()
	require.NoError(t, err)
	assert.Equal(t, resp.FindingID, d.FindingID)
}

func TestScoreAndArbitrate_MalformedStillDecided(t *testing.T) {
	h := newHarness(t, nil, nil)
	resp := h.svc.ScoreAndArbitrate(context.Background(), arbitration.Finding{Description: "something odd"})
	assert.True(t, resp.Malformed)
	assert.Equal(t, arbitration.CategoryUnknown, resp.Category)
	assert.Contains(t, []arbitration.Priority{arbitration.P3, arbitration.P4}, resp.PriorityTier)
}

// #endregion arbitration-tests

// #region outcome-tests

func TestRecordOutcome(t *testing.T) {
	h := newHarness(t, answer("It returns the parsed config.", 0.95), nil)
	ctx := context.Background()
	resp, err := h.svc.ClassifyAndRoute(ctx, simpleQuery)
	require.NoError(t, err)
	require.NotEmpty(t, resp.PatternID)

	corrected, err := h.svc.RecordOutcome(ctx, resp.PatternID, patterns.OutcomeFailure, "It returns the config and a wrapped error.")
	require.NoError(t, err)
	assert.Equal(t, patterns.OutcomeFailure, corrected.Outcome)
	assert.Equal(t, simpleQuery, corrected.SourceText)

	old, err := h.store.Get(ctx, resp.PatternID)
	require.NoError(t, err)
	assert.Equal(t, corrected.ID, old.SupersededBy)

	n, err := h.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the correction is live")

	_, err = h.svc.RecordOutcome(ctx, "missing", patterns.OutcomeSuccess, "")
	assert.ErrorIs(t, err, patterns.ErrNotFound)

	_, err = h.svc.RecordOutcome(ctx, corrected.ID, patterns.OutcomeUnknown, "")
	assert.Error(t, err)
}

func TestRecordOutcome_Unsupported(t *testing.T) {
	svc := New(Deps{Store: nil})
	_, err := svc.RecordOutcome(context.Background(), "id", patterns.OutcomeSuccess, "")
	assert.ErrorIs(t, err, ErrOutcomesUnsupported)
}

// #endregion outcome-tests

// #region stats-tests

func TestStats(t *testing.T) {
	h := newHarness(t, answer("It returns the parsed config and any read error.", 0.95), answer("deep answer", 0.9))
	ctx := context.Background()
	_, err := h.svc.ClassifyAndRoute(ctx, simpleQuery)
	require.NoError(t, err)
	_, err = h.svc.ClassifyAndRoute(ctx, mediumQuery)
	require.NoError(t, err)

	s := h.svc.Stats()
	assert.EqualValues(t, 2, s.Routed)
	assert.EqualValues(t, 1, s.FastResolved)
	assert.EqualValues(t, 1, s.DeepDirect)
	assert.InDelta(t, 0.5, s.FastShare, 1e-9)
	assert.Equal(t, 0.6, s.FastShareTarget)
	assert.Equal(t, "deep", s.MediumPolicy)
}

// #endregion stats-tests
