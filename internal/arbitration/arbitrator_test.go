package arbitration

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-triage/internal/stats"
)

func conf(v float64) *float64 { return &v }

func TestTierFor_Boundaries(t *testing.T) {
	tests := []struct {
		total  int
		tier   Priority
		action Action
	}{
		{20, P0, ActionExecuteNow},
		{16, P0, ActionExecuteNow},
		{15, P1, ActionBatchSession},
		{13, P1, ActionBatchSession},
		{12, P2, ActionScheduleSprint},
		{10, P2, ActionScheduleSprint},
		{9, P3, ActionDefer},
		{7, P3, ActionDefer},
		{6, P4, ActionBacklog},
		{4, P4, ActionBacklog},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.tier, TierFor(tt.total), "total %d", tt.total)
		assert.Equal(t, tt.action, ActionFor(TierFor(tt.total)), "total %d", tt.total)
	}
}

func TestScore_DefaultTuples(t *testing.T) {
	a := New(DefaultTable(), Options{})
	tests := []struct {
		category string
		want     Score
	}{
		{"duplication-without-search", Score{2, 4, 5, 4, 15, P1}},
		{"dependency-issue", Score{3, 3, 4, 4, 14, P1}},
		{"dead-code", Score{2, 2, 2, 3, 9, P3}},
		{"protocol-violation", Score{3, 4, 4, 5, 16, P0}},
		{"orphaned-file", Score{1, 2, 2, 2, 7, P3}},
		{"something-new", Score{1, 1, 2, 3, 7, P3}},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			got := a.Score(Finding{Category: tt.category, Location: "pkg/x.go:10", Description: "plain"})
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("score mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, got.Complexity+got.Importance+got.Deferability+got.Impact, got.Total)
		})
	}
}

func TestScoreAndArbitrate_CircularImport(t *testing.T) {
	a := New(DefaultTable(), Options{})
	d := a.ScoreAndArbitrate(context.Background(), Finding{
		Category:    "dependency-issue",
		Description: "circular import between pkg/a and pkg/b",
		Location:    "pkg/a/a.go:3",
	})

	assert.Equal(t, Score{3, 4, 4, 4, 15, P1}, d.Score)
	assert.Equal(t, ActionBatchSession, d.Action)
	assert.Contains(t, d.Reasoning, "importance +1 (circular)")
	assert.Equal(t, DefaultTableVersion, d.TableVersion)
}

func TestScore_MarkersBoundedAtFive(t *testing.T) {
	a := New(DefaultTable(), Options{})
	s := a.Score(Finding{
		Category:    "protocol-violation",
		Description: "security hole, breaking change, crash in production, widespread outage",
		Location:    "api/handler.go",
	})
	assert.Equal(t, 5, s.Importance)
	assert.Equal(t, 5, s.Impact, "impact already at 5 stays 5")
	assert.Equal(t, 17, s.Total)
}

func TestScore_LowDetectorConfidence(t *testing.T) {
	a := New(DefaultTable(), Options{})
	base := Finding{Category: "dead-code", Location: "x.go", Description: "unused helper"}

	noisy := base
	noisy.DetectorConfidence = conf(0.1)
	sure := base
	sure.DetectorConfidence = conf(0.9)

	assert.Equal(t, 2, a.Score(noisy).Impact)
	assert.Equal(t, 8, a.Score(noisy).Total)
	assert.Equal(t, a.Score(base), a.Score(sure), "confident detectors do not change the score")
}

func TestScoreAndArbitrate_MalformedIsUnknown(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	agg := stats.New()
	a := New(DefaultTable(), Options{Metrics: m, Stats: agg})

	for _, f := range []Finding{
		{Category: "", Location: "x.go", Description: "no category"},
		{Category: "dead-code", Location: "", Description: "no location"},
		{Description: "crash in production with security impact"},
		{Category: "protocol-violation", Location: "api/handler.go:9"},
	} {
		d := a.ScoreAndArbitrate(context.Background(), f)
		assert.Equal(t, CategoryUnknown, d.Category)
		assert.True(t, d.Malformed)
		assert.NotEmpty(t, d.FindingID)
		assert.Contains(t, []Priority{P3, P4}, d.Score.Tier)
		assert.NotEmpty(t, d.Action)
	}
	assert.Equal(t, 4.0, testutil.ToFloat64(m.malformed))
	assert.EqualValues(t, 4, agg.Snapshot().Arbitrated[P3.Index()])
}

func TestScoreAndArbitrate_Deterministic(t *testing.T) {
	a := New(DefaultTable(), Options{})
	f := Finding{Category: "duplication-without-search", Location: "svc/cache.go:40", Description: "reimplements lru"}
	first := a.ScoreAndArbitrate(context.Background(), f)
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, a.ScoreAndArbitrate(context.Background(), f)); diff != "" {
			t.Fatalf("decision changed (-first +again):\n%s", diff)
		}
	}
	assert.Equal(t, Score{2, 4, 5, 4, 15, P1}, first.Score)
	assert.Equal(t, FindingID(f), first.FindingID)
}

func TestFindingID(t *testing.T) {
	assert.Equal(t, "given", FindingID(Finding{ID: "given"}))
	a := FindingID(Finding{Category: "dead-code", Location: "a.go"})
	b := FindingID(Finding{Category: "dead-code", Location: "b.go"})
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, FindingID(Finding{Category: "dead-code", Location: "a.go"}))
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, CategoryDependency, ParseCategory(" Dependency_Issue "))
	assert.Equal(t, CategoryDeadCode, ParseCategory("dead code"))
	assert.Equal(t, CategoryUnknown, ParseCategory("style"))
	assert.Equal(t, CategoryUnknown, ParseCategory(""))
}

func TestTable_WithOverrides(t *testing.T) {
	base := DefaultTable()

	tbl, err := base.WithOverrides(map[string]Tuple{"dead_code": {1, 1, 1, 1}})
	require.NoError(t, err)
	assert.Equal(t, Tuple{1, 1, 1, 1}, tbl.Tuple(CategoryDeadCode))
	assert.Equal(t, base.Tuple(CategoryProtocol), tbl.Tuple(CategoryProtocol))
	assert.True(t, strings.HasPrefix(tbl.Version(), DefaultTableVersion))
	assert.NotEqual(t, DefaultTableVersion, tbl.Version())
	assert.Equal(t, Tuple{2, 2, 2, 3}, base.Tuple(CategoryDeadCode), "base table is not mutated")

	_, err = base.WithOverrides(map[string]Tuple{"style": {1, 1, 1, 1}})
	assert.Error(t, err)
	_, err = base.WithOverrides(map[string]Tuple{"dead-code": {0, 1, 1, 1}})
	assert.Error(t, err)
	_, err = base.WithOverrides(map[string]Tuple{"unknown": {3, 3, 3, 3}})
	assert.Error(t, err, "unknown must stay in P3 even with markers")

	same, err := base.WithOverrides(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTableVersion, same.Version())
}
