package complexity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func complexGoSource() string {
	var b strings.Builder
	b.WriteString("// refactor this for concurrency; the architecture is wrong\n")
	b.WriteString("package sched\n\nimport (\n\t\"context\"\n\t\"sync\"\n\t\"time\"\n\t\"errors\"\n)\n\n")
	for i := 0; i < 3; i++ {
		b.WriteString("func worker(ctx context.Context) error {\n")
		b.WriteString("\tfor {\n\t\tselect {\n\t\tcase <-ctx.Done():\n")
		b.WriteString("\t\t\tif err := ctx.Err(); err != nil {\n")
		b.WriteString("\t\t\t\tif errors.Is(err, context.Canceled) {\n")
		b.WriteString("\t\t\t\t\treturn nil\n\t\t\t\t}\n\t\t\t}\n\t\t}\n\t}\n}\n")
	}
	for i := 0; i < 20; i++ {
		b.WriteString("var mu sync.Mutex // padding line\n")
	}
	return b.String()
}

func TestClassify_Buckets(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		bucket Bucket
	}{
		{"short-question", "What does this helper return?", BucketSimple},
		{"empty", "", BucketSimple},
		{"keyword-heavy", "Refactor the architecture of the concurrent job scheduler", BucketMedium},
		{"large-go-source", complexGoSource(), BucketComplex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text)
			assert.Equal(t, tt.bucket, got.Bucket, "total=%.3f", got.Total)
		})
	}
}

func TestClassify_TotalBoundedAndDeterministic(t *testing.T) {
	inputs := []string{
		"",
		"hello",
		"Refactor the architecture of the concurrent job scheduler",
		complexGoSource(),
		strings.Repeat("refactor concurrency architecture security protocol\n", 5000),
	}
	for _, in := range inputs {
		first := Classify(in)
		assert.GreaterOrEqual(t, first.Total, 0.0)
		assert.LessOrEqual(t, first.Total, 1.0)
		for i := 0; i < 3; i++ {
			assert.Equal(t, first, Classify(in))
		}
	}
}

func TestClassify_FactorsRespectCaps(t *testing.T) {
	cfg := DefaultConfig()
	f := NewClassifier(cfg).Classify(complexGoSource())

	assert.LessOrEqual(t, f.SizeFactor, cfg.SizeCap)
	assert.LessOrEqual(t, f.ImportFactor, cfg.ImportCap)
	assert.LessOrEqual(t, f.StructureFactor, cfg.StructureCap)
	assert.LessOrEqual(t, f.KeywordFactor, cfg.KeywordCap)
	assert.InDelta(t, cfg.ImportCap, f.ImportFactor, 1e-9, "four imports saturate")
	assert.InDelta(t, 1.0, f.Total, 1e-9, "sum above one clamps")
}

func TestClassify_Monotonic(t *testing.T) {
	base := "Explain how the cache works"
	withKeyword := base + " and whether it is thread-safe"
	withMore := withKeyword + " under concurrent refactor"

	a, b, c := Classify(base), Classify(withKeyword), Classify(withMore)
	assert.LessOrEqual(t, a.KeywordFactor, b.KeywordFactor)
	assert.LessOrEqual(t, b.KeywordFactor, c.KeywordFactor)
	assert.LessOrEqual(t, a.Total, b.Total)
	assert.LessOrEqual(t, b.Total, c.Total)
}

func TestClassify_TruncatesLongInput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxInputBytes = 64
	long := strings.Repeat("é", 100) // two bytes per rune
	f := NewClassifier(cfg).Classify(long)
	assert.True(t, f.Truncated)

	short := NewClassifier(cfg).Classify("ok")
	assert.False(t, short.Truncated)
}

func TestTruncate_RuneBoundary(t *testing.T) {
	s, cut := truncate("aé", 2)
	require.True(t, cut)
	assert.Equal(t, "a", s)
}

func TestImportFactor_PythonAndRust(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	py := c.Classify("from os import path\nimport sys\n")
	assert.InDelta(t, DefaultConfig().ImportCap/2, py.ImportFactor, 1e-9)

	prose := c.Classify("use the mutex from the sync package")
	assert.Zero(t, prose.ImportFactor)
}

func TestBucketFor_ConfiguredThresholds(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, BucketSimple, cfg.BucketFor(0.29))
	assert.Equal(t, BucketMedium, cfg.BucketFor(0.3))
	assert.Equal(t, BucketMedium, cfg.BucketFor(0.79))
	assert.Equal(t, BucketComplex, cfg.BucketFor(0.8))

	cfg.SimpleBelow = 0.5
	assert.Equal(t, BucketSimple, cfg.BucketFor(0.45))
}
