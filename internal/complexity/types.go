package complexity

// #region bucket

// Bucket is the coarse complexity class used for tier selection.
type Bucket string

const (
	BucketSimple  Bucket = "simple"
	BucketMedium  Bucket = "medium"
	BucketComplex Bucket = "complex"
)

// #endregion

// #region features

// Features holds the four weighted sub-scores for one input.
// Total is min(sum, 1.0).
type Features struct {
	SizeFactor      float64 `json:"size_factor"`
	ImportFactor    float64 `json:"import_factor"`
	StructureFactor float64 `json:"structure_factor"`
	KeywordFactor   float64 `json:"keyword_factor"`
	Total           float64 `json:"total"`
	Bucket          Bucket  `json:"bucket"`
	Truncated       bool    `json:"truncated,omitempty"`
}

// #endregion

// #region config

// Config holds bucket thresholds, per-factor caps and the input cap.
// Thresholds are tuned offline from telemetry, so they live here rather than in code.
type Config struct {
	SimpleBelow      float64 `yaml:"simple_below" validate:"gt=0,lt=1"`
	ComplexAtOrAbove float64 `yaml:"complex_at_or_above" validate:"gt=0,lte=1"`
	MaxInputBytes    int     `yaml:"max_input_bytes" validate:"gt=0"`

	SizeCap      float64 `yaml:"size_cap" validate:"gte=0,lte=1"`
	ImportCap    float64 `yaml:"import_cap" validate:"gte=0,lte=1"`
	StructureCap float64 `yaml:"structure_cap" validate:"gte=0,lte=1"`
	KeywordCap   float64 `yaml:"keyword_cap" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the stock thresholds: <0.3 simple, >=0.8 complex.
func DefaultConfig() Config {
	return Config{
		SimpleBelow:      0.3,
		ComplexAtOrAbove: 0.8,
		MaxInputBytes:    16 * 1024,
		SizeCap:          0.35,
		ImportCap:        0.2,
		StructureCap:     0.25,
		KeywordCap:       0.3,
	}
}

// BucketFor maps a total score to its bucket.
func (c Config) BucketFor(total float64) Bucket {
	switch {
	case total >= c.ComplexAtOrAbove:
		return BucketComplex
	case total >= c.SimpleBelow:
		return BucketMedium
	default:
		return BucketSimple
	}
}

// #endregion
