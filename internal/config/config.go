// Package config loads the triage configuration: built-in defaults, then an
// optional YAML file, then TRIAGE_* environment variables, then validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/adaptive-triage/internal/arbitration"
	"github.com/danielpatrickdp/adaptive-triage/internal/complexity"
	"github.com/danielpatrickdp/adaptive-triage/internal/inference"
	"github.com/danielpatrickdp/adaptive-triage/internal/patterns"
	"github.com/danielpatrickdp/adaptive-triage/internal/prompt"
	"github.com/danielpatrickdp/adaptive-triage/internal/router"
	"github.com/danielpatrickdp/adaptive-triage/internal/telemetry"
)

// #region types

// Backend names a model or embedding backend.
type Backend string

const (
	BackendNone   Backend = "none"
	BackendCodec  Backend = "codec"
	BackendOpenAI Backend = "openai"
)

// Config is the full runtime configuration.
type Config struct {
	Classifier  complexity.Config `yaml:"classifier"`
	Router      router.Policy     `yaml:"router"`
	Fast        TierConfig        `yaml:"fast"`
	Deep        TierConfig        `yaml:"deep"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Retrieval   prompt.Config     `yaml:"retrieval"`
	Patterns    PatternsConfig    `yaml:"patterns"`
	Arbitration ArbitrationConfig `yaml:"arbitration"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Tuning      TuningConfig      `yaml:"tuning"`
	Log         LogConfig         `yaml:"log"`
}

// TierConfig selects and bounds the backend behind one model tier.
type TierConfig struct {
	Backend Backend                `yaml:"backend" validate:"oneof=none codec openai"`
	Slot    inference.SlotConfig   `yaml:"slot"`
	Codec   CodecConfig            `yaml:"codec"`
	OpenAI  inference.OpenAIConfig `yaml:"openai"`
}

// CodecConfig addresses the gRPC model sidecar.
type CodecConfig struct {
	Addr  string `yaml:"addr"`
	Model string `yaml:"model"`
}

// EmbedderConfig selects the embedding backend used for retrieval.
type EmbedderConfig struct {
	Backend Backend                `yaml:"backend" validate:"oneof=none codec openai"`
	Codec   CodecConfig            `yaml:"codec"`
	OpenAI  inference.OpenAIConfig `yaml:"openai"`
}

// PatternsConfig selects the pattern store.
type PatternsConfig struct {
	Backend  string                  `yaml:"backend" validate:"oneof=none sqlite weaviate"`
	Path     string                  `yaml:"path"`
	Weaviate patterns.WeaviateConfig `yaml:"weaviate"`
}

// ArbitrationConfig holds per-category MPS overrides keyed by category name.
type ArbitrationConfig struct {
	Overrides map[string]arbitration.Tuple `yaml:"overrides" validate:"dive"`
}

// TelemetryConfig lists the enabled sinks. Every enabled sink receives every event.
type TelemetryConfig struct {
	// Path is the SQLite telemetry database; empty disables the sink.
	Path     string                   `yaml:"path"`
	Badger   BadgerSinkConfig         `yaml:"badger"`
	NATS     NATSSinkConfig           `yaml:"nats"`
	Recorder telemetry.RecorderConfig `yaml:"recorder"`
}

// BadgerSinkConfig enables the embedded journal.
type BadgerSinkConfig struct {
	Enabled bool `yaml:"enabled"`
	telemetry.BadgerConfig `yaml:",inline"`
}

// NATSSinkConfig enables publishing events to NATS.
type NATSSinkConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// TuningConfig holds offline tuning knobs. The fast-share target is advisory.
type TuningConfig struct {
	FastShareTarget float64 `yaml:"fast_share_target" validate:"gte=0,lte=1"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// #endregion types

// #region defaults

// DefaultConfig returns a configuration that runs against a local codec
// sidecar for the fast tier and embeddings, and an OpenAI-compatible local
// server for the deep tier.
func DefaultConfig() *Config {
	return &Config{
		Classifier: complexity.DefaultConfig(),
		Router:     router.DefaultPolicy(),
		Fast: TierConfig{
			Backend: BackendCodec,
			Slot:    inference.SlotConfig{MaxQueue: 4, Timeout: 20 * time.Second},
			Codec:   CodecConfig{Addr: "localhost:50051", Model: "fast"},
		},
		Deep: TierConfig{
			Backend: BackendOpenAI,
			Slot:    inference.SlotConfig{MaxQueue: 8, Timeout: 2 * time.Minute},
			OpenAI: inference.OpenAIConfig{
				BaseURL:     "http://localhost:11434/v1",
				Model:       "qwen2.5-coder:32b",
				MaxTokens:   1024,
				Temperature: 0.2,
			},
		},
		Embedder: EmbedderConfig{
			Backend: BackendCodec,
			Codec:   CodecConfig{Addr: "localhost:50051"},
		},
		Retrieval: prompt.DefaultConfig(),
		Patterns: PatternsConfig{
			Backend: "sqlite",
			Path:    "triage_patterns.db",
			Weaviate: patterns.WeaviateConfig{
				Host:   "localhost:8080",
				Scheme: "http",
				Class:  patterns.DefaultWeaviateClass,
			},
		},
		Telemetry: TelemetryConfig{
			Path:     "triage_telemetry.db",
			NATS:     NATSSinkConfig{Subject: telemetry.DefaultSubjectPrefix},
			Recorder: telemetry.DefaultRecorderConfig(),
		},
		Tuning: TuningConfig{FastShareTarget: 0.6},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// #endregion defaults

// #region load

// Load builds the configuration. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating the parent directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Redacted returns a copy of c with every API key that is set replaced by
// mask. An empty mask drops the keys so a reload takes them from the
// environment again.
func (c *Config) Redacted(mask string) *Config {
	out := *c
	for _, o := range []*inference.OpenAIConfig{&out.Fast.OpenAI, &out.Deep.OpenAI, &out.Embedder.OpenAI} {
		if o.APIKey != "" {
			o.APIKey = mask
		}
	}
	return &out
}

// #endregion load

// #region env

// ApplyEnv overlays TRIAGE_* variables read through getenv. Unset or empty
// variables leave the current value alone.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	float := func(key string, dst *float64) {
		if v := getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	tier := func(prefix string, t *TierConfig) {
		if v := getenv(prefix + "_BACKEND"); v != "" {
			t.Backend = Backend(v)
		}
		str(prefix+"_ADDR", &t.Codec.Addr)
		if v := getenv(prefix + "_MODEL"); v != "" {
			t.Codec.Model = v
			t.OpenAI.Model = v
		}
		str(prefix+"_BASE_URL", &t.OpenAI.BaseURL)
		duration(prefix+"_TIMEOUT", &t.Slot.Timeout)
	}
	tier("TRIAGE_FAST", &c.Fast)
	tier("TRIAGE_DEEP", &c.Deep)

	if v := getenv("TRIAGE_EMBED_BACKEND"); v != "" {
		c.Embedder.Backend = Backend(v)
	}
	str("TRIAGE_EMBED_ADDR", &c.Embedder.Codec.Addr)
	if v := getenv("TRIAGE_EMBED_MODEL"); v != "" {
		c.Embedder.Codec.Model = v
		c.Embedder.OpenAI.Model = v
	}
	str("TRIAGE_EMBED_BASE_URL", &c.Embedder.OpenAI.BaseURL)

	if key := getenv("TRIAGE_OPENAI_API_KEY"); key != "" {
		for _, o := range []*inference.OpenAIConfig{&c.Fast.OpenAI, &c.Deep.OpenAI, &c.Embedder.OpenAI} {
			if o.APIKey == "" {
				o.APIKey = key
			}
		}
	}

	float("TRIAGE_ESCALATION_THRESHOLD", &c.Router.EscalationThreshold)
	if v := getenv("TRIAGE_MEDIUM_POLICY"); v != "" {
		c.Router.MediumPolicy = router.MediumPolicy(v)
	}
	float("TRIAGE_SIMILARITY_FLOOR", &c.Retrieval.SimilarityFloor)

	str("TRIAGE_PATTERNS_BACKEND", &c.Patterns.Backend)
	str("TRIAGE_PATTERNS_DB", &c.Patterns.Path)
	str("TRIAGE_WEAVIATE_HOST", &c.Patterns.Weaviate.Host)

	str("TRIAGE_TELEMETRY_DB", &c.Telemetry.Path)
	str("TRIAGE_NATS_URL", &c.Telemetry.NATS.URL)
	float("TRIAGE_FAST_SHARE_TARGET", &c.Tuning.FastShareTarget)
	str("TRIAGE_LOG_LEVEL", &c.Log.Level)

	return errors.Join(errs...)
}

// #endregion env

// #region validate

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	if c.Classifier.SimpleBelow >= c.Classifier.ComplexAtOrAbove {
		errs = append(errs, fmt.Errorf("classifier.simple_below (%.2f) must be below classifier.complex_at_or_above (%.2f)",
			c.Classifier.SimpleBelow, c.Classifier.ComplexAtOrAbove))
	}
	errs = append(errs, c.Fast.check("fast"), c.Deep.check("deep"))
	switch c.Embedder.Backend {
	case BackendCodec:
		if c.Embedder.Codec.Addr == "" {
			errs = append(errs, errors.New("embedder.codec.addr is required for the codec backend"))
		}
	case BackendOpenAI:
		if c.Embedder.OpenAI.Model == "" {
			errs = append(errs, errors.New("embedder.openai.model is required for the openai backend"))
		}
	}
	switch c.Patterns.Backend {
	case "sqlite":
		if c.Patterns.Path == "" {
			errs = append(errs, errors.New("patterns.path is required for the sqlite backend"))
		}
	case "weaviate":
		if c.Patterns.Weaviate.Host == "" {
			errs = append(errs, errors.New("patterns.weaviate.host is required for the weaviate backend"))
		}
	}
	if _, err := c.Table(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (t TierConfig) check(name string) error {
	switch t.Backend {
	case BackendCodec:
		if t.Codec.Addr == "" {
			return fmt.Errorf("%s.codec.addr is required for the codec backend", name)
		}
	case BackendOpenAI:
		if t.OpenAI.Model == "" {
			return fmt.Errorf("%s.openai.model is required for the openai backend", name)
		}
	}
	return nil
}

// Table returns the MPS table with the configured overrides applied.
func (c *Config) Table() (arbitration.Table, error) {
	if len(c.Arbitration.Overrides) == 0 {
		return arbitration.DefaultTable(), nil
	}
	return arbitration.DefaultTable().WithOverrides(c.Arbitration.Overrides)
}

// #endregion validate
