package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielpatrickdp/adaptive-triage/internal/arbitration"
	"github.com/danielpatrickdp/adaptive-triage/internal/complexity"
	"github.com/danielpatrickdp/adaptive-triage/internal/config"
	"github.com/danielpatrickdp/adaptive-triage/internal/inference"
	"github.com/danielpatrickdp/adaptive-triage/internal/patterns"
	"github.com/danielpatrickdp/adaptive-triage/internal/prompt"
	"github.com/danielpatrickdp/adaptive-triage/internal/router"
	"github.com/danielpatrickdp/adaptive-triage/internal/stats"
	"github.com/danielpatrickdp/adaptive-triage/internal/telemetry"
	"github.com/danielpatrickdp/adaptive-triage/internal/triage"
)

// #region logger

// newLogger writes to w; stdout stays free for the MCP stdio transport.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// #endregion logger

// #region app

// app is everything a command needs, built once from config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	stats    *stats.Aggregator
	service  *triage.Service

	// store is nil when patterns.backend is none.
	store patterns.Store
	// sqliteStore is set for the sqlite backend; tune reads outcomes from it.
	sqliteStore *patterns.SQLiteStore
	recorder    *telemetry.Recorder

	closers []io.Closer
}

func (a *app) addCloser(c io.Closer) {
	a.closers = append(a.closers, c)
}

// Close flushes telemetry first, then releases backends and stores in
// reverse order of creation.
func (a *app) Close() error {
	var errs []error
	if a.recorder != nil {
		errs = append(errs, a.recorder.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

// buildApp is the composition root. On error everything opened so far is closed.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		stats:    stats.New(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	fast, err := a.tierBackend(inference.TierFast, cfg.Fast)
	if err != nil {
		return nil, err
	}
	deep, err := a.tierBackend(inference.TierDeep, cfg.Deep)
	if err != nil {
		return nil, err
	}
	embedder, err := a.embedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	if err := a.openPatterns(ctx); err != nil {
		return nil, err
	}
	sink, err := a.openSinks()
	if err != nil {
		return nil, err
	}
	a.recorder = telemetry.NewRecorder(sink, cfg.Telemetry.Recorder, telemetry.RecorderOptions{
		Stats:   a.stats,
		Metrics: telemetry.NewMetrics(a.registry),
		Logger:  logger,
	})

	table, err := cfg.Table()
	if err != nil {
		return nil, err
	}

	var searcher prompt.Searcher
	if a.store != nil {
		resilient := patterns.NewResilient(a.store, logger)
		searcher = resilient
		a.store = resilient
	}

	a.service = triage.New(triage.Deps{
		Classifier: complexity.NewClassifier(cfg.Classifier),
		Builder:    prompt.NewBuilder(embedder, searcher, cfg.Retrieval, logger),
		Router: router.New(
			inference.NewSlot(inference.TierFast, fast, cfg.Fast.Slot),
			inference.NewSlot(inference.TierDeep, deep, cfg.Deep.Slot),
			cfg.Router,
			router.Options{Stats: a.stats, Metrics: router.NewMetrics(a.registry), Logger: logger},
		),
		Arbitrator: arbitration.New(table, arbitration.Options{
			Stats:   a.stats,
			Metrics: arbitration.NewMetrics(a.registry),
			Logger:  logger,
		}),
		Store:           a.store,
		Recorder:        a.recorder,
		Stats:           a.stats,
		Logger:          logger,
		FastShareTarget: cfg.Tuning.FastShareTarget,
	})
	return a, nil
}

// #endregion app

// #region backends

// tierBackend returns nil for the none backend, which makes the tier unavailable.
func (a *app) tierBackend(tier inference.Tier, cfg config.TierConfig) (inference.Backend, error) {
	switch cfg.Backend {
	case config.BackendCodec:
		c, err := inference.DialCodec(cfg.Codec.Addr, cfg.Codec.Model)
		if err != nil {
			return nil, fmt.Errorf("connect %s tier to codec at %s: %w", tier, cfg.Codec.Addr, err)
		}
		a.addCloser(c)
		return c, nil
	case config.BackendOpenAI:
		return inference.NewOpenAIBackend(cfg.OpenAI), nil
	default:
		a.logger.Warn("tier disabled", "tier", tier)
		return nil, nil
	}
}

func (a *app) embedder(cfg config.EmbedderConfig) (inference.Embedder, error) {
	var inner inference.Embedder
	switch cfg.Backend {
	case config.BackendCodec:
		c, err := inference.DialCodec(cfg.Codec.Addr, cfg.Codec.Model)
		if err != nil {
			return nil, fmt.Errorf("connect embedder to codec at %s: %w", cfg.Codec.Addr, err)
		}
		a.addCloser(c)
		inner = c
	case config.BackendOpenAI:
		inner = inference.NewOpenAIEmbedder(cfg.OpenAI)
	default:
		a.logger.Warn("embedder disabled; retrieval runs degraded")
		return nil, nil
	}
	return inference.NewCachedEmbedder(inner), nil
}

// #endregion backends

// #region stores

func (a *app) openPatterns(ctx context.Context) error {
	switch a.cfg.Patterns.Backend {
	case "sqlite":
		s, err := patterns.OpenSQLite(a.cfg.Patterns.Path)
		if err != nil {
			return err
		}
		a.addCloser(s)
		a.store, a.sqliteStore = s, s
	case "weaviate":
		s, err := patterns.NewWeaviateStore(a.cfg.Patterns.Weaviate)
		if err != nil {
			return err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			// Retrieval degrades per request; a down store must not block startup.
			a.logger.Warn("weaviate schema check failed", "error", err)
		}
		a.addCloser(s)
		a.store = s
	default:
		a.logger.Warn("pattern store disabled; answers are not remembered")
	}
	return nil
}

// openSinks builds every enabled telemetry sink. The SQLite sink reuses the
// pattern database when both point at the same file. The returned sink is
// owned by the recorder; on error the sinks opened so far are closed here.
func (a *app) openSinks() (telemetry.Sink, error) {
	tc := a.cfg.Telemetry
	var sinks telemetry.MultiSink

	if tc.Path != "" {
		sink, err := a.openSQLiteSink(tc.Path)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if tc.Badger.Enabled {
		b, err := telemetry.OpenBadgerSink(tc.Badger.BadgerConfig, a.logger)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, b)
	}
	if tc.NATS.URL != "" {
		n, err := telemetry.DialNATS(tc.NATS.URL, tc.NATS.Subject)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, n)
	}

	switch len(sinks) {
	case 0:
		return telemetry.Discard{}, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}

func (a *app) openSQLiteSink(path string) (*telemetry.SQLiteSink, error) {
	if a.sqliteStore != nil && samePath(path, a.cfg.Patterns.Path) {
		return telemetry.NewSQLiteSink(a.sqliteStore.DB())
	}
	return telemetry.OpenSQLiteSink(path)
}

func samePath(a, b string) bool {
	return strings.TrimPrefix(a, "./") == strings.TrimPrefix(b, "./")
}

// #endregion stores

// #region config-loading

// loadApp loads config from path and builds the app with a stderr logger.
func loadApp(ctx context.Context, path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return buildApp(ctx, cfg, newLogger(cfg.Log, os.Stderr))
}

// #endregion config-loading
