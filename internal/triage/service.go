package triage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/adaptive-triage/internal/arbitration"
	"github.com/danielpatrickdp/adaptive-triage/internal/complexity"
	"github.com/danielpatrickdp/adaptive-triage/internal/patterns"
	"github.com/danielpatrickdp/adaptive-triage/internal/prompt"
	"github.com/danielpatrickdp/adaptive-triage/internal/router"
	"github.com/danielpatrickdp/adaptive-triage/internal/stats"
	"github.com/danielpatrickdp/adaptive-triage/internal/telemetry"
)

var tracer = otel.Tracer("adaptive-triage.triage")

// #region deps

// Corrector appends outcome corrections to remembered answers.
// *patterns.SQLiteStore satisfies it.
type Corrector interface {
	Supersede(ctx context.Context, oldID string, corrected patterns.Entry) (patterns.Entry, error)
}

// Deps are the collaborators a Service composes. Classifier, Builder, Router
// and Arbitrator are required; the rest may be nil.
type Deps struct {
	Classifier *complexity.Classifier
	Builder    *prompt.Builder
	Router     *router.Router
	Arbitrator *arbitration.Arbitrator

	// Store remembers answered queries. Nil disables remembering.
	Store    patterns.Store
	Recorder *telemetry.Recorder
	Stats    *stats.Aggregator
	Logger   *slog.Logger

	// FastShareTarget is reported alongside live stats; it is advisory.
	FastShareTarget float64
}

// Service is safe for concurrent use; requests are independent.
type Service struct {
	classifier *complexity.Classifier
	builder    *prompt.Builder
	router     *router.Router
	arbitrator *arbitration.Arbitrator
	store      patterns.Store
	corrector  Corrector
	recorder   *telemetry.Recorder
	stats      *stats.Aggregator
	logger     *slog.Logger
	target     float64
}

// New builds a service from d.
func New(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := &Service{
		classifier: d.Classifier,
		builder:    d.Builder,
		router:     d.Router,
		arbitrator: d.Arbitrator,
		store:      d.Store,
		recorder:   d.Recorder,
		stats:      d.Stats,
		logger:     d.Logger.With("component", "triage"),
		target:     d.FastShareTarget,
	}
	s.corrector = findCorrector(d.Store)
	return s
}

// findCorrector looks through wrappers such as *patterns.Resilient.
func findCorrector(store patterns.Store) Corrector {
	for store != nil {
		if c, ok := store.(Corrector); ok {
			return c
		}
		u, ok := store.(interface{ Unwrap() patterns.Store })
		if !ok {
			return nil
		}
		store = u.Unwrap()
	}
	return nil
}

// #endregion deps

// #region classify-and-route

// ClassifyAndRoute classifies text, builds the prompt from similar past
// answers, routes it and records the decision. Classification and retrieval
// run concurrently; routing waits for both.
//
// Errors: router.ErrNoInferenceAvailable (the response is still filled in
// with NoInference set), inference.ErrBusy when the deep tier's queue is full,
// and the context error on cancellation.
func (s *Service) ClassifyAndRoute(ctx context.Context, text string, hints ...string) (RouteResponse, error) {
	ctx, span := tracer.Start(ctx, "triage.ClassifyAndRoute")
	defer span.End()

	q := prompt.NewQuery(text, hints...)
	var (
		features complexity.Features
		p        prompt.Prompt
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		features = s.classifier.Classify(text)
		return nil
	})
	g.Go(func() error {
		var err error
		p, err = s.builder.Build(gctx, q)
		return err
	})
	if err := g.Wait(); err != nil {
		return RouteResponse{}, err
	}

	res, err := s.router.Route(ctx, q, features, p.Context)
	if err != nil && !res.NoInference {
		return RouteResponse{}, err
	}

	resp := newRouteResponse(res)
	resp.ContextCount = len(p.Context)
	resp.RetrievalDegraded = p.RetrievalDegraded
	span.SetAttributes(
		attribute.String("triage.tier", string(resp.TierUsed)),
		attribute.String("triage.reason", string(resp.Reason)),
	)

	s.recordRouting(text, features, res, p)
	if err != nil {
		return resp, err
	}

	if id, ok := s.remember(ctx, text, res, p.Embedding); ok {
		resp.PatternID = id
	}
	return resp, nil
}

func (s *Service) recordRouting(text string, f complexity.Features, res router.Result, p prompt.Prompt) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordRouting(telemetry.RoutingRecord{
		QueryDigest:       telemetry.Digest(text),
		Features:          f,
		Decision:          res.Decision,
		Degraded:          res.Degraded,
		NoInference:       res.NoInference,
		ContextCount:      len(p.Context),
		RetrievalDegraded: p.RetrievalDegraded,
		Threshold:         s.router.Policy().EscalationThreshold,
	})
}

// remember stores a model answer with an unknown outcome. Fallback answers
// are not remembered; they contain nothing a model produced.
func (s *Service) remember(ctx context.Context, text string, res router.Result, embedding []float32) (string, bool) {
	if s.store == nil || res.Degraded || res.NoInference || len(embedding) == 0 || res.Response == "" {
		return "", false
	}
	e := patterns.Entry{
		ID:           uuid.NewString(),
		Embedding:    embedding,
		SourceText:   text,
		ResponseText: res.Response,
		Outcome:      patterns.OutcomeUnknown,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.Upsert(ctx, e); err != nil {
		s.logger.Warn("remember answer failed", "error", err)
		return "", false
	}
	return e.ID, true
}

// #endregion classify-and-route

// #region arbitrate

// ScoreAndArbitrate scores one finding and records the decision. It never
// fails: malformed findings land on the unknown category.
func (s *Service) ScoreAndArbitrate(ctx context.Context, f arbitration.Finding) ArbitrationResponse {
	d := s.arbitrator.ScoreAndArbitrate(ctx, f)
	if s.recorder != nil {
		s.recorder.RecordArbitration(d)
	}
	return newArbitrationResponse(d)
}

// #endregion arbitrate

// #region outcome

// RecordOutcome labels a remembered answer. The original entry is kept and
// marked superseded by a new entry carrying the outcome and, when given, the
// corrected response.
func (s *Service) RecordOutcome(ctx context.Context, patternID string, outcome patterns.Outcome, correction string) (patterns.Entry, error) {
	if outcome != patterns.OutcomeSuccess && outcome != patterns.OutcomeFailure {
		return patterns.Entry{}, fmt.Errorf("record outcome: outcome must be %q or %q, got %q",
			patterns.OutcomeSuccess, patterns.OutcomeFailure, outcome)
	}
	if s.corrector == nil {
		return patterns.Entry{}, ErrOutcomesUnsupported
	}
	e, err := s.corrector.Supersede(ctx, patternID, patterns.Entry{Outcome: outcome, ResponseText: correction})
	if err != nil {
		return patterns.Entry{}, fmt.Errorf("record outcome for %s: %w", patternID, err)
	}
	return e, nil
}

// #endregion outcome

// #region stats

// StatsResponse is the answer to routing_stats.
type StatsResponse struct {
	stats.Snapshot
	Routed              int64   `json:"routed"`
	FastShare           float64 `json:"fast_share"`
	FastShareTarget     float64 `json:"fast_share_target"`
	EscalationThreshold float64 `json:"escalation_threshold"`
	MediumPolicy        string  `json:"medium_policy"`
}

// Stats reports the live counters with the active policy.
func (s *Service) Stats() StatsResponse {
	snap := s.stats.Snapshot()
	pol := s.router.Policy()
	return StatsResponse{
		Snapshot:            snap,
		Routed:              snap.Routed(),
		FastShare:           snap.FastShare(),
		FastShareTarget:     s.target,
		EscalationThreshold: pol.EscalationThreshold,
		MediumPolicy:        string(pol.MediumPolicy),
	}
}

// #endregion stats
