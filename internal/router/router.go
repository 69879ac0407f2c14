package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/danielpatrickdp/adaptive-triage/internal/complexity"
	"github.com/danielpatrickdp/adaptive-triage/internal/inference"
	"github.com/danielpatrickdp/adaptive-triage/internal/patterns"
	"github.com/danielpatrickdp/adaptive-triage/internal/prompt"
	"github.com/danielpatrickdp/adaptive-triage/internal/stats"
)

var tracer = otel.Tracer("adaptive-triage.router")

// #region router

// Options carries the router's optional collaborators.
type Options struct {
	Estimator ConfidenceEstimator
	Stats     *stats.Aggregator
	Metrics   *Metrics
	Logger    *slog.Logger
}

// Router routes queries between a fast and a deep tier.
type Router struct {
	fast      *inference.Slot
	deep      *inference.Slot
	policy    Policy
	estimator ConfidenceEstimator
	stats     *stats.Aggregator
	metrics   *Metrics
	logger    *slog.Logger
	warn      *rate.Sometimes
	now       func() time.Time
}

// New builds a router. Either slot may wrap a nil backend, which the router
// treats as a permanently unavailable tier.
func New(fast, deep *inference.Slot, policy Policy, opts Options) *Router {
	if opts.Estimator == nil {
		opts.Estimator = NewHeuristicEstimator()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Router{
		fast:      fast,
		deep:      deep,
		policy:    policy,
		estimator: opts.Estimator,
		stats:     opts.Stats,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("component", "router"),
		warn:      &rate.Sometimes{First: 1, Interval: time.Minute},
		now:       time.Now,
	}
}

// Policy returns the active routing policy.
func (r *Router) Policy() Policy { return r.policy }

// #endregion router

// #region route

// Route answers q using the tier its complexity bucket and the fast tier's
// confidence call for.
//
//  1. simple (and medium under the gated policy): fast tier first
//  2. fast answer below EscalationThreshold, fast timeout or fast failure: escalate
//  3. medium (deep policy) and complex: deep tier directly
//  4. deep failure: context-only fallback; both tiers down: ErrNoInferenceAvailable
//
// A deep tier with a full queue returns inference.ErrBusy so the caller can retry.
// Caller cancellation abandons any in-flight call and returns ctx.Err().
func (r *Router) Route(ctx context.Context, q prompt.Query, f complexity.Features, ragContext []patterns.Match) (Result, error) {
	ctx, span := tracer.Start(ctx, "router.Route")
	defer span.End()
	span.SetAttributes(attribute.String("route.bucket", string(f.Bucket)))

	start := r.now()
	text := prompt.Render(q, ragContext)
	d := Decision{Bucket: f.Bucket}

	fastDown := !r.fast.Available()
	if r.tryFastFirst(f.Bucket) && !fastDown {
		out, err := r.fast.Generate(ctx, text)
		switch {
		case err == nil:
			r.metrics.tierCall(string(inference.TierFast), "ok")
			conf := r.estimator.EstimateConfidence(q.Text, out)
			if conf >= r.policy.EscalationThreshold {
				d.TierUsed = inference.TierFast
				d.Confidence = conf
				d.Reason = ReasonConfident
				return r.finish(span, start, Result{Response: out.Text, Model: out.Model, Decision: d}, stats.OutcomeFastResolved), nil
			}
			d.FastConfidence = &conf
			d.Reason = ReasonLowConfidence
		case ctx.Err() != nil:
			span.SetStatus(codes.Error, "cancelled")
			return Result{}, ctx.Err()
		case inference.IsTimeout(err):
			r.metrics.tierCall(string(inference.TierFast), "timeout")
			d.Reason = ReasonFastTimeout
		case inference.IsBusy(err):
			r.metrics.tierCall(string(inference.TierFast), "busy")
			r.stats.ObserveBusy()
			d.Reason = ReasonFastBusy
		default:
			r.metrics.tierCall(string(inference.TierFast), "error")
			fastDown = true
			d.Reason = ReasonFastUnavailable
			r.warn.Do(func() {
				r.logger.Warn("fast tier unavailable, escalating to deep tier", "error", err)
			})
		}
		d.Escalated = true
		r.metrics.escalation(d.Reason)
	} else if r.tryFastFirst(f.Bucket) {
		d.Escalated = true
		d.Reason = ReasonFastUnavailable
		r.metrics.escalation(d.Reason)
		r.warn.Do(func() {
			r.logger.Warn("fast tier not configured, escalating to deep tier")
		})
	} else {
		d.Reason = ReasonBucket
	}

	return r.routeDeep(ctx, span, start, q, text, ragContext, d, fastDown)
}

func (r *Router) tryFastFirst(b complexity.Bucket) bool {
	switch b {
	case complexity.BucketSimple:
		return true
	case complexity.BucketMedium:
		return r.policy.MediumPolicy == MediumGated
	default:
		return false
	}
}

// #endregion route

// #region deep

func (r *Router) routeDeep(ctx context.Context, span trace.Span, start time.Time, q prompt.Query, text string,
	ragContext []patterns.Match, d Decision, fastDown bool) (Result, error) {

	d.TierUsed = inference.TierDeep
	out, err := r.deep.Generate(ctx, text)
	if err == nil {
		r.metrics.tierCall(string(inference.TierDeep), "ok")
		d.Confidence = r.estimator.EstimateConfidence(q.Text, out)
		outcome := stats.OutcomeDeepDirect
		if d.Escalated {
			outcome = stats.OutcomeEscalated
		}
		return r.finish(span, start, Result{Response: out.Text, Model: out.Model, Decision: d}, outcome), nil
	}

	if ctx.Err() != nil {
		span.SetStatus(codes.Error, "cancelled")
		return Result{}, ctx.Err()
	}
	if inference.IsBusy(err) {
		r.metrics.tierCall(string(inference.TierDeep), "busy")
		r.stats.ObserveBusy()
		span.SetStatus(codes.Error, "deep tier busy")
		return Result{}, fmt.Errorf("route: %w", err)
	}

	deepReason := ReasonDeepUnavailable
	if inference.IsTimeout(err) {
		r.metrics.tierCall(string(inference.TierDeep), "timeout")
		deepReason = ReasonDeepTimeout
	} else {
		r.metrics.tierCall(string(inference.TierDeep), "error")
	}

	if fastDown {
		r.logger.Error("both tiers unavailable", "error", err)
		r.metrics.fallback("no_inference")
		d.Reason = ReasonNoInference
		d.Confidence = 0
		res := r.finish(span, start, Result{Decision: d, Degraded: true, NoInference: true}, stats.OutcomeNoInference)
		span.SetStatus(codes.Error, ErrNoInferenceAvailable.Error())
		return res, errors.Join(ErrNoInferenceAvailable, err)
	}

	r.warn.Do(func() {
		r.logger.Warn("deep tier failed, answering from retrieved context", "error", err, "context", len(ragContext))
	})
	r.metrics.fallback("rag_only")
	answer, conf := Fallback(ragContext)
	d.Reason = deepReason
	d.Confidence = conf
	return r.finish(span, start, Result{Response: answer, Decision: d, Degraded: true}, stats.OutcomeDegraded), nil
}

// #endregion deep

// #region finish

func (r *Router) finish(span trace.Span, start time.Time, res Result, outcome stats.RouteOutcome) Result {
	res.Decision.LatencyMS = r.now().Sub(start).Milliseconds()
	r.stats.ObserveRoute(outcome)
	r.metrics.observe(res.Decision)
	span.SetAttributes(
		attribute.String("route.tier", string(res.Decision.TierUsed)),
		attribute.Bool("route.escalated", res.Decision.Escalated),
		attribute.Float64("route.confidence", res.Decision.Confidence),
		attribute.String("route.reason", string(res.Decision.Reason)),
	)
	return res
}

// #endregion finish
