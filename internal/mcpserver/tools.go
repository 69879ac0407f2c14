// Package mcpserver exposes the triage service as MCP tools.
//
// Each tool is a struct with its dependency injected via constructor;
// Definition returns the schema and Handle serves the call. Handlers report
// bad input and service failures as tool errors, never as protocol errors.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/danielpatrickdp/adaptive-triage/internal/arbitration"
	"github.com/danielpatrickdp/adaptive-triage/internal/patterns"
	"github.com/danielpatrickdp/adaptive-triage/internal/router"
	"github.com/danielpatrickdp/adaptive-triage/internal/triage"
)

// Triager is the part of *triage.Service the tools call.
type Triager interface {
	ClassifyAndRoute(ctx context.Context, text string, hints ...string) (triage.RouteResponse, error)
	ScoreAndArbitrate(ctx context.Context, f arbitration.Finding) triage.ArbitrationResponse
	RecordOutcome(ctx context.Context, patternID string, outcome patterns.Outcome, correction string) (patterns.Entry, error)
	Stats() triage.StatsResponse
}

// #region helpers

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// floatArg returns nil when key is missing or not a number.
func floatArg(req mcp.CallToolRequest, key string) *float64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return nil
	}
	return &v
}

// stringsArg reads an array of strings, skipping non-string and blank items.
// JSON arrays arrive as []any.
func stringsArg(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// #endregion helpers

// #region classify-and-route

// RouteTool answers a query through the fast or deep tier.
type RouteTool struct {
	svc Triager
}

// NewRouteTool creates the classify_and_route handler.
func NewRouteTool(svc Triager) *RouteTool {
	return &RouteTool{svc: svc}
}

// Definition returns the MCP tool definition.
func (t *RouteTool) Definition() mcp.Tool {
	return mcp.NewTool("classify_and_route",
		mcp.WithDescription(
			"Classify a query's complexity, retrieve similar past answers and route it "+
				"to the fast or deep model tier. Low-confidence fast answers escalate. "+
				"Returns the answer with the tier used, confidence and a pattern_id for record_outcome.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The query to answer"),
		),
		mcp.WithArray("hints",
			mcp.Description("Optional context lines such as file names or error messages"),
			mcp.WithStringItems(),
		),
	)
}

// Handle processes the classify_and_route tool call.
func (t *RouteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := strings.TrimSpace(req.GetString("text", ""))
	if text == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}
	hints := stringsArg(req, "hints")

	resp, err := t.svc.ClassifyAndRoute(ctx, text, hints...)
	switch {
	case err == nil:
		return jsonResult(resp)
	case errors.Is(err, router.ErrNoInferenceAvailable):
		// The response still says what happened.
		return jsonResult(resp)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("classify and route: %v", err)), nil
	}
}

// #endregion classify-and-route

// #region score-and-arbitrate

// ArbitrateTool scores a code-quality finding and assigns a priority.
type ArbitrateTool struct {
	svc Triager
}

// NewArbitrateTool creates the score_and_arbitrate handler.
func NewArbitrateTool(svc Triager) *ArbitrateTool {
	return &ArbitrateTool{svc: svc}
}

// Definition returns the MCP tool definition.
func (t *ArbitrateTool) Definition() mcp.Tool {
	return mcp.NewTool("score_and_arbitrate",
		mcp.WithDescription(
			"Score a finding on complexity, importance, deferability and impact, "+
				"then assign a priority tier from P0 (execute_now) through P1 (batch_session), "+
				"P2 (schedule_sprint), P3 (defer) to P4 (backlog). Unrecognized categories and "+
				"findings missing a category, location or description score conservatively as unknown.",
		),
		mcp.WithString("category",
			mcp.Description("Finding category: duplication-without-search, dependency-issue, dead-code, protocol-violation, orphaned-file"),
		),
		mcp.WithString("description",
			mcp.Description("What the detector found"),
		),
		mcp.WithString("location",
			mcp.Description("File and line, e.g. internal/router/router.go:42"),
		),
		mcp.WithString("evidence",
			mcp.Description("Supporting excerpt or detector output"),
		),
		mcp.WithString("id",
			mcp.Description("Finding ID; generated when omitted"),
		),
		mcp.WithNumber("detector_confidence",
			mcp.Description("Detector confidence in [0, 1]"),
		),
	)
}

// Handle processes the score_and_arbitrate tool call.
func (t *ArbitrateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := arbitration.Finding{
		ID:                 req.GetString("id", ""),
		Category:           req.GetString("category", ""),
		Description:        req.GetString("description", ""),
		Location:           req.GetString("location", ""),
		Evidence:           req.GetString("evidence", ""),
		DetectorConfidence: floatArg(req, "detector_confidence"),
	}
	return jsonResult(t.svc.ScoreAndArbitrate(ctx, f))
}

// #endregion score-and-arbitrate

// #region record-outcome

// OutcomeTool labels a remembered answer as a success or failure.
type OutcomeTool struct {
	svc Triager
}

// NewOutcomeTool creates the record_outcome handler.
func NewOutcomeTool(svc Triager) *OutcomeTool {
	return &OutcomeTool{svc: svc}
}

// Definition returns the MCP tool definition.
func (t *OutcomeTool) Definition() mcp.Tool {
	return mcp.NewTool("record_outcome",
		mcp.WithDescription(
			"Report whether a routed answer worked. Failed answers stop being used as "+
				"context; a correction replaces the remembered response.",
		),
		mcp.WithString("pattern_id",
			mcp.Required(),
			mcp.Description("pattern_id returned by classify_and_route"),
		),
		mcp.WithString("outcome",
			mcp.Required(),
			mcp.Description("success or failure"),
			mcp.Enum(string(patterns.OutcomeSuccess), string(patterns.OutcomeFailure)),
		),
		mcp.WithString("correction",
			mcp.Description("Corrected answer to remember instead"),
		),
	)
}

// Handle processes the record_outcome tool call.
func (t *OutcomeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("pattern_id", ""))
	if id == "" {
		return mcp.NewToolResultError("'pattern_id' is required"), nil
	}
	outcome := patterns.Outcome(req.GetString("outcome", ""))

	e, err := t.svc.RecordOutcome(ctx, id, outcome, req.GetString("correction", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Recorded %s for %s (new pattern %s)", e.Outcome, id, e.ID)), nil
}

// #endregion record-outcome

// #region routing-stats

// StatsTool reports live routing counters.
type StatsTool struct {
	svc Triager
}

// NewStatsTool creates the routing_stats handler.
func NewStatsTool(svc Triager) *StatsTool {
	return &StatsTool{svc: svc}
}

// Definition returns the MCP tool definition.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool("routing_stats",
		mcp.WithDescription("Show routing counters since startup: tier usage, escalations, fast-tier share against its target, degradations and arbitration totals."),
	)
}

// Handle processes the routing_stats tool call.
func (t *StatsTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.svc.Stats())
}

// #endregion routing-stats
