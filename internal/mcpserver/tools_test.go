package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-triage/internal/arbitration"
	"github.com/danielpatrickdp/adaptive-triage/internal/inference"
	"github.com/danielpatrickdp/adaptive-triage/internal/patterns"
	"github.com/danielpatrickdp/adaptive-triage/internal/router"
	"github.com/danielpatrickdp/adaptive-triage/internal/stats"
	"github.com/danielpatrickdp/adaptive-triage/internal/triage"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

type fakeTriager struct {
	routeResp triage.RouteResponse
	routeErr  error
	gotText   string
	gotHints  []string

	gotFinding arbitration.Finding

	outcomeErr error
	gotOutcome patterns.Outcome
}

func (f *fakeTriager) ClassifyAndRoute(_ context.Context, text string, hints ...string) (triage.RouteResponse, error) {
	f.gotText, f.gotHints = text, hints
	return f.routeResp, f.routeErr
}

func (f *fakeTriager) ScoreAndArbitrate(_ context.Context, fd arbitration.Finding) triage.ArbitrationResponse {
	f.gotFinding = fd
	return triage.ArbitrationResponse{FindingID: "fd-1", Category: arbitration.CategoryDeadCode, PriorityTier: arbitration.P3, Total: 8}
}

func (f *fakeTriager) RecordOutcome(_ context.Context, id string, o patterns.Outcome, _ string) (patterns.Entry, error) {
	f.gotOutcome = o
	if f.outcomeErr != nil {
		return patterns.Entry{}, f.outcomeErr
	}
	return patterns.Entry{ID: "new-" + id, Outcome: o}, nil
}

func (f *fakeTriager) Stats() triage.StatsResponse {
	return triage.StatsResponse{Snapshot: stats.Snapshot{FastResolved: 3, DeepDirect: 1}, Routed: 4, FastShare: 0.75, FastShareTarget: 0.6}
}

func makeReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// ─── RouteTool ───────────────────────────────────────────────────────────────

func TestRouteTool_Definition(t *testing.T) {
	def := NewRouteTool(&fakeTriager{}).Definition()
	assert.Equal(t, "classify_and_route", def.Name)
	assert.Contains(t, def.InputSchema.Properties, "text")
	assert.Contains(t, def.InputSchema.Properties, "hints")
	assert.Equal(t, []string{"text"}, def.InputSchema.Required)
}

func TestRouteTool_Handle(t *testing.T) {
	fake := &fakeTriager{routeResp: triage.RouteResponse{
		Response:   "close(ch)",
		TierUsed:   inference.TierFast,
		Confidence: 0.92,
		Reason:     router.ReasonConfident,
		PatternID:  "p-1",
	}}
	res, err := NewRouteTool(fake).Handle(context.Background(), makeReq(map[string]any{
		"text":  "  how do I close a channel?  ",
		"hints": []any{"file: worker.go"},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))

	assert.Equal(t, "how do I close a channel?", fake.gotText)
	assert.Equal(t, []string{"file: worker.go"}, fake.gotHints)

	var got triage.RouteResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &got))
	assert.Equal(t, fake.routeResp, got)
}

func TestRouteTool_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		err     error
		isError bool
	}{
		{"missing text", map[string]any{}, nil, true},
		{"blank text", map[string]any{"text": "   "}, nil, true},
		{"busy", map[string]any{"text": "q"}, inference.ErrBusy, true},
		{"no inference still answers", map[string]any{"text": "q"}, fmt.Errorf("route: %w", router.ErrNoInferenceAvailable), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeTriager{routeErr: tt.err, routeResp: triage.RouteResponse{NoInference: true, Reason: router.ReasonNoInference}}
			res, err := NewRouteTool(fake).Handle(context.Background(), makeReq(tt.args))
			require.NoError(t, err)
			assert.Equal(t, tt.isError, res.IsError, resultText(res))
		})
	}
}

// ─── ArbitrateTool ───────────────────────────────────────────────────────────

func TestArbitrateTool_Handle(t *testing.T) {
	fake := &fakeTriager{}
	res, err := NewArbitrateTool(fake).Handle(context.Background(), makeReq(map[string]any{
		"category":            "dead-code",
		"description":         "unused helper",
		"location":            "internal/util.go:10",
		"detector_confidence": 0.8,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))

	assert.Equal(t, "dead-code", fake.gotFinding.Category)
	require.NotNil(t, fake.gotFinding.DetectorConfidence)
	assert.Equal(t, 0.8, *fake.gotFinding.DetectorConfidence)

	var got triage.ArbitrationResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &got))
	assert.Equal(t, arbitration.P3, got.PriorityTier)
}

func TestArbitrateTool_OptionalConfidenceAbsent(t *testing.T) {
	fake := &fakeTriager{}
	_, err := NewArbitrateTool(fake).Handle(context.Background(), makeReq(map[string]any{"description": "odd"}))
	require.NoError(t, err)
	assert.Nil(t, fake.gotFinding.DetectorConfidence)
}

func TestArbitrateTool_MissingDescriptionStillDecided(t *testing.T) {
	svc := triage.New(triage.Deps{Arbitrator: arbitration.New(arbitration.DefaultTable(), arbitration.Options{})})
	res, err := NewArbitrateTool(svc).Handle(context.Background(), makeReq(map[string]any{
		"category": "dead-code",
		"location": "a.go:1",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))

	var got triage.ArbitrationResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &got))
	assert.True(t, got.Malformed)
	assert.Equal(t, arbitration.CategoryUnknown, got.Category)
	assert.Contains(t, []arbitration.Priority{arbitration.P3, arbitration.P4}, got.PriorityTier)
	assert.NotEmpty(t, got.FindingID)
	assert.NotEmpty(t, got.Action)
}

// ─── OutcomeTool ─────────────────────────────────────────────────────────────

func TestOutcomeTool_Handle(t *testing.T) {
	fake := &fakeTriager{}
	res, err := NewOutcomeTool(fake).Handle(context.Background(), makeReq(map[string]any{
		"pattern_id": "p-1",
		"outcome":    "failure",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, patterns.OutcomeFailure, fake.gotOutcome)
	assert.Contains(t, resultText(res), "new-p-1")
}

func TestOutcomeTool_Errors(t *testing.T) {
	res, err := NewOutcomeTool(&fakeTriager{}).Handle(context.Background(), makeReq(map[string]any{"outcome": "success"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	fake := &fakeTriager{outcomeErr: errors.New("record outcome for p-9: pattern not found")}
	res, err = NewOutcomeTool(fake).Handle(context.Background(), makeReq(map[string]any{"pattern_id": "p-9", "outcome": "success"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "not found")
}

// ─── StatsTool & server ──────────────────────────────────────────────────────

func TestStatsTool_Handle(t *testing.T) {
	res, err := NewStatsTool(&fakeTriager{}).Handle(context.Background(), makeReq(nil))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &got))
	assert.EqualValues(t, 4, got["routed"])
	assert.EqualValues(t, 3, got["fast_resolved"])
	assert.EqualValues(t, 0.75, got["fast_share"])
}

func TestNew_RegistersTools(t *testing.T) {
	s := New(&fakeTriager{})
	msg := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	for _, name := range []string{"classify_and_route", "score_and_arbitrate", "record_outcome", "routing_stats"} {
		assert.Contains(t, string(b), `"`+name+`"`)
	}
}
