package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

const instructions = `Adaptive triage routes questions between a fast local model and a deeper model.

- classify_and_route: answer a question; keep the returned pattern_id.
- record_outcome: report whether that answer worked so future retrieval improves.
- score_and_arbitrate: prioritize a code-quality finding as P0 execute_now, P1 batch_session,
  P2 schedule_sprint, P3 defer or P4 backlog.
- routing_stats: check how often the fast tier resolves queries.`

// New creates the MCP server with every triage tool registered.
func New(svc Triager) *server.MCPServer {
	s := server.NewMCPServer(
		"adaptive-triage",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	route := NewRouteTool(svc)
	s.AddTool(route.Definition(), route.Handle)

	arbitrate := NewArbitrateTool(svc)
	s.AddTool(arbitrate.Definition(), arbitrate.Handle)

	outcome := NewOutcomeTool(svc)
	s.AddTool(outcome.Definition(), outcome.Handle)

	st := NewStatsTool(svc)
	s.AddTool(st.Definition(), st.Handle)

	return s
}
