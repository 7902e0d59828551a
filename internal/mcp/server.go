package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"workflowguard/backend/internal/auth"
	"workflowguard/backend/internal/services"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// defaultReportDays is the compliance period when no start is given.
const defaultReportDays = 30

// Deps are the services exposed as tools.
type Deps struct {
	Workflows  *services.WorkflowService
	Versions   *services.VersionService
	Compliance *services.ComplianceService
	Stats      *services.StatsService
	Clock      services.Clock
}

type Server struct {
	mcpServer  *server.MCPServer
	workflows  *services.WorkflowService
	versions   *services.VersionService
	compliance *services.ComplianceService
	stats      *services.StatsService
	clock      services.Clock
}

func NewServer(d Deps) *Server {
	if d.Clock == nil {
		d.Clock = services.SystemClock
	}
	s := &Server{
		mcpServer: server.NewMCPServer(
			"WorkflowGuard",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		workflows:  d.Workflows,
		versions:   d.Versions,
		compliance: d.Compliance,
		stats:      d.Stats,
		clock:      d.Clock,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"workflow_history",
			mcp.WithDescription("List every version of a workflow with a summary of what changed"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
		),
		s.handleHistory,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"rollback_workflow",
			mcp.WithDescription("Restore an earlier version of a workflow as its newest version"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
			mcp.WithString("version_id", mcp.Required(), mcp.Description("The ID of the version to restore")),
		),
		s.handleRollback,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"compliance_report",
			mcp.WithDescription("Build the backup compliance report of a workflow"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
			mcp.WithString("start", mcp.Description("RFC 3339 start of the period, defaults to 30 days before end")),
			mcp.WithString("end", mcp.Description("RFC 3339 end of the period, defaults to now")),
		),
		s.handleComplianceReport,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"dashboard_stats",
			mcp.WithDescription("Summarize the account's workflows, backups and plan usage"),
		),
		s.handleDashboardStats,
	)
}

func (s *Server) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("Not authenticated"), nil
	}
	workflowID, err := request.RequireString("workflow_id")
	if err != nil || workflowID == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}

	workflow, err := s.workflows.Get(ctx, id.AccountID, workflowID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load workflow: %v", err)), nil
	}
	history, err := s.versions.GetHistory(ctx, workflow.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load history: %v", err)), nil
	}
	return jsonResult(history)
}

func (s *Server) handleRollback(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("Not authenticated"), nil
	}
	workflowID, err := request.RequireString("workflow_id")
	if err != nil || workflowID == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}
	versionID, err := request.RequireString("version_id")
	if err != nil || versionID == "" {
		return mcp.NewToolResultError("Missing required parameter: version_id"), nil
	}

	if _, err := s.workflows.Get(ctx, id.AccountID, workflowID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load workflow: %v", err)), nil
	}
	version, err := s.versions.Rollback(ctx, workflowID, versionID, id.Actor())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to roll back: %v", err)), nil
	}
	return jsonResult(version)
}

func (s *Server) handleComplianceReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("Not authenticated"), nil
	}
	workflowID, err := request.RequireString("workflow_id")
	if err != nil || workflowID == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}

	end := s.clock()
	if raw := request.GetString("end", ""); raw != "" {
		if end, err = time.Parse(time.RFC3339, raw); err != nil {
			return mcp.NewToolResultError("Invalid end: must be an RFC 3339 timestamp"), nil
		}
	}
	start := end.AddDate(0, 0, -defaultReportDays)
	if raw := request.GetString("start", ""); raw != "" {
		if start, err = time.Parse(time.RFC3339, raw); err != nil {
			return mcp.NewToolResultError("Invalid start: must be an RFC 3339 timestamp"), nil
		}
	}

	report, err := s.compliance.Generate(ctx, id.AccountID, workflowID, start, end)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to build report: %v", err)), nil
	}
	return jsonResult(report)
}

func (s *Server) handleDashboardStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("Not authenticated"), nil
	}
	stats, err := s.stats.Dashboard(ctx, id.AccountID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to compute stats: %v", err)), nil
	}
	return jsonResult(stats)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// MountHTTPHandlers serves the MCP SSE transport under /mcp. Tool calls
// read the caller identity from the request context, so mux must sit behind
// the auth middleware.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
