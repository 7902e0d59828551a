package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflowguard/backend/internal/auth"
	"workflowguard/backend/internal/logging"
	"workflowguard/backend/internal/repository"
	"workflowguard/backend/internal/services"
	"workflowguard/backend/pkg/models"
)

var now = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	server   *Server
	ctx      context.Context
	workflow *models.Workflow
	first    *models.WorkflowVersion
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := repository.NewMemoryStore()
	clock := func() time.Time { return now }
	logger := logging.NewNop()

	audit := services.NewAuditRecorder(repo, clock, logger)
	workflows := services.NewWorkflowService(repo, audit, clock, logger)
	versions := services.NewVersionService(repo, audit, clock, logger)

	portal := int64(42)
	account := &models.Account{Name: "Acme", Domain: "acme.test", PortalID: &portal, PlanID: "starter"}
	require.NoError(t, repo.CreateAccount(context.Background(), account))

	ctx := auth.WithIdentity(context.Background(), auth.Identity{AccountID: account.ID, UserID: "u1", Name: "Uma"})
	w, err := workflows.Register(ctx, services.RegisterWorkflowInput{
		AccountID: account.ID, PortalID: portal, SourceID: "77", Name: "Welcome", Actor: models.UserActor("u1", "Uma"),
	})
	require.NoError(t, err)
	first, err := versions.CreateVersion(ctx, services.CreateVersionInput{
		WorkflowID: w.ID, SnapshotType: models.SnapshotDailyBackup, Actor: models.SystemActorRef(), Data: models.Document{"steps": []any{"A"}},
	})
	require.NoError(t, err)
	_, err = versions.CreateVersion(ctx, services.CreateVersionInput{
		WorkflowID: w.ID, SnapshotType: models.SnapshotManual, Actor: models.UserActor("u1", "Uma"), Data: models.Document{"steps": []any{"A", "B"}},
	})
	require.NoError(t, err)

	s := NewServer(Deps{
		Workflows:  workflows,
		Versions:   versions,
		Compliance: services.NewComplianceService(workflows, versions, audit, clock, services.DefaultComplianceOptions()),
		Stats:      services.NewStatsService(repo, services.NewPlanCatalog(map[string]int{"starter": 5}, "starter"), clock, 0, logger),
		Clock:      clock,
	})
	return &fixture{server: s, ctx: ctx, workflow: w, first: first}
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	content, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return content.Text
}

func TestWorkflowHistoryTool(t *testing.T) {
	f := newFixture(t)

	result, err := f.server.handleHistory(f.ctx, call("workflow_history", map[string]any{"workflow_id": f.workflow.ID}))
	require.NoError(t, err)
	require.False(t, result.IsError, text(t, result))

	var history []models.VersionWithChanges
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &history))
	require.Len(t, history, 2)
	assert.True(t, history[0].Changes.Initial)
	assert.Equal(t, 1, history[1].Changes.Added)
}

func TestRollbackTool(t *testing.T) {
	f := newFixture(t)

	result, err := f.server.handleRollback(f.ctx, call("rollback_workflow", map[string]any{
		"workflow_id": f.workflow.ID,
		"version_id":  f.first.ID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, text(t, result))

	var version models.WorkflowVersion
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &version))
	assert.Equal(t, 3, version.VersionNumber)
	assert.Equal(t, "u1", version.CreatedBy)

	result, err = f.server.handleRollback(f.ctx, call("rollback_workflow", map[string]any{"workflow_id": f.workflow.ID}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestComplianceReportTool(t *testing.T) {
	f := newFixture(t)

	result, err := f.server.handleComplianceReport(f.ctx, call("compliance_report", map[string]any{
		"workflow_id": f.workflow.ID,
		"start":       "2026-06-01T00:00:00Z",
		"end":         "2026-06-01T23:00:00Z",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, text(t, result))

	var report models.ComplianceReport
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &report))
	assert.Equal(t, 2, report.Summary.TotalVersions)
	assert.Equal(t, 1, report.Summary.AutomatedBackups)
	assert.Equal(t, 1, report.Summary.ManualSaves)
	assert.Equal(t, 100, report.Summary.ComplianceScore)

	result, err = f.server.handleComplianceReport(f.ctx, call("compliance_report", map[string]any{
		"workflow_id": f.workflow.ID,
		"start":       "2026-06-02T00:00:00Z",
		"end":         "2026-06-01T00:00:00Z",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestDashboardStatsTool(t *testing.T) {
	f := newFixture(t)

	result, err := f.server.handleDashboardStats(f.ctx, call("dashboard_stats", nil))
	require.NoError(t, err)
	require.False(t, result.IsError, text(t, result))

	var stats models.DashboardStats
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &stats))
	assert.Equal(t, 1, stats.TotalWorkflows)
	assert.Equal(t, 1, stats.ProtectedWorkflows)
	assert.Equal(t, 2, stats.TotalVersions)
}

func TestToolsRequireIdentity(t *testing.T) {
	f := newFixture(t)

	result, err := f.server.handleDashboardStats(context.Background(), call("dashboard_stats", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	other := auth.WithIdentity(context.Background(), auth.Identity{AccountID: "someone-else", UserID: "x"})
	result, err = f.server.handleHistory(other, call("workflow_history", map[string]any{"workflow_id": f.workflow.ID}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
