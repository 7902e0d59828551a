package services

import (
	"context"
	"time"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/internal/logging"
	"workflowguard/backend/internal/repository"
	"workflowguard/backend/pkg/models"
)

// DefaultRecentActivityWindow is the trailing window counted as recent activity.
const DefaultRecentActivityWindow = 24 * time.Hour

// StatsService computes dashboard and per-workflow rollups.
type StatsService struct {
	repo    repository.Repository
	billing BillingClient
	clock   Clock
	started time.Time
	window  time.Duration
	logger  *logging.Logger
}

// NewStatsService creates a new StatsService. Uptime is measured from its creation.
func NewStatsService(repo repository.Repository, billing BillingClient, clock Clock, window time.Duration, logger *logging.Logger) *StatsService {
	if clock == nil {
		clock = SystemClock
	}
	if window <= 0 {
		window = DefaultRecentActivityWindow
	}
	return &StatsService{
		repo:    repo,
		billing: billing,
		clock:   clock,
		started: clock(),
		window:  window,
		logger:  logger.Named("stats"),
	}
}

// WorkflowStats rolls up the versions of a single workflow. A workflow
// without versions is reported unprotected.
func (s *StatsService) WorkflowStats(ctx context.Context, workflow *models.Workflow) (*models.WorkflowStats, error) {
	tally, err := s.repo.TallyVersions(ctx, workflow.ID)
	if err != nil {
		return nil, err
	}

	stats := &models.WorkflowStats{
		Workflow:         workflow,
		ProtectionStatus: models.ProtectionUnprotected,
		VersionCount:     tally.Count,
		LatestVersion:    tally.LatestNumber,
		LastSnapshotAt:   tally.LatestAt,
		LastSnapshotType: tally.LatestType,
		LastModifiedBy:   tally.LatestBy,
	}
	if tally.Count > 0 {
		stats.ProtectionStatus = models.ProtectionProtected
	}
	return stats, nil
}

// ListWorkflowStats returns the rollup of every live workflow of an account.
func (s *StatsService) ListWorkflowStats(ctx context.Context, accountID string) ([]*models.WorkflowStats, error) {
	workflows, err := s.repo.ListWorkflows(ctx, accountID)
	if err != nil {
		return nil, err
	}

	stats := make([]*models.WorkflowStats, 0, len(workflows))
	for _, w := range workflows {
		ws, err := s.WorkflowStats(ctx, w)
		if err != nil {
			return nil, err
		}
		stats = append(stats, ws)
	}
	return stats, nil
}

// Dashboard aggregates an account's workflows, plan usage and recent activity.
func (s *StatsService) Dashboard(ctx context.Context, accountID string) (*models.DashboardStats, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	workflowStats, err := s.ListWorkflowStats(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	stats := &models.DashboardStats{
		TotalWorkflows: len(workflowStats),
		UptimeSeconds:  now.Sub(s.started).Seconds(),
	}
	for _, ws := range workflowStats {
		if ws.IsActive() {
			stats.ActiveWorkflows++
		}
		if ws.ProtectionStatus == models.ProtectionProtected {
			stats.ProtectedWorkflows++
		}
		stats.TotalVersions += ws.VersionCount
	}

	plan, err := s.billing.GetPlan(ctx, account)
	if err != nil {
		s.logger.Error("Failed to read plan", "account_id", accountID, "error", err)
		return nil, apperrors.Unavailable("billing", err)
	}
	stats.PlanID = plan.ID
	stats.PlanStatus = plan.Status
	stats.PlanCapacity = plan.Capacity
	stats.PlanUsed, stats.OverLimit = planUsage(stats.ProtectedWorkflows, plan)

	recent, err := s.repo.CountAuditSince(ctx, accountID, now.Add(-s.window))
	if err != nil {
		return nil, err
	}
	stats.RecentActivity = recent

	return stats, nil
}

// planUsage reports the capacity consumed by protected workflows, clamped
// to the plan's capacity, and whether the account exceeds it.
func planUsage(protected int, plan models.Plan) (used int, overLimit bool) {
	if plan.Unlimited() {
		return protected, false
	}
	if protected > plan.Capacity {
		return plan.Capacity, true
	}
	return protected, false
}
