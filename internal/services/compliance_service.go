package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/pkg/models"
)

const day = 24 * time.Hour

// ComplianceOptions tunes the report recommendations.
type ComplianceOptions struct {
	// StaleBackupDays is the longest tolerated gap between automated backups.
	StaleBackupDays int
	// TargetScore is the compliance score below which a report recommends more backups.
	TargetScore int
}

// DefaultComplianceOptions returns the stock recommendation thresholds.
func DefaultComplianceOptions() ComplianceOptions {
	return ComplianceOptions{StaleBackupDays: 7, TargetScore: 80}
}

// ComplianceService assembles compliance reports.
type ComplianceService struct {
	workflows *WorkflowService
	versions  *VersionService
	audit     *AuditRecorder
	clock     Clock
	opts      ComplianceOptions
}

// NewComplianceService creates a new ComplianceService.
func NewComplianceService(workflows *WorkflowService, versions *VersionService, audit *AuditRecorder, clock Clock, opts ComplianceOptions) *ComplianceService {
	if clock == nil {
		clock = SystemClock
	}
	return &ComplianceService{workflows: workflows, versions: versions, audit: audit, clock: clock, opts: opts}
}

// Generate builds the report of a workflow over the inclusive period
// [start, end]. accountID scopes the workflow lookup when non-empty.
func (s *ComplianceService) Generate(ctx context.Context, accountID, workflowID string, start, end time.Time) (*models.ComplianceReport, error) {
	if start.After(end) {
		return nil, fmt.Errorf("start %s after end %s: %w", start.Format(time.RFC3339), end.Format(time.RFC3339), apperrors.ErrInvalidRange)
	}
	workflow, err := s.workflows.Get(ctx, accountID, workflowID)
	if err != nil {
		return nil, err
	}

	// Change summaries are computed over the full history so that the first
	// version in range is compared against its real predecessor.
	history, err := s.versions.GetHistory(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	period := models.ReportPeriod{StartDate: start, EndDate: end}
	versions := make([]models.VersionWithChanges, 0, len(history))
	for _, v := range history {
		if period.Contains(v.CreatedAt) {
			versions = append(versions, v)
		}
	}

	trail, err := s.audit.List(ctx, workflowID, &start, &end)
	if err != nil {
		return nil, err
	}

	summary := summarize(period, versions, trail)
	return &models.ComplianceReport{
		WorkflowID:      workflow.ID,
		WorkflowName:    workflow.Name,
		ReportPeriod:    period,
		Summary:         summary,
		Versions:        versions,
		AuditTrail:      trail,
		Recommendations: s.recommend(period, summary, versions, trail),
		GeneratedAt:     s.clock(),
	}, nil
}

func summarize(period models.ReportPeriod, versions []models.VersionWithChanges, trail []*models.AuditTrailEntry) models.ComplianceSummary {
	summary := models.ComplianceSummary{TotalVersions: len(versions)}
	users := make(map[string]struct{})

	for _, v := range versions {
		if v.Changes.HasChanges() {
			summary.TotalChanges++
		}
		switch {
		case v.SnapshotType.Automated():
			summary.AutomatedBackups++
		case v.SnapshotType == models.SnapshotManual:
			summary.ManualSaves++
		case v.SnapshotType == models.SnapshotSystem:
			summary.SystemBackups++
		}
		createdBy := v.CreatedBy
		if createdBy == "" {
			createdBy = models.SystemActor
		}
		users[createdBy] = struct{}{}
	}
	for _, e := range trail {
		users[e.ActorKey()] = struct{}{}
	}

	summary.UniqueUsers = len(users)
	summary.ComplianceScore = complianceScore(period, summary.AutomatedBackups)
	return summary
}

// expectedBackups is the number of daily backups a period calls for.
func expectedBackups(period models.ReportPeriod) int {
	days := int(math.Ceil(float64(period.EndDate.Sub(period.StartDate)) / float64(day)))
	if days < 1 {
		days = 1
	}
	return days
}

// complianceScore is the share of expected daily backups actually taken,
// as a percentage capped at 100.
func complianceScore(period models.ReportPeriod, automated int) int {
	score := 100 * automated / expectedBackups(period)
	if score > 100 {
		score = 100
	}
	return score
}

// longestBackupGap is the longest stretch of the period without an
// automated backup, including the stretches before the first and after the
// last one.
func longestBackupGap(period models.ReportPeriod, versions []models.VersionWithChanges) time.Duration {
	var longest time.Duration
	last := period.StartDate
	for _, v := range versions {
		if !v.SnapshotType.Automated() {
			continue
		}
		if gap := v.CreatedAt.Sub(last); gap > longest {
			longest = gap
		}
		last = v.CreatedAt
	}
	if gap := period.EndDate.Sub(last); gap > longest {
		longest = gap
	}
	return longest
}

func (s *ComplianceService) recommend(period models.ReportPeriod, summary models.ComplianceSummary,
	versions []models.VersionWithChanges, trail []*models.AuditTrailEntry) []string {
	recommendations := []string{}

	if summary.TotalVersions == 0 {
		recommendations = append(recommendations,
			"No versions were recorded in this period; take a manual snapshot or enable automated backups")
	} else if summary.AutomatedBackups == 0 {
		recommendations = append(recommendations,
			"No automated backups in this period; enable daily backups or on-publish snapshots")
	}

	if s.opts.StaleBackupDays > 0 {
		gapDays := int(longestBackupGap(period, versions) / day)
		if gapDays >= s.opts.StaleBackupDays {
			recommendations = append(recommendations, fmt.Sprintf("No automated backup in %d days", gapDays))
		}
	}

	if summary.ComplianceScore < s.opts.TargetScore {
		recommendations = append(recommendations, fmt.Sprintf(
			"Compliance score %d is below the target of %d; increase backup frequency",
			summary.ComplianceScore, s.opts.TargetScore))
	}

	rollbacks := 0
	for _, e := range trail {
		if e.Action == models.AuditActionRollback {
			rollbacks++
		}
	}
	if rollbacks > 0 {
		recommendations = append(recommendations, fmt.Sprintf(
			"%d %s performed in this period; review the changes that preceded them",
			rollbacks, pluralize(rollbacks, "rollback was", "rollbacks were")))
	}

	return recommendations
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
