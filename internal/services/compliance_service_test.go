package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/pkg/models"
)

func TestComplianceReport(t *testing.T) {
	f := newFixture(t)
	wf := f.register(t, "report")
	user1 := models.UserActor("user1", "User One")
	user2 := models.UserActor("user2", "User Two")

	// Day 0: manual save before the period.
	f.snapshot(t, wf.ID, models.SnapshotManual, user1, models.Document{"steps": []any{"A"}})

	start := epoch.Add(day)
	end := start.Add(4 * day)

	// Days 1..4: two daily backups, one unchanged, a manual edit and a rollback.
	f.clock.Set(start.Add(time.Hour))
	f.snapshot(t, wf.ID, models.SnapshotDailyBackup, models.SystemActorRef(), models.Document{"steps": []any{"A"}})
	f.clock.Set(start.Add(day + time.Hour))
	v3 := f.snapshot(t, wf.ID, models.SnapshotManual, user2, models.Document{"steps": []any{"A", "B"}})
	f.clock.Set(start.Add(2*day + time.Hour))
	f.snapshot(t, wf.ID, models.SnapshotOnPublish, models.SystemActorRef(), models.Document{"steps": []any{"A", "B", "C"}})
	f.clock.Set(start.Add(3*day + time.Hour))
	_, err := f.versions.Rollback(f.ctx, wf.ID, v3.ID, user1)
	require.NoError(t, err)

	// After the period.
	f.clock.Set(end.Add(time.Hour))
	f.snapshot(t, wf.ID, models.SnapshotDailyBackup, models.SystemActorRef(), models.Document{})

	report, err := f.compliance.Generate(f.ctx, f.account.ID, wf.ID, start, end)
	require.NoError(t, err)

	assert.Equal(t, wf.ID, report.WorkflowID)
	assert.Equal(t, wf.Name, report.WorkflowName)
	assert.Equal(t, end.Add(time.Hour), report.GeneratedAt)

	s := report.Summary
	assert.Equal(t, len(report.Versions), s.TotalVersions)
	assert.Equal(t, 4, s.TotalVersions)
	assert.Equal(t, 2, s.AutomatedBackups)
	// The manual save and the rollback.
	assert.Equal(t, 2, s.ManualSaves)
	assert.Equal(t, 0, s.SystemBackups)
	// The first in-range backup matches its out-of-range predecessor.
	assert.False(t, report.Versions[0].Changes.Initial)
	assert.Equal(t, 3, s.TotalChanges)
	// system, user2, user1.
	assert.Equal(t, 3, s.UniqueUsers)
	assert.LessOrEqual(t, s.UniqueUsers, s.TotalVersions+len(report.AuditTrail))
	// 2 automated of 4 expected.
	assert.Equal(t, 50, s.ComplianceScore)

	for _, v := range report.Versions {
		assert.True(t, report.ReportPeriod.Contains(v.CreatedAt))
	}
	for _, e := range report.AuditTrail {
		assert.True(t, report.ReportPeriod.Contains(e.Timestamp))
	}
	assert.Len(t, report.AuditTrail, 4)

	assert.Equal(t, []string{
		"Compliance score 50 is below the target of 80; increase backup frequency",
		"1 rollback was performed in this period; review the changes that preceded them",
	}, report.Recommendations)
}

func TestComplianceReportEmptyPeriod(t *testing.T) {
	f := newFixture(t)
	wf := f.register(t, "empty")
	f.snapshot(t, wf.ID, models.SnapshotManual, models.UserActor("u", ""), models.Document{"a": 1.0})

	start := epoch.Add(30 * day)
	report, err := f.compliance.Generate(f.ctx, "", wf.ID, start, start.Add(10*day))
	require.NoError(t, err)

	assert.Equal(t, models.ComplianceSummary{}, report.Summary)
	assert.Empty(t, report.Versions)
	assert.Empty(t, report.AuditTrail)
	assert.Equal(t, []string{
		"No versions were recorded in this period; take a manual snapshot or enable automated backups",
		"No automated backup in 10 days",
		"Compliance score 0 is below the target of 80; increase backup frequency",
	}, report.Recommendations)
}

func TestComplianceReportFullCoverage(t *testing.T) {
	f := newFixture(t)
	wf := f.register(t, "covered")

	start := epoch
	end := epoch.Add(3 * day)
	for i := 0; i < 3; i++ {
		f.clock.Set(start.Add(time.Duration(i)*day + time.Hour))
		f.snapshot(t, wf.ID, models.SnapshotDailyBackup, models.SystemActorRef(), models.Document{"n": float64(i)})
	}
	f.clock.Set(start.Add(2*day + 2*time.Hour))
	f.snapshot(t, wf.ID, models.SnapshotOnPublish, models.SystemActorRef(), models.Document{"n": 9.0})

	report, err := f.compliance.Generate(f.ctx, f.account.ID, wf.ID, start, end)
	require.NoError(t, err)
	assert.Equal(t, 100, report.Summary.ComplianceScore)
	assert.Equal(t, 4, report.Summary.AutomatedBackups)
	assert.Empty(t, report.Recommendations)
}

func TestComplianceReportStaleGap(t *testing.T) {
	f := newFixture(t)
	wf := f.register(t, "stale")

	start := epoch
	end := epoch.Add(12 * day)
	f.clock.Set(start.Add(day))
	f.snapshot(t, wf.ID, models.SnapshotDailyBackup, models.SystemActorRef(), models.Document{})
	f.clock.Set(start.Add(10 * day))
	f.snapshot(t, wf.ID, models.SnapshotDailyBackup, models.SystemActorRef(), models.Document{})

	report, err := f.compliance.Generate(f.ctx, f.account.ID, wf.ID, start, end)
	require.NoError(t, err)
	assert.Contains(t, report.Recommendations, "No automated backup in 9 days")
	assert.Equal(t, 16, report.Summary.ComplianceScore)
}

func TestComplianceReportErrors(t *testing.T) {
	f := newFixture(t)
	wf := f.register(t, "errors")

	_, err := f.compliance.Generate(f.ctx, f.account.ID, wf.ID, epoch, epoch.Add(-time.Second))
	assert.True(t, apperrors.IsInvalidRange(err))

	_, err = f.compliance.Generate(f.ctx, f.account.ID, "missing", epoch, epoch.Add(day))
	assert.True(t, apperrors.IsNotFound(err))

	_, err = f.compliance.Generate(f.ctx, "another-account", wf.ID, epoch, epoch.Add(day))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestComplianceScore(t *testing.T) {
	period := func(d time.Duration) models.ReportPeriod {
		return models.ReportPeriod{StartDate: epoch, EndDate: epoch.Add(d)}
	}

	assert.Equal(t, 1, expectedBackups(period(0)))
	assert.Equal(t, 1, expectedBackups(period(time.Hour)))
	assert.Equal(t, 2, expectedBackups(period(day+time.Second)))
	assert.Equal(t, 7, expectedBackups(period(7*day)))

	assert.Equal(t, 0, complianceScore(period(7*day), 0))
	assert.Equal(t, 42, complianceScore(period(7*day), 3))
	assert.Equal(t, 100, complianceScore(period(7*day), 7))
	assert.Equal(t, 100, complianceScore(period(day), 5))
}
