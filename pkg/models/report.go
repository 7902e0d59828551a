package models

import (
	"time"
)

// ReportPeriod is an inclusive timestamp range.
type ReportPeriod struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// Contains reports whether t falls inside the period, bounds included.
func (p ReportPeriod) Contains(t time.Time) bool {
	return !t.Before(p.StartDate) && !t.After(p.EndDate)
}

// ComplianceSummary holds the counts of a compliance report. Every count is
// derived from the Versions and AuditTrail lists of the same report.
type ComplianceSummary struct {
	TotalVersions    int `json:"total_versions"`
	TotalChanges     int `json:"total_changes"`
	AutomatedBackups int `json:"automated_backups"`
	ManualSaves      int `json:"manual_saves"`
	SystemBackups    int `json:"system_backups"`
	UniqueUsers      int `json:"unique_users"`
	ComplianceScore  int `json:"compliance_score"`
}

// ComplianceReport is the request-scoped compliance aggregate for a workflow.
type ComplianceReport struct {
	WorkflowID      string               `json:"workflow_id"`
	WorkflowName    string               `json:"workflow_name"`
	ReportPeriod    ReportPeriod         `json:"report_period"`
	Summary         ComplianceSummary    `json:"summary"`
	Versions        []VersionWithChanges `json:"versions"`
	AuditTrail      []*AuditTrailEntry   `json:"audit_trail"`
	Recommendations []string             `json:"recommendations"`
	GeneratedAt     time.Time            `json:"generated_at"`
}

// ProtectionStatus describes whether a workflow has any recorded version.
type ProtectionStatus string

const (
	ProtectionProtected   ProtectionStatus = "protected"
	ProtectionUnprotected ProtectionStatus = "unprotected"
)

// WorkflowStats embeds a workflow with its version rollup.
type WorkflowStats struct {
	*Workflow
	ProtectionStatus ProtectionStatus `json:"protection_status"`
	VersionCount     int              `json:"version_count"`
	LatestVersion    int              `json:"latest_version"`
	LastSnapshotAt   *time.Time       `json:"last_snapshot_at,omitempty"`
	LastSnapshotType SnapshotType     `json:"last_snapshot_type,omitempty"`
	LastModifiedBy   string           `json:"last_modified_by,omitempty"`
}

// DashboardStats is the per-account rollup shown on the dashboard.
type DashboardStats struct {
	TotalWorkflows     int     `json:"total_workflows"`
	ActiveWorkflows    int     `json:"active_workflows"`
	ProtectedWorkflows int     `json:"protected_workflows"`
	TotalVersions      int     `json:"total_versions"`
	PlanUsed           int     `json:"plan_used"`
	PlanCapacity       int     `json:"plan_capacity"` // UnlimitedCapacity for unlimited plans
	OverLimit          bool    `json:"over_limit"`
	RecentActivity     int     `json:"recent_activity"`
	PlanID             string  `json:"plan_id"`
	PlanStatus         string  `json:"plan_status"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
}
