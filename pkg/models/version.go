package models

import (
	"time"
)

// SnapshotType classifies why a WorkflowVersion was created.
type SnapshotType string

const (
	SnapshotManual      SnapshotType = "manual"
	SnapshotOnPublish   SnapshotType = "on-publish"
	SnapshotDailyBackup SnapshotType = "daily-backup"
	SnapshotSystem      SnapshotType = "system"
)

// SnapshotTypes lists every known snapshot type.
var SnapshotTypes = []SnapshotType{SnapshotManual, SnapshotOnPublish, SnapshotDailyBackup, SnapshotSystem}

// Valid reports whether t is a known snapshot type.
func (t SnapshotType) Valid() bool {
	for _, known := range SnapshotTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Automated reports whether snapshots of this type are taken without a user.
func (t SnapshotType) Automated() bool {
	return t == SnapshotDailyBackup || t == SnapshotOnPublish
}

// WorkflowVersion is an immutable snapshot of a workflow definition.
// VersionNumber is unique and strictly increasing per WorkflowID.
type WorkflowVersion struct {
	ID            string       `json:"id"`
	WorkflowID    string       `json:"workflow_id"`
	VersionNumber int          `json:"version_number"`
	SnapshotType  SnapshotType `json:"snapshot_type"`
	CreatedBy     string       `json:"created_by"`
	CreatedAt     time.Time    `json:"created_at"`
	Data          Document     `json:"data"`
}

// ChangeSummary describes the delta between a version and its predecessor.
type ChangeSummary struct {
	Initial       bool     `json:"initial"`
	Added         int      `json:"added"`
	Removed       int      `json:"removed"`
	Modified      int      `json:"modified"`
	AddedPaths    []string `json:"added_paths,omitempty"`
	RemovedPaths  []string `json:"removed_paths,omitempty"`
	ModifiedPaths []string `json:"modified_paths,omitempty"`
	Summary       string   `json:"summary"`
}

// HasChanges reports whether the summary carries a non-empty delta.
func (c ChangeSummary) HasChanges() bool {
	return c.Added+c.Removed+c.Modified > 0
}

// VersionWithChanges pairs a version with its change summary.
type VersionWithChanges struct {
	*WorkflowVersion
	Changes ChangeSummary `json:"changes"`
}

// VersionTally is a storage-side rollup of a workflow's versions.
type VersionTally struct {
	Count        int
	LatestNumber int
	LatestAt     *time.Time
	LatestType   SnapshotType
	LatestBy     string
}
