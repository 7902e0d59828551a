package models

import (
	"time"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	AuditActionCreate   AuditAction = "create"
	AuditActionEdit     AuditAction = "edit"
	AuditActionRollback AuditAction = "rollback"
	AuditActionDelete   AuditAction = "delete"
)

// AuditTrailEntry is a single recorded action against a workflow or one of
// its versions. Entries are immutable; Sequence is assigned by the store and
// breaks timestamp ties in insertion order.
type AuditTrailEntry struct {
	ID         string      `json:"id"`
	Sequence   int64       `json:"sequence"`
	WorkflowID string      `json:"workflow_id"`
	VersionID  *string     `json:"version_id,omitempty"`
	Action     AuditAction `json:"action"`
	UserID     *string     `json:"user_id"` // nil for automated actions
	UserName   string      `json:"user_name"`
	Timestamp  time.Time   `json:"timestamp"`
	OldValue   any         `json:"old_value"`
	NewValue   any         `json:"new_value"`
}

// ActorKey identifies the entry's actor for distinct-user counting.
func (e *AuditTrailEntry) ActorKey() string {
	if e.UserID == nil || *e.UserID == "" {
		return SystemActor
	}
	return *e.UserID
}
