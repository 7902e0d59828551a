package models

import (
	"time"
)

// WorkflowStatus is the protection toggle of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusActive   WorkflowStatus = "active"
	WorkflowStatusInactive WorkflowStatus = "inactive"
)

// Valid reports whether s is a known status.
func (s WorkflowStatus) Valid() bool {
	return s == WorkflowStatusActive || s == WorkflowStatusInactive
}

// Workflow is a HubSpot workflow registered for protection.
type Workflow struct {
	ID        string         `json:"id"`
	AccountID string         `json:"account_id"`
	PortalID  int64          `json:"portal_id"` // HubSpot portal
	SourceID  string         `json:"source_id"` // HubSpot flow id
	Name      string         `json:"name"`
	Status    WorkflowStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt *time.Time     `json:"-"`
}

// IsActive reports whether the workflow is live and active.
func (w *Workflow) IsActive() bool {
	return w.DeletedAt == nil && w.Status == WorkflowStatusActive
}

// WorkflowUpdate carries the mutable workflow metadata. Nil fields are left unchanged.
type WorkflowUpdate struct {
	Name   *string
	Status *WorkflowStatus
}
