package repository

import (
	"context"
	"errors"
	"time"

	"workflowguard/backend/pkg/models"
)

// ErrDuplicateVersion is returned when a version number is already taken
// for its workflow.
var ErrDuplicateVersion = errors.New("duplicate version number")

// AccountStore is an interface for storing and retrieving accounts.
type AccountStore interface {
	// GetAccount retrieves an account by its ID.
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	// GetAccountByDomain retrieves the account owning an email domain.
	GetAccountByDomain(ctx context.Context, domain string) (*models.Account, error)
	// GetAccountByPortal retrieves the account connected to a HubSpot portal.
	GetAccountByPortal(ctx context.Context, portalID int64) (*models.Account, error)
	// CreateAccount saves a new account, assigning its ID when empty.
	CreateAccount(ctx context.Context, account *models.Account) error
}

// WorkflowStore is an interface for the workflow registry.
// Soft-deleted workflows are reported as not found.
type WorkflowStore interface {
	// CreateWorkflow registers a workflow. A live workflow with the same
	// portal and source ID yields apperrors.ErrConflict.
	CreateWorkflow(ctx context.Context, workflow *models.Workflow) error
	// GetWorkflow retrieves a live workflow by its ID.
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	// GetWorkflowBySource retrieves a live workflow by its HubSpot identity.
	GetWorkflowBySource(ctx context.Context, portalID int64, sourceID string) (*models.Workflow, error)
	// ListWorkflows lists the live workflows of an account ordered by creation.
	ListWorkflows(ctx context.Context, accountID string) ([]*models.Workflow, error)
	// ListActiveWorkflows lists live, active workflows across all accounts.
	ListActiveWorkflows(ctx context.Context) ([]*models.Workflow, error)
	// UpdateWorkflow persists name, status and updated_at.
	UpdateWorkflow(ctx context.Context, workflow *models.Workflow) error
	// DeleteWorkflow soft-deletes a workflow. Its versions and audit trail are kept.
	DeleteWorkflow(ctx context.Context, id string, at time.Time) error
}

// VersionStore is an append-only store of workflow versions.
type VersionStore interface {
	// AppendVersion inserts a version and, when entry is non-nil, its audit
	// entry in one atomic step. A zero VersionNumber is allocated as
	// max+1 for the workflow under a per-workflow lock. A number that is
	// already taken yields ErrDuplicateVersion.
	AppendVersion(ctx context.Context, version *models.WorkflowVersion, entry *models.AuditTrailEntry) error
	// GetVersion retrieves a version by its ID.
	GetVersion(ctx context.Context, id string) (*models.WorkflowVersion, error)
	// ListVersions lists the versions of a workflow by ascending version number.
	ListVersions(ctx context.Context, workflowID string) ([]*models.WorkflowVersion, error)
	// LatestVersion retrieves the current (highest numbered) version.
	LatestVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error)
	// TallyVersions rolls up the versions of a workflow without loading their data.
	TallyVersions(ctx context.Context, workflowID string) (models.VersionTally, error)
}

// AuditStore is an append-only store of audit trail entries.
type AuditStore interface {
	// AppendAudit inserts an entry and assigns its sequence number.
	AppendAudit(ctx context.Context, entry *models.AuditTrailEntry) error
	// ListAudit lists a workflow's entries by ascending timestamp, ties
	// broken by sequence.
	ListAudit(ctx context.Context, workflowID string) ([]*models.AuditTrailEntry, error)
	// CountAuditSince counts entries recorded for an account's workflows at or after since.
	CountAuditSince(ctx context.Context, accountID string, since time.Time) (int, error)
}

// Repository aggregates every store used by the service layer.
type Repository interface {
	AccountStore
	WorkflowStore
	VersionStore
	AuditStore
	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}
