package services

import (
	"context"
	"time"

	"workflowguard/backend/pkg/models"
)

// BillingClient is an interface for reading an account's subscription plan.
type BillingClient interface {
	// GetPlan returns the plan currently attached to the account.
	GetPlan(ctx context.Context, account *models.Account) (models.Plan, error)
}

// SourceWorkflow is a workflow definition as fetched from HubSpot.
type SourceWorkflow struct {
	Name string
	Data models.Document
}

// WorkflowSource is an interface for fetching workflow definitions from HubSpot.
type WorkflowSource interface {
	// FetchWorkflow returns the current definition of a HubSpot flow.
	FetchWorkflow(ctx context.Context, portalID int64, sourceID string) (*SourceWorkflow, error)
}

// Clock returns the current time. Services take one so tests can pin "now".
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}
