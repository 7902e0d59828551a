package models

import (
	"time"
)

// Account is a WorkflowGuard customer. Users are mapped to an account by
// their email domain.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	PortalID  *int64    `json:"portal_id,omitempty"` // HubSpot portal connected to this account
	PlanID    string    `json:"plan_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UnlimitedCapacity is the plan capacity sentinel for plans without a workflow limit.
const UnlimitedCapacity = -1

// Plan is the subscription state reported by the billing collaborator.
type Plan struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Capacity int    `json:"capacity"` // protected workflows allowed, UnlimitedCapacity for no limit
}

// Unlimited reports whether the plan has no workflow limit.
func (p Plan) Unlimited() bool {
	return p.Capacity < 0
}
