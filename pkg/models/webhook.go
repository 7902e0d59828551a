package models

import (
	"strconv"
	"strings"
	"time"
)

// WebhookEvent is a single HubSpot webhook notification.
type WebhookEvent struct {
	ObjectID         int64  `json:"objectId"`
	SubscriptionType string `json:"subscriptionType"`
	PortalID         int64  `json:"portalId"`
	AppID            int64  `json:"appId"`
	OccurredAt       int64  `json:"occurredAt"` // epoch milliseconds
}

// SourceID returns the HubSpot flow id the event refers to.
func (e WebhookEvent) SourceID() string {
	return strconv.FormatInt(e.ObjectID, 10)
}

// Time returns OccurredAt as a UTC timestamp.
func (e WebhookEvent) Time() time.Time {
	return time.UnixMilli(e.OccurredAt).UTC()
}

// IsDeletion reports whether the event announces a removed workflow.
func (e WebhookEvent) IsDeletion() bool {
	return strings.HasSuffix(strings.ToLower(e.SubscriptionType), ".deletion")
}
