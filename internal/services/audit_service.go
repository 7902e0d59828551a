package services

import (
	"context"
	"fmt"
	"time"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/internal/logging"
	"workflowguard/backend/internal/repository"
	"workflowguard/backend/pkg/models"
)

// AuditRecorder appends and reads the audit trail.
type AuditRecorder struct {
	store  repository.AuditStore
	clock  Clock
	logger *logging.Logger
}

// NewAuditRecorder creates a new AuditRecorder.
func NewAuditRecorder(store repository.AuditStore, clock Clock, logger *logging.Logger) *AuditRecorder {
	if clock == nil {
		clock = SystemClock
	}
	return &AuditRecorder{store: store, clock: clock, logger: logger.Named("audit")}
}

// NewEntry builds an entry for the actor, stamped with the recorder's clock.
func (r *AuditRecorder) NewEntry(workflowID string, versionID *string, action models.AuditAction, actor models.Actor, oldValue, newValue any) *models.AuditTrailEntry {
	return &models.AuditTrailEntry{
		WorkflowID: workflowID,
		VersionID:  versionID,
		Action:     action,
		UserID:     actor.UserID,
		UserName:   actor.UserName,
		Timestamp:  r.clock(),
		OldValue:   oldValue,
		NewValue:   newValue,
	}
}

// Record appends a single entry. A store failure is returned to the caller,
// never dropped.
func (r *AuditRecorder) Record(ctx context.Context, workflowID string, versionID *string, action models.AuditAction,
	actor models.Actor, oldValue, newValue any) (*models.AuditTrailEntry, error) {
	entry := r.NewEntry(workflowID, versionID, action, actor, oldValue, newValue)
	if err := r.store.AppendAudit(ctx, entry); err != nil {
		r.logger.Error("Failed to record audit entry", "workflow_id", workflowID, "action", action, "error", err)
		return nil, fmt.Errorf("failed to record %s audit entry: %w", action, err)
	}
	r.logger.Debug("Audit entry recorded", "workflow_id", workflowID, "action", action, "sequence", entry.Sequence)
	return entry, nil
}

// List returns a workflow's entries in canonical order, optionally limited
// to an inclusive period. Either bound may be nil.
func (r *AuditRecorder) List(ctx context.Context, workflowID string, start, end *time.Time) ([]*models.AuditTrailEntry, error) {
	if start != nil && end != nil && start.After(*end) {
		return nil, fmt.Errorf("start %s after end %s: %w", start.Format(time.RFC3339), end.Format(time.RFC3339), apperrors.ErrInvalidRange)
	}

	entries, err := r.store.ListAudit(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if start == nil && end == nil {
		return entries, nil
	}

	filtered := make([]*models.AuditTrailEntry, 0, len(entries))
	for _, e := range entries {
		if start != nil && e.Timestamp.Before(*start) {
			continue
		}
		if end != nil && e.Timestamp.After(*end) {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered, nil
}
