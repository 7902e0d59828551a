package services

import (
	"context"
	"errors"
	"fmt"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/internal/logging"
	"workflowguard/backend/internal/repository"
	"workflowguard/backend/pkg/models"
)

// IngestResult counts the outcome of a webhook batch.
type IngestResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
}

// WebhookIngestor turns HubSpot webhook events into on-publish snapshots.
type WebhookIngestor struct {
	accounts  repository.AccountStore
	store     repository.WorkflowStore
	workflows *WorkflowService
	versions  *VersionService
	source    WorkflowSource
	logger    *logging.Logger
}

// NewWebhookIngestor creates a new WebhookIngestor.
func NewWebhookIngestor(repo repository.Repository, workflows *WorkflowService, versions *VersionService,
	source WorkflowSource, logger *logging.Logger) *WebhookIngestor {
	return &WebhookIngestor{
		accounts:  repo,
		store:     repo,
		workflows: workflows,
		versions:  versions,
		source:    source,
		logger:    logger.Named("webhooks"),
	}
}

// Ingest processes a validated batch. Events that cannot be attributed or
// fetched are skipped; a storage failure aborts the batch so the sender
// redelivers it.
func (i *WebhookIngestor) Ingest(ctx context.Context, events []models.WebhookEvent) (IngestResult, error) {
	var result IngestResult
	seen := make(map[string]struct{}, len(events))

	for _, event := range events {
		key := fmt.Sprintf("%d/%d", event.PortalID, event.ObjectID)
		if _, dup := seen[key]; dup {
			result.Skipped++
			continue
		}
		seen[key] = struct{}{}

		err := i.ingestEvent(ctx, event)
		switch {
		case err == nil:
			result.Processed++
		case apperrors.IsStorageUnavailable(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return result, err
		default:
			result.Skipped++
			i.logger.Warn("Skipping webhook event",
				"portal_id", event.PortalID,
				"object_id", event.ObjectID,
				"subscription_type", event.SubscriptionType,
				"error", err)
		}
	}

	i.logger.Info("Webhook batch ingested", "processed", result.Processed, "skipped", result.Skipped)
	return result, nil
}

var errIgnoredEvent = errors.New("event ignored")

func (i *WebhookIngestor) ingestEvent(ctx context.Context, event models.WebhookEvent) error {
	if event.IsDeletion() {
		return fmt.Errorf("%w: deletion events do not produce snapshots", errIgnoredEvent)
	}

	account, err := i.accounts.GetAccountByPortal(ctx, event.PortalID)
	if err != nil {
		return err
	}

	sourceID := event.SourceID()
	workflow, err := i.store.GetWorkflowBySource(ctx, event.PortalID, sourceID)
	if err != nil && !apperrors.IsNotFound(err) {
		return err
	}
	if workflow != nil && !workflow.IsActive() {
		return fmt.Errorf("%w: workflow %s is inactive", errIgnoredEvent, workflow.ID)
	}

	definition, err := i.source.FetchWorkflow(ctx, event.PortalID, sourceID)
	if err != nil {
		return fmt.Errorf("failed to fetch workflow definition: %w", err)
	}

	if workflow == nil {
		workflow, err = i.workflows.Register(ctx, RegisterWorkflowInput{
			AccountID: account.ID,
			PortalID:  event.PortalID,
			SourceID:  sourceID,
			Name:      definition.Name,
			Actor:     models.SystemActorRef(),
		})
		if apperrors.IsConflict(err) {
			// Registered concurrently by another delivery.
			workflow, err = i.store.GetWorkflowBySource(ctx, event.PortalID, sourceID)
		}
		if err != nil {
			return err
		}
	}

	_, err = i.versions.CreateVersion(ctx, CreateVersionInput{
		WorkflowID:   workflow.ID,
		SnapshotType: models.SnapshotOnPublish,
		Actor:        models.SystemActorRef(),
		Data:         definition.Data,
	})
	return err
}
