package services

import (
	"context"
	"strings"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/internal/logging"
	"workflowguard/backend/internal/repository"
	"workflowguard/backend/pkg/models"
)

// RegisterWorkflowInput describes a HubSpot workflow to protect.
type RegisterWorkflowInput struct {
	AccountID string
	PortalID  int64
	SourceID  string
	Name      string
	Status    models.WorkflowStatus
	Actor     models.Actor
}

// WorkflowService manages the workflow registry.
type WorkflowService struct {
	store  repository.WorkflowStore
	audit  *AuditRecorder
	clock  Clock
	logger *logging.Logger
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(store repository.WorkflowStore, audit *AuditRecorder, clock Clock, logger *logging.Logger) *WorkflowService {
	if clock == nil {
		clock = SystemClock
	}
	return &WorkflowService{store: store, audit: audit, clock: clock, logger: logger.Named("workflows")}
}

// metadata is the audited view of a workflow's mutable fields.
func metadata(w *models.Workflow) map[string]any {
	return map[string]any{"name": w.Name, "status": string(w.Status)}
}

// Register adds a workflow to an account.
func (s *WorkflowService) Register(ctx context.Context, in RegisterWorkflowInput) (*models.Workflow, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.SourceID = strings.TrimSpace(in.SourceID)
	if in.Status == "" {
		in.Status = models.WorkflowStatusActive
	}

	verr := &apperrors.ValidationError{}
	if in.AccountID == "" {
		verr.Fields = append(verr.Fields, apperrors.FieldError{Field: "accountId", Message: "is required"})
	}
	if in.SourceID == "" {
		verr.Fields = append(verr.Fields, apperrors.FieldError{Field: "sourceId", Message: "is required"})
	}
	if in.Name == "" {
		verr.Fields = append(verr.Fields, apperrors.FieldError{Field: "name", Message: "is required"})
	}
	if !in.Status.Valid() {
		verr.Fields = append(verr.Fields, apperrors.FieldError{Field: "status", Message: "must be active or inactive"})
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}

	workflow := &models.Workflow{
		AccountID: in.AccountID,
		PortalID:  in.PortalID,
		SourceID:  in.SourceID,
		Name:      in.Name,
		Status:    in.Status,
		CreatedAt: s.clock(),
	}
	if err := s.store.CreateWorkflow(ctx, workflow); err != nil {
		return nil, err
	}
	if _, err := s.audit.Record(ctx, workflow.ID, nil, models.AuditActionCreate, in.Actor, nil, metadata(workflow)); err != nil {
		return nil, err
	}

	s.logger.Info("Workflow registered", "workflow_id", workflow.ID, "account_id", workflow.AccountID, "source_id", workflow.SourceID)
	return workflow, nil
}

// Get returns a live workflow. A non-empty accountID scopes the lookup, and
// a workflow owned by another account is reported as not found.
func (s *WorkflowService) Get(ctx context.Context, accountID, id string) (*models.Workflow, error) {
	workflow, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if accountID != "" && workflow.AccountID != accountID {
		return nil, apperrors.NotFound("workflow", id)
	}
	return workflow, nil
}

// List returns the live workflows of an account.
func (s *WorkflowService) List(ctx context.Context, accountID string) ([]*models.Workflow, error) {
	return s.store.ListWorkflows(ctx, accountID)
}

// Update applies a metadata change and records it as an edit.
func (s *WorkflowService) Update(ctx context.Context, accountID, id string, update models.WorkflowUpdate, actor models.Actor) (*models.Workflow, error) {
	workflow, err := s.Get(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	before := metadata(workflow)
	changed := false
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, apperrors.NewValidationError("name", "must not be empty")
		}
		if name != workflow.Name {
			workflow.Name = name
			changed = true
		}
	}
	if update.Status != nil {
		if !update.Status.Valid() {
			return nil, apperrors.NewValidationError("status", "must be active or inactive")
		}
		if *update.Status != workflow.Status {
			workflow.Status = *update.Status
			changed = true
		}
	}
	if !changed {
		return workflow, nil
	}

	workflow.UpdatedAt = s.clock()
	if err := s.store.UpdateWorkflow(ctx, workflow); err != nil {
		return nil, err
	}
	if _, err := s.audit.Record(ctx, workflow.ID, nil, models.AuditActionEdit, actor, before, metadata(workflow)); err != nil {
		return nil, err
	}

	s.logger.Info("Workflow updated", "workflow_id", workflow.ID, "name", workflow.Name, "status", workflow.Status)
	return workflow, nil
}

// Delete soft-deletes a workflow. Its versions and audit trail are retained.
func (s *WorkflowService) Delete(ctx context.Context, accountID, id string, actor models.Actor) error {
	workflow, err := s.Get(ctx, accountID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteWorkflow(ctx, workflow.ID, s.clock()); err != nil {
		return err
	}
	if _, err := s.audit.Record(ctx, workflow.ID, nil, models.AuditActionDelete, actor, metadata(workflow), nil); err != nil {
		return err
	}

	s.logger.Info("Workflow deleted", "workflow_id", workflow.ID)
	return nil
}
