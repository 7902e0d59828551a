package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/internal/diff"
	"workflowguard/backend/internal/logging"
	"workflowguard/backend/internal/repository"
	"workflowguard/backend/pkg/models"
)

const instrumentationName = "workflowguard/backend/internal/services"

// maxAllocationRetries bounds how often a version number collision is
// retried before the caller sees a conflict.
const maxAllocationRetries = 1

// CreateVersionInput carries an already validated snapshot request.
type CreateVersionInput struct {
	WorkflowID   string
	SnapshotType models.SnapshotType
	Actor        models.Actor
	Data         models.Document
}

// EditVersionInput derives a new version from an existing one. Nil fields
// keep the edited version's values.
type EditVersionInput struct {
	SnapshotType *models.SnapshotType
	Data         models.Document
	Actor        models.Actor
}

// VersionService manages the lifecycle of workflow versions.
type VersionService struct {
	repo      repository.Repository
	audit     *AuditRecorder
	clock     Clock
	logger    *logging.Logger
	created   metric.Int64Counter
	conflicts metric.Int64Counter
}

// NewVersionService creates a new VersionService.
func NewVersionService(repo repository.Repository, audit *AuditRecorder, clock Clock, logger *logging.Logger) *VersionService {
	if clock == nil {
		clock = SystemClock
	}
	logger = logger.Named("versions")

	meter := otel.Meter(instrumentationName)
	created, err := meter.Int64Counter("workflowguard.versions.created",
		metric.WithDescription("Workflow versions appended, by snapshot type"))
	if err != nil {
		logger.Warn("Failed to create versions counter", "error", err)
		created, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("workflowguard.versions.created")
	}
	conflicts, err := meter.Int64Counter("workflowguard.versions.conflicts",
		metric.WithDescription("Version number allocations that failed after retrying"))
	if err != nil {
		logger.Warn("Failed to create conflicts counter", "error", err)
		conflicts, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("workflowguard.versions.conflicts")
	}

	return &VersionService{
		repo:      repo,
		audit:     audit,
		clock:     clock,
		logger:    logger,
		created:   created,
		conflicts: conflicts,
	}
}

func validateCreate(in CreateVersionInput) error {
	verr := &apperrors.ValidationError{}
	if in.WorkflowID == "" {
		verr.Fields = append(verr.Fields, apperrors.FieldError{Field: "workflowId", Message: "is required"})
	}
	if !in.SnapshotType.Valid() {
		verr.Fields = append(verr.Fields, apperrors.FieldError{Field: "snapshotType", Message: fmt.Sprintf("unknown snapshot type %q", in.SnapshotType)})
	}
	if in.Data == nil {
		verr.Fields = append(verr.Fields, apperrors.FieldError{Field: "data", Message: "is required"})
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// CreateVersion appends the next version of a workflow and its create audit entry.
func (s *VersionService) CreateVersion(ctx context.Context, in CreateVersionInput) (*models.WorkflowVersion, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetWorkflow(ctx, in.WorkflowID); err != nil {
		return nil, err
	}

	version := s.newVersion(in.WorkflowID, in.SnapshotType, in.Actor, in.Data)
	entry := s.audit.NewEntry(in.WorkflowID, &version.ID, models.AuditActionCreate, in.Actor, nil, version.Data)
	if err := s.appendVersion(ctx, version, entry); err != nil {
		return nil, err
	}

	s.logger.Info("Version created",
		"workflow_id", version.WorkflowID,
		"version", version.VersionNumber,
		"snapshot_type", version.SnapshotType,
		"created_by", version.CreatedBy)
	return version, nil
}

// Rollback appends a new version whose data is copied from targetVersionID.
// History is never rewritten.
func (s *VersionService) Rollback(ctx context.Context, workflowID, targetVersionID string, actor models.Actor) (*models.WorkflowVersion, error) {
	if _, err := s.repo.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	target, err := s.repo.GetVersion(ctx, targetVersionID)
	if err != nil {
		return nil, err
	}
	if target.WorkflowID != workflowID {
		return nil, apperrors.NotFound("version", targetVersionID)
	}
	head, err := s.repo.LatestVersion(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	snapshotType := models.SnapshotManual
	if actor.UserID == nil {
		snapshotType = models.SnapshotSystem
	}
	version := s.newVersion(workflowID, snapshotType, actor, models.CloneDocument(target.Data))
	entry := s.audit.NewEntry(workflowID, &version.ID, models.AuditActionRollback, actor, head.Data, target.Data)
	if err := s.appendVersion(ctx, version, entry); err != nil {
		return nil, err
	}

	s.logger.Info("Workflow rolled back",
		"workflow_id", workflowID,
		"target_version", target.VersionNumber,
		"from_version", head.VersionNumber,
		"version", version.VersionNumber)
	return version, nil
}

// EditVersion appends a new version derived from versionID, recorded as an edit.
func (s *VersionService) EditVersion(ctx context.Context, versionID string, in EditVersionInput) (*models.WorkflowVersion, error) {
	base, err := s.repo.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetWorkflow(ctx, base.WorkflowID); err != nil {
		return nil, err
	}

	snapshotType := base.SnapshotType
	if in.SnapshotType != nil {
		if !in.SnapshotType.Valid() {
			return nil, apperrors.NewValidationError("snapshotType", fmt.Sprintf("unknown snapshot type %q", *in.SnapshotType))
		}
		snapshotType = *in.SnapshotType
	}
	data := in.Data
	if data == nil {
		data = models.CloneDocument(base.Data)
	}

	head, err := s.repo.LatestVersion(ctx, base.WorkflowID)
	if err != nil {
		return nil, err
	}

	version := s.newVersion(base.WorkflowID, snapshotType, in.Actor, data)
	entry := s.audit.NewEntry(base.WorkflowID, &version.ID, models.AuditActionEdit, in.Actor, head.Data, version.Data)
	if err := s.appendVersion(ctx, version, entry); err != nil {
		return nil, err
	}

	s.logger.Info("Version edited",
		"workflow_id", version.WorkflowID,
		"base_version", base.VersionNumber,
		"version", version.VersionNumber)
	return version, nil
}

// GetVersion returns a single version.
func (s *VersionService) GetVersion(ctx context.Context, versionID string) (*models.WorkflowVersion, error) {
	return s.repo.GetVersion(ctx, versionID)
}

// GetHistory returns every version of a workflow by ascending number, each
// paired with its change summary against the preceding version.
func (s *VersionService) GetHistory(ctx context.Context, workflowID string) ([]models.VersionWithChanges, error) {
	if _, err := s.repo.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	versions, err := s.repo.ListVersions(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	history := make([]models.VersionWithChanges, 0, len(versions))
	var prev *models.WorkflowVersion
	for _, v := range versions {
		history = append(history, models.VersionWithChanges{
			WorkflowVersion: v,
			Changes:         diff.SummarizeVersions(prev, v),
		})
		prev = v
	}
	return history, nil
}

func (s *VersionService) newVersion(workflowID string, snapshotType models.SnapshotType, actor models.Actor, data models.Document) *models.WorkflowVersion {
	return &models.WorkflowVersion{
		ID:           uuid.New().String(),
		WorkflowID:   workflowID,
		SnapshotType: snapshotType,
		CreatedBy:    actor.CreatedBy(),
		CreatedAt:    s.clock(),
		Data:         data,
	}
}

// appendVersion lets the store allocate the version number, retrying a
// collision once against a freshly read maximum.
func (s *VersionService) appendVersion(ctx context.Context, version *models.WorkflowVersion, entry *models.AuditTrailEntry) error {
	for attempt := 0; ; attempt++ {
		version.VersionNumber = 0
		err := s.repo.AppendVersion(ctx, version, entry)
		if err == nil {
			s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("snapshot_type", string(version.SnapshotType))))
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateVersion) {
			return err
		}
		if attempt >= maxAllocationRetries {
			s.conflicts.Add(ctx, 1)
			s.logger.Error("Version number allocation failed", "workflow_id", version.WorkflowID, "attempts", attempt+1)
			return fmt.Errorf("workflow %q: version number already taken: %w", version.WorkflowID, apperrors.ErrConflict)
		}
		s.logger.Warn("Version number taken, retrying allocation", "workflow_id", version.WorkflowID)
	}
}
