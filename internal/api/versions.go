package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"workflowguard/backend/internal/services"
	"workflowguard/backend/pkg/models"
)

// CreateVersion records a snapshot of a workflow
// (POST /api/v1/versions)
func (h *Handler) CreateVersion(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := identity(c)
	if err != nil {
		return err
	}

	var req CreateWorkflowVersionDto
	if err := h.bind(c, &req); err != nil {
		return err
	}
	if _, err := h.workflows.Get(ctx, id.AccountID, req.WorkflowID); err != nil {
		return err
	}

	// The caller's display name applies only to versions it records for itself.
	name := req.CreatedBy
	if req.CreatedBy == id.UserID {
		name = id.Name
	}

	version, err := h.versions.CreateVersion(ctx, services.CreateVersionInput{
		WorkflowID:   req.WorkflowID,
		SnapshotType: models.SnapshotType(req.SnapshotType),
		Actor:        models.ActorFromCreatedBy(req.CreatedBy, name),
		Data:         req.Data,
	})
	if err != nil {
		return err
	}
	if version.VersionNumber != req.Version {
		h.logger.Debug("Version number reallocated",
			"workflow_id", version.WorkflowID,
			"requested", req.Version,
			"allocated", version.VersionNumber)
	}
	return c.JSON(http.StatusCreated, version)
}

// GetVersion returns a single version
// (GET /api/v1/versions/:id)
func (h *Handler) GetVersion(c echo.Context) error {
	version, err := h.scopedVersion(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, version)
}

// UpdateVersion appends a new version derived from :id
// (PATCH /api/v1/versions/:id)
func (h *Handler) UpdateVersion(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}

	var req UpdateWorkflowVersionDto
	if err := h.bind(c, &req); err != nil {
		return err
	}
	base, err := h.scopedVersion(c)
	if err != nil {
		return err
	}

	in := services.EditVersionInput{Data: req.Data, Actor: id.Actor()}
	if req.SnapshotType != nil {
		t := models.SnapshotType(*req.SnapshotType)
		in.SnapshotType = &t
	}
	version, err := h.versions.EditVersion(c.Request().Context(), base.ID, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, version)
}

// RollbackVersion restores the data of :id as a new version
// (POST /api/v1/versions/:id/rollback)
func (h *Handler) RollbackVersion(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	target, err := h.scopedVersion(c)
	if err != nil {
		return err
	}

	version, err := h.versions.Rollback(c.Request().Context(), target.WorkflowID, target.ID, id.Actor())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, RollbackResponse{RolledBackTo: target.VersionNumber, Version: version})
}

// scopedVersion loads the :id version, reporting versions of another
// account's workflows as not found.
func (h *Handler) scopedVersion(c echo.Context) (*models.WorkflowVersion, error) {
	ctx := c.Request().Context()
	id, err := identity(c)
	if err != nil {
		return nil, err
	}
	version, err := h.versions.GetVersion(ctx, c.Param("id"))
	if err != nil {
		return nil, err
	}
	if _, err := h.workflows.Get(ctx, id.AccountID, version.WorkflowID); err != nil {
		return nil, err
	}
	return version, nil
}
