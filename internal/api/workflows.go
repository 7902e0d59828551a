package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/internal/services"
	"workflowguard/backend/pkg/models"
)

// ListWorkflows returns the account's workflows with their version rollups
// (GET /api/v1/workflows)
func (h *Handler) ListWorkflows(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	stats, err := h.stats.ListWorkflowStats(c.Request().Context(), id.AccountID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// RegisterWorkflow adds a HubSpot workflow to the account
// (POST /api/v1/workflows)
func (h *Handler) RegisterWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := identity(c)
	if err != nil {
		return err
	}

	var req RegisterWorkflowDto
	if err := h.bind(c, &req); err != nil {
		return err
	}

	portalID := req.PortalID
	if portalID == nil {
		account, err := h.repo.GetAccount(ctx, id.AccountID)
		if err != nil {
			return err
		}
		portalID = account.PortalID
	}
	if portalID == nil {
		return apperrors.NewValidationError("portalId", "is required when the account has no connected portal")
	}

	name := req.Name
	if name == "" {
		name = "HubSpot workflow " + req.SourceID
	}

	workflow, err := h.workflows.Register(ctx, services.RegisterWorkflowInput{
		AccountID: id.AccountID,
		PortalID:  *portalID,
		SourceID:  req.SourceID,
		Name:      name,
		Status:    models.WorkflowStatus(req.Status),
		Actor:     id.Actor(),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, workflow)
}

// GetWorkflow returns a single workflow with its version rollup
// (GET /api/v1/workflows/:id)
func (h *Handler) GetWorkflow(c echo.Context) error {
	workflow, err := h.scopedWorkflow(c)
	if err != nil {
		return err
	}
	stats, err := h.stats.WorkflowStats(c.Request().Context(), workflow)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// UpdateWorkflow renames or toggles a workflow
// (PATCH /api/v1/workflows/:id)
func (h *Handler) UpdateWorkflow(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}

	var req UpdateWorkflowDto
	if err := h.bind(c, &req); err != nil {
		return err
	}

	update := models.WorkflowUpdate{Name: req.Name}
	if req.Status != nil {
		status := models.WorkflowStatus(*req.Status)
		update.Status = &status
	}

	workflow, err := h.workflows.Update(c.Request().Context(), id.AccountID, c.Param("id"), update, id.Actor())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, workflow)
}

// DeleteWorkflow stops protecting a workflow. Its history is kept
// (DELETE /api/v1/workflows/:id)
func (h *Handler) DeleteWorkflow(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	if err := h.workflows.Delete(c.Request().Context(), id.AccountID, c.Param("id"), id.Actor()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// GetHistory returns every version with its change summary
// (GET /api/v1/workflows/:id/history)
func (h *Handler) GetHistory(c echo.Context) error {
	workflow, err := h.scopedWorkflow(c)
	if err != nil {
		return err
	}
	history, err := h.versions.GetHistory(c.Request().Context(), workflow.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, history)
}

// GetAuditTrail returns the workflow's audit entries, optionally limited to
// [start, end]
// (GET /api/v1/workflows/:id/audit)
func (h *Handler) GetAuditTrail(c echo.Context) error {
	workflow, err := h.scopedWorkflow(c)
	if err != nil {
		return err
	}
	start, end, err := bindPeriod(c.QueryParams())
	if err != nil {
		return err
	}
	trail, err := h.audit.List(c.Request().Context(), workflow.ID, start, end)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, trail)
}

// GetComplianceReport builds the compliance report of a workflow. The period
// defaults to the 30 days ending now
// (GET /api/v1/workflows/:id/compliance-report)
func (h *Handler) GetComplianceReport(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	start, end, err := bindPeriod(c.QueryParams())
	if err != nil {
		return err
	}

	to := h.clock()
	if end != nil {
		to = *end
	}
	from := to.Add(-defaultReportPeriod)
	if start != nil {
		from = *start
	}

	report, err := h.compliance.Generate(c.Request().Context(), id.AccountID, c.Param("id"), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// GetDashboardStats returns the account rollup
// (GET /api/v1/dashboard/stats)
func (h *Handler) GetDashboardStats(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	stats, err := h.stats.Dashboard(c.Request().Context(), id.AccountID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// scopedWorkflow loads the :id workflow. A workflow of another account is
// reported as not found.
func (h *Handler) scopedWorkflow(c echo.Context) (*models.Workflow, error) {
	id, err := identity(c)
	if err != nil {
		return nil, err
	}
	return h.workflows.Get(c.Request().Context(), id.AccountID, c.Param("id"))
}

// bindPeriod reads the optional RFC 3339 start and end query parameters.
func bindPeriod(query url.Values) (start, end *time.Time, err error) {
	if err := runtime.BindQueryParameter("form", true, false, "start", query, &start); err != nil {
		return nil, nil, apperrors.NewValidationError("start", "must be an RFC 3339 timestamp")
	}
	if err := runtime.BindQueryParameter("form", true, false, "end", query, &end); err != nil {
		return nil, nil, apperrors.NewValidationError("end", "must be an RFC 3339 timestamp")
	}
	return start, end, nil
}
