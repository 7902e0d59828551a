// Package api contains the HTTP handlers for the WorkflowGuard REST API
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"workflowguard/backend/internal/auth"
	"workflowguard/backend/internal/logging"
	"workflowguard/backend/internal/repository"
	"workflowguard/backend/internal/services"
	"workflowguard/backend/pkg/models"
)

const (
	serviceName    = "workflowguard"
	serviceVersion = "1.0.0"

	// defaultReportPeriod is the compliance period when no start is given.
	defaultReportPeriod = 30 * 24 * time.Hour
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Repo       repository.Repository
	Workflows  *services.WorkflowService
	Versions   *services.VersionService
	Audit      *services.AuditRecorder
	Compliance *services.ComplianceService
	Stats      *services.StatsService
	Webhooks   *services.WebhookIngestor
	// WebhookVerifier authenticates HubSpot deliveries. Without one the
	// webhook endpoint rejects every request.
	WebhookVerifier *WebhookVerifier
	Validator       *validator.Validate
	Clock           services.Clock
	Logger          *logging.Logger
}

// Handler contains HTTP handlers for the WorkflowGuard REST API
type Handler struct {
	repo       repository.Repository
	workflows  *services.WorkflowService
	versions   *services.VersionService
	audit      *services.AuditRecorder
	compliance *services.ComplianceService
	stats      *services.StatsService
	webhooks   *services.WebhookIngestor
	signatures *WebhookVerifier
	validate   *validator.Validate
	clock      services.Clock
	logger     *logging.Logger
}

// NewHandler creates a new Handler with required dependencies
func NewHandler(d Deps) *Handler {
	if d.Validator == nil {
		d.Validator = NewValidator()
	}
	if d.Clock == nil {
		d.Clock = services.SystemClock
	}
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	return &Handler{
		repo:       d.Repo,
		workflows:  d.Workflows,
		versions:   d.Versions,
		audit:      d.Audit,
		compliance: d.Compliance,
		stats:      d.Stats,
		webhooks:   d.Webhooks,
		signatures: d.WebhookVerifier,
		validate:   d.Validator,
		clock:      d.Clock,
		logger:     d.Logger.Named("api"),
	}
}

// RegisterRoutes mounts the authenticated API on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/workflows", h.ListWorkflows)
	g.POST("/workflows", h.RegisterWorkflow)
	g.GET("/workflows/:id", h.GetWorkflow)
	g.PATCH("/workflows/:id", h.UpdateWorkflow)
	g.DELETE("/workflows/:id", h.DeleteWorkflow)
	g.GET("/workflows/:id/history", h.GetHistory)
	g.GET("/workflows/:id/audit", h.GetAuditTrail)
	g.GET("/workflows/:id/compliance-report", h.GetComplianceReport)

	g.POST("/versions", h.CreateVersion)
	g.GET("/versions/:id", h.GetVersion)
	g.PATCH("/versions/:id", h.UpdateVersion)
	g.POST("/versions/:id/rollback", h.RollbackVersion)

	g.GET("/dashboard/stats", h.GetDashboardStats)
}

// RegisterPublicRoutes mounts the unauthenticated endpoints on e.
func (h *Handler) RegisterPublicRoutes(e *echo.Echo) {
	e.GET("/health", h.HandleHealth)
	e.POST("/webhooks/hubspot", h.HandleHubSpotWebhook)
}

// HandleHealth reports service health. Storage failures degrade the status
// to 503 so load balancers can drain the instance.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := models.HealthStatus{
		Status:    "ok",
		Timestamp: h.clock(),
		Service:   serviceName,
		Version:   serviceVersion,
		Checks:    map[string]string{},
	}
	code := http.StatusOK

	if h.repo != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.repo.Ping(ctx); err != nil {
			h.logger.Warn("Health check failed", "check", "storage", "error", err)
			status.Status = "degraded"
			status.Checks["storage"] = "unavailable"
			code = http.StatusServiceUnavailable
		} else {
			status.Checks["storage"] = "ok"
		}
	}
	return c.JSON(code, status)
}

// identity returns the authenticated caller.
func identity(c echo.Context) (auth.Identity, error) {
	id, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return auth.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "account not found in context")
	}
	return id, nil
}

// bind decodes the request body into dst and validates it.
func (h *Handler) bind(c echo.Context, dst any) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if err := h.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}
