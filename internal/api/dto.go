package api

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/pkg/models"
)

// CreateWorkflowVersionDto is the request body of POST /versions. Version is
// checked but advisory; the store allocates the real number.
type CreateWorkflowVersionDto struct {
	WorkflowID   string          `json:"workflowId" validate:"required"`
	Version      int             `json:"version" validate:"required,gte=1"`
	SnapshotType string          `json:"snapshotType" validate:"required,snapshot_type"`
	CreatedBy    string          `json:"createdBy" validate:"required"`
	Data         models.Document `json:"data" validate:"required"`
}

// UpdateWorkflowVersionDto is the request body of PATCH /versions/:id. Every
// field is optional.
type UpdateWorkflowVersionDto struct {
	SnapshotType *string         `json:"snapshotType,omitempty" validate:"omitempty,snapshot_type"`
	Data         models.Document `json:"data,omitempty"`
}

// RegisterWorkflowDto is the request body of POST /workflows.
type RegisterWorkflowDto struct {
	SourceID string `json:"sourceId" validate:"required"`
	PortalID *int64 `json:"portalId,omitempty" validate:"omitempty,gt=0"`
	Name     string `json:"name" validate:"omitempty,max=255"`
	Status   string `json:"status" validate:"omitempty,oneof=active inactive"`
}

// UpdateWorkflowDto is the request body of PATCH /workflows/:id.
type UpdateWorkflowDto struct {
	Name   *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Status *string `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
}

// RollbackResponse is returned by POST /versions/:id/rollback.
type RollbackResponse struct {
	RolledBackTo int                     `json:"rolledBackTo"`
	Version      *models.WorkflowVersion `json:"version"`
}

// NewValidator returns a validator that reports JSON field names and knows
// the snapshot_type tag.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("snapshot_type", func(fl validator.FieldLevel) bool {
		return models.SnapshotType(fl.Field().String()).Valid()
	})
	return v
}

// validationError converts validator failures into the shared field error
// form.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &apperrors.ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, apperrors.FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "snapshot_type":
		return "must be one of manual, on-publish, daily-backup, system"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
