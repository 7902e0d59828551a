package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/xeipuuv/gojsonschema"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/pkg/models"
)

const maxWebhookBodySize = 1024 * 1024 // 1MB

// webhookBatchSchema describes the HubSpot webhook payload: a non-empty
// array of events.
const webhookBatchSchema = `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["objectId", "subscriptionType", "portalId", "appId", "occurredAt"],
    "properties": {
      "objectId":         {"type": "integer"},
      "subscriptionType": {"type": "string", "minLength": 1},
      "portalId":         {"type": "integer"},
      "appId":            {"type": "integer"},
      "occurredAt":       {"type": "integer"}
    }
  }
}`

var webhookSchema = gojsonschema.NewStringLoader(webhookBatchSchema)

// WebhookEventDto is one HubSpot webhook event.
type WebhookEventDto struct {
	ObjectID         int64  `json:"objectId" validate:"required,gt=0"`
	SubscriptionType string `json:"subscriptionType" validate:"required"`
	PortalID         int64  `json:"portalId" validate:"required,gt=0"`
	AppID            int64  `json:"appId" validate:"required,gt=0"`
	OccurredAt       int64  `json:"occurredAt" validate:"required,gt=0"`
}

// HandleHubSpotWebhook snapshots the workflows named by a signed HubSpot
// webhook batch. A storage failure answers 503 so HubSpot redelivers the batch
// (POST /webhooks/hubspot)
func (h *Handler) HandleHubSpotWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBodySize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	if len(body) > maxWebhookBodySize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "webhook payload too large")
	}

	if h.signatures == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "webhook signature verification is not configured")
	}
	if err := h.signatures.Verify(c.Request(), body); err != nil {
		h.logger.Warn("Rejected webhook delivery", "remote_ip", c.RealIP(), "error", err)
		return err
	}

	if err := validateWebhookBatch(body); err != nil {
		return err
	}

	var batch []WebhookEventDto
	if err := json.Unmarshal(body, &batch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	events := make([]models.WebhookEvent, 0, len(batch))
	verr := &apperrors.ValidationError{}
	for i, dto := range batch {
		if err := h.validate.Struct(dto); err != nil {
			if fields, ok := validationError(err).(*apperrors.ValidationError); ok {
				for _, f := range fields.Fields {
					verr.Fields = append(verr.Fields, apperrors.FieldError{Field: fmt.Sprintf("[%d].%s", i, f.Field), Message: f.Message})
				}
				continue
			}
			return err
		}
		events = append(events, models.WebhookEvent(dto))
	}
	if len(verr.Fields) > 0 {
		return verr
	}

	result, err := h.webhooks.Ingest(c.Request().Context(), events)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, result)
}

func validateWebhookBatch(body []byte) error {
	result, err := gojsonschema.Validate(webhookSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if result.Valid() {
		return nil
	}

	verr := &apperrors.ValidationError{}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "(root)" {
			field = "body"
		}
		verr.Fields = append(verr.Fields, apperrors.FieldError{Field: field, Message: strings.TrimSpace(desc.Description())})
	}
	return verr
}
