package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/moogar0880/problems"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/internal/logging"
)

const problemMediaType = "application/problem+json"

// ValidationProblem is a problem document listing the rejected fields.
type ValidationProblem struct {
	*problems.DefaultProblem
	Errors []apperrors.FieldError `json:"errors,omitempty"`
}

func writeProblem(c echo.Context, status int, problem any) error {
	c.Response().Header().Set(echo.HeaderContentType, problemMediaType)
	if c.Request().Method == http.MethodHead {
		return c.NoContent(status)
	}
	return c.JSON(status, problem)
}

func newProblem(c echo.Context, status int, kind, detail string) *problems.DefaultProblem {
	return problems.NewStatusProblem(status).
		WithInstance(c.Request().URL.Path).
		WithType(kind).
		WithDetail(detail)
}

// NewHTTPErrorHandler renders every handler error as an RFC 7807 document.
func NewHTTPErrorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		if werr := handleError(c, err, logger); werr != nil {
			logger.Error("Failed to write error response", "error", werr, "cause", err)
		}
	}
}

func handleError(c echo.Context, err error, logger *logging.Logger) error {
	var verr *apperrors.ValidationError
	var herr *echo.HTTPError

	switch {
	case errors.As(err, &verr):
		return writeProblem(c, http.StatusBadRequest, &ValidationProblem{
			DefaultProblem: newProblem(c, http.StatusBadRequest, "validation_error", verr.Error()),
			Errors:         verr.Fields,
		})

	case apperrors.IsValidation(err):
		return writeProblem(c, http.StatusBadRequest, newProblem(c, http.StatusBadRequest, "validation_error", err.Error()))

	case apperrors.IsInvalidRange(err):
		return writeProblem(c, http.StatusBadRequest, newProblem(c, http.StatusBadRequest, "invalid_range", err.Error()))

	case apperrors.IsNotFound(err):
		return writeProblem(c, http.StatusNotFound, newProblem(c, http.StatusNotFound, "not_found", err.Error()))

	case apperrors.IsConflict(err):
		return writeProblem(c, http.StatusConflict, newProblem(c, http.StatusConflict, "conflict", err.Error()))

	case apperrors.IsStorageUnavailable(err):
		logger.Error("Storage unavailable", "path", c.Request().URL.Path, "error", err)
		c.Response().Header().Set("Retry-After", "5")
		return writeProblem(c, http.StatusServiceUnavailable,
			newProblem(c, http.StatusServiceUnavailable, "storage_unavailable", "the backing store is unavailable, retry later"))

	case errors.As(err, &herr):
		detail := http.StatusText(herr.Code)
		if msg, ok := herr.Message.(string); ok {
			detail = msg
		}
		return writeProblem(c, herr.Code, newProblem(c, herr.Code, "about:blank", detail))

	default:
		// Unexpected errors are logged but their details are not exposed.
		logger.Error("Unhandled error", "path", c.Request().URL.Path, "error", err)
		return writeProblem(c, http.StatusInternalServerError,
			newProblem(c, http.StatusInternalServerError, "internal_error", "internal server error"))
	}
}
