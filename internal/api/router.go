package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"workflowguard/backend/internal/logging"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// Auth guards /api/v1. It must store an auth.Identity in the request context.
	Auth            echo.MiddlewareFunc
	OktaDomain      string
	SwaggerClientID string
	Logger          *logging.Logger
}

// NewRouter builds the echo instance serving the public endpoints, the
// documentation and the authenticated /api/v1 group.
func NewRouter(h *Handler, cfg RouterConfig) *echo.Echo {
	logger := cfg.Logger
	if logger == nil {
		logger = h.logger
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = NewHTTPErrorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(otelecho.Middleware(serviceName))
	e.Use(RequestLogger(logger))

	h.RegisterPublicRoutes(e)

	e.GET("/openapi.yaml", echo.WrapHandler(SpecHandler(cfg.OktaDomain)))
	e.GET("/docs", echo.WrapHandler(SwaggerHandler(cfg.OktaDomain, cfg.SwaggerClientID)))
	e.GET("/docs/oauth2-redirect.html", echo.WrapHandler(http.HandlerFunc(OAuthRedirectHandler)))

	g := e.Group("/api/v1")
	if cfg.Auth != nil {
		g.Use(cfg.Auth)
	}
	h.RegisterRoutes(g)

	return e
}

// RequestLogger logs every request through logger once its response is written.
func RequestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	httpLogger := logger.Named("http")
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			kv := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			switch {
			case v.Status >= http.StatusInternalServerError:
				httpLogger.Error("Request failed", append(kv, "error", v.Error)...)
			case v.Error != nil:
				httpLogger.Info("Request rejected", append(kv, "error", v.Error)...)
			default:
				httpLogger.Debug("Request served", kv...)
			}
			return nil
		},
	})
}
