// internal/api/api.go
package api

import (
	"crypto/rand"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hvirtala/bottletag-go/internal/conf"
	"github.com/hvirtala/bottletag-go/internal/datastore"
	"github.com/hvirtala/bottletag-go/internal/errors"
	"github.com/hvirtala/bottletag-go/internal/labels"
	"github.com/hvirtala/bottletag-go/internal/logging"
	"github.com/hvirtala/bottletag-go/internal/observability"
	"github.com/hvirtala/bottletag-go/internal/session"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	DS       datastore.Interface
	Settings *conf.Settings
	Labels   *labels.Service
	Sessions *session.Service

	apiLogger *slog.Logger
	metrics   *observability.Metrics
	startTime time.Time
}

// NewController creates the API controller and registers all routes under /api/v1.
func NewController(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	labelService *labels.Service, sessionService *session.Service,
	metrics *observability.Metrics) *Controller {

	c := &Controller{
		Echo:      e,
		Group:     e.Group("/api/v1"),
		DS:        ds,
		Settings:  settings,
		Labels:    labelService,
		Sessions:  sessionService,
		apiLogger: logging.ForService("api"),
		metrics:   metrics,
		startTime: time.Now(),
	}
	if c.apiLogger == nil {
		c.apiLogger = slog.Default()
	}

	c.initRoutes()
	return c
}

// initRoutes registers all API endpoints
func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)
	c.Echo.GET("/healthz", c.HealthCheck)

	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(c.metrics.Gatherer(), promhttp.HandlerOpts{})))
	}

	c.initLabelRoutes()
	c.initSessionRoutes()
}

// HealthCheck handles the API health check endpoint
func (c *Controller) HealthCheck(ctx echo.Context) error {
	response := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime_s":  int(time.Since(c.startTime).Seconds()),
	}
	return ctx.JSON(http.StatusOK, response)
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// generateCorrelationID creates a unique identifier for error tracking
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// statusForError maps an error's category to an HTTP status code. Lifecycle
// and uniqueness conflicts both map to 409; exhausted generation budgets map
// to 503 so clients know the request may succeed on retry.
func statusForError(err error) int {
	switch {
	case errors.IsValidation(err):
		return http.StatusBadRequest
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsState(err), errors.IsConflict(err):
		return http.StatusConflict
	case errors.IsCategory(err, errors.CategoryLimit):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleError constructs and returns an appropriate error response
func (c *Controller) HandleError(ctx echo.Context, err error, message string) error {
	code := statusForError(err)
	resp := &ErrorResponse{
		Error:         err.Error(),
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}

	c.apiLogger.Error("API Error",
		"correlation_id", resp.CorrelationID,
		"message", message,
		"error", err.Error(),
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP(),
	)

	return ctx.JSON(code, resp)
}
