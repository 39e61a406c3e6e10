// internal/api/sessions.go measurement session endpoints
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hvirtala/bottletag-go/internal/anomaly"
)

// initSessionRoutes registers measurement session endpoints
func (c *Controller) initSessionRoutes() {
	c.Group.POST("/sessions", c.StartSession)
	c.Group.POST("/sessions/:id/skips", c.SkipMeasurement)
	c.Group.POST("/sessions/:id/close", c.CloseSession)
	c.Group.GET("/sessions/:id/measurements", c.SessionMeasurements)
}

// StartSessionRequest is the JSON body of a session start.
type StartSessionRequest struct {
	Name              string `json:"name"`
	Location          string `json:"location"`
	BaselineSessionID *uint  `json:"baseline_session_id"`
}

// StartSession handles POST /api/v1/sessions
func (c *Controller) StartSession(ctx echo.Context) error {
	var req StartSessionRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, bindError(err), "Invalid request body")
	}

	session, err := c.Sessions.Start(req.Name, req.Location, req.BaselineSessionID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to start session")
	}

	return ctx.JSON(http.StatusCreated, map[string]any{
		"session_id": session.ID,
		"started_at": session.StartedAt,
	})
}

// SkipMeasurementRequest names the product that could not be located.
type SkipMeasurementRequest struct {
	SKUID uint `json:"sku_id"`
}

// SkipMeasurement handles POST /api/v1/sessions/:id/skips. A skipped product
// is treated as absent when the session closes against a baseline.
func (c *Controller) SkipMeasurement(ctx echo.Context) error {
	sessionID, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid session ID")
	}

	var req SkipMeasurementRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, bindError(err), "Invalid request body")
	}

	measurement, err := c.Sessions.MarkSkipped(sessionID, req.SKUID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to record skip")
	}

	return ctx.JSON(http.StatusCreated, map[string]any{
		"measurement_id": measurement.ID,
		"sku_id":         measurement.SKUID,
		"skipped":        measurement.Skipped,
	})
}

// CloseSessionRequest optionally overrides the session's declared baseline.
type CloseSessionRequest struct {
	BaselineSessionID *uint `json:"baseline_session_id"`
}

// CloseSessionResponse is the anomaly rollup returned on close.
type CloseSessionResponse struct {
	Findings []anomaly.Finding   `json:"findings"`
	ByFlag   map[anomaly.Flag]int `json:"by_flag"`
}

// CloseSession handles POST /api/v1/sessions/:id/close
func (c *Controller) CloseSession(ctx echo.Context) error {
	sessionID, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid session ID")
	}

	var req CloseSessionRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, bindError(err), "Invalid request body")
	}

	summary, err := c.Sessions.Close(sessionID, req.BaselineSessionID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to close session")
	}

	return ctx.JSON(http.StatusOK, CloseSessionResponse{
		Findings: summary.Findings,
		ByFlag:   summary.ByFlag,
	})
}

// SessionMeasurements handles GET /api/v1/sessions/:id/measurements
func (c *Controller) SessionMeasurements(ctx echo.Context) error {
	sessionID, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid session ID")
	}

	measurements, err := c.DS.GetSessionMeasurements(sessionID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to fetch session measurements")
	}

	return ctx.JSON(http.StatusOK, map[string]any{"measurements": measurements})
}
