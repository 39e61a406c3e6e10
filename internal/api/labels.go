// internal/api/labels.go label lifecycle endpoints
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hvirtala/bottletag-go/internal/datastore"
	"github.com/hvirtala/bottletag-go/internal/errors"
	"github.com/hvirtala/bottletag-go/internal/labels"
	"github.com/hvirtala/bottletag-go/internal/volume"
)

// initLabelRoutes registers label lifecycle endpoints
func (c *Controller) initLabelRoutes() {
	c.Group.POST("/labels/batches", c.GenerateBatch)
	c.Group.POST("/labels/:id/assign", c.AssignLabel)
	c.Group.POST("/labels/:id/retire", c.RetireLabel)
	c.Group.POST("/labels/:id/count", c.RecordCount)
	c.Group.GET("/labels/:id/history", c.LabelHistory)
	c.Group.GET("/labels/scan/:code", c.ScanLabel)
	c.Group.POST("/skus/:id/calibrations", c.CalibrateSKU)
}

// GenerateBatchRequest is the JSON body of a provisioning request.
type GenerateBatchRequest struct {
	SKUID    uint   `json:"sku_id"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes"`
	ActorID  string `json:"actor_id"`
}

// GenerateBatchResponse reports the created batch.
type GenerateBatchResponse struct {
	BatchID string   `json:"batch_id"`
	Codes   []string `json:"codes"`
}

// GenerateBatch handles POST /api/v1/labels/batches
func (c *Controller) GenerateBatch(ctx echo.Context) error {
	var req GenerateBatchRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, bindError(err), "Invalid request body")
	}

	result, err := c.Labels.GenerateBatch(labels.GenerateRequest{
		SKUID:    req.SKUID,
		Quantity: req.Quantity,
		Notes:    req.Notes,
		ActorID:  req.ActorID,
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to generate label batch")
	}

	return ctx.JSON(http.StatusCreated, GenerateBatchResponse{
		BatchID: result.BatchID,
		Codes:   result.Codes,
	})
}

// AssignLabelRequest is the JSON body of an assignment.
type AssignLabelRequest struct {
	Location   string `json:"location"`
	LocationID string `json:"location_id"`
	ActorID    string `json:"actor_id"`
	DeviceID   string `json:"device_id"`
}

// AssignLabelResponse reports the resulting lifecycle state.
type AssignLabelResponse struct {
	Status     datastore.LabelStatus `json:"status"`
	Idempotent bool                  `json:"idempotent"`
}

// AssignLabel handles POST /api/v1/labels/:id/assign
func (c *Controller) AssignLabel(ctx echo.Context) error {
	labelID, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid label ID")
	}

	var req AssignLabelRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, bindError(err), "Invalid request body")
	}

	result, err := c.Labels.Assign(labels.AssignRequest{
		LabelID:    labelID,
		Location:   req.Location,
		LocationID: req.LocationID,
		ActorID:    req.ActorID,
		DeviceID:   req.DeviceID,
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to assign label")
	}

	return ctx.JSON(http.StatusOK, AssignLabelResponse{
		Status:     result.Status,
		Idempotent: result.Idempotent,
	})
}

// RetireLabelRequest is the JSON body of a retirement.
type RetireLabelRequest struct {
	Reason   string `json:"reason"`
	ActorID  string `json:"actor_id"`
	DeviceID string `json:"device_id"`
}

// RetireLabel handles POST /api/v1/labels/:id/retire
func (c *Controller) RetireLabel(ctx echo.Context) error {
	labelID, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid label ID")
	}

	var req RetireLabelRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, bindError(err), "Invalid request body")
	}

	status, err := c.Labels.Retire(labelID, req.Reason, req.ActorID, req.DeviceID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to retire label")
	}

	return ctx.JSON(http.StatusOK, map[string]any{"status": status})
}

// RecordCountRequest is the JSON body of a weight reading.
type RecordCountRequest struct {
	GrossWeightG   float64  `json:"gross_weight_g"`
	Location       string   `json:"location"`
	ActorID        string   `json:"actor_id"`
	DeviceID       string   `json:"device_id"`
	IdempotencyKey string   `json:"idempotency_key"`
	OfflineQueued  bool     `json:"offline_queued"`
	TareOverrideG  *float64 `json:"tare_override_g"`
	SessionID      *uint    `json:"session_id"`
}

// RecordCountResponse carries the validated measurement.
type RecordCountResponse struct {
	NetLiquidG     float64          `json:"net_liquid_g"`
	VolumeMl       float64          `json:"volume_ml"`
	PercentFull    float64          `json:"percent_full"`
	PoursRemaining float64          `json:"pours_remaining"`
	Warnings       []volume.Warning `json:"warnings,omitempty"`
	Idempotent     bool             `json:"idempotent"`
}

// RecordCount handles POST /api/v1/labels/:id/count
func (c *Controller) RecordCount(ctx echo.Context) error {
	labelID, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid label ID")
	}

	var req RecordCountRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, bindError(err), "Invalid request body")
	}

	result, err := c.Labels.RecordCount(labels.CountRequest{
		LabelID:        labelID,
		GrossWeightG:   req.GrossWeightG,
		Location:       req.Location,
		ActorID:        req.ActorID,
		DeviceID:       req.DeviceID,
		IdempotencyKey: req.IdempotencyKey,
		OfflineQueued:  req.OfflineQueued,
		TareOverrideG:  req.TareOverrideG,
		SessionID:      req.SessionID,
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to record count")
	}

	return ctx.JSON(http.StatusOK, RecordCountResponse{
		NetLiquidG:     result.Measurement.NetLiquidG,
		VolumeMl:       result.Measurement.VolumeMl,
		PercentFull:    result.Measurement.PercentFull,
		PoursRemaining: result.Measurement.PoursRemaining,
		Warnings:       result.Measurement.Warnings,
		Idempotent:     result.Idempotent,
	})
}

// ScanLabelResponse is the read-only scan view.
type ScanLabelResponse struct {
	Label        datastore.Label        `json:"label"`
	RecentEvents []datastore.LabelEvent `json:"recent_events"`
	Warning      string                 `json:"warning,omitempty"`
}

// ScanLabel handles GET /api/v1/labels/scan/:code
func (c *Controller) ScanLabel(ctx echo.Context) error {
	code := ctx.Param("code")
	result, err := c.Labels.Scan(code, ctx.QueryParam("actor_id"), ctx.QueryParam("device_id"))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to scan label")
	}

	return ctx.JSON(http.StatusOK, ScanLabelResponse{
		Label:        result.Label,
		RecentEvents: result.RecentEvents,
		Warning:      result.Warning,
	})
}

// LabelHistory handles GET /api/v1/labels/:id/history
func (c *Controller) LabelHistory(ctx echo.Context) error {
	labelID, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid label ID")
	}

	events, err := c.Labels.History(labelID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to fetch label history")
	}

	return ctx.JSON(http.StatusOK, map[string]any{"events": events})
}

// CalibrateSKURequest is the JSON body of a tare calibration.
type CalibrateSKURequest struct {
	Method      datastore.CalibrationMethod `json:"method"`
	TareG       float64                     `json:"tare_g"`
	FullWeightG *float64                    `json:"full_weight_g"`
	ActorID     string                      `json:"actor_id"`
}

// CalibrateSKU handles POST /api/v1/skus/:id/calibrations
func (c *Controller) CalibrateSKU(ctx echo.Context) error {
	skuID, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid SKU ID")
	}

	var req CalibrateSKURequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, bindError(err), "Invalid request body")
	}

	if err := c.Labels.Calibrate(skuID, req.Method, req.TareG, req.FullWeightG, req.ActorID); err != nil {
		return c.HandleError(ctx, err, "Failed to record calibration")
	}

	return ctx.JSON(http.StatusCreated, map[string]any{"status": "recorded"})
}

func pathID(ctx echo.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return 0, errors.Newf("invalid numeric id %q", ctx.Param("id")).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return uint(id), nil
}

func bindError(err error) error {
	return errors.New(err).
		Component("api").
		Category(errors.CategoryValidation).
		Context("operation", "bind").
		Build()
}
