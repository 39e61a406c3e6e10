// Package labels owns the label lifecycle state machine, its audit trail and
// batch provisioning.
package labels

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/hvirtala/bottletag-go/internal/conf"
	"github.com/hvirtala/bottletag-go/internal/datastore"
	"github.com/hvirtala/bottletag-go/internal/density"
	"github.com/hvirtala/bottletag-go/internal/errors"
	"github.com/hvirtala/bottletag-go/internal/observability"
	"github.com/hvirtala/bottletag-go/internal/volume"
)

// recentEventLimit caps the event list returned by Scan.
const recentEventLimit = 10

// Config holds the label provisioning knobs.
type Config struct {
	LabelPrefix  string
	SuffixLength int
}

// ConfigFromSettings builds a service Config from the loaded settings.
func ConfigFromSettings(settings *conf.Settings) Config {
	return Config{
		LabelPrefix:  settings.Inventory.LabelPrefix,
		SuffixLength: settings.Inventory.LabelSuffixLength,
	}
}

// Service implements the label lifecycle operations. It is stateless between
// requests apart from a short-lived read cache for SKU and calibration rows.
type Service struct {
	ds      datastore.Interface
	engine  *volume.Engine
	cfg     Config
	cache   *cache.Cache
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService creates a label lifecycle service. logger and metrics may be nil.
func NewService(ds datastore.Interface, engine *volume.Engine, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ds:      ds,
		engine:  engine,
		cfg:     cfg,
		cache:   cache.New(time.Minute, 5*time.Minute),
		logger:  logger,
		metrics: metrics,
	}
}

// GenerateRequest describes one provisioning request.
type GenerateRequest struct {
	SKUID    uint
	Quantity int
	Notes    string
	ActorID  string
}

// GenerateResult reports the created batch and its label codes.
type GenerateResult struct {
	BatchID string
	Codes   []string
}

// GenerateBatch creates a set of collision-free labels for a SKU inside one
// atomic unit of work. Either every label in the batch exists with its
// CREATED event, or none do.
func (s *Service) GenerateBatch(req GenerateRequest) (*GenerateResult, error) {
	if req.Quantity <= 0 {
		return nil, errors.Newf("quantity must be positive, got %d", req.Quantity).
			Component("labels").
			Category(errors.CategoryValidation).
			Context("field", "quantity").
			Build()
	}

	sku, err := s.ds.GetSKU(req.SKUID)
	if err != nil {
		return nil, err
	}
	if !sku.Active {
		return nil, errors.Newf("sku %q is inactive", sku.Code).
			Component("labels").
			Category(errors.CategoryState).
			Context("sku", sku.Code).
			Build()
	}

	codes, err := generateCodes(s.ds, s.cfg.LabelPrefix, s.cfg.SuffixLength, req.Quantity)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	batch := &datastore.LabelBatch{
		BatchID:   uuid.NewString(),
		SKUID:     sku.ID,
		Quantity:  req.Quantity,
		Notes:     req.Notes,
		CreatedBy: req.ActorID,
		CreatedAt: now,
	}

	labelRows := make([]*datastore.Label, len(codes))
	eventRows := make([]*datastore.LabelEvent, len(codes))
	for i, code := range codes {
		labelRows[i] = &datastore.Label{
			Code:   code,
			Status: datastore.StatusUnassigned,
			SKUID:  sku.ID,
		}
		event := &datastore.LabelEvent{
			Description: "label created",
			ActorID:     req.ActorID,
			CreatedAt:   now,
		}
		if err := createdTransition(snapshotOf(labelRows[i])).apply(event); err != nil {
			return nil, err
		}
		eventRows[i] = event
	}

	if err := s.ds.CreateLabelBatch(batch, labelRows, eventRows); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Inventory.RecordLabelsGenerated(len(codes))
	}
	s.logger.Info("label batch generated",
		"batch_id", batch.BatchID,
		"sku", sku.Code,
		"quantity", req.Quantity)

	return &GenerateResult{BatchID: batch.BatchID, Codes: codes}, nil
}

// AssignRequest describes an assignment of a label to a location.
type AssignRequest struct {
	LabelID    uint
	Location   string
	LocationID string
	ActorID    string
	DeviceID   string
}

// AssignResult reports the resulting status. Idempotent is set when the label
// was already assigned to the requested location and nothing was written.
type AssignResult struct {
	Status     datastore.LabelStatus
	Idempotent bool
}

// Assign moves a label to a location. Legal from UNASSIGNED and ASSIGNED;
// assigning a retired label is a lifecycle conflict. Re-assigning to the same
// location is a no-op that writes no event, so redundant client retries do
// not flood the audit log.
func (s *Service) Assign(req AssignRequest) (*AssignResult, error) {
	if req.Location == "" {
		return nil, errors.Newf("location must not be empty").
			Component("labels").
			Category(errors.CategoryValidation).
			Context("field", "location").
			Build()
	}

	label, err := s.ds.GetLabel(req.LabelID)
	if err != nil {
		return nil, err
	}

	if label.Status == datastore.StatusRetired {
		return nil, errors.Newf("cannot assign a retired label").
			Component("labels").
			Category(errors.CategoryState).
			Context("label", label.Code).
			Build()
	}

	if label.Status == datastore.StatusAssigned &&
		label.Location == req.Location && label.LocationID == req.LocationID {
		return &AssignResult{Status: label.Status, Idempotent: true}, nil
	}

	from := snapshotOf(&label)
	wasUnassigned := label.Status == datastore.StatusUnassigned

	label.Status = datastore.StatusAssigned
	label.Location = req.Location
	label.LocationID = req.LocationID
	if label.AssignedAt == nil {
		now := time.Now()
		label.AssignedAt = &now
	}

	var tr transition
	if wasUnassigned {
		tr = assignedTransition(from, snapshotOf(&label))
	} else {
		tr = locationChangedTransition(from, snapshotOf(&label))
	}

	event := &datastore.LabelEvent{
		Location:  req.Location,
		ActorID:   req.ActorID,
		DeviceID:  req.DeviceID,
		CreatedAt: time.Now(),
	}
	if err := tr.apply(event); err != nil {
		return nil, err
	}

	if err := s.ds.SaveLabelTransition(&label, event); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Inventory.RecordLabelAssigned()
	}
	s.logger.Info("label assigned", "label", label.Code, "location", req.Location)

	return &AssignResult{Status: label.Status}, nil
}

// Retire marks a label terminal. Retiring an already retired label is a
// lifecycle conflict, not a crash.
func (s *Service) Retire(labelID uint, reason, actorID, deviceID string) (datastore.LabelStatus, error) {
	label, err := s.ds.GetLabel(labelID)
	if err != nil {
		return "", err
	}

	if label.Status == datastore.StatusRetired {
		return "", errors.Newf("label %q is already retired", label.Code).
			Component("labels").
			Category(errors.CategoryState).
			Context("label", label.Code).
			Build()
	}

	from := snapshotOf(&label)
	now := time.Now()
	label.Status = datastore.StatusRetired
	label.RetiredAt = &now
	label.RetireReason = reason

	event := &datastore.LabelEvent{
		Description: reason,
		Location:    label.Location,
		ActorID:     actorID,
		DeviceID:    deviceID,
		CreatedAt:   now,
	}
	if err := retiredTransition(from, snapshotOf(&label)).apply(event); err != nil {
		return "", err
	}

	if err := s.ds.SaveLabelTransition(&label, event); err != nil {
		return "", err
	}

	if s.metrics != nil {
		s.metrics.Inventory.RecordLabelRetired()
	}
	s.logger.Info("label retired", "label", label.Code, "reason", reason)

	return label.Status, nil
}

// CountRequest is one weight reading submitted against a label.
type CountRequest struct {
	LabelID        uint
	GrossWeightG   float64
	Location       string // optional, used when the count implies placement
	ActorID        string
	DeviceID       string
	IdempotencyKey string // optional, supplied by offline-queued clients
	OfflineQueued  bool
	TareOverrideG  *float64 // explicit per-measurement tare override
	SessionID      *uint    // optional measurement session to record into
}

// CountResult carries the validated measurement.
type CountResult struct {
	Measurement volume.Estimate
	Idempotent  bool
}

// RecordCount runs the volume inference engine against a reading, records a
// COUNT event, and implicitly assigns an unassigned label (a first physical
// count implies placement). Rejected readings are never persisted. Duplicate
// submissions carrying the same idempotency key collapse to the first
// result; the store-level unique constraint on (label, key) closes the
// check-then-insert race under concurrent retries.
func (s *Service) RecordCount(req CountRequest) (*CountResult, error) {
	if req.GrossWeightG <= 0 {
		s.recordRejected("validation")
		return nil, errors.Newf("gross weight must be positive, got %.1f", req.GrossWeightG).
			Component("labels").
			Category(errors.CategoryValidation).
			Context("field", "grossWeightG").
			Build()
	}

	label, err := s.ds.GetLabel(req.LabelID)
	if err != nil {
		return nil, err
	}

	if label.Status == datastore.StatusRetired {
		s.recordRejected("state")
		return nil, errors.Newf("cannot count a retired label").
			Component("labels").
			Category(errors.CategoryState).
			Context("label", label.Code).
			Build()
	}

	if req.IdempotencyKey != "" {
		if prior, err := s.ds.GetLabelEventByKey(label.ID, req.IdempotencyKey); err == nil {
			return s.replayCount(prior), nil
		} else if !errors.IsNotFound(err) {
			return nil, err
		}
	}

	sku, err := s.skuFor(label.SKUID)
	if err != nil {
		return nil, err
	}

	tareG, calibrationID, err := s.resolveTare(&sku, req.TareOverrideG)
	if err != nil {
		s.recordRejected("configuration")
		return nil, err
	}

	densityGPerMl := density.Resolve(sku.DensityOverride, sku.ABV)

	est, err := s.engine.Estimate(volume.Input{
		GrossWeightG:    req.GrossWeightG,
		TareG:           tareG,
		DensityGPerMl:   densityGPerMl,
		NominalVolumeMl: sku.NominalVolumeMl,
	})
	if err != nil {
		s.recordRejected("validation")
		return nil, err
	}

	from := snapshotOf(&label)
	if label.Status == datastore.StatusUnassigned {
		label.Status = datastore.StatusAssigned
		if req.Location != "" {
			label.Location = req.Location
		}
		now := time.Now()
		label.AssignedAt = &now
	}

	event := &datastore.LabelEvent{
		Description:    countDescription(req.IdempotencyKey),
		Location:       eventLocation(&label, req.Location),
		ActorID:        req.ActorID,
		DeviceID:       req.DeviceID,
		GrossWeightG:   &req.GrossWeightG,
		NetLiquidG:     &est.NetLiquidG,
		VolumeMl:       &est.VolumeMl,
		PercentFull:    &est.PercentFull,
		RawPercentFull: &est.RawPercentFull,
		Warnings:       volume.JoinWarnings(est.Warnings),
		CreatedAt:      time.Now(),
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		event.IdempotencyKey = &key
	}
	if err := countTransition(from, snapshotOf(&label)).apply(event); err != nil {
		return nil, err
	}

	if err := s.ds.SaveLabelTransition(&label, event); err != nil {
		// A conflict on the idempotency index means a concurrent duplicate
		// committed first; its result is our result.
		if errors.IsConflict(err) && req.IdempotencyKey != "" {
			prior, lookupErr := s.ds.GetLabelEventByKey(label.ID, req.IdempotencyKey)
			if lookupErr == nil {
				return s.replayCount(prior), nil
			}
		}
		return nil, err
	}

	if req.SessionID != nil {
		measurement := &datastore.BottleMeasurement{
			SessionID:      *req.SessionID,
			SKUID:          sku.ID,
			CalibrationID:  calibrationID,
			GrossWeightG:   req.GrossWeightG,
			TareG:          tareG,
			DensityGPerMl:  densityGPerMl,
			NetLiquidG:     est.NetLiquidG,
			VolumeMl:       est.VolumeMl,
			PercentFull:    est.PercentFull,
			RawPercentFull: est.RawPercentFull,
			PoursRemaining: est.PoursRemaining,
			Warnings:       volume.JoinWarnings(est.Warnings),
			CreatedAt:      time.Now(),
		}
		if err := s.ds.SaveMeasurement(measurement); err != nil {
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.Inventory.RecordCount(est.PercentFull)
	}
	s.logger.Info("count recorded",
		"label", label.Code,
		"gross_g", req.GrossWeightG,
		"percent_full", est.PercentFull,
		"warnings", len(est.Warnings),
		"offline_queued", req.OfflineQueued)

	return &CountResult{Measurement: est}, nil
}

// replayCount reconstructs a count result from a previously recorded event.
func (s *Service) replayCount(event *datastore.LabelEvent) *CountResult {
	est := volume.Estimate{}
	if event.NetLiquidG != nil {
		est.NetLiquidG = *event.NetLiquidG
	}
	if event.VolumeMl != nil {
		est.VolumeMl = *event.VolumeMl
		est.PoursRemaining = est.VolumeMl / s.engine.Config().StandardPourMl
	}
	if event.PercentFull != nil {
		est.PercentFull = *event.PercentFull
		est.RawPercentFull = *event.PercentFull
	}
	// Events written since raw percent was added carry the unclamped value
	if event.RawPercentFull != nil {
		est.RawPercentFull = *event.RawPercentFull
	}
	est.Warnings = volume.ParseWarnings(event.Warnings)
	return &CountResult{Measurement: est, Idempotent: true}
}

// ScanResult is the read-only view returned for a scanned code.
type ScanResult struct {
	Label        datastore.Label
	RecentEvents []datastore.LabelEvent
	Warning      string
}

// Scan looks up a label by its printed code. Always legal, including on a
// retired label, whose response carries a warning rather than an error so
// operators are informed without being blocked from viewing history. The
// SCANNED audit entry is best effort: a failure to log it never fails the
// scan itself.
func (s *Service) Scan(code, actorID, deviceID string) (*ScanResult, error) {
	label, err := s.ds.GetLabelByCode(code)
	if err != nil {
		return nil, err
	}

	events, err := s.ds.GetLabelEvents(label.ID)
	if err != nil {
		return nil, err
	}
	if len(events) > recentEventLimit {
		events = events[:recentEventLimit]
	}

	result := &ScanResult{Label: label, RecentEvents: events}
	if label.Status == datastore.StatusRetired {
		result.Warning = fmt.Sprintf("label %s is retired; history is read-only", label.Code)
	}

	scanEvent := &datastore.LabelEvent{
		LabelID:     label.ID,
		Type:        datastore.EventScanned,
		Description: "label scanned",
		Location:    label.Location,
		ActorID:     actorID,
		DeviceID:    deviceID,
		CreatedAt:   time.Now(),
	}
	if err := s.ds.SaveLabelEvent(scanEvent); err != nil {
		s.logger.Error("failed to record scan event", "label", label.Code, "error", err)
	}

	if s.metrics != nil {
		s.metrics.Inventory.RecordLabelScan()
	}

	return result, nil
}

// History returns the full audit trail of a label, newest first.
func (s *Service) History(labelID uint) ([]datastore.LabelEvent, error) {
	if _, err := s.ds.GetLabel(labelID); err != nil {
		return nil, err
	}
	return s.ds.GetLabelEvents(labelID)
}

// Calibrate stores a new tare calibration for a SKU. The newest calibration
// becomes authoritative for subsequent counts.
func (s *Service) Calibrate(skuID uint, method datastore.CalibrationMethod, tareG float64, fullWeightG *float64, actorID string) error {
	if tareG <= 0 {
		return errors.Newf("tare weight must be positive, got %.1f", tareG).
			Component("labels").
			Category(errors.CategoryValidation).
			Context("field", "tareG").
			Build()
	}

	sku, err := s.skuFor(skuID)
	if err != nil {
		return err
	}

	cal := &datastore.BottleCalibration{
		SKUID:       sku.ID,
		Method:      method,
		TareG:       tareG,
		FullWeightG: fullWeightG,
		CreatedBy:   actorID,
		CreatedAt:   time.Now(),
	}
	if err := s.ds.SaveCalibration(cal); err != nil {
		return err
	}

	s.cache.Delete(calibrationCacheKey(sku.ID))
	s.logger.Info("calibration recorded", "sku", sku.Code, "method", method, "tare_g", tareG)
	return nil
}

// resolveTare picks the tare weight for a count. Resolution order: explicit
// per-measurement override, most recent calibration, SKU default. With none
// available the operation fails closed; a silently assumed tare would poison
// every downstream estimate.
func (s *Service) resolveTare(sku *datastore.SKU, override *float64) (float64, *uint, error) {
	if override != nil {
		if *override <= 0 {
			return 0, nil, errors.Newf("tare override must be positive, got %.1f", *override).
				Component("labels").
				Category(errors.CategoryValidation).
				Context("field", "tareOverrideG").
				Build()
		}
		return *override, nil, nil
	}

	cal, err := s.latestCalibration(sku.ID)
	if err != nil {
		return 0, nil, err
	}
	if cal != nil {
		calID := cal.ID
		return cal.TareG, &calID, nil
	}

	if sku.DefaultTareG > 0 {
		return sku.DefaultTareG, nil, nil
	}

	return 0, nil, errors.Newf("tare not configured for sku %q", sku.Code).
		Component("labels").
		Category(errors.CategoryValidation).
		Context("sku", sku.Code).
		Build()
}

func (s *Service) skuFor(id uint) (datastore.SKU, error) {
	key := fmt.Sprintf("sku:%d", id)
	if cached, found := s.cache.Get(key); found {
		return cached.(datastore.SKU), nil
	}
	sku, err := s.ds.GetSKU(id)
	if err != nil {
		return datastore.SKU{}, err
	}
	s.cache.Set(key, sku, cache.DefaultExpiration)
	return sku, nil
}

func (s *Service) latestCalibration(skuID uint) (*datastore.BottleCalibration, error) {
	key := calibrationCacheKey(skuID)
	if cached, found := s.cache.Get(key); found {
		return cached.(*datastore.BottleCalibration), nil
	}
	cal, err := s.ds.LatestCalibration(skuID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, cal, cache.DefaultExpiration)
	return cal, nil
}

func calibrationCacheKey(skuID uint) string {
	return fmt.Sprintf("cal:%d", skuID)
}

func (s *Service) recordRejected(category string) {
	if s.metrics != nil {
		s.metrics.Inventory.RecordCountRejected(category)
	}
}

func countDescription(idempotencyKey string) string {
	if idempotencyKey == "" {
		return "count recorded"
	}
	// The description doubles as a human-greppable carrier of the key
	return "count recorded, idempotency-key=" + idempotencyKey
}

func eventLocation(label *datastore.Label, requested string) string {
	if requested != "" {
		return requested
	}
	return label.Location
}
