// Package session manages measurement sessions: bounded inventory counts that
// close with an anomaly comparison against an optional baseline session.
package session

import (
	"log/slog"
	"time"

	"github.com/hvirtala/bottletag-go/internal/anomaly"
	"github.com/hvirtala/bottletag-go/internal/datastore"
	"github.com/hvirtala/bottletag-go/internal/errors"
	"github.com/hvirtala/bottletag-go/internal/observability"
)

// Service owns session start/close and drives the anomaly detector.
type Service struct {
	ds      datastore.Interface
	policy  anomaly.Policy
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService creates a session service. logger and metrics may be nil.
func NewService(ds datastore.Interface, policy anomaly.Policy, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ds: ds, policy: policy, logger: logger, metrics: metrics}
}

// Start opens a new measurement session. baselineSessionID, when set, names
// the session whose measurements the close comparison will run against; it
// must exist.
func (s *Service) Start(name, location string, baselineSessionID *uint) (*datastore.MeasurementSession, error) {
	if baselineSessionID != nil {
		if _, err := s.ds.GetSession(*baselineSessionID); err != nil {
			return nil, err
		}
	}

	session := &datastore.MeasurementSession{
		Name:            name,
		Location:        location,
		SourceSessionID: baselineSessionID,
		StartedAt:       time.Now(),
	}
	if err := s.ds.CreateSession(session); err != nil {
		return nil, err
	}

	s.logger.Info("session started", "session_id", session.ID, "location", location)
	return session, nil
}

// MarkSkipped records that a product could not be physically located during
// the count. The skipped entry participates in the close comparison as an
// absence, so a baseline product skipped here is flagged missing. Skipping on
// a completed session is a lifecycle conflict.
func (s *Service) MarkSkipped(sessionID, skuID uint) (*datastore.BottleMeasurement, error) {
	session, err := s.ds.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session.CompletedAt != nil {
		return nil, errors.Newf("session %d is already completed", session.ID).
			Component("session").
			Category(errors.CategoryState).
			Context("session_id", session.ID).
			Build()
	}
	if _, err := s.ds.GetSKU(skuID); err != nil {
		return nil, err
	}

	measurement := &datastore.BottleMeasurement{
		SessionID: session.ID,
		SKUID:     skuID,
		Skipped:   true,
	}
	if err := s.ds.SaveMeasurement(measurement); err != nil {
		return nil, err
	}

	s.logger.Info("bottle skipped", "session_id", session.ID, "sku_id", skuID)
	return measurement, nil
}

// Close completes a session: it loads the session's measurements and those of
// its baseline, runs the anomaly detector, and persists the per-measurement
// anomaly metadata together with the completion time in one transaction.
// baselineSessionID overrides the session's own source reference when set. A
// session with no baseline closes with an empty summary. Closing an already
// completed session is a lifecycle conflict.
func (s *Service) Close(sessionID uint, baselineSessionID *uint) (*anomaly.Summary, error) {
	session, err := s.ds.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session.CompletedAt != nil {
		return nil, errors.Newf("session %d is already completed", session.ID).
			Component("session").
			Category(errors.CategoryState).
			Context("session_id", session.ID).
			Build()
	}

	baselineID := session.SourceSessionID
	if baselineSessionID != nil {
		baselineID = baselineSessionID
	}

	current, err := s.ds.GetSessionMeasurements(session.ID)
	if err != nil {
		return nil, err
	}

	var baseline []datastore.BottleMeasurement
	if baselineID != nil {
		if _, err := s.ds.GetSession(*baselineID); err != nil {
			return nil, err
		}
		baseline, err = s.ds.GetSessionMeasurements(*baselineID)
		if err != nil {
			return nil, err
		}
	}

	summary := anomaly.Detect(current, baseline, s.policy)

	now := time.Now()
	session.CompletedAt = &now
	session.SourceSessionID = baselineID

	annotated := make([]*datastore.BottleMeasurement, len(current))
	for i := range current {
		annotated[i] = &current[i]
	}
	if err := s.ds.CompleteSession(&session, annotated); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		for flag, count := range summary.ByFlag {
			for i := 0; i < count; i++ {
				s.metrics.Inventory.RecordAnomaly(string(flag))
			}
		}
	}
	s.logger.Info("session closed",
		"session_id", session.ID,
		"measurements", len(current),
		"findings", len(summary.Findings))

	return &summary, nil
}
