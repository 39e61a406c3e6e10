// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hvirtala/bottletag-go/internal/conf"
)

// Interface abstracts the underlying database implementation and defines the
// operations the core services need from the persistent store.
type Interface interface {
	Open() error
	Close() error

	// SKU read model
	GetSKU(id uint) (SKU, error)
	GetSKUByCode(code string) (SKU, error)
	CreateSKU(sku *SKU) error

	// Labels and their audit trail
	GetLabel(id uint) (Label, error)
	GetLabelByCode(code string) (Label, error)
	LabelCodeExists(code string) (bool, error)
	CreateLabelBatch(batch *LabelBatch, labels []*Label, events []*LabelEvent) error
	SaveLabelTransition(label *Label, event *LabelEvent) error
	SaveLabelEvent(event *LabelEvent) error
	GetLabelEvents(labelID uint) ([]LabelEvent, error)
	GetLabelEventByKey(labelID uint, idempotencyKey string) (*LabelEvent, error)

	// Calibrations
	SaveCalibration(cal *BottleCalibration) error
	LatestCalibration(skuID uint) (*BottleCalibration, error)

	// Measurement sessions
	CreateSession(session *MeasurementSession) error
	GetSession(id uint) (MeasurementSession, error)
	GetSessionMeasurements(sessionID uint) ([]BottleMeasurement, error)
	SaveMeasurement(m *BottleMeasurement) error
	CompleteSession(session *MeasurementSession, measurements []*BottleMeasurement) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided settings.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// GetSKU retrieves a SKU by its ID.
func (ds *DataStore) GetSKU(id uint) (SKU, error) {
	var sku SKU
	if err := ds.DB.First(&sku, id).Error; err != nil {
		if errIsRecordNotFound(err) {
			return SKU{}, notFoundError("sku", fmt.Sprintf("%d", id))
		}
		return SKU{}, dbError(err, "get_sku", "sku_id", id)
	}
	return sku, nil
}

// GetSKUByCode retrieves a SKU by its catalog code.
func (ds *DataStore) GetSKUByCode(code string) (SKU, error) {
	var sku SKU
	if err := ds.DB.Where("code = ?", code).First(&sku).Error; err != nil {
		if errIsRecordNotFound(err) {
			return SKU{}, notFoundError("sku", code)
		}
		return SKU{}, dbError(err, "get_sku_by_code", "sku_code", code)
	}
	return sku, nil
}

// CreateSKU inserts a SKU read-model row. Catalog management is an external
// collaborator; this exists for import tooling and tests.
func (ds *DataStore) CreateSKU(sku *SKU) error {
	if err := ds.DB.Create(sku).Error; err != nil {
		if isConstraintViolation(err) {
			return conflictError(err, "create_sku", "sku_code", sku.Code)
		}
		return dbError(err, "create_sku", "sku_code", sku.Code)
	}
	return nil
}

// GetLabel retrieves a label by its ID.
func (ds *DataStore) GetLabel(id uint) (Label, error) {
	var label Label
	if err := ds.DB.First(&label, id).Error; err != nil {
		if errIsRecordNotFound(err) {
			return Label{}, notFoundError("label", fmt.Sprintf("%d", id))
		}
		return Label{}, dbError(err, "get_label", "label_id", id)
	}
	return label, nil
}

// GetLabelByCode retrieves a label by its printed code.
func (ds *DataStore) GetLabelByCode(code string) (Label, error) {
	var label Label
	if err := ds.DB.Where("code = ?", code).First(&label).Error; err != nil {
		if errIsRecordNotFound(err) {
			return Label{}, notFoundError("label", code)
		}
		return Label{}, dbError(err, "get_label_by_code", "label_code", code)
	}
	return label, nil
}

// LabelCodeExists reports whether a label code has already been issued.
func (ds *DataStore) LabelCodeExists(code string) (bool, error) {
	var count int64
	if err := ds.DB.Model(&Label{}).Where("code = ?", code).Count(&count).Error; err != nil {
		return false, dbError(err, "label_code_exists", "label_code", code)
	}
	return count > 0, nil
}

// CreateLabelBatch persists a provisioning batch, its labels and their CREATED
// events in a single transaction. events[i] belongs to labels[i]; label and
// batch IDs are filled in as rows are inserted. Any failure rolls the whole
// batch back so a batch never exists with fewer labels than its quantity.
func (ds *DataStore) CreateLabelBatch(batch *LabelBatch, labels []*Label, events []*LabelEvent) error {
	if len(labels) != len(events) {
		return validationError("labels and events must pair up", "events", len(events))
	}

	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			return fmt.Errorf("saving batch: %w", err)
		}
		for i, label := range labels {
			label.BatchID = batch.ID
			if err := tx.Create(label).Error; err != nil {
				return fmt.Errorf("saving label %q: %w", label.Code, err)
			}
			events[i].LabelID = label.ID
			if err := tx.Create(events[i]).Error; err != nil {
				return fmt.Errorf("saving created event for label %q: %w", label.Code, err)
			}
		}
		return nil
	})
	if err != nil {
		if isConstraintViolation(err) {
			return conflictError(err, "create_label_batch", "batch_id", batch.BatchID)
		}
		return dbError(err, "create_label_batch", "batch_id", batch.BatchID)
	}
	return nil
}

// SaveLabelTransition updates the label's current-state row and appends its
// audit event in one transaction. A reader never observes a status change
// without the matching event, or vice versa.
func (ds *DataStore) SaveLabelTransition(label *Label, event *LabelEvent) error {
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(label).Error; err != nil {
			return fmt.Errorf("saving label state: %w", err)
		}
		event.LabelID = label.ID
		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("saving label event: %w", err)
		}
		return nil
	})
	if err != nil {
		if isConstraintViolation(err) {
			return conflictError(err, "save_label_transition", "label_id", label.ID)
		}
		return dbError(err, "save_label_transition", "label_id", label.ID)
	}
	return nil
}

// SaveLabelEvent appends a standalone audit event without touching label
// state. Used for read-only SCANNED entries.
func (ds *DataStore) SaveLabelEvent(event *LabelEvent) error {
	if err := ds.DB.Create(event).Error; err != nil {
		if isConstraintViolation(err) {
			return conflictError(err, "save_label_event", "label_id", event.LabelID)
		}
		return dbError(err, "save_label_event", "label_id", event.LabelID)
	}
	return nil
}

// GetLabelEvents returns the full audit trail of a label, newest first.
// Insertion order breaks creation-time ties.
func (ds *DataStore) GetLabelEvents(labelID uint) ([]LabelEvent, error) {
	var events []LabelEvent
	err := ds.DB.Where("label_id = ?", labelID).
		Order("created_at DESC, id DESC").
		Find(&events).Error
	if err != nil {
		return nil, dbError(err, "get_label_events", "label_id", labelID)
	}
	return events, nil
}

// GetLabelEventByKey looks up a COUNT event by its idempotency key.
func (ds *DataStore) GetLabelEventByKey(labelID uint, idempotencyKey string) (*LabelEvent, error) {
	var event LabelEvent
	err := ds.DB.Where("label_id = ? AND idempotency_key = ?", labelID, idempotencyKey).
		First(&event).Error
	if err != nil {
		if errIsRecordNotFound(err) {
			return nil, notFoundError("label event", idempotencyKey)
		}
		return nil, dbError(err, "get_label_event_by_key", "label_id", labelID)
	}
	return &event, nil
}

// SaveCalibration stores a new tare calibration record.
func (ds *DataStore) SaveCalibration(cal *BottleCalibration) error {
	if err := ds.DB.Create(cal).Error; err != nil {
		return dbError(err, "save_calibration", "sku_id", cal.SKUID)
	}
	return nil
}

// LatestCalibration returns the most recent calibration for a SKU, or nil
// when the SKU has never been calibrated.
func (ds *DataStore) LatestCalibration(skuID uint) (*BottleCalibration, error) {
	var cal BottleCalibration
	err := ds.DB.Where("sku_id = ?", skuID).
		Order("created_at DESC, id DESC").
		First(&cal).Error
	if err != nil {
		if errIsRecordNotFound(err) {
			return nil, nil
		}
		return nil, dbError(err, "latest_calibration", "sku_id", skuID)
	}
	return &cal, nil
}

// CreateSession starts a new measurement session.
func (ds *DataStore) CreateSession(session *MeasurementSession) error {
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	if err := ds.DB.Create(session).Error; err != nil {
		return dbError(err, "create_session", "session_name", session.Name)
	}
	return nil
}

// GetSession retrieves a measurement session by ID.
func (ds *DataStore) GetSession(id uint) (MeasurementSession, error) {
	var session MeasurementSession
	if err := ds.DB.First(&session, id).Error; err != nil {
		if errIsRecordNotFound(err) {
			return MeasurementSession{}, notFoundError("session", fmt.Sprintf("%d", id))
		}
		return MeasurementSession{}, dbError(err, "get_session", "session_id", id)
	}
	return session, nil
}

// GetSessionMeasurements returns all measurements of a session in insertion order.
func (ds *DataStore) GetSessionMeasurements(sessionID uint) ([]BottleMeasurement, error) {
	var measurements []BottleMeasurement
	err := ds.DB.Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&measurements).Error
	if err != nil {
		return nil, dbError(err, "get_session_measurements", "session_id", sessionID)
	}
	return measurements, nil
}

// SaveMeasurement stores a single validated bottle measurement.
func (ds *DataStore) SaveMeasurement(m *BottleMeasurement) error {
	if err := ds.DB.Create(m).Error; err != nil {
		return dbError(err, "save_measurement", "session_id", m.SessionID)
	}
	return nil
}

// CompleteSession marks a session completed and persists the anomaly metadata
// the detector attached to its measurements, all in one transaction.
func (ds *DataStore) CompleteSession(session *MeasurementSession, measurements []*BottleMeasurement) error {
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(session).Error; err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
		for _, m := range measurements {
			if err := tx.Model(&BottleMeasurement{}).
				Where("id = ?", m.ID).
				Updates(map[string]any{
					"variance_pct":  m.VariancePct,
					"anomaly_flags": m.AnomalyFlags,
				}).Error; err != nil {
				return fmt.Errorf("saving anomaly metadata for measurement %d: %w", m.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return dbError(err, "complete_session", "session_id", session.ID)
	}
	return nil
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(
		&SKU{},
		&LabelBatch{},
		&Label{},
		&LabelEvent{},
		&BottleCalibration{},
		&MeasurementSession{},
		&BottleMeasurement{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}

	return nil
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}
