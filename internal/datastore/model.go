// model.go this code defines the data model for the application
package datastore

import "time"

// LabelStatus is the lifecycle state of a label. Transitions are monotonic:
// UNASSIGNED -> ASSIGNED -> RETIRED, with RETIRED terminal.
type LabelStatus string

const (
	StatusUnassigned LabelStatus = "UNASSIGNED"
	StatusAssigned   LabelStatus = "ASSIGNED"
	StatusRetired    LabelStatus = "RETIRED"
)

// EventType identifies the kind of audit entry recorded for a label.
type EventType string

const (
	EventCreated         EventType = "CREATED"
	EventAssigned        EventType = "ASSIGNED"
	EventLocationChanged EventType = "LOCATION_CHANGED"
	EventRetired         EventType = "RETIRED"
	EventScanned         EventType = "SCANNED"
	EventCount           EventType = "COUNT"
)

// CalibrationMethod tags how a tare weight was obtained.
type CalibrationMethod string

const (
	CalibrationMeasuredEmpty CalibrationMethod = "MEASURED_EMPTY"
	CalibrationMeasuredFull  CalibrationMethod = "MEASURED_FULL"
	CalibrationEstimated     CalibrationMethod = "ESTIMATED"
)

// SKU is the read model of a catalog entry describing a stockable container
// type. Catalog CRUD lives outside the core; this row carries only what volume
// inference and label provisioning need.
type SKU struct {
	ID              uint   `gorm:"primaryKey"`
	Code            string `gorm:"uniqueIndex;not null"`
	Name            string
	NominalVolumeMl float64
	DefaultTareG    float64  // zero means no default tare configured
	ABV             *float64 // alcohol by volume percentage, nil if unknown
	DensityOverride *float64 // explicit density in g/mL, wins over ABV blend
	Active          bool     `gorm:"index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LabelBatch records one provisioning request. Quantity always matches the
// number of labels created for it; partial batches are rolled back.
type LabelBatch struct {
	ID        uint   `gorm:"primaryKey"`
	BatchID   string `gorm:"uniqueIndex;not null"` // external UUID
	SKUID     uint   `gorm:"column:sku_id;index;not null"`
	Quantity  int
	Notes     string
	CreatedBy string // opaque actor identifier
	CreatedAt time.Time
}

// Label is one physical tag instance bound to a container. Labels are never
// physically deleted; RETIRED is the soft-terminal state.
type Label struct {
	ID                uint        `gorm:"primaryKey"`
	Code              string      `gorm:"uniqueIndex;not null"` // immutable once issued
	Status            LabelStatus `gorm:"type:varchar(16);index;not null"`
	Location          string
	LocationID        string
	SKUID             uint `gorm:"column:sku_id;index;not null"`
	BatchID           uint `gorm:"index"`
	AssignedAt        *time.Time
	RetiredAt         *time.Time
	RetireReason      string
	ReplacesLabelID   *uint // backward link for lost/damaged tag reissue
	ReplacedByLabelID *uint // forward link for lost/damaged tag reissue
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Events            []LabelEvent `gorm:"foreignKey:LabelID"`
}

// LabelEvent is one immutable audit entry. Events are never updated or
// deleted; ordering is by creation time with insertion order breaking ties.
// The composite unique index on (label_id, idempotency_key) is what makes
// duplicate COUNT submissions collapse exactly once even under concurrent
// retries; NULL keys never collide.
type LabelEvent struct {
	ID             uint      `gorm:"primaryKey"`
	LabelID        uint      `gorm:"index;not null;uniqueIndex:idx_label_events_idem,priority:1"`
	Type           EventType `gorm:"type:varchar(20);index;not null"`
	Description    string
	IdempotencyKey *string `gorm:"uniqueIndex:idx_label_events_idem,priority:2"`
	Location       string
	ActorID        string
	DeviceID       string
	FromSnapshot   string `gorm:"type:text"` // serialized prior state, empty for CREATED
	ToSnapshot     string `gorm:"type:text"` // serialized new state
	GrossWeightG   *float64
	NetLiquidG     *float64
	VolumeMl       *float64
	PercentFull    *float64
	RawPercentFull *float64  // unclamped percent, retained for anomaly analysis
	Warnings       string    // comma-joined plausibility warnings, empty when clean
	CreatedAt      time.Time `gorm:"index"`
}

// BottleCalibration is a per-SKU empirically measured or estimated tare
// weight. The most recent calibration for a SKU is authoritative unless a
// measurement explicitly overrides it.
type BottleCalibration struct {
	ID          uint              `gorm:"primaryKey"`
	SKUID       uint              `gorm:"column:sku_id;index;not null"`
	Method      CalibrationMethod `gorm:"type:varchar(20);not null"`
	TareG       float64
	FullWeightG *float64
	CreatedBy   string
	CreatedAt   time.Time `gorm:"index"`
}

// MeasurementSession is one bounded inventory count over some scope.
type MeasurementSession struct {
	ID              uint `gorm:"primaryKey"`
	Name            string
	Location        string
	SourceSessionID *uint `gorm:"index"` // baseline session for anomaly comparison
	StartedAt       time.Time
	CompletedAt     *time.Time
	Measurements    []BottleMeasurement `gorm:"foreignKey:SessionID"`
}

// BottleMeasurement is one weight reading within a session.
type BottleMeasurement struct {
	ID             uint `gorm:"primaryKey"`
	SessionID      uint `gorm:"index;not null"`
	SKUID          uint `gorm:"column:sku_id;index;not null"`
	CalibrationID  *uint
	GrossWeightG   float64
	TareG          float64
	DensityGPerMl  float64
	NetLiquidG     float64
	VolumeMl       float64
	PercentFull    float64
	RawPercentFull float64
	PoursRemaining float64
	Warnings       string   // comma-joined plausibility warnings from the estimate
	VariancePct    *float64 // set by the anomaly detector at session close
	AnomalyFlags   string   // comma-joined flag kinds, empty when clean
	Skipped        bool     // bottle not physically found during the count
	CreatedAt      time.Time
}
