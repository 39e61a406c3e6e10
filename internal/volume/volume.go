// Package volume infers remaining liquid volume from a gross weight reading
package volume

import (
	"strings"

	"github.com/hvirtala/bottletag-go/internal/conf"
	"github.com/hvirtala/bottletag-go/internal/errors"
)

// Warning identifies a plausibility concern on an otherwise valid estimate.
// Warnings are persisted with the measurement and surfaced to the caller;
// they do not reject the reading.
type Warning string

const (
	// WarnOverfull means the bottle weighed more than its nominal full weight
	// beyond tolerance: an overpour, a wrong tare, or a wrong product.
	WarnOverfull Warning = "overfull"
	// WarnLowFill means the computed fill is implausibly low but nonzero.
	WarnLowFill Warning = "low-fill"
)

// Config holds the tunable constants of the inference engine. Passed in
// explicitly at construction, never read from package state.
type Config struct {
	StandardPourMl   float64 // volume of a single pour
	FullTolerancePct float64 // percent over 100 before WarnOverfull
	LowFillWarnPct   float64 // percent under which WarnLowFill is raised
}

// ConfigFromSettings builds an engine Config from the loaded settings.
func ConfigFromSettings(settings *conf.Settings) Config {
	return Config{
		StandardPourMl:   settings.Inventory.StandardPourMl,
		FullTolerancePct: settings.Inventory.FullTolerancePct,
		LowFillWarnPct:   settings.Inventory.LowFillWarnPct,
	}
}

// Input is one weight reading with its resolved product metadata.
type Input struct {
	GrossWeightG    float64 // gross weight of bottle plus liquid
	TareG           float64 // resolved empty-bottle weight
	DensityGPerMl   float64 // resolved liquid density
	NominalVolumeMl float64 // nominal full volume of the container
}

// Estimate is a validated fill estimate derived from a single reading.
type Estimate struct {
	NetLiquidG     float64   // gross minus tare
	VolumeMl       float64   // net mass over density
	PercentFull    float64   // clamped to [0,100] for reporting
	RawPercentFull float64   // unclamped, retained for anomaly analysis
	PoursRemaining float64   // volume over standard pour
	Warnings       []Warning // plausibility warnings, may be empty
}

// Engine converts gross weights into fill estimates.
type Engine struct {
	cfg Config
}

// New creates an inference engine with the given configuration.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Estimate validates the input and computes the fill estimate. A returned
// error means the reading is invalid and must not be persisted; the error
// names the specific violated constraint so an operator can correct the
// physical measurement or the configuration.
func (e *Engine) Estimate(in Input) (Estimate, error) {
	if in.GrossWeightG <= 0 {
		return Estimate{}, inputError("gross weight must be positive", "grossWeightG", in.GrossWeightG)
	}
	if in.TareG <= 0 {
		return Estimate{}, inputError("tare weight must be positive", "tareG", in.TareG)
	}
	if in.DensityGPerMl <= 0 {
		return Estimate{}, inputError("density must be positive", "densityGPerMl", in.DensityGPerMl)
	}
	if in.NominalVolumeMl <= 0 {
		return Estimate{}, inputError("nominal volume must be positive", "nominalVolumeMl", in.NominalVolumeMl)
	}

	netLiquidG := in.GrossWeightG - in.TareG
	if netLiquidG <= 0 {
		// A non-positive fill almost certainly means a tare/identity mismatch,
		// not an empty bottle that happens to weigh less than its tare.
		return Estimate{}, errors.Newf("net liquid weight %.1fg is not positive, gross weight is at or below tare", netLiquidG).
			Component("volume").
			Category(errors.CategoryValidation).
			Context("grossWeightG", in.GrossWeightG).
			Context("tareG", in.TareG).
			Build()
	}

	volumeMl := netLiquidG / in.DensityGPerMl
	rawPercent := 100.0 * volumeMl / in.NominalVolumeMl

	est := Estimate{
		NetLiquidG:     netLiquidG,
		VolumeMl:       volumeMl,
		RawPercentFull: rawPercent,
		PercentFull:    clampPercent(rawPercent),
		PoursRemaining: volumeMl / e.cfg.StandardPourMl,
	}

	if rawPercent > 100.0+e.cfg.FullTolerancePct {
		est.Warnings = append(est.Warnings, WarnOverfull)
	} else if rawPercent > 0 && rawPercent < e.cfg.LowFillWarnPct {
		est.Warnings = append(est.Warnings, WarnLowFill)
	}

	return est, nil
}

// JoinWarnings serializes a warning set for storage, comma-joined.
func JoinWarnings(warnings []Warning) string {
	if len(warnings) == 0 {
		return ""
	}
	parts := make([]string, len(warnings))
	for i, w := range warnings {
		parts[i] = string(w)
	}
	return strings.Join(parts, ",")
}

// ParseWarnings parses a stored warning set produced by JoinWarnings.
func ParseWarnings(stored string) []Warning {
	if stored == "" {
		return nil
	}
	parts := strings.Split(stored, ",")
	warnings := make([]Warning, len(parts))
	for i, p := range parts {
		warnings[i] = Warning(p)
	}
	return warnings
}

func clampPercent(pct float64) float64 {
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}

func inputError(message, field string, value float64) error {
	return errors.Newf("%s", message).
		Component("volume").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", value).
		Build()
}
