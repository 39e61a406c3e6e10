// Package anomaly compares a completed measurement session against a baseline
// session and flags readings whose variance or absence crosses policy
// thresholds. The detector only surfaces candidates for human review; it never
// resolves or suppresses anything on its own.
package anomaly

import (
	"strings"

	"github.com/hvirtala/bottletag-go/internal/conf"
	"github.com/hvirtala/bottletag-go/internal/datastore"
)

// Flag identifies one kind of detected anomaly.
type Flag string

const (
	// FlagMissing marks a product present in the baseline but absent or
	// skipped in the current session. Candidate theft/loss signal.
	FlagMissing Flag = "missing"
	// FlagVarianceDrop marks a fill drop beyond the policy threshold,
	// suggesting over-pouring or unauthorized consumption.
	FlagVarianceDrop Flag = "variance-drop"
	// FlagVarianceGain marks an unexplained fill increase, suggesting a
	// refill or bottle swap.
	FlagVarianceGain Flag = "variance-gain"
)

// Policy holds the tunable detection thresholds. Both are percent-full deltas;
// DropThresholdPct is negative.
type Policy struct {
	DropThresholdPct float64
	GainThresholdPct float64
}

// PolicyFromSettings builds a detection policy from the loaded settings.
func PolicyFromSettings(settings *conf.Settings) Policy {
	return Policy{
		DropThresholdPct: settings.Anomaly.VarianceDropPct,
		GainThresholdPct: settings.Anomaly.VarianceGainPct,
	}
}

// Finding is one flagged observation, listed by product identity. Percent
// values are the unclamped raw percent-full readings: a refill that pushes a
// bottle past nominal full must stay visible to the comparison.
type Finding struct {
	SKUID           uint
	Flag            Flag
	VariancePct     float64 // zero for FlagMissing
	MeasurementID   uint    // zero for FlagMissing
	BaselinePctFull float64
	CurrentPctFull  float64 // zero for FlagMissing
}

// Summary is the dashboard-level rollup of one detection run.
type Summary struct {
	Findings []Finding
	ByFlag   map[Flag]int
}

// Detect compares current against baseline and returns the findings. It also
// annotates the current measurements in place with their variance percent and
// joined flag string so the caller can persist them. An empty baseline yields
// an empty summary: with nothing to compare against, nothing is anomalous.
//
// Products are reconciled by SKU. When a session holds several readings for
// the same SKU the most recent non-skipped one represents it; a skipped
// reading counts as absent.
func Detect(current, baseline []datastore.BottleMeasurement, policy Policy) Summary {
	summary := Summary{ByFlag: make(map[Flag]int)}

	baselineBySKU := latestBySKU(baseline)
	currentBySKU := latestBySKU(current)

	for skuID, base := range baselineBySKU {
		cur, found := currentBySKU[skuID]
		if !found {
			summary.add(Finding{
				SKUID:           skuID,
				Flag:            FlagMissing,
				BaselinePctFull: base.RawPercentFull,
			})
			continue
		}

		// Compare unclamped values so over-nominal fills are not masked
		variance := cur.RawPercentFull - base.RawPercentFull
		cur.VariancePct = &variance

		var flags []Flag
		if variance <= policy.DropThresholdPct {
			flags = append(flags, FlagVarianceDrop)
		} else if variance >= policy.GainThresholdPct {
			flags = append(flags, FlagVarianceGain)
		}

		for _, flag := range flags {
			summary.add(Finding{
				SKUID:           skuID,
				Flag:            flag,
				VariancePct:     variance,
				MeasurementID:   cur.ID,
				BaselinePctFull: base.RawPercentFull,
				CurrentPctFull:  cur.RawPercentFull,
			})
		}
		cur.AnomalyFlags = joinFlags(flags)
	}

	return summary
}

func (s *Summary) add(f Finding) {
	s.Findings = append(s.Findings, f)
	s.ByFlag[f.Flag]++
}

// latestBySKU picks the representative measurement per SKU: the last
// non-skipped reading in creation order.
func latestBySKU(measurements []datastore.BottleMeasurement) map[uint]*datastore.BottleMeasurement {
	bySKU := make(map[uint]*datastore.BottleMeasurement, len(measurements))
	for i := range measurements {
		m := &measurements[i]
		if m.Skipped {
			continue
		}
		prev, seen := bySKU[m.SKUID]
		if !seen || !m.CreatedAt.Before(prev.CreatedAt) {
			bySKU[m.SKUID] = m
		}
	}
	return bySKU
}

func joinFlags(flags []Flag) string {
	if len(flags) == 0 {
		return ""
	}
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}
