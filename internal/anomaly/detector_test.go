package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hvirtala/bottletag-go/internal/datastore"
)

func testPolicy() Policy {
	return Policy{DropThresholdPct: -15.0, GainThresholdPct: 5.0}
}

func measurement(skuID uint, percentFull float64) datastore.BottleMeasurement {
	return datastore.BottleMeasurement{
		SKUID:          skuID,
		PercentFull:    percentFull,
		RawPercentFull: percentFull,
		CreatedAt:      time.Now(),
	}
}

func TestDetectMissingBottle(t *testing.T) {
	// Baseline of 10 products, current session only measured 9
	baseline := make([]datastore.BottleMeasurement, 0, 10)
	current := make([]datastore.BottleMeasurement, 0, 9)
	for sku := uint(1); sku <= 10; sku++ {
		baseline = append(baseline, measurement(sku, 60))
		if sku != 7 {
			current = append(current, measurement(sku, 60))
		}
	}

	summary := Detect(current, baseline, testPolicy())

	require.Len(t, summary.Findings, 1)
	assert.Equal(t, 1, summary.ByFlag[FlagMissing])
	assert.Equal(t, FlagMissing, summary.Findings[0].Flag)
	assert.Equal(t, uint(7), summary.Findings[0].SKUID)
}

func TestDetectSkippedCountsAsMissing(t *testing.T) {
	baseline := []datastore.BottleMeasurement{measurement(1, 80)}

	skipped := measurement(1, 0)
	skipped.Skipped = true
	current := []datastore.BottleMeasurement{skipped}

	summary := Detect(current, baseline, testPolicy())
	require.Len(t, summary.Findings, 1)
	assert.Equal(t, FlagMissing, summary.Findings[0].Flag)
}

func TestDetectVarianceFlags(t *testing.T) {
	tests := []struct {
		name        string
		baselinePct float64
		currentPct  float64
		wantFlag    Flag
		wantNone    bool
	}{
		{name: "large drop flags over-pouring", baselinePct: 80, currentPct: 50, wantFlag: FlagVarianceDrop},
		{name: "drop exactly at threshold flags", baselinePct: 80, currentPct: 65, wantFlag: FlagVarianceDrop},
		{name: "plausible pour-down stays clean", baselinePct: 80, currentPct: 70, wantNone: true},
		{name: "unexplained gain flags refill", baselinePct: 50, currentPct: 60, wantFlag: FlagVarianceGain},
		{name: "gain exactly at threshold flags", baselinePct: 50, currentPct: 55, wantFlag: FlagVarianceGain},
		{name: "tiny gain stays clean", baselinePct: 50, currentPct: 52, wantNone: true},
		{name: "unchanged stays clean", baselinePct: 50, currentPct: 50, wantNone: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			baseline := []datastore.BottleMeasurement{measurement(1, tc.baselinePct)}
			current := []datastore.BottleMeasurement{measurement(1, tc.currentPct)}

			summary := Detect(current, baseline, testPolicy())

			if tc.wantNone {
				assert.Empty(t, summary.Findings)
				assert.Empty(t, current[0].AnomalyFlags)
				return
			}

			require.Len(t, summary.Findings, 1)
			assert.Equal(t, tc.wantFlag, summary.Findings[0].Flag)
			assert.Equal(t, 1, summary.ByFlag[tc.wantFlag])
			assert.Equal(t, string(tc.wantFlag), current[0].AnomalyFlags)

			require.NotNil(t, current[0].VariancePct)
			assert.InDelta(t, tc.currentPct-tc.baselinePct, *current[0].VariancePct, 1e-9)
		})
	}
}

func TestDetectComparesUnclampedPercent(t *testing.T) {
	// A refill past nominal full reports PercentFull clamped to 100 but keeps
	// the raw reading. The comparison must see the raw values, otherwise the
	// gain hides behind the clamp.
	baseline := []datastore.BottleMeasurement{measurement(1, 98)}

	refilled := measurement(1, 112)
	refilled.PercentFull = 100
	current := []datastore.BottleMeasurement{refilled}

	summary := Detect(current, baseline, testPolicy())

	require.Len(t, summary.Findings, 1)
	assert.Equal(t, 1, summary.ByFlag[FlagVarianceGain])
	assert.Equal(t, FlagVarianceGain, summary.Findings[0].Flag)
	assert.InDelta(t, 14.0, summary.Findings[0].VariancePct, 1e-9)
	assert.InDelta(t, 98.0, summary.Findings[0].BaselinePctFull, 1e-9)
	assert.InDelta(t, 112.0, summary.Findings[0].CurrentPctFull, 1e-9)
}

func TestDetectAnnotatesVarianceOnCleanMeasurements(t *testing.T) {
	baseline := []datastore.BottleMeasurement{measurement(1, 80)}
	current := []datastore.BottleMeasurement{measurement(1, 72)}

	summary := Detect(current, baseline, testPolicy())
	assert.Empty(t, summary.Findings)

	// Variance is recorded even when within tolerance
	require.NotNil(t, current[0].VariancePct)
	assert.InDelta(t, -8.0, *current[0].VariancePct, 1e-9)
}

func TestDetectEmptyBaseline(t *testing.T) {
	current := []datastore.BottleMeasurement{measurement(1, 40), measurement(2, 90)}

	summary := Detect(current, nil, testPolicy())
	assert.Empty(t, summary.Findings)
	assert.Empty(t, summary.ByFlag)
}

func TestDetectNewProductInCurrentIsNotAnomalous(t *testing.T) {
	baseline := []datastore.BottleMeasurement{measurement(1, 60)}
	current := []datastore.BottleMeasurement{measurement(1, 60), measurement(2, 95)}

	summary := Detect(current, baseline, testPolicy())
	assert.Empty(t, summary.Findings)
}

func TestDetectUsesLatestReadingPerSKU(t *testing.T) {
	baseline := []datastore.BottleMeasurement{measurement(1, 80)}

	earlier := measurement(1, 30)
	earlier.CreatedAt = time.Now().Add(-time.Hour)
	later := measurement(1, 78)
	current := []datastore.BottleMeasurement{earlier, later}

	// The stale 30% reading is superseded; no drop flag
	summary := Detect(current, baseline, testPolicy())
	assert.Empty(t, summary.Findings)
}
