package volume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hvirtala/bottletag-go/internal/density"
	"github.com/hvirtala/bottletag-go/internal/errors"
)

func testConfig() Config {
	return Config{
		StandardPourMl:   44.0,
		FullTolerancePct: 3.0,
		LowFillWarnPct:   2.0,
	}
}

func TestEstimateReferenceScenario(t *testing.T) {
	t.Parallel()

	// 900g gross, 520g tare, 40% ABV spirit in a 750mL bottle
	engine := New(testConfig())
	est, err := engine.Estimate(Input{
		GrossWeightG:    900,
		TareG:           520,
		DensityGPerMl:   density.ForABV(40),
		NominalVolumeMl: 750,
	})
	require.NoError(t, err)

	assert.InDelta(t, 380.0, est.NetLiquidG, 1e-9)
	assert.InDelta(t, 415.03, est.VolumeMl, 0.01)
	assert.InDelta(t, 55.3, est.PercentFull, 0.05)
	assert.InDelta(t, est.RawPercentFull, est.PercentFull, 1e-9, "no clamping below 100%")
	assert.InDelta(t, est.VolumeMl/44.0, est.PoursRemaining, 1e-9)
	assert.Empty(t, est.Warnings)
}

func TestEstimateRejectsNonPositiveNet(t *testing.T) {
	t.Parallel()

	engine := New(testConfig())
	_, err := engine.Estimate(Input{
		GrossWeightG:    400,
		TareG:           520,
		DensityGPerMl:   0.9156,
		NominalVolumeMl: 750,
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "net liquid")
}

func TestEstimateInputValidation(t *testing.T) {
	t.Parallel()

	valid := Input{GrossWeightG: 900, TareG: 520, DensityGPerMl: 0.95, NominalVolumeMl: 750}

	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"zero gross weight", func(in *Input) { in.GrossWeightG = 0 }},
		{"negative gross weight", func(in *Input) { in.GrossWeightG = -10 }},
		{"zero tare", func(in *Input) { in.TareG = 0 }},
		{"zero density", func(in *Input) { in.DensityGPerMl = 0 }},
		{"zero nominal volume", func(in *Input) { in.NominalVolumeMl = 0 }},
	}

	engine := New(testConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := valid
			tt.mutate(&in)
			_, err := engine.Estimate(in)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err), "expected a validation error, got %v", err)
		})
	}
}

func TestEstimateOverfullWarning(t *testing.T) {
	t.Parallel()

	engine := New(testConfig())

	// 750mL of water at density 1.0 weighs 750g; 820g net is ~109% full
	est, err := engine.Estimate(Input{
		GrossWeightG:    1340,
		TareG:           520,
		DensityGPerMl:   1.0,
		NominalVolumeMl: 750,
	})
	require.NoError(t, err)

	assert.Contains(t, est.Warnings, WarnOverfull)
	assert.Equal(t, 100.0, est.PercentFull, "reported percent is clamped")
	assert.Greater(t, est.RawPercentFull, 109.0, "raw percent is retained")
}

func TestEstimateWithinToleranceNoWarning(t *testing.T) {
	t.Parallel()

	engine := New(testConfig())

	// ~101.3% full, inside the 3% tolerance
	est, err := engine.Estimate(Input{
		GrossWeightG:    1280,
		TareG:           520,
		DensityGPerMl:   1.0,
		NominalVolumeMl: 750,
	})
	require.NoError(t, err)
	assert.Empty(t, est.Warnings)
	assert.Equal(t, 100.0, est.PercentFull)
}

func TestEstimateLowFillWarning(t *testing.T) {
	t.Parallel()

	engine := New(testConfig())

	// 10g net in a 750mL bottle is ~1.4% full
	est, err := engine.Estimate(Input{
		GrossWeightG:    530,
		TareG:           520,
		DensityGPerMl:   1.0,
		NominalVolumeMl: 750,
	})
	require.NoError(t, err)
	assert.Contains(t, est.Warnings, WarnLowFill)
}

func TestNetAndVolumeIdentities(t *testing.T) {
	t.Parallel()

	engine := New(testConfig())
	inputs := []Input{
		{GrossWeightG: 1000, TareG: 500, DensityGPerMl: 0.95, NominalVolumeMl: 700},
		{GrossWeightG: 650.5, TareG: 420.25, DensityGPerMl: 0.9156, NominalVolumeMl: 750},
		{GrossWeightG: 2100, TareG: 900, DensityGPerMl: 1.0, NominalVolumeMl: 1000},
	}

	for _, in := range inputs {
		est, err := engine.Estimate(in)
		require.NoError(t, err)
		assert.InDelta(t, in.GrossWeightG-in.TareG, est.NetLiquidG, 1e-9)
		assert.InDelta(t, est.NetLiquidG/in.DensityGPerMl, est.VolumeMl, 1e-9)
	}
}
