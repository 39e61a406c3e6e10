package density

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForABVBounds(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, WaterDensity, ForABV(0), 1e-9, "pure water")
	assert.InDelta(t, EthanolDensity, ForABV(100), 1e-9, "pure ethanol")
}

func TestForABVMonotonicallyDecreasing(t *testing.T) {
	t.Parallel()

	prev := ForABV(0)
	for abv := 1.0; abv <= 100; abv++ {
		cur := ForABV(abv)
		assert.Less(t, cur, prev, "density must decrease as ABV rises, abv=%v", abv)
		prev = cur
	}
}

func TestForABVKnownBlend(t *testing.T) {
	t.Parallel()

	// 40% ABV spirit, the reference scenario used throughout the test suite
	assert.InDelta(t, 0.9156, ForABV(40), 1e-6)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	override := 1.04
	abv := 40.0

	tests := []struct {
		name     string
		override *float64
		abv      *float64
		expected float64
	}{
		{"override wins over abv", &override, &abv, 1.04},
		{"abv blend", nil, &abv, 0.9156},
		{"default when nothing known", nil, nil, DefaultDensity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.expected, Resolve(tt.override, tt.abv), 1e-6)
		})
	}
}
