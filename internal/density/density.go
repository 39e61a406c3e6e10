// Package density maps alcohol-by-volume to liquid density
package density

// Densities in grams per millilitre at room temperature.
const (
	EthanolDensity = 0.789
	WaterDensity   = 1.0

	// DefaultDensity is used when neither an ABV nor an explicit override is
	// available for a product.
	DefaultDensity = 0.95
)

// ForABV returns the density of a water/ethanol mixture with the given
// alcohol-by-volume percentage (0-100). The blend is linear; real mixtures are
// slightly non-linear but the error is within acceptable domain tolerance.
func ForABV(abv float64) float64 {
	frac := abv / 100.0
	return EthanolDensity*frac + WaterDensity*(1.0-frac)
}

// Resolve picks the density for a measurement. An explicit override wins over
// the ABV blend; with neither available the default density applies.
func Resolve(overrideGPerMl, abv *float64) float64 {
	switch {
	case overrideGPerMl != nil:
		return *overrideGPerMl
	case abv != nil:
		return ForABV(*abv)
	default:
		return DefaultDensity
	}
}
