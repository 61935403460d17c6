// Package liquid models racks, containers and the samples they hold, the
// physical limits of pipetting instruments, and the staging layer used to
// simulate transfers before they are committed.
//
// All values inside this package are working units: volumes in microlitres
// and concentrations in nanomolar. Wire values (litres, molar) are converted
// at the boundary with the helpers below.
package liquid

import "math"

const (
	// VolumeConversionFactor converts litres to microlitres.
	VolumeConversionFactor = 1e6

	// ConcentrationConversionFactor converts molar to nanomolar.
	ConcentrationConversionFactor = 1e9

	// Epsilon is the tolerance for volume (µL) and concentration (nM)
	// comparisons.
	Epsilon = 0.01
)

// LitresToMicrolitres converts a wire volume to working units.
func LitresToMicrolitres(v float64) float64 { return v * VolumeConversionFactor }

// MicrolitresToLitres converts a working volume to wire units.
func MicrolitresToLitres(v float64) float64 { return v / VolumeConversionFactor }

// MolarToNanomolar converts a wire concentration to working units.
func MolarToNanomolar(c float64) float64 { return c * ConcentrationConversionFactor }

// NanomolarToMolar converts a working concentration to wire units.
func NanomolarToMolar(c float64) float64 { return c / ConcentrationConversionFactor }

// RoundVolume rounds a volume to one decimal place.
func RoundVolume(v float64) float64 { return roundTo(v, 1) }

// RoundConcentration rounds a concentration to two decimal places.
func RoundConcentration(c float64) float64 { return roundTo(c, 2) }

func roundTo(v float64, places int) float64 {
	f := math.Pow(10, float64(places))
	return math.Round(v*f) / f
}

// IsEqual reports whether a and b are equal within Epsilon.
func IsEqual(a, b float64) bool { return math.Abs(a-b) < Epsilon }

// IsLarger reports whether a exceeds b by at least Epsilon.
func IsLarger(a, b float64) bool { return a-b >= Epsilon }

// IsSmaller reports whether a is below b by at least Epsilon.
func IsSmaller(a, b float64) bool { return b-a >= Epsilon }

// IsZero reports whether v is zero within Epsilon.
func IsZero(v float64) bool { return IsEqual(v, 0) }
