// Package environment holds the atmosphere and gravity models.
//
// Everything here is a pure function of altitude; there is no state.
package environment

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// Gravity is standard gravitational acceleration in ft/s^2.
	Gravity = 32.174

	// SeaLevelDensity is the standard-day air density at sea level in slug/ft^3.
	SeaLevelDensity = 0.0023769

	// ScaleHeight is the e-folding height of the exponential atmosphere in feet.
	ScaleHeight = 23800.0
)

// GravityVector is gravity in the NED frame.
var GravityVector = mgl64.Vec3{0, 0, Gravity}

// Density returns air density (slug/ft^3) at the given altitude in feet.
// Altitudes below the reference plane use sea-level density.
func Density(altitude float64) float64 {
	if altitude < 0 {
		altitude = 0
	}
	return SeaLevelDensity * math.Exp(-altitude/ScaleHeight)
}

// DynamicPressure returns q = 0.5 * rho * V^2 in lbf/ft^2 for density rho in slug/ft^3.
func DynamicPressure(rho, speed float64) float64 {
	return 0.5 * rho * speed * speed
}

// GToAccel converts a load factor in G to ft/s^2.
func GToAccel(g float64) float64 {
	return g * Gravity
}

// AccelToG converts an acceleration magnitude in ft/s^2 to G.
func AccelToG(a float64) float64 {
	return a / Gravity
}

// Model is the atmosphere and gravity field seen by a dynamics model.
type Model interface {
	// Density returns air density in slug/ft^3 at the given altitude.
	Density(altitude float64) float64

	// Gravity returns the gravitational acceleration vector in NED.
	Gravity() mgl64.Vec3
}

// Standard is the exponential atmosphere with constant gravity.
type Standard struct{}

func (Standard) Density(altitude float64) float64 { return Density(altitude) }
func (Standard) Gravity() mgl64.Vec3              { return GravityVector }

// Vacuum has no air and no gravity. Used to isolate guidance effects.
type Vacuum struct{}

func (Vacuum) Density(float64) float64 { return 0 }
func (Vacuum) Gravity() mgl64.Vec3     { return mgl64.Vec3{} }
