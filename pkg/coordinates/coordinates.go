// Package coordinates provides the North-East-Down (NED) frame helpers used
// throughout the engagement simulator.
//
// All positions are flat-earth NED vectors in feet: X = North, Y = East,
// Z = Down. Altitude is therefore -Z. Velocities are in feet per second.
package coordinates

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Constants for unit conversions
const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// FeetToMeters converts feet to meters
	FeetToMeters = 0.3048

	// MetersToFeet converts meters to feet
	MetersToFeet = 1.0 / FeetToMeters

	// KilometersToFeet converts kilometers to feet
	KilometersToFeet = 1000.0 * MetersToFeet
)

// Axis indices into an NED vector.
const (
	North = 0
	East  = 1
	Down  = 2
)

// UnitDown is the local vertical, positive toward the ground.
var UnitDown = mgl64.Vec3{0, 0, 1}

// UnitEast is the local east axis.
var UnitEast = mgl64.Vec3{0, 1, 0}

// NED builds a position or velocity vector from its north, east and down components.
func NED(north, east, down float64) mgl64.Vec3 {
	return mgl64.Vec3{north, east, down}
}

// Altitude returns the height above the reference plane in feet.
func Altitude(p mgl64.Vec3) float64 {
	return -p[Down]
}

// Range returns the straight-line distance between two points in feet.
func Range(from, to mgl64.Vec3) float64 {
	return to.Sub(from).Len()
}

// GroundRange returns the horizontal (north/east) distance between two points.
func GroundRange(from, to mgl64.Vec3) float64 {
	dn := to[North] - from[North]
	de := to[East] - from[East]
	return math.Hypot(dn, de)
}

// IsFinite reports whether every component of v is a finite number.
func IsFinite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// NormalizeAzimuth wraps an azimuth into [0, 360).
func NormalizeAzimuth(azimuth float64) float64 {
	azimuth = math.Mod(azimuth, 360.0)
	if azimuth < 0 {
		azimuth += 360.0
	}
	return azimuth
}

// ClosestApproach finds the minimum separation over one integration step.
//
// The relative position (target minus interceptor) is assumed to vary linearly
// between r0 at the start of the step and r1 at the end. At 15,000 ft/s closing
// speed a 0.01 s step covers 150 ft, so endpoint-only checks would skip straight
// through a 50 ft intercept sphere.
//
// Returns the minimum distance and the fraction of the step (0..1) at which it
// occurs.
func ClosestApproach(r0, r1 mgl64.Vec3) (distance, fraction float64) {
	d := r1.Sub(r0)
	dd := d.Dot(d)
	if dd < 1e-12 {
		return r0.Len(), 0
	}

	fraction = -r0.Dot(d) / dd
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}

	return r0.Add(d.Mul(fraction)).Len(), fraction
}
