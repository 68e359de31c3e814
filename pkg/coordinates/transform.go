package coordinates

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// HorizontalCoordinates describes a line of sight in the local horizontal frame.
type HorizontalCoordinates struct {
	// Elevation in degrees above the local horizontal (-90 to +90)
	Elevation float64

	// Azimuth in degrees from north, clockwise (0-360)
	// 0/360 = North, 90 = East, 180 = South, 270 = West
	Azimuth float64
}

// LineOfSight returns the azimuth/elevation of the point `to` as seen from `from`.
// Coincident points return a zero-valued result.
func LineOfSight(from, to mgl64.Vec3) HorizontalCoordinates {
	rel := to.Sub(from)
	horiz := math.Hypot(rel[North], rel[East])
	if horiz < 1e-9 && math.Abs(rel[Down]) < 1e-9 {
		return HorizontalCoordinates{}
	}

	return HorizontalCoordinates{
		Elevation: math.Atan2(-rel[Down], horiz) * RadiansToDegrees,
		Azimuth:   NormalizeAzimuth(math.Atan2(rel[East], rel[North]) * RadiansToDegrees),
	}
}

// Heading returns the ground track of a velocity vector in degrees (0-360).
func Heading(v mgl64.Vec3) float64 {
	return NormalizeAzimuth(math.Atan2(v[East], v[North]) * RadiansToDegrees)
}

// FlightPathAngle returns the climb angle of a velocity vector in degrees.
// Positive values are climbing.
func FlightPathAngle(v mgl64.Vec3) float64 {
	return math.Atan2(-v[Down], math.Hypot(v[North], v[East])) * RadiansToDegrees
}

// VelocityFromAngles builds an NED velocity from speed, heading and flight path angle.
//
// Parameters:
//   - speed: magnitude in ft/s
//   - headingDeg: ground track in degrees from north
//   - flightPathDeg: climb angle in degrees (negative = descending)
func VelocityFromAngles(speed, headingDeg, flightPathDeg float64) mgl64.Vec3 {
	hdg := headingDeg * DegreesToRadians
	gamma := flightPathDeg * DegreesToRadians
	horiz := speed * math.Cos(gamma)
	return mgl64.Vec3{
		horiz * math.Cos(hdg),
		horiz * math.Sin(hdg),
		-speed * math.Sin(gamma),
	}
}
