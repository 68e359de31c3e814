// Package dynamics implements the point-mass flight models for the target and
// the interceptors.
//
// Each model exposes Derivative(state, control) -> rate. The integrator is the
// only thing that turns a rate into a new state.
package dynamics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/unklstewy/intercept-sim/pkg/coordinates"
)

// State is the kinematic state of one vehicle.
type State struct {
	Position mgl64.Vec3 `json:"position"` // NED, ft
	Velocity mgl64.Vec3 `json:"velocity"` // NED, ft/s
	AoA      float64    `json:"aoa"`      // angle of attack, rad
}

// Rate is the time derivative of a State. AoA responds instantaneously and has
// no rate term.
type Rate struct {
	Velocity     mgl64.Vec3
	Acceleration mgl64.Vec3
}

// Control is the input held constant across one integration step.
type Control struct {
	// AoA is the commanded angle of attack (target only), rad.
	AoA float64

	// Accel is the commanded lateral acceleration (interceptor only), ft/s^2.
	Accel mgl64.Vec3
}

// Model is the contract every flight model satisfies.
type Model interface {
	Derivative(s State, u Control) Rate
}

// Advance returns s moved along r for h seconds (one Euler sub-step).
func (s State) Advance(r Rate, h float64) State {
	return State{
		Position: s.Position.Add(r.Velocity.Mul(h)),
		Velocity: s.Velocity.Add(r.Acceleration.Mul(h)),
		AoA:      s.AoA,
	}
}

// Speed returns the velocity magnitude in ft/s.
func (s State) Speed() float64 {
	return s.Velocity.Len()
}

// Altitude returns the height above the reference plane in ft.
func (s State) Altitude() float64 {
	return coordinates.Altitude(s.Position)
}

// IsFinite reports whether the state contains only finite numbers.
func (s State) IsFinite() bool {
	return coordinates.IsFinite(s.Position) &&
		coordinates.IsFinite(s.Velocity) &&
		!math.IsNaN(s.AoA) && !math.IsInf(s.AoA, 0)
}
