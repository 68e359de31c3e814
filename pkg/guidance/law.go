// Package guidance turns interceptor and target geometry into lateral
// acceleration commands.
//
// Two laws exist: PIP pursuit, flown toward a predicted intercept point, and
// terminal proportional navigation, flown against the live target. Which one
// applies on a given step is decided by NextMode.
package guidance

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/unklstewy/intercept-sim/pkg/coordinates"
	"github.com/unklstewy/intercept-sim/pkg/dynamics"
)

// Aim is what a law steers toward: the live target, or a fixed PIP with zero
// velocity.
type Aim struct {
	Position mgl64.Vec3
	Velocity mgl64.Vec3
}

// Law computes an acceleration command. Commands are raw; the interceptor
// model removes the along-track part and applies the G limit.
type Law interface {
	Command(own dynamics.State, aim Aim) mgl64.Vec3
}

// losGeometry returns the unit line of sight, the LOS rotation rate vector and
// the closing speed for own against aim. ok is false for coincident points.
func losGeometry(own dynamics.State, aim Aim) (u, omega mgl64.Vec3, closing float64, ok bool) {
	r := aim.Position.Sub(own.Position)
	rr := r.Dot(r)
	if rr < 1e-12 {
		return mgl64.Vec3{}, mgl64.Vec3{}, 0, false
	}
	vrel := aim.Velocity.Sub(own.Velocity)
	rng := r.Len()

	u = r.Mul(1 / rng)
	omega = r.Cross(vrel).Mul(1 / rr)
	closing = -r.Dot(vrel) / rng
	return u, omega, closing, true
}

// ProportionalNav is true proportional navigation:
//
//	a = N * Vc * (Omega x u)
//
// with Omega the line-of-sight rate vector and u the unit line of sight.
type ProportionalNav struct {
	N float64
}

// Command implements Law.
func (p ProportionalNav) Command(own dynamics.State, aim Aim) mgl64.Vec3 {
	u, omega, vc, ok := losGeometry(own, aim)
	if !ok {
		return mgl64.Vec3{}
	}
	return omega.Cross(u).Mul(p.N * vc)
}

// PIPPursuit steers toward a stationary predicted intercept point by nulling
// the line-of-sight rate to it, and cancels the part of gravity that would
// bend the trajectory off the point.
//
// When the point is not closing (behind the interceptor) the law turns toward
// it at MaxAccel.
type PIPPursuit struct {
	Gain     float64
	MaxAccel float64
	Gravity  mgl64.Vec3
}

// Command implements Law. aim.Velocity is ignored.
func (p PIPPursuit) Command(own dynamics.State, aim Aim) mgl64.Vec3 {
	aim.Velocity = mgl64.Vec3{}
	u, omega, vc, ok := losGeometry(own, aim)
	if !ok {
		return mgl64.Vec3{}
	}

	if vc <= 0 {
		turn := dynamics.Perpendicular(u, own.Velocity)
		if turn.Len() < 1e-9 {
			// Point dead astern; break upward.
			turn = dynamics.Perpendicular(coordinates.UnitDown.Mul(-1), own.Velocity)
		}
		if turn.Len() < 1e-9 {
			turn = dynamics.Perpendicular(coordinates.UnitEast, own.Velocity)
		}
		return turn.Normalize().Mul(p.MaxAccel)
	}

	cmd := omega.Cross(u).Mul(p.Gain * vc)
	return cmd.Sub(dynamics.Perpendicular(p.Gravity, own.Velocity))
}
