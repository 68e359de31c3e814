// Package integrator advances dynamics states with classical fixed-step
// fourth-order Runge-Kutta.
package integrator

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/unklstewy/intercept-sim/pkg/dynamics"
)

// DefaultTimeStep is the engagement integration step in seconds.
const DefaultTimeStep = 0.01

// RateFunc evaluates the state derivative.
type RateFunc func(dynamics.State) dynamics.Rate

// Step advances s by dt using RK4. It is a pure function: identical inputs
// always produce identical outputs. Non-finite results are passed through for
// the caller to detect.
func Step(s dynamics.State, f RateFunc, dt float64) dynamics.State {
	k1 := f(s)
	k2 := f(s.Advance(k1, dt/2))
	k3 := f(s.Advance(k2, dt/2))
	k4 := f(s.Advance(k3, dt))

	return s.Advance(dynamics.Rate{
		Velocity:     weighted(k1.Velocity, k2.Velocity, k3.Velocity, k4.Velocity),
		Acceleration: weighted(k1.Acceleration, k2.Acceleration, k3.Acceleration, k4.Acceleration),
	}, dt)
}

// StepModel advances s through model m with control u held for the whole step.
func StepModel(m dynamics.Model, s dynamics.State, u dynamics.Control, dt float64) dynamics.State {
	return Step(s, func(x dynamics.State) dynamics.Rate {
		return m.Derivative(x, u)
	}, dt)
}

// weighted returns (a + 2b + 2c + d) / 6.
func weighted(a, b, c, d mgl64.Vec3) mgl64.Vec3 {
	return a.Add(b.Mul(2)).Add(c.Mul(2)).Add(d).Mul(1.0 / 6.0)
}
