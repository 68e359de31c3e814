package engagement

import (
	"github.com/unklstewy/intercept-sim/pkg/config"
	"github.com/unklstewy/intercept-sim/pkg/coordinates"
	"github.com/unklstewy/intercept-sim/pkg/dynamics"
	"github.com/unklstewy/intercept-sim/pkg/integrator"
	"github.com/unklstewy/intercept-sim/pkg/tracking"
)

// maneuver is a step AoA schedule: zero until onset, then a constant AoA.
// Onset is a flight time, or the first step at or below an altitude when one
// is set. Once started it stays on.
type maneuver struct {
	aoa      float64 // rad
	start    float64 // flight time, s
	altitude float64 // ft, 0 = use start
	started  bool
}

func newManeuver(aoaDeg, start, altitude float64) *maneuver {
	return &maneuver{
		aoa:      aoaDeg * coordinates.DegreesToRadians,
		start:    start,
		altitude: altitude,
	}
}

// AoA returns the commanded angle of attack at the start of a step.
func (m *maneuver) AoA(flightTime float64, s dynamics.State) float64 {
	if !m.started {
		if m.altitude > 0 {
			m.started = s.Altitude() <= m.altitude
		} else {
			m.started = flightTime >= m.start-timeEpsilon
		}
	}
	if m.started {
		return m.aoa
	}
	return 0
}

// targetFlight advances the target one step under its maneuver schedule.
type targetFlight struct {
	model *dynamics.TargetModel
	plan  *maneuver
	dt    float64
	steps int // flight steps completed
}

func (f *targetFlight) step(s dynamics.State) dynamics.State {
	aoa := f.model.ClampAoA(f.plan.AoA(float64(f.steps)*f.dt, s))
	s.AoA = aoa
	f.steps++
	return integrator.StepModel(f.model, s, dynamics.Control{AoA: aoa}, f.dt)
}

// flyTarget integrates the target alone from launch for n steps, or until it
// reaches the ground, recording every step.
func flyTarget(c tracking.Case, cfg config.ScenarioConfig, model *dynamics.TargetModel, plan *maneuver, n int) *tracking.Trajectory {
	tr := tracking.NewTrajectory(c, cfg.TimeStep, n+1)
	s := dynamics.State{
		Position: cfg.Target.InitialPosition,
		Velocity: cfg.Target.InitialVelocity(),
	}
	tr.Append(s)

	flight := &targetFlight{model: model, plan: plan, dt: cfg.TimeStep}
	for k := 0; k < n; k++ {
		next := flight.step(s)
		if !next.IsFinite() {
			break
		}
		s = next
		tr.Append(s)
		if s.Altitude() <= 0 {
			break
		}
	}
	return tr
}
