package tracking

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/unklstewy/intercept-sim/pkg/dynamics"
)

// Case identifies one of the maneuver assumptions flown by the pre-simulation.
type Case int

const (
	CasePositive Case = iota
	CaseZero
	CaseNegative

	// NumCases is the number of candidate trajectories.
	NumCases = 3
)

// Cases lists every case in index order.
var Cases = [NumCases]Case{CasePositive, CaseZero, CaseNegative}

func (c Case) String() string {
	switch c {
	case CasePositive:
		return "positive"
	case CaseZero:
		return "zero"
	case CaseNegative:
		return "negative"
	default:
		return fmt.Sprintf("case(%d)", int(c))
	}
}

// ParseCase converts a case name back to a Case.
func ParseCase(s string) (Case, error) {
	for _, c := range Cases {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown maneuver case %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Case) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Case) UnmarshalText(b []byte) error {
	parsed, err := ParseCase(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Trajectory is a target track sampled once per integration step.
//
// States[k] is the state k steps after target launch (flight time k*Step).
// A Trajectory is read-only once built.
type Trajectory struct {
	Case   Case
	Step   float64
	States []dynamics.State
}

// NewTrajectory allocates room for n samples.
func NewTrajectory(c Case, step float64, n int) *Trajectory {
	return &Trajectory{Case: c, Step: step, States: make([]dynamics.State, 0, n)}
}

// Append records the next sample.
func (tr *Trajectory) Append(s dynamics.State) {
	tr.States = append(tr.States, s)
}

// Len returns the number of samples.
func (tr *Trajectory) Len() int {
	return len(tr.States)
}

// Duration returns the flight time covered by the samples.
func (tr *Trajectory) Duration() float64 {
	if len(tr.States) == 0 {
		return 0
	}
	return float64(len(tr.States)-1) * tr.Step
}

// At returns the sample at flight step k. Steps past the end are
// extrapolated at the final velocity.
func (tr *Trajectory) At(k int) dynamics.State {
	n := len(tr.States)
	if n == 0 {
		return dynamics.State{}
	}
	if k < 0 {
		return tr.States[0]
	}
	if k < n {
		return tr.States[k]
	}
	last := tr.States[n-1]
	last.Position = last.Position.Add(last.Velocity.Mul(float64(k-n+1) * tr.Step))
	return last
}

// PositionAt returns the position at flight time t, interpolating between
// samples and extrapolating at constant velocity past the end.
func (tr *Trajectory) PositionAt(t float64) mgl64.Vec3 {
	return tr.StateAt(t).Position
}

// StateAt returns the interpolated state at flight time t.
func (tr *Trajectory) StateAt(t float64) dynamics.State {
	n := len(tr.States)
	if n == 0 || tr.Step <= 0 {
		return dynamics.State{}
	}
	// NaN lands here too
	if !(t > 0) {
		return tr.States[0]
	}

	x := t / tr.Step
	if x >= float64(n-1) {
		last := tr.States[n-1]
		last.Position = last.Position.Add(last.Velocity.Mul(t - tr.Duration()))
		return last
	}
	k := int(math.Floor(x))

	a, b := tr.States[k], tr.States[k+1]
	f := x - float64(k)
	return dynamics.State{
		Position: a.Position.Add(b.Position.Sub(a.Position).Mul(f)),
		Velocity: a.Velocity.Add(b.Velocity.Sub(a.Velocity).Mul(f)),
		AoA:      a.AoA + (b.AoA-a.AoA)*f,
	}
}
