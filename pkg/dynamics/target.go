package dynamics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/unklstewy/intercept-sim/pkg/config"
	"github.com/unklstewy/intercept-sim/pkg/coordinates"
	"github.com/unklstewy/intercept-sim/pkg/environment"
)

// TargetModel is the maneuvering ballistic target.
//
// Forces:
//   - drag: q*S*(CD0 + CDalpha*a^2), opposite the velocity
//   - lift: q*S*CLalpha*a along the lateral maneuver axis, clamped to MaxG
//   - gravity
type TargetModel struct {
	cfg      config.TargetConfig
	env      environment.Model
	maxAccel float64
	aoaMin   float64
	aoaMax   float64
}

// NewTargetModel builds a target model from its configuration.
func NewTargetModel(cfg config.TargetConfig, env environment.Model) *TargetModel {
	return &TargetModel{
		cfg:      cfg,
		env:      env,
		maxAccel: environment.GToAccel(cfg.MaxG),
		aoaMin:   cfg.AoAMinDeg * coordinates.DegreesToRadians,
		aoaMax:   cfg.AoAMaxDeg * coordinates.DegreesToRadians,
	}
}

// ClampAoA limits a commanded angle of attack to the airframe range.
func (m *TargetModel) ClampAoA(aoa float64) float64 {
	return math.Max(m.aoaMin, math.Min(m.aoaMax, aoa))
}

// MaxAccel returns the maneuver acceleration limit in ft/s^2.
func (m *TargetModel) MaxAccel() float64 {
	return m.maxAccel
}

// ManeuverAxis returns the unit direction lift acts along for positive AoA:
// horizontal, perpendicular to the velocity, to the right of the ground track.
func ManeuverAxis(velocity mgl64.Vec3) mgl64.Vec3 {
	axis := coordinates.UnitDown.Cross(velocity)
	if axis.Len() < 1e-9 {
		return coordinates.UnitEast
	}
	return axis.Normalize()
}

// ManeuverAcceleration returns the lift-induced acceleration for the given
// state and AoA, clamped to the target's G limit.
func (m *TargetModel) ManeuverAcceleration(s State, aoa float64) mgl64.Vec3 {
	aoa = m.ClampAoA(aoa)
	if aoa == 0 || m.cfg.Mass <= 0 {
		return mgl64.Vec3{}
	}
	speed := s.Speed()
	q := environment.DynamicPressure(m.env.Density(s.Altitude()), speed)
	lift := q * m.cfg.ReferenceArea * m.cfg.CLAlpha * aoa
	return ClampMagnitude(ManeuverAxis(s.Velocity).Mul(lift/m.cfg.Mass), m.maxAccel)
}

// Derivative implements Model.
func (m *TargetModel) Derivative(s State, u Control) Rate {
	acc := m.env.Gravity().Add(m.ManeuverAcceleration(s, u.AoA))

	speed := s.Speed()
	if speed > 0 && m.cfg.Mass > 0 {
		aoa := m.ClampAoA(u.AoA)
		q := environment.DynamicPressure(m.env.Density(s.Altitude()), speed)
		cd := m.cfg.CD0 + m.cfg.CDAlpha*aoa*aoa
		drag := q * m.cfg.ReferenceArea * cd / m.cfg.Mass
		acc = acc.Sub(s.Velocity.Mul(drag / speed))
	}

	return Rate{Velocity: s.Velocity, Acceleration: acc}
}
