package dynamics

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/unklstewy/intercept-sim/pkg/config"
	"github.com/unklstewy/intercept-sim/pkg/environment"
)

// InterceptorModel is an unpowered interceptor steered by lateral acceleration.
type InterceptorModel struct {
	cfg      config.InterceptorConfig
	env      environment.Model
	maxAccel float64
}

// NewInterceptorModel builds an interceptor model from its configuration.
func NewInterceptorModel(cfg config.InterceptorConfig, env environment.Model) *InterceptorModel {
	return &InterceptorModel{
		cfg:      cfg,
		env:      env,
		maxAccel: environment.GToAccel(cfg.MaxG),
	}
}

// MaxAccel returns the lateral acceleration limit in ft/s^2.
func (m *InterceptorModel) MaxAccel() float64 {
	return m.maxAccel
}

// Applied returns the guidance acceleration the airframe will actually fly for
// cmd at state s.
func (m *InterceptorModel) Applied(s State, cmd mgl64.Vec3) mgl64.Vec3 {
	return LateralLimit(cmd, s.Velocity, m.maxAccel)
}

// Derivative implements Model.
func (m *InterceptorModel) Derivative(s State, u Control) Rate {
	acc := m.Applied(s, u.Accel)

	if m.cfg.Gravity {
		acc = acc.Add(m.env.Gravity())
	}

	speed := s.Speed()
	if m.cfg.Drag && speed > 0 && m.cfg.Mass > 0 {
		q := environment.DynamicPressure(m.env.Density(s.Altitude()), speed)
		drag := q * m.cfg.ReferenceArea * m.cfg.CD0 / m.cfg.Mass
		acc = acc.Sub(s.Velocity.Mul(drag / speed))
	}

	return Rate{Velocity: s.Velocity, Acceleration: acc}
}
