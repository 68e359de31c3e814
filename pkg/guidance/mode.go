package guidance

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/unklstewy/intercept-sim/pkg/config"
	"github.com/unklstewy/intercept-sim/pkg/environment"
)

// Mode is an interceptor's guidance phase.
type Mode int

const (
	ModePreLaunch Mode = iota
	ModePreCalculatedPIP
	ModeMidcoursePIP
	ModeTerminalPN
	ModeDeactivated
)

func (m Mode) String() string {
	switch m {
	case ModePreLaunch:
		return "PreLaunch"
	case ModePreCalculatedPIP:
		return "PreCalculatedPIP"
	case ModeMidcoursePIP:
		return "MidcoursePIP"
	case ModeTerminalPN:
		return "TerminalPN"
	case ModeDeactivated:
		return "Deactivated"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseMode converts a mode name back to a Mode.
func ParseMode(s string) (Mode, error) {
	for m := ModePreLaunch; m <= ModeDeactivated; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown guidance mode %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Guided reports whether the mode flies a guidance law.
func (m Mode) Guided() bool {
	return m == ModePreCalculatedPIP || m == ModeMidcoursePIP || m == ModeTerminalPN
}

// Strategy selects how interceptors are guided during midcourse.
type Strategy int

const (
	// StrategyLegacy recomputes the PIP live on every step.
	StrategyLegacy Strategy = iota

	// StrategyPhaseBased flies pre-simulated candidate PIPs above the
	// midcourse range and reassigns interceptors once the maneuver is known.
	StrategyPhaseBased
)

func (s Strategy) String() string {
	switch s {
	case StrategyLegacy:
		return "legacy"
	case StrategyPhaseBased:
		return "phase-based"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy accepts "legacy" or "phase-based" ("phase" and "phasebased"
// are accepted too).
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "legacy":
		return StrategyLegacy, nil
	case "phase-based", "phase", "phasebased":
		return StrategyPhaseBased, nil
	default:
		return 0, fmt.Errorf("unknown guidance strategy %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(b []byte) error {
	parsed, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Gates are the range boundaries in feet.
type Gates struct {
	Terminal  float64
	Midcourse float64
}

// NextMode returns the mode for this step.
//
// The rule depends only on the current range, whether the interceptor has
// launched, and whether it was deactivated. It is re-evaluated every step and
// not latched: if range opens again past a boundary the interceptor drops back
// to the looser phase. Deactivated is terminal.
//
//	Legacy:      range >= Terminal -> MidcoursePIP, else TerminalPN
//	PhaseBased:  range >  Midcourse -> PreCalculatedPIP
//	             Terminal <= range <= Midcourse -> MidcoursePIP
//	             range <  Terminal -> TerminalPN
func NextMode(strategy Strategy, current Mode, launched bool, rng float64, g Gates) Mode {
	if current == ModeDeactivated {
		return ModeDeactivated
	}
	if !launched {
		return ModePreLaunch
	}
	if rng < g.Terminal {
		return ModeTerminalPN
	}
	if strategy == StrategyPhaseBased && rng > g.Midcourse {
		return ModePreCalculatedPIP
	}
	return ModeMidcoursePIP
}

// Set holds the configured law for each guided mode.
type Set struct {
	Gates    Gates
	Pursuit  PIPPursuit
	Terminal ProportionalNav
}

// NewSet builds the laws from configuration.
func NewSet(g config.GuidanceConfig, ic config.InterceptorConfig, env environment.Model) Set {
	gravity := mgl64.Vec3{}
	if ic.Gravity {
		gravity = env.Gravity()
	}
	return Set{
		Gates: Gates{Terminal: g.TerminalRange, Midcourse: g.MidcourseRange},
		Pursuit: PIPPursuit{
			Gain:     g.PIPGain,
			MaxAccel: environment.GToAccel(ic.MaxG),
			Gravity:  gravity,
		},
		Terminal: ProportionalNav{N: g.NavigationGain},
	}
}

// For returns the law flown in mode m, or nil when m is unguided.
func (s Set) For(m Mode) Law {
	switch m {
	case ModePreCalculatedPIP, ModeMidcoursePIP:
		return s.Pursuit
	case ModeTerminalPN:
		return s.Terminal
	default:
		return nil
	}
}
