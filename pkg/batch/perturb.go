package batch

import (
	"math/rand"

	"github.com/unklstewy/intercept-sim/pkg/config"
	"github.com/unklstewy/intercept-sim/pkg/tracking"
)

// Perturb returns the scenario for run index of a batch, together with the
// maneuver case and onset the target will actually fly.
//
// Every run draws from its own source seeded by (Seed, index), so results do
// not depend on worker scheduling. The returned scenario shares no slices
// with base.
func Perturb(base config.ScenarioConfig, cfg config.BatchConfig, index int) (config.ScenarioConfig, tracking.Case, float64) {
	sc := base
	sc.Salvo.LaunchOffsets = append([]float64(nil), base.Salvo.LaunchOffsets...)

	rng := rand.New(rand.NewSource(cfg.Seed*1_000_003 + int64(index)))

	kase := caseOf(base)
	if cfg.RandomizeManeuver {
		kase = tracking.Cases[rng.Intn(tracking.NumCases)]
		sc.Target.Maneuver.AoADeg = aoaFor(base.PreSim, kase)
	}

	if cfg.OnsetJitter > 0 {
		sc.Target.Maneuver.StartTime += (2*rng.Float64() - 1) * cfg.OnsetJitter
		if sc.Target.Maneuver.StartTime < 0 {
			sc.Target.Maneuver.StartTime = 0
		}
	}

	return sc, kase, sc.Target.Maneuver.StartTime
}

func aoaFor(p config.PreSimConfig, c tracking.Case) float64 {
	switch c {
	case tracking.CasePositive:
		return p.PositiveAoADeg
	case tracking.CaseNegative:
		return p.NegativeAoADeg
	default:
		return p.ZeroAoADeg
	}
}

// caseOf classifies the configured maneuver by the sign of its AoA.
func caseOf(sc config.ScenarioConfig) tracking.Case {
	switch a := sc.Target.Maneuver.AoADeg; {
	case a > 0:
		return tracking.CasePositive
	case a < 0:
		return tracking.CaseNegative
	default:
		return tracking.CaseZero
	}
}
