package batch

import (
	"math"
	"testing"

	"github.com/unklstewy/intercept-sim/pkg/config"
	"github.com/unklstewy/intercept-sim/pkg/tracking"
)

func TestPerturbDeterministic(t *testing.T) {
	base := config.DefaultScenario()
	cfg := testBatchConfig(1)

	for i := 0; i < 20; i++ {
		a, ca, oa := Perturb(base, cfg, i)
		b, cb, ob := Perturb(base, cfg, i)
		if ca != cb || oa != ob {
			t.Errorf("Run %d: expected identical draws, got (%s, %f) and (%s, %f)", i, ca, oa, cb, ob)
		}
		if a.Target.Maneuver != b.Target.Maneuver {
			t.Errorf("Run %d: expected identical maneuvers, got %+v and %+v", i, a.Target.Maneuver, b.Target.Maneuver)
		}
	}
}

func TestPerturbRanges(t *testing.T) {
	base := config.DefaultScenario()
	cfg := testBatchConfig(1)
	cfg.OnsetJitter = 2

	seen := map[tracking.Case]bool{}
	for i := 0; i < 200; i++ {
		sc, c, onset := Perturb(base, cfg, i)
		seen[c] = true
		if math.Abs(onset-base.Target.Maneuver.StartTime) > 2 {
			t.Errorf("Run %d: onset %f outside jitter of %f", i, onset, base.Target.Maneuver.StartTime)
		}
		if sc.Target.Maneuver.StartTime != onset {
			t.Errorf("Run %d: expected start time %f, got %f", i, onset, sc.Target.Maneuver.StartTime)
		}
		if want := aoaFor(base.PreSim, c); sc.Target.Maneuver.AoADeg != want {
			t.Errorf("Run %d: expected AoA %f for %s, got %f", i, want, c, sc.Target.Maneuver.AoADeg)
		}
	}
	if len(seen) != tracking.NumCases {
		t.Errorf("Expected every case drawn over 200 runs, got %d", len(seen))
	}
}

func TestPerturbDoesNotShareSlices(t *testing.T) {
	base := config.DefaultScenario()
	sc, _, _ := Perturb(base, testBatchConfig(1), 0)
	sc.Salvo.LaunchOffsets[0] = 99
	if base.Salvo.LaunchOffsets[0] == 99 {
		t.Error("Expected perturbed scenario to own its launch offsets")
	}
}

func TestPerturbFixedManeuver(t *testing.T) {
	base := config.DefaultScenario()
	base.Target.Maneuver.AoADeg = -5
	cfg := testBatchConfig(1)
	cfg.RandomizeManeuver = false
	cfg.OnsetJitter = 0

	sc, c, onset := Perturb(base, cfg, 7)
	if c != tracking.CaseNegative {
		t.Errorf("Expected case %s, got %s", tracking.CaseNegative, c)
	}
	if onset != base.Target.Maneuver.StartTime {
		t.Errorf("Expected onset %f, got %f", base.Target.Maneuver.StartTime, onset)
	}
	if sc.Target.Maneuver != base.Target.Maneuver {
		t.Errorf("Expected maneuver %+v, got %+v", base.Target.Maneuver, sc.Target.Maneuver)
	}
}
