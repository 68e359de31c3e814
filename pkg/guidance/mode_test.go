package guidance

import (
	"testing"

	"github.com/unklstewy/intercept-sim/pkg/coordinates"
)

var testGates = Gates{
	Terminal:  5 * coordinates.KilometersToFeet,
	Midcourse: 10 * coordinates.KilometersToFeet,
}

func TestNextModePhaseBasedBands(t *testing.T) {
	for rng := 0.0; rng <= 200000; rng += 37.5 {
		got := NextMode(StrategyPhaseBased, ModeMidcoursePIP, true, rng, testGates)

		var want Mode
		switch {
		case rng > testGates.Midcourse:
			want = ModePreCalculatedPIP
		case rng >= testGates.Terminal:
			want = ModeMidcoursePIP
		default:
			want = ModeTerminalPN
		}
		if got != want {
			t.Fatalf("range %.1f: expected %v, got %v", rng, want, got)
		}
	}

	t.Run("Boundaries", func(t *testing.T) {
		tests := []struct {
			rng  float64
			want Mode
		}{
			{testGates.Midcourse, ModeMidcoursePIP},
			{testGates.Midcourse + 1e-6, ModePreCalculatedPIP},
			{testGates.Terminal, ModeMidcoursePIP},
			{testGates.Terminal - 1e-6, ModeTerminalPN},
		}
		for _, tt := range tests {
			if got := NextMode(StrategyPhaseBased, ModePreCalculatedPIP, true, tt.rng, testGates); got != tt.want {
				t.Errorf("range %f: expected %v, got %v", tt.rng, tt.want, got)
			}
		}
	})
}

func TestNextModeLegacyHasNoPreCalculated(t *testing.T) {
	for rng := 0.0; rng <= 200000; rng += 37.5 {
		got := NextMode(StrategyLegacy, ModeMidcoursePIP, true, rng, testGates)
		want := ModeMidcoursePIP
		if rng < testGates.Terminal {
			want = ModeTerminalPN
		}
		if got != want {
			t.Fatalf("range %.1f: expected %v, got %v", rng, want, got)
		}
	}
}

func TestNextModeReentrant(t *testing.T) {
	// Range re-opening past the terminal gate drops back to midcourse.
	m := NextMode(StrategyPhaseBased, ModeTerminalPN, true, testGates.Terminal+100, testGates)
	if m != ModeMidcoursePIP {
		t.Errorf("Expected MidcoursePIP after range re-opens, got %v", m)
	}
}

func TestNextModeLaunchAndDeactivation(t *testing.T) {
	if m := NextMode(StrategyPhaseBased, ModePreLaunch, false, 1000, testGates); m != ModePreLaunch {
		t.Errorf("Expected PreLaunch before launch, got %v", m)
	}

	for _, strategy := range []Strategy{StrategyLegacy, StrategyPhaseBased} {
		for _, rng := range []float64{0, 1000, 20000, 50000} {
			for _, launched := range []bool{true, false} {
				if m := NextMode(strategy, ModeDeactivated, launched, rng, testGates); m != ModeDeactivated {
					t.Errorf("%v range %f: Deactivated must be terminal, got %v", strategy, rng, m)
				}
			}
		}
	}
}

func TestModeGuided(t *testing.T) {
	tests := []struct {
		mode Mode
		want bool
	}{
		{ModePreLaunch, false},
		{ModePreCalculatedPIP, true},
		{ModeMidcoursePIP, true},
		{ModeTerminalPN, true},
		{ModeDeactivated, false},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			if tt.mode.Guided() != tt.want {
				t.Errorf("Expected Guided()=%v", tt.want)
			}
		})
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input string
		want  Strategy
		err   bool
	}{
		{"legacy", StrategyLegacy, false},
		{"phase-based", StrategyPhaseBased, false},
		{"phase", StrategyPhaseBased, false},
		{"random", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStrategy(tt.input)
			if tt.err {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}

	var s Strategy
	if err := s.UnmarshalText([]byte("phase-based")); err != nil || s != StrategyPhaseBased {
		t.Errorf("UnmarshalText: got %v, %v", s, err)
	}
}
