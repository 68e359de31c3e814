package tracking

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Decision is the selector's one-time verdict.
type Decision struct {
	// Winner is the candidate that best matches the observed track
	Winner Case `json:"winner"`

	// TriggerTime and DecisionTime are target flight times in seconds
	TriggerTime  float64 `json:"trigger_time"`
	DecisionTime float64 `json:"decision_time"`

	// Deviations holds the sum of squared position error per case (ft^2)
	Deviations [NumCases]float64 `json:"deviations"`

	// Samples is the number of observations in the window
	Samples int `json:"samples"`
}

// Selector watches the live target and decides which candidate trajectory it
// is flying.
//
// It arms when the target leaves the zero-maneuver candidate by more than the
// trigger threshold, accumulates squared position error against every
// candidate for the observation window, then decides once. Nothing is decided
// inside the window and nothing is re-evaluated afterwards.
type Selector struct {
	candidates [NumCases]*Trajectory
	threshold  float64
	window     int // steps

	triggered   bool
	triggerStep int
	sums        [NumCases]float64
	samples     int
	decision    *Decision
}

// NewSelector builds a selector over the three candidates (indexed by Case).
// threshold is in feet, window in seconds.
func NewSelector(candidates [NumCases]*Trajectory, threshold, window float64) *Selector {
	step := candidates[CaseZero].Step
	return &Selector{
		candidates: candidates,
		threshold:  threshold,
		window:     int(math.Round(window / step)),
	}
}

// Triggered reports whether the maneuver has been detected.
func (s *Selector) Triggered() bool {
	return s.triggered
}

// Decision returns the verdict, or nil while undecided.
func (s *Selector) Decision() *Decision {
	return s.decision
}

// Observe feeds the target position after flight step k. It returns the
// decision exactly once, on the step the observation window closes.
func (s *Selector) Observe(k int, pos mgl64.Vec3) (*Decision, bool) {
	if s.decision != nil {
		return nil, false
	}

	if !s.triggered {
		ref := s.candidates[CaseZero].At(k).Position
		if pos.Sub(ref).Len() <= s.threshold {
			return nil, false
		}
		s.triggered = true
		s.triggerStep = k
	}

	for _, c := range Cases {
		d := pos.Sub(s.candidates[c].At(k).Position)
		s.sums[c] += d.Dot(d)
	}
	s.samples++

	if k-s.triggerStep < s.window {
		return nil, false
	}

	step := s.candidates[CaseZero].Step
	winner := CaseZero
	for _, c := range Cases {
		if s.sums[c] < s.sums[winner] {
			winner = c
		}
	}

	s.decision = &Decision{
		Winner:       winner,
		TriggerTime:  float64(s.triggerStep) * step,
		DecisionTime: float64(k) * step,
		Deviations:   s.sums,
		Samples:      s.samples,
	}
	return s.decision, true
}
