package engagement

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/unklstewy/intercept-sim/pkg/dynamics"
	"github.com/unklstewy/intercept-sim/pkg/guidance"
	"github.com/unklstewy/intercept-sim/pkg/tracking"
)

// Outcome is how an engagement ended. Exactly one holds per run.
type Outcome int

const (
	OutcomeIntercepted Outcome = iota
	OutcomeMissed
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIntercepted:
		return "Intercepted"
	case OutcomeMissed:
		return "Missed"
	case OutcomeTimedOut:
		return "TimedOut"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ParseOutcome converts an outcome name back to an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	for _, o := range []Outcome{OutcomeIntercepted, OutcomeMissed, OutcomeTimedOut} {
		if o.String() == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown outcome %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	parsed, err := ParseOutcome(string(b))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Result is the sole artifact of a run. It is not modified after Run returns.
//
// Times are simulation seconds. Fields that do not apply hold -1
// (InterceptTime without a hit, MissDistance with nothing launched).
type Result struct {
	ID       uuid.UUID         `json:"id"`
	Strategy guidance.Strategy `json:"strategy"`
	Outcome  Outcome           `json:"outcome"`

	InterceptTime float64 `json:"intercept_time"`
	MissDistance  float64 `json:"miss_distance"`

	// HitBy is the salvo index of the first interceptor to hit, or -1
	HitBy int `json:"hit_by"`

	// Duration is the simulated time at termination
	Duration float64 `json:"duration"`
	Steps    int     `json:"steps"`

	Interceptors []InterceptorResult `json:"interceptors"`

	// Selection is set when the phase-based selector made its decision
	Selection *Selection `json:"selection,omitempty"`

	// Candidates summarizes the pre-simulation (phase-based only)
	Candidates []CandidateSummary `json:"candidates,omitempty"`

	// PIPNonConverged counts PIP solutions that hit the iteration cap
	PIPNonConverged int `json:"pip_non_converged"`

	// TargetFault is set when the target state went non-finite
	TargetFault bool `json:"target_fault,omitempty"`

	Target dynamics.State `json:"target"`

	// History is the per-step record, present only when recording
	History []Frame `json:"history,omitempty"`
}

// InterceptorResult is the per-interceptor part of a Result.
type InterceptorResult struct {
	Index      int     `json:"index"`
	LaunchTime float64 `json:"launch_time"`
	Launched   bool    `json:"launched"`

	// Case is the candidate this interceptor was assigned (phase-based)
	Case *tracking.Case `json:"case,omitempty"`

	FinalMode guidance.Mode `json:"final_mode"`

	// Effort is the integral of applied acceleration magnitude (ft/s)
	// while guided. It stops accruing at deactivation.
	Effort float64 `json:"effort"`

	// DeactivatedAt is the time of deactivation, or -1
	DeactivatedAt float64 `json:"deactivated_at"`

	// NumericalFault marks an interceptor whose state went non-finite
	NumericalFault bool `json:"numerical_fault"`

	Hit bool `json:"hit"`

	// ClosestApproach in feet (-1 if never launched) and when it happened
	ClosestApproach     float64 `json:"closest_approach"`
	ClosestApproachTime float64 `json:"closest_approach_time"`

	Final dynamics.State `json:"final"`
}

// Selection records the selector's decision.
type Selection struct {
	Winner       tracking.Case              `json:"winner"`
	TriggerTime  float64                    `json:"trigger_time"`
	DecisionTime float64                    `json:"decision_time"`
	Deviations   [tracking.NumCases]float64 `json:"deviations"`
	Deactivated  []int                      `json:"deactivated"`
}

// CandidateSummary describes one pre-simulated trajectory.
type CandidateSummary struct {
	Case     tracking.Case     `json:"case"`
	AoADeg   float64           `json:"aoa_deg"`
	PIP      tracking.Solution `json:"pip"`
	Assigned []int             `json:"assigned"`

	// Track is the candidate position every TrackStride steps, present only
	// when recording
	Track []mgl64.Vec3 `json:"track,omitempty"`
}

// TrackStride is the decimation of CandidateSummary.Track.
const TrackStride = 10

// Frame is one recorded step.
type Frame struct {
	Time         float64            `json:"t"`
	Target       dynamics.State     `json:"target"`
	Interceptors []InterceptorFrame `json:"interceptors"`
}

// InterceptorFrame is an interceptor's state within a Frame.
type InterceptorFrame struct {
	State  dynamics.State `json:"state"`
	Mode   guidance.Mode  `json:"mode"`
	Effort float64        `json:"effort"`
	Range  float64        `json:"range"`
}

// Metrics is the flat summary consumed by reporting and batch statistics.
type Metrics struct {
	Outcome       Outcome `json:"outcome"`
	Success       bool    `json:"success"`
	InterceptTime float64 `json:"intercept_time"`
	MissDistance  float64 `json:"miss_distance"`

	// TotalEffort sums effort across the salvo
	TotalEffort float64 `json:"total_effort"`

	// Launched and Deactivated count interceptors
	Launched    int `json:"launched"`
	Deactivated int `json:"deactivated"`
	Faults      int `json:"faults"`

	// DecisionTime of the selector, or -1
	DecisionTime float64 `json:"decision_time"`

	PIPNonConverged int `json:"pip_non_converged"`
}

// Metrics extracts the summary metrics from a result.
func (r *Result) Metrics() Metrics {
	m := Metrics{
		Outcome:         r.Outcome,
		Success:         r.Outcome == OutcomeIntercepted,
		InterceptTime:   r.InterceptTime,
		MissDistance:    r.MissDistance,
		DecisionTime:    -1,
		PIPNonConverged: r.PIPNonConverged,
	}
	for _, ic := range r.Interceptors {
		m.TotalEffort += ic.Effort
		if ic.Launched {
			m.Launched++
		}
		if ic.FinalMode == guidance.ModeDeactivated {
			m.Deactivated++
		}
		if ic.NumericalFault {
			m.Faults++
		}
	}
	if r.Selection != nil {
		m.DecisionTime = r.Selection.DecisionTime
	}
	return m
}
