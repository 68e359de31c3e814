package engagement

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/unklstewy/intercept-sim/pkg/config"
	"github.com/unklstewy/intercept-sim/pkg/dynamics"
	"github.com/unklstewy/intercept-sim/pkg/tracking"
)

// assignmentOrder is the order cases are handed out to the salvo. The
// no-maneuver case is covered first.
var assignmentOrder = [tracking.NumCases]tracking.Case{
	tracking.CaseZero,
	tracking.CasePositive,
	tracking.CaseNegative,
}

// Candidate is one pre-simulated target trajectory and the intercept point
// computed along it.
type Candidate struct {
	Case       tracking.Case
	AoADeg     float64
	Trajectory *tracking.Trajectory
	PIP        tracking.Solution

	// LaunchTime is the target flight time the PIP was solved from
	LaunchTime float64

	// Assigned lists the salvo indices flying this candidate's PIP
	Assigned []int
}

// PreSim is the output of the pre-simulation phase. It is read-only once built.
type PreSim struct {
	Candidates [tracking.NumCases]*Candidate

	// Assignment maps salvo index to candidate case
	Assignment []tracking.Case
}

// Trajectories returns the candidate tracks indexed by case.
func (p *PreSim) Trajectories() [tracking.NumCases]*tracking.Trajectory {
	var out [tracking.NumCases]*tracking.Trajectory
	for _, c := range tracking.Cases {
		out[c] = p.Candidates[c].Trajectory
	}
	return out
}

// Assign distributes n interceptors round-robin over the cases so that every
// case gets at least one interceptor when n >= 3.
func Assign(n int) []tracking.Case {
	out := make([]tracking.Case, n)
	for i := range out {
		out[i] = assignmentOrder[i%len(assignmentOrder)]
	}
	return out
}

// PreSimulate flies the target under the three maneuver assumptions and
// solves each candidate's intercept point from the launcher.
func PreSimulate(cfg config.ScenarioConfig, model *dynamics.TargetModel) *PreSim {
	horizon := cfg.PreSim.Horizon
	if horizon <= 0 {
		horizon = cfg.MaxTime
	}
	n := int(math.Round(horizon / cfg.TimeStep))

	aoa := [tracking.NumCases]float64{
		tracking.CasePositive: cfg.PreSim.PositiveAoADeg,
		tracking.CaseZero:     cfg.PreSim.ZeroAoADeg,
		tracking.CaseNegative: cfg.PreSim.NegativeAoADeg,
	}

	ps := &PreSim{Assignment: Assign(cfg.Salvo.Count())}
	for _, c := range tracking.Cases {
		plan := newManeuver(aoa[c], cfg.PreSim.ManeuverStartTime, cfg.PreSim.ManeuverAltitude)
		ps.Candidates[c] = &Candidate{
			Case:       c,
			AoADeg:     aoa[c],
			Trajectory: flyTarget(c, cfg, model, plan, n),
		}
	}
	for i, c := range ps.Assignment {
		ps.Candidates[c].Assigned = append(ps.Candidates[c].Assigned, i)
	}

	for _, cand := range ps.Candidates {
		cand.LaunchTime = earliestLaunch(cfg.Salvo.LaunchOffsets, cand.Assigned)
		cand.PIP = tracking.SolveAlong(cand.Trajectory, cand.LaunchTime, cfg.Salvo.LaunchPosition, cfg.Interceptor.Speed)
	}
	return ps
}

// earliestLaunch returns the first launch offset among idx, or among every
// offset when idx is empty.
func earliestLaunch(offsets []float64, idx []int) float64 {
	first := math.Inf(1)
	if len(idx) == 0 {
		for _, off := range offsets {
			first = math.Min(first, off)
		}
		return first
	}
	for _, i := range idx {
		first = math.Min(first, offsets[i])
	}
	return first
}

// Aim returns the fixed intercept point for salvo index i.
func (p *PreSim) Aim(i int) mgl64.Vec3 {
	return p.Candidates[p.Assignment[i]].PIP.Point
}
