// Package engagement runs one target-versus-salvo engagement from launch to
// interception, miss or time-out.
//
// A run is strictly sequential: every step is computed from the states at the
// start of that step, and nothing is shared between runs. Run is the only
// entry point; everything it needs comes from the scenario configuration.
package engagement

import (
	"fmt"
	"io"
	"log"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/unklstewy/intercept-sim/pkg/config"
	"github.com/unklstewy/intercept-sim/pkg/coordinates"
	"github.com/unklstewy/intercept-sim/pkg/dynamics"
	"github.com/unklstewy/intercept-sim/pkg/environment"
	"github.com/unklstewy/intercept-sim/pkg/guidance"
	"github.com/unklstewy/intercept-sim/pkg/integrator"
	"github.com/unklstewy/intercept-sim/pkg/tracking"
)

// timeEpsilon absorbs rounding in k*dt comparisons.
const timeEpsilon = 1e-9

// Phase is the run-level state.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhasePreSimulating
	PhaseMarching
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "Initializing"
	case PhasePreSimulating:
		return "PreSimulating"
	case PhaseMarching:
		return "Marching"
	case PhaseTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Option configures a run.
type Option func(*options)

type options struct {
	logger *log.Logger
	env    environment.Model
}

// WithLogger sends progress messages (launches, phase changes, the selector
// decision, termination) to l. Runs are silent by default.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEnvironment replaces the standard atmosphere and gravity.
func WithEnvironment(m environment.Model) Option {
	return func(o *options) {
		if m != nil {
			o.env = m
		}
	}
}

// interceptor is the mutable per-interceptor state owned by a run.
type interceptor struct {
	index      int
	launchTime float64
	launchStep int
	launched   bool

	state dynamics.State
	mode  guidance.Mode

	assigned bool
	kase     tracking.Case

	effort        float64
	deactivatedAt float64
	fault         bool
	hit           bool

	closest     float64
	closestTime float64

	lastRange float64
	opening   float64 // seconds of continuously increasing range
}

func (ic *interceptor) deactivate(t float64) {
	if ic.mode == guidance.ModeDeactivated {
		return
	}
	ic.mode = guidance.ModeDeactivated
	ic.deactivatedAt = t
}

// engagement owns all mutable state for one run.
type engagement struct {
	cfg      config.ScenarioConfig
	strategy guidance.Strategy
	log      *log.Logger
	env      environment.Model

	phase Phase

	targetModel      *dynamics.TargetModel
	interceptorModel *dynamics.InterceptorModel
	laws             guidance.Set

	target           dynamics.State
	targetFlight     *targetFlight
	targetLaunchStep int
	targetFault      bool

	interceptors []*interceptor

	presim   *PreSim
	selector *tracking.Selector

	result *Result
}

// Run executes one engagement.
//
// The only error is a configuration error (wrapping config.ErrInvalidScenario),
// reported before any state is created. Numerical trouble during the run is
// reported through the Result.
func Run(cfg config.ScenarioConfig, strategy guidance.Strategy, opts ...Option) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strategy != guidance.StrategyLegacy && strategy != guidance.StrategyPhaseBased {
		return nil, fmt.Errorf("%w: unknown strategy %v", config.ErrInvalidScenario, strategy)
	}

	o := options{
		logger: log.New(io.Discard, "", 0),
		env:    environment.Standard{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := newEngagement(cfg, strategy, o)
	if strategy == guidance.StrategyPhaseBased {
		e.preSimulate()
	}
	e.march()
	return e.result, nil
}

func newEngagement(cfg config.ScenarioConfig, strategy guidance.Strategy, o options) *engagement {
	e := &engagement{
		cfg:              cfg,
		strategy:         strategy,
		log:              o.logger,
		env:              o.env,
		phase:            PhaseInitializing,
		targetModel:      dynamics.NewTargetModel(cfg.Target, o.env),
		interceptorModel: dynamics.NewInterceptorModel(cfg.Interceptor, o.env),
		laws:             guidance.NewSet(cfg.Guidance, cfg.Interceptor, o.env),
		targetLaunchStep: int(math.Round(cfg.LaunchDelay / cfg.TimeStep)),
	}

	e.target = dynamics.State{
		Position: cfg.Target.InitialPosition,
		Velocity: cfg.Target.InitialVelocity(),
	}
	m := cfg.Target.Maneuver
	e.targetFlight = &targetFlight{
		model: e.targetModel,
		plan:  newManeuver(m.AoADeg, m.StartTime, m.StartAltitude),
		dt:    cfg.TimeStep,
	}

	for i, off := range cfg.Salvo.LaunchOffsets {
		launch := cfg.LaunchDelay + off
		e.interceptors = append(e.interceptors, &interceptor{
			index:         i,
			launchTime:    launch,
			launchStep:    int(math.Round(launch / cfg.TimeStep)),
			state:         dynamics.State{Position: cfg.Salvo.LaunchPosition},
			mode:          guidance.ModePreLaunch,
			deactivatedAt: -1,
			closest:       math.Inf(1),
			closestTime:   -1,
		})
	}

	e.result = &Result{
		ID:            uuid.New(),
		Strategy:      strategy,
		InterceptTime: -1,
		MissDistance:  -1,
		HitBy:         -1,
	}

	e.log.Printf("engagement %s: %s strategy, %d interceptors, dt=%.3f s, limit %.0f s",
		e.result.ID, strategy, len(e.interceptors), cfg.TimeStep, cfg.MaxTime)
	return e
}

// enter moves the run to phase p.
func (e *engagement) enter(p Phase) {
	e.log.Printf("phase %s -> %s", e.phase, p)
	e.phase = p
}

func (e *engagement) preSimulate() {
	e.enter(PhasePreSimulating)

	e.presim = PreSimulate(e.cfg, e.targetModel)
	for i, c := range e.presim.Assignment {
		e.interceptors[i].assigned = true
		e.interceptors[i].kase = c
	}
	e.selector = tracking.NewSelector(e.presim.Trajectories(), e.cfg.Selector.TriggerThreshold, e.cfg.Selector.ObservationWindow)

	for _, c := range tracking.Cases {
		cand := e.presim.Candidates[c]
		if !cand.PIP.Converged {
			e.result.PIPNonConverged++
		}
		sum := CandidateSummary{
			Case:     c,
			AoADeg:   cand.AoADeg,
			PIP:      cand.PIP,
			Assigned: cand.Assigned,
		}
		if e.cfg.Recording {
			for k := 0; k < cand.Trajectory.Len(); k += TrackStride {
				sum.Track = append(sum.Track, cand.Trajectory.States[k].Position)
			}
		}
		e.result.Candidates = append(e.result.Candidates, sum)

		e.log.Printf("pre-sim %-8s AoA %+5.1f deg: %d samples, PIP (%.0f, %.0f, alt %.0f) t_go %.2f s, interceptors %v",
			c, cand.AoADeg, cand.Trajectory.Len(),
			cand.PIP.Point[coordinates.North], cand.PIP.Point[coordinates.East], coordinates.Altitude(cand.PIP.Point),
			cand.PIP.TimeToGo, cand.Assigned)
	}
}

// march is the fixed-step time loop.
func (e *engagement) march() {
	e.enter(PhaseMarching)
	dt := e.cfg.TimeStep
	n := e.cfg.Steps()

	if e.cfg.Recording {
		e.result.History = make([]Frame, 0, n+1)
		e.record(0)
	}

	outcome := OutcomeTimedOut
	steps := n
	for k := 0; k < n; k++ {
		t := float64(k) * dt
		end := float64(k+1) * dt

		if done, o := e.tick(k, t, end); done {
			outcome = o
			steps = k + 1
			break
		}
	}

	if e.result.HitBy >= 0 {
		outcome = OutcomeIntercepted
	}
	e.terminate(outcome, steps)
}

// tick advances every entity by one step and reports whether the run is over.
func (e *engagement) tick(k int, t, end float64) (bool, Outcome) {
	dt := e.cfg.TimeStep

	for _, ic := range e.interceptors {
		if !ic.launched && k >= ic.launchStep {
			e.launch(ic, t)
		}
	}

	// Commands from start-of-step states.
	cmds := make([]mgl64.Vec3, len(e.interceptors))
	for i, ic := range e.interceptors {
		if !ic.launched || ic.mode == guidance.ModeDeactivated {
			continue
		}
		rng := coordinates.Range(ic.state.Position, e.target.Position)
		next := guidance.NextMode(e.strategy, ic.mode, true, rng, e.laws.Gates)
		if next != ic.mode {
			e.log.Printf("t=%6.2f interceptor %d: %s -> %s at range %.0f ft", t, ic.index, ic.mode, next, rng)
			ic.mode = next
		}
		cmds[i] = e.command(ic)
	}

	targetPrev := e.target
	if k >= e.targetLaunchStep && !e.targetFault {
		next := e.targetFlight.step(e.target)
		if next.IsFinite() {
			e.target = next
		} else {
			e.targetFault = true
			e.log.Printf("t=%6.2f target state went non-finite", t)
		}
	}

	prev := make([]dynamics.State, len(e.interceptors))
	for i, ic := range e.interceptors {
		prev[i] = ic.state
		if !ic.launched || ic.fault {
			continue
		}

		guided := ic.mode.Guided()
		applied := mgl64.Vec3{}
		if guided {
			applied = e.interceptorModel.Applied(ic.state, cmds[i])
		}

		next := integrator.StepModel(e.interceptorModel, ic.state, dynamics.Control{Accel: applied}, dt)
		if !next.IsFinite() {
			ic.fault = true
			ic.deactivate(end)
			e.log.Printf("⚠️  t=%6.2f interceptor %d state went non-finite; deactivated", end, ic.index)
			continue
		}
		ic.state = next
		if guided {
			ic.effort += applied.Len() * dt
		}
	}

	// Hit check over the whole step. Only guided interceptors count.
	for i, ic := range e.interceptors {
		if !ic.launched || !ic.mode.Guided() {
			continue
		}
		d, f := coordinates.ClosestApproach(
			targetPrev.Position.Sub(prev[i].Position),
			e.target.Position.Sub(ic.state.Position),
		)
		if d < ic.closest {
			ic.closest = d
			ic.closestTime = t + f*dt
		}
		if d <= e.cfg.InterceptRadius && !ic.hit {
			ic.hit = true
			if e.result.HitBy < 0 {
				e.result.HitBy = ic.index
				e.result.InterceptTime = t + f*dt
				e.result.MissDistance = d
				e.log.Printf("💥 t=%6.2f interceptor %d hit at %.1f ft", t+f*dt, ic.index, d)
			}
		}
	}

	if e.selector != nil && k >= e.targetLaunchStep {
		flightStep := k - e.targetLaunchStep + 1
		if d, ok := e.selector.Observe(flightStep, e.target.Position); ok {
			e.applySelection(d, end)
		}
	}

	if e.cfg.Recording {
		e.record(end)
	}

	if e.result.HitBy >= 0 && e.cfg.EndOnFirstHit {
		return true, OutcomeIntercepted
	}
	if e.targetFault || (k >= e.targetLaunchStep && e.target.Altitude() <= 0) {
		return true, OutcomeMissed
	}
	if e.allMissed(dt) {
		return true, OutcomeMissed
	}
	return false, OutcomeTimedOut
}

// launch places an interceptor on the launcher, flying at its launch speed
// toward its aim point.
func (e *engagement) launch(ic *interceptor, t float64) {
	pad := e.cfg.Salvo.LaunchPosition

	var aim mgl64.Vec3
	if e.strategy == guidance.StrategyPhaseBased {
		aim = e.presim.Aim(ic.index)
	} else {
		sol := tracking.SolvePIP(e.target.Position, e.target.Velocity, pad, e.cfg.Interceptor.Speed)
		if !sol.Converged {
			e.result.PIPNonConverged++
		}
		aim = sol.Point
	}

	dir := aim.Sub(pad)
	if dir.Len() < 1e-9 {
		dir = e.target.Position.Sub(pad)
	}
	if dir.Len() < 1e-9 {
		dir = mgl64.Vec3{0, 0, -1}
	}

	ic.state = dynamics.State{
		Position: pad,
		Velocity: dir.Normalize().Mul(e.cfg.Interceptor.Speed),
	}
	ic.launched = true
	ic.lastRange = coordinates.Range(pad, e.target.Position)

	if ic.assigned {
		e.log.Printf("🚀 t=%6.2f interceptor %d launched toward %s PIP", t, ic.index, ic.kase)
	} else {
		e.log.Printf("🚀 t=%6.2f interceptor %d launched", t, ic.index)
	}
}

// command computes the raw guidance command for a guided interceptor.
func (e *engagement) command(ic *interceptor) mgl64.Vec3 {
	law := e.laws.For(ic.mode)
	if law == nil {
		return mgl64.Vec3{}
	}

	var aim guidance.Aim
	switch ic.mode {
	case guidance.ModePreCalculatedPIP:
		aim.Position = e.presim.Aim(ic.index)
	case guidance.ModeMidcoursePIP:
		sol := tracking.SolvePIP(e.target.Position, e.target.Velocity, ic.state.Position, ic.state.Speed())
		if !sol.Converged {
			e.result.PIPNonConverged++
		}
		aim.Position = sol.Point
	default:
		aim = guidance.Aim{Position: e.target.Position, Velocity: e.target.Velocity}
	}
	return law.Command(ic.state, aim)
}

// applySelection deactivates every interceptor not assigned to the winner.
func (e *engagement) applySelection(d *tracking.Decision, at float64) {
	sel := &Selection{
		Winner:       d.Winner,
		TriggerTime:  d.TriggerTime + e.cfg.LaunchDelay,
		DecisionTime: at,
		Deviations:   d.Deviations,
	}
	for _, ic := range e.interceptors {
		if ic.assigned && ic.kase != d.Winner && ic.mode != guidance.ModeDeactivated {
			ic.deactivate(at)
			sel.Deactivated = append(sel.Deactivated, ic.index)
		}
	}
	e.result.Selection = sel

	e.log.Printf("🎯 t=%6.2f selector: target flying %s case (triggered t=%.2f); deactivated %v",
		at, d.Winner, sel.TriggerTime, sel.Deactivated)
}

// allMissed reports whether every interceptor is launched and each is either
// deactivated or confirmed diverging. It also updates divergence tracking.
func (e *engagement) allMissed(dt float64) bool {
	all := true
	for _, ic := range e.interceptors {
		if !ic.launched {
			all = false
			continue
		}
		if ic.mode == guidance.ModeDeactivated {
			continue
		}

		rng := coordinates.Range(ic.state.Position, e.target.Position)
		if rng > ic.lastRange {
			ic.opening += dt
		} else {
			ic.opening = 0
		}
		ic.lastRange = rng

		diverged := ic.opening >= e.cfg.DivergenceTime-timeEpsilon && rng > e.cfg.InterceptRadius
		if !diverged {
			all = false
		}
	}
	return all
}

func (e *engagement) record(t float64) {
	f := Frame{
		Time:         t,
		Target:       e.target,
		Interceptors: make([]InterceptorFrame, len(e.interceptors)),
	}
	for i, ic := range e.interceptors {
		f.Interceptors[i] = InterceptorFrame{
			State:  ic.state,
			Mode:   ic.mode,
			Effort: ic.effort,
			Range:  coordinates.Range(ic.state.Position, e.target.Position),
		}
	}
	e.result.History = append(e.result.History, f)
}

func (e *engagement) terminate(outcome Outcome, steps int) {
	e.enter(PhaseTerminated)
	r := e.result
	r.Outcome = outcome
	r.Steps = steps
	r.Duration = float64(steps) * e.cfg.TimeStep
	r.Target = e.target
	r.TargetFault = e.targetFault

	best := math.Inf(1)
	for _, ic := range e.interceptors {
		ir := InterceptorResult{
			Index:               ic.index,
			LaunchTime:          ic.launchTime,
			Launched:            ic.launched,
			FinalMode:           ic.mode,
			Effort:              ic.effort,
			DeactivatedAt:       ic.deactivatedAt,
			NumericalFault:      ic.fault,
			Hit:                 ic.hit,
			ClosestApproach:     -1,
			ClosestApproachTime: ic.closestTime,
			Final:               ic.state,
		}
		if ic.assigned {
			c := ic.kase
			ir.Case = &c
		}
		if !math.IsInf(ic.closest, 1) {
			ir.ClosestApproach = ic.closest
			best = math.Min(best, ic.closest)
		}
		r.Interceptors = append(r.Interceptors, ir)
	}
	if r.HitBy < 0 && !math.IsInf(best, 1) {
		r.MissDistance = best
	}

	e.log.Printf("engagement %s: %s after %.2f s (miss distance %.1f ft)", r.ID, outcome, r.Duration, r.MissDistance)
}
