package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/unklstewy/intercept-sim/pkg/coordinates"
	"github.com/unklstewy/intercept-sim/pkg/engagement"
	"github.com/unklstewy/intercept-sim/pkg/environment"
	"github.com/unklstewy/intercept-sim/pkg/guidance"
)

// loadResults reads the output of intercept-sim: a single result or an array
// of them. Results without recorded history are dropped.
func loadResults(path string) ([]*engagement.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var results []*engagement.Result
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &results)
	} else {
		var r engagement.Result
		err = json.Unmarshal(trimmed, &r)
		results = append(results, &r)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	recorded := results[:0]
	for _, r := range results {
		if r != nil && len(r.History) > 0 {
			recorded = append(recorded, r)
		}
	}
	if len(recorded) == 0 {
		return nil, fmt.Errorf("%s has no recorded history (run intercept-sim with -record)", path)
	}
	return recorded, nil
}

// event is a timeline entry shown in the log panel as playback passes it.
type event struct {
	Time  float64
	Level LogLevel
	Text  string
}

// timeline derives launches, mode changes, the selector decision and the
// outcome from a recorded result.
func timeline(r *engagement.Result) []event {
	var events []event
	for i := 1; i < len(r.History); i++ {
		prev, cur := r.History[i-1], r.History[i]
		for j := range cur.Interceptors {
			if j >= len(prev.Interceptors) {
				break
			}
			from, to := prev.Interceptors[j].Mode, cur.Interceptors[j].Mode
			if from == to {
				continue
			}
			switch {
			case from == guidance.ModePreLaunch:
				events = append(events, event{cur.Time, LogLevelInfo, fmt.Sprintf("Interceptor %d launched (%s)", j, to)})
			case to == guidance.ModeDeactivated:
				events = append(events, event{cur.Time, LogLevelWarn, fmt.Sprintf("Interceptor %d deactivated", j)})
			default:
				events = append(events, event{cur.Time, LogLevelDebug, fmt.Sprintf("Interceptor %d %s -> %s", j, from, to)})
			}
		}
	}

	if s := r.Selection; s != nil {
		events = append(events, event{s.DecisionTime, LogLevelInfo,
			fmt.Sprintf("Selector chose %s (trigger at %.2fs)", s.Winner, s.TriggerTime)})
	}
	for _, ic := range r.Interceptors {
		if ic.NumericalFault {
			events = append(events, event{r.Duration, LogLevelError, fmt.Sprintf("Interceptor %d numerical fault", ic.Index)})
		}
	}
	if r.TargetFault {
		events = append(events, event{r.Duration, LogLevelError, "Target state went non-finite"})
	}

	switch r.Outcome {
	case engagement.OutcomeIntercepted:
		events = append(events, event{r.InterceptTime, LogLevelInfo,
			fmt.Sprintf("💥 Interceptor %d hit, miss %.1f ft", r.HitBy, r.MissDistance)})
	default:
		events = append(events, event{r.Duration, LogLevelWarn,
			fmt.Sprintf("Engagement ended: %s", r.Outcome)})
	}

	sort.SliceStable(events, func(a, b int) bool { return events[a].Time < events[b].Time })
	return events
}

// Replay is the playback state of one recorded engagement.
type Replay struct {
	Result *engagement.Result

	Frame   int
	Playing bool

	// Speed is the number of frames advanced per tick
	Speed int
	Zoom  float64

	// Follow centers the plot on the target
	Follow bool

	// Tracks shows the pre-simulated candidate tracks
	Tracks bool

	events   []event
	reported float64
}

// NewReplay starts at the first frame, playing, unless skipAnimation asks
// for the final picture straight away.
func NewReplay(r *engagement.Result, skipAnimation bool) *Replay {
	p := &Replay{
		Result:   r,
		Speed:    5,
		Zoom:     1,
		Tracks:   true,
		Playing:  !skipAnimation,
		events:   timeline(r),
		reported: math.Inf(-1),
	}
	if skipAnimation {
		p.Frame = p.Last()
	}
	return p
}

// Last returns the index of the final frame.
func (p *Replay) Last() int {
	return len(p.Result.History) - 1
}

// Current returns the frame being shown.
func (p *Replay) Current() engagement.Frame {
	return p.Result.History[p.Frame]
}

// Time returns the simulation time of the current frame.
func (p *Replay) Time() float64 {
	return p.Current().Time
}

// FramesPerSecond is the number of recorded frames per simulated second.
func (p *Replay) FramesPerSecond() int {
	h := p.Result.History
	if len(h) < 2 || h[1].Time <= h[0].Time {
		return 1
	}
	return int(math.Round(1 / (h[1].Time - h[0].Time)))
}

// Seek moves to frame i, clamped to the recording.
func (p *Replay) Seek(i int) {
	if i < 0 {
		i = 0
	}
	if i > p.Last() {
		i = p.Last()
	}
	p.Frame = i
}

// Step moves n frames (negative steps backwards) and reports whether the
// frame changed. Playback pauses at the last frame.
func (p *Replay) Step(n int) bool {
	before := p.Frame
	p.Seek(p.Frame + n)
	if p.Frame == p.Last() {
		p.Playing = false
	}
	return p.Frame != before
}

// Toggle flips between playing and paused; playing from the end restarts.
func (p *Replay) Toggle() {
	if !p.Playing && p.Frame == p.Last() {
		p.Seek(0)
	}
	p.Playing = !p.Playing
}

// SetSpeed clamps the playback rate to [1, 100] frames per tick.
func (p *Replay) SetSpeed(n int) {
	p.Speed = max(1, min(100, n))
}

// SetZoom clamps the zoom to [0.25, 64].
func (p *Replay) SetZoom(z float64) {
	p.Zoom = math.Max(0.25, math.Min(64, z))
}

// Due returns the events passed since the previous call. Seeking backwards
// rewinds the cursor without reporting anything.
func (p *Replay) Due() []event {
	now := p.Time()
	if now < p.reported {
		p.reported = now
		return nil
	}
	var due []event
	for _, e := range p.events {
		if e.Time > p.reported && e.Time <= now {
			due = append(due, e)
		}
	}
	p.reported = now
	return due
}

// Decided reports whether the selector decision has happened by now.
func (p *Replay) Decided() bool {
	s := p.Result.Selection
	return s != nil && s.DecisionTime <= p.Time()
}

// Load returns the target's acceleration across the previous frame in G,
// or 0 on the first frame.
func (p *Replay) Load() float64 {
	if p.Frame == 0 {
		return 0
	}
	prev, cur := p.Result.History[p.Frame-1], p.Current()
	dt := cur.Time - prev.Time
	if dt <= 0 {
		return 0
	}
	return environment.AccelToG(cur.Target.Velocity.Sub(prev.Target.Velocity).Len() / dt)
}

// Sight returns the target as seen from the launch site: line of sight and
// ground range. ok is false when the recording has no salvo.
func (p *Replay) Sight() (los coordinates.HorizontalCoordinates, ground float64, ok bool) {
	first := p.Result.History[0]
	if len(first.Interceptors) == 0 {
		return los, 0, false
	}
	site := first.Interceptors[0].State.Position
	tgt := p.Current().Target.Position
	return coordinates.LineOfSight(site, tgt), coordinates.GroundRange(site, tgt), true
}

// bounds is a North/East box in feet.
type bounds struct {
	minN, maxN float64
	minE, maxE float64
	set        bool
}

func (b *bounds) add(pos mgl64.Vec3) {
	if math.IsNaN(pos[0]) || math.IsNaN(pos[1]) || math.IsInf(pos[0], 0) || math.IsInf(pos[1], 0) {
		return
	}
	if !b.set {
		b.minN, b.maxN, b.minE, b.maxE, b.set = pos[0], pos[0], pos[1], pos[1], true
		return
	}
	b.minN = math.Min(b.minN, pos[0])
	b.maxN = math.Max(b.maxN, pos[0])
	b.minE = math.Min(b.minE, pos[1])
	b.maxE = math.Max(b.maxE, pos[1])
}

// minSpan keeps straight-line engagements from collapsing an axis.
const minSpan = 2000.0

// extent covers every recorded position, candidate track and PIP, padded by
// 5% on each side.
func extent(r *engagement.Result) bounds {
	var b bounds
	for _, f := range r.History {
		b.add(f.Target.Position)
		for _, ic := range f.Interceptors {
			b.add(ic.State.Position)
		}
	}
	for _, c := range r.Candidates {
		b.add(c.PIP.Point)
		for _, pos := range c.Track {
			b.add(pos)
		}
	}

	b.minN, b.maxN = pad(b.minN, b.maxN)
	b.minE, b.maxE = pad(b.minE, b.maxE)
	return b
}

func pad(lo, hi float64) (float64, float64) {
	span := math.Max(hi-lo, minSpan)
	mid := (lo + hi) / 2
	return mid - span*0.55, mid + span*0.55
}

// projector maps North/East feet onto terminal cells, north up. A cell is
// about twice as tall as it is wide, so east is scaled by two.
type projector struct {
	cx, cy   int
	n0, e0   float64
	ftPerRow float64
}

func newProjector(x, y, width, height int, b bounds, zoom float64, center *mgl64.Vec3) projector {
	p := projector{
		cx: x + width/2,
		cy: y + height/2,
		n0: (b.minN + b.maxN) / 2,
		e0: (b.minE + b.maxE) / 2,
	}
	if center != nil {
		p.n0, p.e0 = center[0], center[1]
	}

	rows := math.Max(float64(height-1), 1)
	cols := math.Max(float64(width-1), 1)
	p.ftPerRow = math.Max((b.maxN-b.minN)/rows, 2*(b.maxE-b.minE)/cols)
	p.ftPerRow = math.Max(p.ftPerRow, 1) / zoom
	return p
}

// cell returns the screen column and row of pos.
func (p projector) cell(pos mgl64.Vec3) (int, int) {
	col := p.cx + int(math.Round(2*(pos[1]-p.e0)/p.ftPerRow))
	row := p.cy - int(math.Round((pos[0]-p.n0)/p.ftPerRow))
	return col, row
}

// rows converts a distance in feet to a number of rows.
func (p projector) rows(ft float64) int {
	return int(math.Round(ft / p.ftPerRow))
}
