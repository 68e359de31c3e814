package main

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/unklstewy/intercept-sim/pkg/config"
	"github.com/unklstewy/intercept-sim/pkg/coordinates"
	"github.com/unklstewy/intercept-sim/pkg/engagement"
	"github.com/unklstewy/intercept-sim/pkg/guidance"
)

// tickInterval paces playback
const tickInterval = 50 * time.Millisecond

// App is the replay viewer
type App struct {
	results []*engagement.Result
	index   int

	gates         guidance.Gates
	skipAnimation bool

	// replay and extent belong to results[index]
	replay *Replay
	extent bounds

	// UI components
	tviewApp  *tview.Application
	plot      *PlotView
	telemetry *tview.TextView
	controls  *tview.TextView
	logs      *LogManager
	root      *tview.Flex

	mu       sync.RWMutex
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewApp builds the viewer for one or more recorded results
func NewApp(results []*engagement.Result, sc config.ScenarioConfig) *App {
	a := &App{
		results:       results,
		gates:         guidance.Gates{Terminal: sc.Guidance.TerminalRange, Midcourse: sc.Guidance.MidcourseRange},
		skipAnimation: sc.Output.SkipAnimation,
		stopChan:      make(chan struct{}),
	}
	a.setupUI()
	a.load(0)
	return a
}

func (a *App) setupUI() {
	a.tviewApp = tview.NewApplication()
	a.plot = NewPlotView(a)

	a.telemetry = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	a.telemetry.SetBorder(true).SetTitle(" Telemetry ")

	a.controls = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	a.controls.SetBorder(true).SetTitle(" Controls ")
	a.controls.SetText(`[yellow]PLAYBACK[-]
  [white]SPACE[-]     Play/pause
  [white]←/→, h/l[-]  Step frame
  [white][ / ][-]     Step 1 s
  [white]g / G[-]     Start/end
  [white]< / >[-]     Slower/faster

[yellow]VIEW[-]
  [white]+/-[-]       Zoom
  [white]0[-]         Reset zoom
  [white]f[-]         Follow target
  [white]t[-]         Candidate tracks
  [white]n / p[-]     Next/prev run

[yellow]CONTROL[-]
  [white]q[-]         Quit`)

	a.logs = NewLogManager(200)

	sidebar := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.telemetry, 0, 4, false).
		AddItem(a.controls, 0, 3, false).
		AddItem(a.logs.GetView(), 0, 3, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.plot, 0, 7, true).
		AddItem(sidebar, 0, 3, false)

	a.tviewApp.SetRoot(a.root, true)
	a.tviewApp.SetInputCapture(a.handleKeyboard)
}

// load switches playback to results[i]
func (a *App) load(i int) {
	a.mu.Lock()
	a.index = i
	r := a.results[i]
	a.replay = NewReplay(r, a.skipAnimation)
	a.extent = extent(r)
	a.mu.Unlock()

	a.logs.Clear()
	a.logs.AddLog(LogLevelInfo, 0, "Loaded %s run %s (%d/%d), %d frames",
		r.Strategy, shortID(r), i+1, len(a.results), len(r.History))
	a.refresh()
}

// refresh reports passed events and rewrites the telemetry panel
func (a *App) refresh() {
	a.mu.Lock()
	due := a.replay.Due()
	a.mu.Unlock()
	for _, e := range due {
		a.logs.AddLog(e.Level, e.Time, "%s", e.Text)
	}

	a.mu.RLock()
	text := a.telemetryText()
	a.mu.RUnlock()
	a.telemetry.SetText(text)
}

// telemetryText renders the telemetry panel; callers hold a.mu
func (a *App) telemetryText() string {
	p := a.replay
	r := p.Result
	f := p.Current()
	var b strings.Builder

	state := "[yellow]PAUSED[-]"
	if p.Playing {
		state = "[green]PLAYING[-]"
	}
	fmt.Fprintf(&b, "[yellow]RUN:[-] [white]%s[-] [gray](%s)[-]\n", r.Strategy, shortID(r))
	fmt.Fprintf(&b, "[gray]Outcome:[-] %s\n", outcomeTag(r.Outcome))
	fmt.Fprintf(&b, "[gray]T:[-] [white]%.2f / %.2f s[-]  %s\n", f.Time, r.Duration, state)
	fmt.Fprintf(&b, "[gray]Frame:[-] [white]%d/%d[-] [gray]Speed:[-] [white]%.2gx[-] [gray]Zoom:[-] [white]%.1fx[-]\n\n",
		p.Frame, p.Last(), secondsPerTick(p)/tickInterval.Seconds(), p.Zoom)

	t := f.Target
	fmt.Fprintf(&b, "[yellow]TARGET[-]\n")
	fmt.Fprintf(&b, "[gray]Alt:[-] [white]%.0f ft[-]  [gray]Spd:[-] [white]%.0f ft/s[-]\n", t.Altitude(), t.Speed())
	fmt.Fprintf(&b, "[gray]Hdg:[-] [white]%.0f°[-]  [gray]FPA:[-] [white]%.1f°[-]  [gray]AoA:[-] [white]%.1f°[-]\n",
		coordinates.Heading(t.Velocity), coordinates.FlightPathAngle(t.Velocity), t.AoA*coordinates.RadiansToDegrees)
	fmt.Fprintf(&b, "[gray]Load:[-] [white]%.1f G[-]\n", p.Load())
	if los, ground, ok := p.Sight(); ok {
		fmt.Fprintf(&b, "[gray]From site:[-] [white]%.0f°[-] [gray]el[-] [white]%.1f°[-] [gray]gnd[-] [white]%.0f ft[-]\n", los.Azimuth, los.Elevation, ground)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "[yellow]SALVO[-]\n")
	for j, ic := range f.Interceptors {
		rng := "-"
		if ic.Mode != guidance.ModePreLaunch {
			rng = fmt.Sprintf("%.0f ft", ic.Range)
		}
		fmt.Fprintf(&b, "[white]%d[-] %-16s [gray]R:[-] %-10s [gray]E:[-] %.0f\n", j, ic.Mode, rng, ic.Effort)
	}

	if p.Decided() {
		fmt.Fprintf(&b, "\n[yellow]SELECTOR:[-] [white]%s[-] at %.2f s\n", r.Selection.Winner, r.Selection.DecisionTime)
	}
	if a.plot.ftPerRow > 0 {
		fmt.Fprintf(&b, "\n[gray]Scale:[-] [white]%.0f ft/row[-]\n", a.plot.ftPerRow)
	}
	return b.String()
}

func outcomeTag(o engagement.Outcome) string {
	switch o {
	case engagement.OutcomeIntercepted:
		return "[green]Intercepted[-]"
	case engagement.OutcomeMissed:
		return "[red]Missed[-]"
	default:
		return "[yellow]" + o.String() + "[-]"
	}
}

func shortID(r *engagement.Result) string {
	return r.ID.String()[:8]
}

// handleKeyboard handles keyboard input
func (a *App) handleKeyboard(event *tcell.EventKey) *tcell.EventKey {
	key := event.Key()
	ch := event.Rune()
	if key != tcell.KeyRune {
		ch = 0
	}

	switch {
	case key == tcell.KeyEscape || key == tcell.KeyCtrlC || ch == 'q':
		a.Stop()
		return nil
	case ch == 'n':
		a.load((a.index + 1) % len(a.results))
		return nil
	case ch == 'p':
		a.load((a.index + len(a.results) - 1) % len(a.results))
		return nil
	}

	a.mu.Lock()
	p := a.replay
	handled := true
	switch {
	case ch == ' ':
		p.Toggle()
	case key == tcell.KeyRight || ch == 'l':
		p.Playing = false
		p.Step(1)
	case key == tcell.KeyLeft || ch == 'h':
		p.Playing = false
		p.Step(-1)
	case ch == ']':
		p.Step(p.FramesPerSecond())
	case ch == '[':
		p.Step(-p.FramesPerSecond())
	case key == tcell.KeyHome || ch == 'g':
		p.Seek(0)
	case key == tcell.KeyEnd || ch == 'G':
		p.Seek(p.Last())
		p.Playing = false
	case ch == '>' || ch == '.':
		p.SetSpeed(p.Speed * 2)
	case ch == '<' || ch == ',':
		p.SetSpeed(p.Speed / 2)
	case ch == '+' || ch == '=':
		p.SetZoom(p.Zoom * 1.5)
	case ch == '-':
		p.SetZoom(p.Zoom / 1.5)
	case ch == '0':
		p.SetZoom(1)
	case ch == 'f':
		p.Follow = !p.Follow
	case ch == 't':
		p.Tracks = !p.Tracks
	default:
		handled = false
	}
	a.mu.Unlock()

	if !handled {
		return event
	}
	a.refresh()
	return nil
}

// tick advances playback by one step of Speed frames
func (a *App) tick() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.replay.Playing {
		return false
	}
	return a.replay.Step(a.replay.Speed)
}

// Run starts playback and the UI
func (a *App) Run() error {
	go a.playLoop()
	return a.tviewApp.Run()
}

func (a *App) playLoop() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if a.tick() {
				a.tviewApp.QueueUpdateDraw(a.refresh)
			}
		case <-a.stopChan:
			return
		}
	}
}

// Stop stops playback and the application
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopChan)
		a.tviewApp.Stop()
	})
}

// secondsPerTick is the simulated time one tick covers at the given speed
func secondsPerTick(p *Replay) float64 {
	return float64(p.Speed) / math.Max(float64(p.FramesPerSecond()), 1)
}
