package main

import (
	"fmt"
	"math"

	"github.com/gdamore/tcell/v2"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/rivo/tview"

	"github.com/unklstewy/intercept-sim/pkg/coordinates"
	"github.com/unklstewy/intercept-sim/pkg/engagement"
	"github.com/unklstewy/intercept-sim/pkg/guidance"
)

var (
	trailStyle     = tcell.StyleDefault.Foreground(tcell.ColorDarkCyan)
	targetStyle    = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	candidateStyle = tcell.StyleDefault.Foreground(tcell.ColorDarkGray)
	pipStyle       = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	gateStyle      = tcell.StyleDefault.Foreground(tcell.ColorGray)
	labelStyle     = tcell.StyleDefault.Foreground(tcell.ColorWhite)
)

// PlotView draws a top-down North/East picture of the engagement
type PlotView struct {
	*tview.Box
	app *App

	// ftPerRow is the scale of the last draw
	ftPerRow float64
}

// NewPlotView creates the plot primitive
func NewPlotView(app *App) *PlotView {
	pv := &PlotView{
		Box: tview.NewBox(),
		app: app,
	}
	pv.SetBorder(true).SetTitle(" Plot - North/East ")
	return pv
}

// Draw renders trails, gates and markers up to the current frame
func (pv *PlotView) Draw(screen tcell.Screen) {
	pv.Box.DrawForSubclass(screen, pv)
	x, y, width, height := pv.GetInnerRect()
	if width < 3 || height < 3 {
		return
	}

	pv.app.mu.RLock()
	defer pv.app.mu.RUnlock()
	p := pv.app.replay
	r := p.Result
	frame := p.Current()

	var center *mgl64.Vec3
	if p.Follow {
		c := frame.Target.Position
		center = &c
	}
	proj := newProjector(x, y, width, height, pv.app.extent, p.Zoom, center)
	pv.ftPerRow = proj.ftPerRow

	put := func(px, py int, ch rune, style tcell.Style) {
		if px >= x && px < x+width && py >= y && py < y+height {
			screen.SetContent(px, py, ch, nil, style)
		}
	}

	// Guidance gates around the target
	tx, ty := proj.cell(frame.Target.Position)
	for _, gate := range []float64{pv.app.gates.Terminal, pv.app.gates.Midcourse} {
		if rr := proj.rows(gate); rr > 1 && rr < 2*height {
			drawRing(put, tx, ty, rr, '·', gateStyle)
		}
	}

	if p.Tracks {
		for _, c := range r.Candidates {
			for _, pos := range c.Track {
				cx, cy := proj.cell(pos)
				put(cx, cy, '∙', candidateStyle)
			}
			if p.Result.Selection == nil || !p.Decided() || p.Result.Selection.Winner == c.Case {
				px, py := proj.cell(c.PIP.Point)
				put(px, py, 'x', pipStyle)
			}
		}
	}

	// Trails, thinned so no more than about one sample per column is drawn
	stride := max(1, (p.Frame+1)/(2*width))
	for i := 0; i <= p.Frame; i += stride {
		f := r.History[i]
		for _, ic := range f.Interceptors {
			if ic.Mode == guidance.ModePreLaunch {
				continue
			}
			ix, iy := proj.cell(ic.State.Position)
			put(ix, iy, '·', trailStyle)
		}
		mx, my := proj.cell(f.Target.Position)
		put(mx, my, '·', targetStyle.Bold(false))
	}

	// Target velocity vector
	heading := coordinates.Heading(frame.Target.Velocity) * math.Pi / 180
	vx := tx + int(math.Round(6*math.Sin(heading)))
	vy := ty - int(math.Round(3*math.Cos(heading)))
	drawLine(put, tx, ty, vx, vy, '─', targetStyle.Bold(false))

	for j, ic := range frame.Interceptors {
		ix, iy := proj.cell(ic.State.Position)
		put(ix, iy, interceptorGlyph(j), modeStyle(ic.Mode))
	}

	if r.Outcome == engagement.OutcomeIntercepted && frame.Time >= r.InterceptTime {
		put(tx, ty, '✸', pipStyle.Bold(true))
	} else {
		put(tx, ty, '▲', targetStyle)
	}

	// North marker and scale
	for i, ch := range "N↑" {
		put(x+i, y, ch, labelStyle)
	}
	scale := fmt.Sprintf("row = %.0f ft", proj.ftPerRow)
	for i, ch := range scale {
		put(x+width-len(scale)+i, y+height-1, ch, gateStyle)
	}
}

// interceptorGlyph labels interceptors by salvo index
func interceptorGlyph(i int) rune {
	if i < 10 {
		return rune('0' + i)
	}
	return '◆'
}

func modeStyle(m guidance.Mode) tcell.Style {
	switch m {
	case guidance.ModePreLaunch, guidance.ModeDeactivated:
		return tcell.StyleDefault.Foreground(tcell.ColorGray)
	case guidance.ModeTerminalPN:
		return tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	case guidance.ModePreCalculatedPIP:
		return tcell.StyleDefault.Foreground(tcell.ColorLightBlue)
	default:
		return tcell.StyleDefault.Foreground(tcell.ColorGreen)
	}
}

type plotter func(x, y int, ch rune, style tcell.Style)

// drawRing draws a circle with Bresenham's algorithm, doubled horizontally so
// it looks round on a terminal
func drawRing(put plotter, cx, cy, radius int, char rune, style tcell.Style) {
	x := 0
	y := radius
	d := 3 - 2*radius

	for x <= y {
		put(cx+2*x, cy+y, char, style)
		put(cx-2*x, cy+y, char, style)
		put(cx+2*x, cy-y, char, style)
		put(cx-2*x, cy-y, char, style)
		put(cx+2*y, cy+x, char, style)
		put(cx-2*y, cy+x, char, style)
		put(cx+2*y, cy-x, char, style)
		put(cx-2*y, cy-x, char, style)

		x++
		if d > 0 {
			y--
			d = d + 4*(x-y) + 10
		} else {
			d = d + 4*x + 6
		}
	}
}

// drawLine draws a line using Bresenham's line algorithm
func drawLine(put plotter, x0, y0, x1, y1 int, char rune, style tcell.Style) {
	dx := abs(x1 - x0)
	dy := abs(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		put(x0, y0, char, style)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
