// sim-menu is an interactive front end for single engagements and batches.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/unklstewy/intercept-sim/pkg/batch"
	"github.com/unklstewy/intercept-sim/pkg/config"
	"github.com/unklstewy/intercept-sim/pkg/engagement"
	"github.com/unklstewy/intercept-sim/pkg/guidance"
)

// Menu rows.
const (
	fieldStrategy = iota
	fieldManeuver
	fieldOnset
	fieldLaunchDelay
	fieldRuns
	fieldWorkers
	fieldRun
	numFields
)

var strategyChoices = []string{"both", "legacy", "phase-based"}

// maneuverChoice is a selectable maneuver; random only applies to batches.
type maneuverChoice struct {
	label  string
	aoa    float64
	random bool
}

type screen int

const (
	screenMenu screen = iota
	screenRunning
	screenResults
)

type progressMsg batch.Progress

type singleDoneMsg struct {
	results []*engagement.Result
	err     error
}

type batchDoneMsg struct {
	reports []*batch.Report
	err     error
}

type model struct {
	cfg        *config.Config
	configPath string

	screen   screen
	cursor   int
	editing  bool
	buffer   string
	strategy int
	maneuver int
	choices  []maneuverChoice

	progress batch.Progress
	updates  chan tea.Msg
	cancel   context.CancelFunc

	results []*engagement.Result
	reports []*batch.Report
	err     error
	message string

	width int
}

func newModel(cfg *config.Config, configPath string) model {
	p := cfg.Scenario.PreSim
	choices := []maneuverChoice{
		{label: fmt.Sprintf("Positive (%+.0f°)", p.PositiveAoADeg), aoa: p.PositiveAoADeg},
		{label: fmt.Sprintf("Zero (%+.0f°)", p.ZeroAoADeg), aoa: p.ZeroAoADeg},
		{label: fmt.Sprintf("Negative (%+.0f°)", p.NegativeAoADeg), aoa: p.NegativeAoADeg},
		{label: "Random per run", random: true},
	}
	m := model{cfg: cfg, configPath: configPath, choices: choices, maneuver: 1}
	for i, c := range choices {
		if !c.random && c.aoa == cfg.Scenario.Target.Maneuver.AoADeg {
			m.maneuver = i
		}
	}
	if cfg.Batch.RandomizeManeuver {
		m.maneuver = len(choices) - 1
	}
	for i, s := range strategyChoices {
		if s == cfg.Batch.Strategy {
			m.strategy = i
		}
	}
	return m
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case progressMsg:
		m.progress = batch.Progress(msg)
		return m, waitFor(m.updates)

	case singleDoneMsg:
		m.screen = screenResults
		m.results, m.reports, m.err = msg.results, nil, msg.err
		return m, nil

	case batchDoneMsg:
		m.screen = screenResults
		m.results, m.reports, m.err = nil, msg.reports, msg.err
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		return m, nil

	case tea.KeyMsg:
		switch m.screen {
		case screenRunning:
			if msg.String() == "ctrl+c" || msg.String() == "esc" {
				if m.cancel != nil {
					m.cancel()
				}
				m.message = "Cancelling after in-flight runs..."
			}
			return m, nil
		case screenResults:
			switch msg.String() {
			case "q", "ctrl+c":
				return m, tea.Quit
			default:
				m.screen = screenMenu
			}
			return m, nil
		}
		if m.editing {
			return m.handleEdit(msg)
		}
		return m.handleMenu(msg)
	}
	return m, nil
}

func (m model) handleMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.message = ""
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		m.cursor = (m.cursor + numFields - 1) % numFields
	case "down", "j", "tab":
		m.cursor = (m.cursor + 1) % numFields
	case "left", "h":
		m.cycle(-1)
	case "right", "l":
		m.cycle(1)
	case "r":
		return m.start()
	case "s":
		m.apply()
		if err := m.cfg.Save(m.configPath); err != nil {
			m.message = fmt.Sprintf("Save failed: %v", err)
		} else {
			m.message = "Saved " + m.configPath
		}
	case "enter":
		switch m.cursor {
		case fieldRun:
			return m.start()
		case fieldStrategy, fieldManeuver:
			m.cycle(1)
		default:
			m.editing = true
			m.buffer = m.fieldValue(m.cursor)
		}
	}
	return m, nil
}

func (m model) handleEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editing = false
	case "enter":
		if err := m.setField(m.cursor, m.buffer); err != nil {
			m.message = err.Error()
		}
		m.editing = false
	case "backspace":
		if len(m.buffer) > 0 {
			m.buffer = m.buffer[:len(m.buffer)-1]
		}
	default:
		if s := msg.String(); len(s) == 1 && strings.ContainsAny(s, "0123456789.-") {
			m.buffer += s
		}
	}
	return m, nil
}

func (m *model) cycle(dir int) {
	switch m.cursor {
	case fieldStrategy:
		m.strategy = (m.strategy + len(strategyChoices) + dir) % len(strategyChoices)
	case fieldManeuver:
		m.maneuver = (m.maneuver + len(m.choices) + dir) % len(m.choices)
	}
}

func (m model) fieldValue(field int) string {
	sc := m.cfg.Scenario
	switch field {
	case fieldOnset:
		return strconv.FormatFloat(sc.Target.Maneuver.StartTime, 'f', -1, 64)
	case fieldLaunchDelay:
		return strconv.FormatFloat(sc.LaunchDelay, 'f', -1, 64)
	case fieldRuns:
		return strconv.Itoa(m.cfg.Batch.Runs)
	case fieldWorkers:
		return strconv.Itoa(m.cfg.Batch.Workers)
	}
	return ""
}

func (m *model) setField(field int, value string) error {
	switch field {
	case fieldOnset, fieldLaunchDelay:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v < 0 {
			return fmt.Errorf("invalid time %q", value)
		}
		if field == fieldOnset {
			m.cfg.Scenario.Target.Maneuver.StartTime = v
			m.cfg.Scenario.Target.Maneuver.StartAltitude = 0
		} else {
			m.cfg.Scenario.LaunchDelay = v
		}
	case fieldRuns, fieldWorkers:
		v, err := strconv.Atoi(value)
		if err != nil || v < 0 {
			return fmt.Errorf("invalid count %q", value)
		}
		if field == fieldRuns {
			m.cfg.Batch.Runs = v
		} else {
			m.cfg.Batch.Workers = v
		}
	}
	return nil
}

// apply copies the menu choices into the configuration.
func (m *model) apply() {
	m.cfg.Batch.Strategy = strategyChoices[m.strategy]
	c := m.choices[m.maneuver]
	m.cfg.Batch.RandomizeManeuver = c.random
	if !c.random {
		m.cfg.Scenario.Target.Maneuver.AoADeg = c.aoa
	}
	m.cfg.Scenario.Output.Silent = true
}

// start launches a single engagement (Runs = 0) or a batch in the background.
func (m model) start() (tea.Model, tea.Cmd) {
	m.apply()
	strategies, err := batch.ParseStrategies(m.cfg.Batch.Strategy)
	if err == nil {
		err = m.cfg.Scenario.Validate()
	}
	if err == nil && m.cfg.Batch.Runs == 0 && m.choices[m.maneuver].random {
		err = fmt.Errorf("a random maneuver needs a batch (runs > 0)")
	}
	if err != nil {
		m.message = err.Error()
		return m, nil
	}

	m.screen = screenRunning
	m.progress = batch.Progress{}
	sc := m.cfg.Scenario
	sc.Salvo.LaunchOffsets = append([]float64(nil), sc.Salvo.LaunchOffsets...)

	if m.cfg.Batch.Runs == 0 {
		return m, runSingle(sc, strategies)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.updates = make(chan tea.Msg, 16)
	return m, tea.Batch(runBatch(ctx, m.cfg.Batch, sc, strategies, m.updates), waitFor(m.updates))
}

func runSingle(sc config.ScenarioConfig, strategies []guidance.Strategy) tea.Cmd {
	return func() tea.Msg {
		quiet := engagement.WithLogger(log.New(io.Discard, "", 0))
		var results []*engagement.Result
		for _, st := range strategies {
			res, err := engagement.Run(sc, st, quiet)
			if err != nil {
				return singleDoneMsg{results: results, err: err}
			}
			results = append(results, res)
		}
		return singleDoneMsg{results: results}
	}
}

// runBatch runs the batch and delivers progress and completion on updates.
func runBatch(ctx context.Context, cfg config.BatchConfig, sc config.ScenarioConfig, strategies []guidance.Strategy, updates chan<- tea.Msg) tea.Cmd {
	return func() tea.Msg {
		runner := batch.NewRunner(cfg)
		runner.OnProgress = func(p batch.Progress) {
			select {
			case updates <- progressMsg(p):
			default:
			}
		}
		reports, err := runner.RunStrategies(ctx, sc, strategies, cfg.Runs)
		updates <- batchDoneMsg{reports: reports, err: err}
		return nil
	}
}

// waitFor blocks until the next background update.
func waitFor(updates <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	p := tea.NewProgram(newModel(cfg, *configPath), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
