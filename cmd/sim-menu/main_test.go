package main

import (
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/intercept-sim/pkg/config"
	"github.com/unklstewy/intercept-sim/pkg/engagement"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m model, keys ...string) (model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(key(k))
		m = next.(model)
	}
	return m, cmd
}

func TestNewModelReflectsConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	m := newModel(cfg, "cfg.json")
	assert.Equal(t, "both", strategyChoices[m.strategy])
	assert.True(t, m.choices[m.maneuver].random, "batches randomize by default")

	cfg.Batch.RandomizeManeuver = false
	cfg.Scenario.Target.Maneuver.AoADeg = -5
	m = newModel(cfg, "cfg.json")
	assert.Equal(t, -5.0, m.choices[m.maneuver].aoa)
}

func TestMenuNavigationAndCycling(t *testing.T) {
	m := newModel(config.DefaultConfig(), "cfg.json")

	m, _ = send(t, m, "right")
	assert.Equal(t, "legacy", strategyChoices[m.strategy])

	m, _ = send(t, m, "down", "right")
	assert.Equal(t, fieldManeuver, m.cursor)
	assert.Equal(t, 0, m.maneuver, "cycling wraps around")

	m.apply()
	assert.Equal(t, "legacy", m.cfg.Batch.Strategy)
	assert.False(t, m.cfg.Batch.RandomizeManeuver)
	assert.Equal(t, 10.0, m.cfg.Scenario.Target.Maneuver.AoADeg)
}

func TestEditNumericField(t *testing.T) {
	m := newModel(config.DefaultConfig(), "cfg.json")
	m.cursor = fieldRuns

	m, _ = send(t, m, "enter")
	require.True(t, m.editing)
	assert.Equal(t, "100", m.buffer)

	m, _ = send(t, m, "backspace", "backspace", "backspace", "2", "x", "5", "enter")
	assert.False(t, m.editing)
	assert.Equal(t, 25, m.cfg.Batch.Runs, "non-numeric keys are ignored")

	m.cursor = fieldOnset
	m, _ = send(t, m, "enter", "backspace", "backspace", "-", "enter")
	assert.Contains(t, m.message, "invalid time")
	assert.Equal(t, 20.0, m.cfg.Scenario.Target.Maneuver.StartTime)
}

func TestSaveWritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	m := newModel(config.DefaultConfig(), path)
	m, _ = send(t, m, "s")
	assert.Contains(t, m.message, "Saved")

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "both", loaded.Batch.Strategy)
}

func TestRandomManeuverNeedsBatch(t *testing.T) {
	m := newModel(config.DefaultConfig(), "cfg.json")
	m.cfg.Batch.Runs = 0
	m, cmd := send(t, m, "r")
	assert.Nil(t, cmd)
	assert.Equal(t, screenMenu, m.screen)
	assert.Contains(t, m.message, "needs a batch")
}

func TestSingleRun(t *testing.T) {
	cfg := config.DefaultConfig()
	sc := &cfg.Scenario
	sc.Target.InitialPosition = mgl64.Vec3{0, 0, -60000}
	sc.Target.FlightPathDeg = 0
	sc.Target.Maneuver.AoADeg = 0
	sc.Salvo.LaunchPosition = mgl64.Vec3{120000, 0, -60000}
	sc.Salvo.LaunchOffsets = []float64{0}
	cfg.Batch.Runs = 0
	cfg.Batch.Strategy = "legacy"
	cfg.Batch.RandomizeManeuver = false

	m := newModel(cfg, "cfg.json")
	m, cmd := send(t, m, "r")
	require.NotNil(t, cmd)
	assert.Equal(t, screenRunning, m.screen)
	assert.Contains(t, m.View(), "Running engagement")

	msg := cmd()
	done, ok := msg.(singleDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)
	require.Len(t, done.results, 1)
	assert.Equal(t, engagement.OutcomeIntercepted, done.results[0].Outcome)

	next, _ := m.Update(done)
	m = next.(model)
	assert.Equal(t, screenResults, m.screen)
	view := m.View()
	assert.True(t, strings.Contains(view, "Intercepted"), view)

	m, _ = send(t, m, "x")
	assert.Equal(t, screenMenu, m.screen)
}
