package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/intercept-sim/pkg/batch"
	"github.com/unklstewy/intercept-sim/pkg/engagement"
	"github.com/unklstewy/intercept-sim/pkg/guidance"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("24")).
		Padding(0, 1)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	valueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	goodStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

var fieldLabels = [numFields]string{
	fieldStrategy:    "Strategy",
	fieldManeuver:    "Maneuver",
	fieldOnset:       "Onset (s)",
	fieldLaunchDelay: "Launch delay (s)",
	fieldRuns:        "Runs (0 = single)",
	fieldWorkers:     "Workers (0 = auto)",
	fieldRun:         "▶ Run",
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("INTERCEPT SIM"))
	b.WriteString("\n\n")

	switch m.screen {
	case screenRunning:
		b.WriteString(m.renderRunning())
	case screenResults:
		b.WriteString(m.renderResults())
	default:
		b.WriteString(m.renderMenu())
	}

	if m.message != "" {
		b.WriteString("\n")
		b.WriteString(errStyle.Render(m.message))
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) renderMenu() string {
	var b strings.Builder
	for i := 0; i < numFields; i++ {
		cursor := "  "
		label := fmt.Sprintf("%-20s", fieldLabels[i])
		if i == m.cursor {
			cursor = "> "
			label = selectedStyle.Render(label)
		}

		value := ""
		switch i {
		case fieldStrategy:
			value = "◀ " + strategyChoices[m.strategy] + " ▶"
		case fieldManeuver:
			value = "◀ " + m.choices[m.maneuver].label + " ▶"
		case fieldRun:
		default:
			value = m.fieldValue(i)
			if m.editing && i == m.cursor {
				value = m.buffer + "█"
			}
		}
		b.WriteString(cursor + label + " " + valueStyle.Render(value) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ select • ←/→ change • enter edit/run • r run • s save • q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m model) renderRunning() string {
	p := m.progress
	if p.Total == 0 {
		return "Running engagement...\n"
	}

	const width = 40
	filled := width * p.Done / p.Total
	bar := goodStyle.Render(strings.Repeat("█", filled)) + helpStyle.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("Batch %s\n\n%s %d/%d  %s\n\n%s\n",
		p.BatchID.String()[:8], bar, p.Done, p.Total, p.Elapsed.Round(time.Second),
		helpStyle.Render("esc cancel"))
}

func (m model) renderResults() string {
	var b strings.Builder
	if m.err != nil {
		b.WriteString(errStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n\n")
	}
	for _, r := range m.results {
		b.WriteString(boxStyle.Render(renderEngagement(r)))
		b.WriteString("\n")
	}

	var legacy, phase *batch.Summary
	for _, rep := range m.reports {
		b.WriteString(boxStyle.Render(renderReport(rep)))
		b.WriteString("\n")
		switch rep.Strategy {
		case guidance.StrategyLegacy:
			legacy = &rep.Summary
		case guidance.StrategyPhaseBased:
			phase = &rep.Summary
		}
	}
	if legacy != nil && phase != nil {
		c := batch.Compare(*legacy, *phase)
		b.WriteString(headerStyle.Render("Phase-based vs legacy"))
		b.WriteString(fmt.Sprintf("\n  success %+.1f points, effort x%.2f\n", 100*c.SuccessRateDelta, c.EffortRatio))
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("any key: back to menu • q quit"))
	b.WriteString("\n")
	return b.String()
}

func renderEngagement(r *engagement.Result) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(r.Strategy.String()))
	b.WriteString("\n")

	outcome := r.Outcome.String()
	if r.Outcome == engagement.OutcomeIntercepted {
		outcome = goodStyle.Render(outcome + fmt.Sprintf(" at %.2f s by #%d", r.InterceptTime, r.HitBy))
	} else {
		outcome = errStyle.Render(outcome)
	}
	b.WriteString("Outcome:  " + outcome + "\n")
	if r.MissDistance >= 0 {
		b.WriteString(fmt.Sprintf("Miss:     %.1f ft\n", r.MissDistance))
	}
	if r.Selection != nil {
		b.WriteString(fmt.Sprintf("Selector: %s at %.2f s\n", r.Selection.Winner, r.Selection.DecisionTime))
	}
	m := r.Metrics()
	b.WriteString(fmt.Sprintf("Effort:   %.0f ft/s over %d launched", m.TotalEffort, m.Launched))
	return b.String()
}

func renderReport(rep *batch.Report) string {
	s := rep.Summary
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s × %d", rep.Strategy, s.Runs)))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Success:  %s\n", goodStyle.Render(fmt.Sprintf("%.1f%%", 100*s.SuccessRate))))
	b.WriteString(fmt.Sprintf("Outcomes: %d hit / %d missed / %d timed out / %d failed\n", s.Intercepted, s.Missed, s.TimedOut, s.Failed))
	b.WriteString(fmt.Sprintf("Effort:   mean %.0f, p90 %.0f ft/s", s.MeanEffort, s.P90Effort))
	return b.String()
}
