package batch

import (
	"math"
	"testing"

	"github.com/unklstewy/intercept-sim/pkg/engagement"
)

func TestSummarize(t *testing.T) {
	runs := []RunResult{
		{Metrics: engagement.Metrics{Outcome: engagement.OutcomeIntercepted, InterceptTime: 30, MissDistance: 10, TotalEffort: 100}},
		{Metrics: engagement.Metrics{Outcome: engagement.OutcomeIntercepted, InterceptTime: 40, MissDistance: 20, TotalEffort: 200}},
		{Metrics: engagement.Metrics{Outcome: engagement.OutcomeMissed, MissDistance: 600, TotalEffort: 300, Faults: 1}},
		{Metrics: engagement.Metrics{Outcome: engagement.OutcomeTimedOut, MissDistance: -1}},
		{Err: "panic: boom", Panicked: true},
	}

	s := Summarize(runs)

	counts := []struct {
		name      string
		got, want int
	}{
		{"Runs", s.Runs, 5},
		{"Completed", s.Completed, 4},
		{"Failed", s.Failed, 1},
		{"Intercepted", s.Intercepted, 2},
		{"Missed", s.Missed, 1},
		{"TimedOut", s.TimedOut, 1},
		{"Faults", s.Faults, 1},
	}
	for _, c := range counts {
		if c.got != c.want {
			t.Errorf("Expected %s=%d, got %d", c.name, c.want, c.got)
		}
	}

	// unlaunched runs are excluded from the mean miss distance
	stats := []struct {
		name      string
		got, want float64
	}{
		{"SuccessRate", s.SuccessRate, 0.5},
		{"MeanInterceptTime", s.MeanInterceptTime, 35},
		{"MeanMissDistance", s.MeanMissDistance, 210},
		{"MeanEffort", s.MeanEffort, 150},
		{"MedianEffort", s.MedianEffort, 150},
		{"P90Effort", s.P90Effort, 270},
	}
	for _, c := range stats {
		if math.Abs(c.got-c.want) > 1e-12 {
			t.Errorf("Expected %s=%f, got %f", c.name, c.want, c.got)
		}
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Runs != 0 || s.SuccessRate != 0 {
		t.Errorf("Expected empty summary, got %+v", s)
	}
}

func TestCompare(t *testing.T) {
	legacy := Summary{SuccessRate: 0.6, MeanEffort: 2000}
	phase := Summary{SuccessRate: 0.75, MeanEffort: 1500}

	c := Compare(legacy, phase)
	if math.Abs(c.SuccessRateDelta-0.15) > 1e-12 {
		t.Errorf("Expected success rate delta 0.15, got %f", c.SuccessRateDelta)
	}
	if math.Abs(c.EffortRatio-0.75) > 1e-12 {
		t.Errorf("Expected effort ratio 0.75, got %f", c.EffortRatio)
	}

	if r := Compare(Summary{}, phase).EffortRatio; r != 0 {
		t.Errorf("Expected zero effort ratio without a legacy baseline, got %f", r)
	}
}
