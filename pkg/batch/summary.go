package batch

import (
	"math"
	"sort"

	"github.com/unklstewy/intercept-sim/pkg/engagement"
)

// Summary aggregates a batch.
type Summary struct {
	Runs      int `json:"runs"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`

	Intercepted int `json:"intercepted"`
	Missed      int `json:"missed"`
	TimedOut    int `json:"timed_out"`

	// SuccessRate is Intercepted / Completed
	SuccessRate float64 `json:"success_rate"`

	// Effort statistics over completed runs (ft/s, summed across the salvo)
	MeanEffort   float64 `json:"mean_effort"`
	MedianEffort float64 `json:"median_effort"`
	P90Effort    float64 `json:"p90_effort"`

	// MeanMissDistance over completed runs with at least one launch
	MeanMissDistance float64 `json:"mean_miss_distance"`

	// MeanInterceptTime over intercepted runs
	MeanInterceptTime float64 `json:"mean_intercept_time"`

	Faults          int `json:"faults"`
	PIPNonConverged int `json:"pip_non_converged"`
}

// Summarize computes summary statistics. Failed runs count toward Runs and
// Failed only.
func Summarize(runs []RunResult) Summary {
	s := Summary{Runs: len(runs)}

	var efforts []float64
	var missSum, tInterceptSum float64
	var missN int
	for _, r := range runs {
		if r.Failed() {
			s.Failed++
			continue
		}
		m := r.Metrics
		s.Completed++
		switch m.Outcome {
		case engagement.OutcomeIntercepted:
			s.Intercepted++
			tInterceptSum += m.InterceptTime
		case engagement.OutcomeMissed:
			s.Missed++
		case engagement.OutcomeTimedOut:
			s.TimedOut++
		}
		efforts = append(efforts, m.TotalEffort)
		if m.MissDistance >= 0 {
			missSum += m.MissDistance
			missN++
		}
		s.Faults += m.Faults
		s.PIPNonConverged += m.PIPNonConverged
	}

	if s.Completed > 0 {
		s.SuccessRate = float64(s.Intercepted) / float64(s.Completed)
	}
	if s.Intercepted > 0 {
		s.MeanInterceptTime = tInterceptSum / float64(s.Intercepted)
	}
	if missN > 0 {
		s.MeanMissDistance = missSum / float64(missN)
	}
	if len(efforts) > 0 {
		sort.Float64s(efforts)
		var sum float64
		for _, e := range efforts {
			sum += e
		}
		s.MeanEffort = sum / float64(len(efforts))
		s.MedianEffort = percentile(efforts, 0.5)
		s.P90Effort = percentile(efforts, 0.9)
	}
	return s
}

// percentile returns the p-quantile of sorted values by linear interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// Comparison contrasts two strategies over the same batch settings.
type Comparison struct {
	Legacy     Summary `json:"legacy"`
	PhaseBased Summary `json:"phase_based"`

	// SuccessRateDelta is PhaseBased minus Legacy
	SuccessRateDelta float64 `json:"success_rate_delta"`

	// EffortRatio is PhaseBased mean effort over Legacy mean effort (0 when
	// Legacy has no effort)
	EffortRatio float64 `json:"effort_ratio"`
}

// Compare builds a Comparison.
func Compare(legacy, phase Summary) Comparison {
	c := Comparison{
		Legacy:           legacy,
		PhaseBased:       phase,
		SuccessRateDelta: phase.SuccessRate - legacy.SuccessRate,
	}
	if legacy.MeanEffort > 0 {
		c.EffortRatio = phase.MeanEffort / legacy.MeanEffort
	}
	return c
}

func sortByIndex(runs []RunResult) {
	sort.Slice(runs, func(i, j int) bool { return runs[i].Index < runs[j].Index })
}
