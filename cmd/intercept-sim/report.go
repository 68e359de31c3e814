package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/unklstewy/intercept-sim/pkg/batch"
	"github.com/unklstewy/intercept-sim/pkg/engagement"
)

// orDash formats a -1 sentinel as a dash.
func orDash(v float64, format string) string {
	if v < 0 {
		return "-"
	}
	return fmt.Sprintf(format, v)
}

func printResult(w io.Writer, r *engagement.Result, wall time.Duration) {
	fmt.Fprintf(w, "\n=== %s engagement %s ===\n", r.Strategy, r.ID)
	fmt.Fprintf(w, "Outcome:        %s after %.2f s (%d steps, %s wall)\n", r.Outcome, r.Duration, r.Steps, wall.Round(time.Millisecond))
	fmt.Fprintf(w, "Intercept time: %s\n", orDash(r.InterceptTime, "%.2f s"))
	fmt.Fprintf(w, "Miss distance:  %s\n", orDash(r.MissDistance, "%.1f ft"))
	if r.Selection != nil {
		fmt.Fprintf(w, "Selector:       %s (triggered %.2f s, decided %.2f s, deactivated %v)\n",
			r.Selection.Winner, r.Selection.TriggerTime, r.Selection.DecisionTime, r.Selection.Deactivated)
	}
	if r.PIPNonConverged > 0 {
		fmt.Fprintf(w, "PIP non-converged: %d\n", r.PIPNonConverged)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tcase\tlaunch\tmode\teffort\tclosest\tdeactivated\thit")
	for _, ic := range r.Interceptors {
		kase := "-"
		if ic.Case != nil {
			kase = ic.Case.String()
		}
		hit := ""
		if ic.Hit {
			hit = "💥"
		} else if ic.NumericalFault {
			hit = "fault"
		}
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%s\t%.0f\t%s\t%s\t%s\n",
			ic.Index, kase, ic.LaunchTime, ic.FinalMode, ic.Effort,
			orDash(ic.ClosestApproach, "%.1f"), orDash(ic.DeactivatedAt, "%.2f"), hit)
	}
	tw.Flush()
}

func printSummary(w io.Writer, rep *batch.Report) {
	s := rep.Summary
	mode := fmt.Sprintf("%d workers", rep.Workers)
	if rep.Serial {
		mode = "serial"
	}
	fmt.Fprintf(w, "\n=== %s batch %s (%d runs, %s, %s) ===\n",
		rep.Strategy, rep.ID, s.Runs, mode, rep.Finished.Sub(rep.Started).Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Success rate\t%.1f%%\t(%d intercepted, %d missed, %d timed out, %d failed)\n",
		100*s.SuccessRate, s.Intercepted, s.Missed, s.TimedOut, s.Failed)
	fmt.Fprintf(tw, "Effort\tmean %.0f\tmedian %.0f\tp90 %.0f ft/s\n", s.MeanEffort, s.MedianEffort, s.P90Effort)
	fmt.Fprintf(tw, "Miss distance\tmean %.1f ft\n", s.MeanMissDistance)
	fmt.Fprintf(tw, "Intercept time\tmean %.2f s\n", s.MeanInterceptTime)
	if s.Faults > 0 || s.PIPNonConverged > 0 {
		fmt.Fprintf(tw, "Anomalies\t%d faults\t%d PIP non-converged\n", s.Faults, s.PIPNonConverged)
	}
	tw.Flush()
}

func printComparison(w io.Writer, c batch.Comparison) {
	fmt.Fprintf(w, "\n=== phase-based vs legacy ===\n")
	fmt.Fprintf(w, "Success rate: %.1f%% vs %.1f%% (%+.1f points)\n",
		100*c.PhaseBased.SuccessRate, 100*c.Legacy.SuccessRate, 100*c.SuccessRateDelta)
	if c.EffortRatio > 0 {
		fmt.Fprintf(w, "Mean effort:  %.0f vs %.0f ft/s (x%.2f)\n", c.PhaseBased.MeanEffort, c.Legacy.MeanEffort, c.EffortRatio)
	}
}
