// Package batch runs many independent engagements and aggregates their
// metrics.
//
// Runs share nothing: each worker builds its own scenario copy and the engine
// owns all state for the run. The only synchronization point is the results
// channel.
package batch

import (
	"context"
	"fmt"
	"io"
	"log"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/unklstewy/intercept-sim/pkg/config"
	"github.com/unklstewy/intercept-sim/pkg/engagement"
	"github.com/unklstewy/intercept-sim/pkg/guidance"
	"github.com/unklstewy/intercept-sim/pkg/tracking"
)

// RunResult is the outcome of one engagement in a batch.
type RunResult struct {
	Index    int               `json:"index"`
	Strategy guidance.Strategy `json:"strategy"`

	// Case and Onset are the maneuver the target actually flew
	Case  tracking.Case `json:"case"`
	Onset float64       `json:"onset"`

	Metrics engagement.Metrics `json:"metrics"`

	// Err is set when the run failed (configuration error or panic)
	Err      string `json:"error,omitempty"`
	Panicked bool   `json:"panicked,omitempty"`

	// Result is kept only when Runner.KeepResults is set
	Result *engagement.Result `json:"-"`
}

// Failed reports whether the run produced no metrics.
func (r RunResult) Failed() bool {
	return r.Err != ""
}

// Report is the output of Runner.Run.
type Report struct {
	ID       uuid.UUID         `json:"id"`
	Strategy guidance.Strategy `json:"strategy"`
	Workers  int               `json:"workers"`
	Serial   bool              `json:"serial"`
	Started  time.Time         `json:"started"`
	Finished time.Time         `json:"finished"`
	Runs     []RunResult       `json:"runs"`
	Summary  Summary           `json:"summary"`
}

// Progress is reported while a batch runs.
type Progress struct {
	BatchID uuid.UUID
	Done    int
	Total   int
	Elapsed time.Duration
}

// engageFunc matches engagement.Run.
type engageFunc func(config.ScenarioConfig, guidance.Strategy, ...engagement.Option) (*engagement.Result, error)

// Runner executes batches of engagements.
type Runner struct {
	cfg config.BatchConfig

	// Logger receives batch-level messages. Defaults to discarding.
	Logger *log.Logger

	// EngineLogger, when set, is passed to every engagement.
	EngineLogger *log.Logger

	// OnProgress is called at most ProgressPerSecond times a second, plus
	// once when the batch completes.
	OnProgress func(Progress)

	// KeepResults retains every full engagement.Result in the report.
	KeepResults bool

	// ID, when set, names the next report instead of a fresh UUID.
	ID uuid.UUID

	engage engageFunc
}

// NewRunner creates a runner from batch configuration.
func NewRunner(cfg config.BatchConfig) *Runner {
	return &Runner{
		cfg:    cfg,
		Logger: log.New(io.Discard, "", 0),
		engage: engagement.Run,
	}
}

// Workers returns the pool size that will be used for n runs, and whether the
// runner falls back to serial execution. Workers <= 0 detects the available
// concurrency.
func (r *Runner) Workers(n int) (int, bool) {
	w := r.cfg.Workers
	if w <= 0 {
		w = runtime.GOMAXPROCS(0)
	}
	if w > n {
		w = n
	}
	if w <= 1 {
		return 1, true
	}
	return w, false
}

// Run executes n engagements of scenario under strategy.
//
// Cancelling ctx stops new runs from starting; runs already in flight finish.
// On cancellation the partial report is returned with ctx.Err().
func (r *Runner) Run(ctx context.Context, scenario config.ScenarioConfig, strategy guidance.Strategy, n int) (*Report, error) {
	if n <= 0 {
		return nil, fmt.Errorf("batch needs at least one run, got %d", n)
	}
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	id := r.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	r.ID = uuid.Nil

	workers, serial := r.Workers(n)
	report := &Report{
		ID:       id,
		Strategy: strategy,
		Workers:  workers,
		Serial:   serial,
		Started:  time.Now(),
	}
	r.Logger.Printf("batch %s: %d %s runs on %d worker(s)", report.ID, n, strategy, workers)

	var limiter *rate.Limiter
	if r.OnProgress != nil && r.cfg.ProgressPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.cfg.ProgressPerSecond), 1)
	}

	collected := make([]RunResult, 0, n)
	collect := func(res RunResult) {
		collected = append(collected, res)
		if r.OnProgress != nil && (limiter == nil || limiter.Allow()) {
			r.OnProgress(Progress{BatchID: report.ID, Done: len(collected), Total: n, Elapsed: time.Since(report.Started)})
		}
	}

	if serial {
		for i := 0; i < n; i++ {
			if ctx.Err() != nil {
				break
			}
			collect(r.runOne(scenario, strategy, i))
		}
	} else {
		jobs := make(chan int)
		results := make(chan RunResult, workers)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					results <- r.runOne(scenario, strategy, i)
				}
			}()
		}

		go func() {
			defer close(jobs)
			for i := 0; i < n; i++ {
				select {
				case jobs <- i:
				case <-ctx.Done():
					return
				}
			}
		}()

		go func() {
			wg.Wait()
			close(results)
		}()

		for res := range results {
			collect(res)
		}
	}

	sortByIndex(collected)
	report.Runs = collected
	report.Summary = Summarize(collected)
	report.Finished = time.Now()

	if r.OnProgress != nil {
		r.OnProgress(Progress{BatchID: report.ID, Done: len(collected), Total: n, Elapsed: report.Finished.Sub(report.Started)})
	}
	r.Logger.Printf("batch %s: %d/%d runs, success rate %.1f%% in %s",
		report.ID, len(collected), n, 100*report.Summary.SuccessRate, report.Finished.Sub(report.Started).Round(time.Millisecond))

	if err := ctx.Err(); err != nil && len(collected) < n {
		return report, err
	}
	return report, nil
}

// runOne executes a single perturbed engagement. A panic inside the engine is
// recorded as a failed run.
func (r *Runner) runOne(base config.ScenarioConfig, strategy guidance.Strategy, index int) (res RunResult) {
	sc, kase, onset := Perturb(base, r.cfg, index)
	res = RunResult{Index: index, Strategy: strategy, Case: kase, Onset: onset}

	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Sprintf("panic: %v", p)
			res.Panicked = true
			r.Logger.Printf("⚠️  batch run %d panicked: %v", index, p)
		}
	}()

	var opts []engagement.Option
	if r.EngineLogger != nil {
		opts = append(opts, engagement.WithLogger(r.EngineLogger))
	}

	out, err := r.engage(sc, strategy, opts...)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.Metrics = out.Metrics()
	if r.KeepResults {
		res.Result = out
	}
	return res
}

// ParseStrategies expands a batch strategy setting: "legacy", "phase-based"
// or "both".
func ParseStrategies(s string) ([]guidance.Strategy, error) {
	if strings.EqualFold(s, "both") || s == "" {
		return []guidance.Strategy{guidance.StrategyLegacy, guidance.StrategyPhaseBased}, nil
	}
	st, err := guidance.ParseStrategy(strings.ToLower(s))
	if err != nil {
		return nil, err
	}
	return []guidance.Strategy{st}, nil
}

// RunStrategies runs the same batch once per strategy, in order.
func (r *Runner) RunStrategies(ctx context.Context, scenario config.ScenarioConfig, strategies []guidance.Strategy, n int) ([]*Report, error) {
	var reports []*Report
	for _, st := range strategies {
		rep, err := r.Run(ctx, scenario, st, n)
		if rep != nil {
			reports = append(reports, rep)
		}
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}
