package batch

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/unklstewy/intercept-sim/pkg/config"
	"github.com/unklstewy/intercept-sim/pkg/engagement"
	"github.com/unklstewy/intercept-sim/pkg/guidance"
	"github.com/unklstewy/intercept-sim/pkg/tracking"
)

// fakeEngage returns a result derived from the scenario so tests can check
// that each run saw its own perturbed configuration.
func fakeEngage(sc config.ScenarioConfig, st guidance.Strategy, _ ...engagement.Option) (*engagement.Result, error) {
	outcome := engagement.OutcomeMissed
	if sc.Target.Maneuver.AoADeg >= 0 {
		outcome = engagement.OutcomeIntercepted
	}
	return &engagement.Result{
		Strategy:      st,
		Outcome:       outcome,
		InterceptTime: sc.Target.Maneuver.StartTime,
		MissDistance:  10,
		Interceptors: []engagement.InterceptorResult{
			{Launched: true, Effort: 100 + sc.Target.Maneuver.AoADeg},
		},
	}, nil
}

func testBatchConfig(workers int) config.BatchConfig {
	cfg := config.DefaultConfig().Batch
	cfg.Workers = workers
	cfg.Seed = 42
	return cfg
}

func TestWorkers(t *testing.T) {
	w, serial := NewRunner(testBatchConfig(1)).Workers(10)
	if w != 1 || !serial {
		t.Errorf("Expected 1 serial worker, got %d (serial=%v)", w, serial)
	}

	w, serial = NewRunner(testBatchConfig(8)).Workers(3)
	if w != 3 || serial {
		t.Errorf("Expected pool capped at the run count of 3, got %d (serial=%v)", w, serial)
	}

	if w, _ = NewRunner(testBatchConfig(0)).Workers(1000); w < 1 {
		t.Errorf("Expected detected concurrency of at least one, got %d", w)
	}
}

func TestSerialAndParallelAgree(t *testing.T) {
	sc := config.DefaultScenario()

	serial := NewRunner(testBatchConfig(1))
	serial.engage = fakeEngage
	a, err := serial.Run(context.Background(), sc, guidance.StrategyPhaseBased, 40)
	if err != nil {
		t.Fatalf("Serial run failed: %v", err)
	}
	if !a.Serial {
		t.Error("Expected serial report")
	}

	parallel := NewRunner(testBatchConfig(4))
	parallel.engage = fakeEngage
	b, err := parallel.Run(context.Background(), sc, guidance.StrategyPhaseBased, 40)
	if err != nil {
		t.Fatalf("Parallel run failed: %v", err)
	}
	if b.Serial {
		t.Error("Expected parallel report")
	}

	if len(a.Runs) != 40 || len(b.Runs) != 40 {
		t.Fatalf("Expected 40 runs each, got %d and %d", len(a.Runs), len(b.Runs))
	}
	for i := range a.Runs {
		if b.Runs[i].Index != i {
			t.Errorf("Expected run %d in index order, got %d", i, b.Runs[i].Index)
		}
		if a.Runs[i].Case != b.Runs[i].Case || a.Runs[i].Onset != b.Runs[i].Onset {
			t.Errorf("Run %d: draws differ between serial and parallel", i)
		}
		if !reflect.DeepEqual(a.Runs[i].Metrics, b.Runs[i].Metrics) {
			t.Errorf("Run %d: expected metrics %+v, got %+v", i, a.Runs[i].Metrics, b.Runs[i].Metrics)
		}
	}
	if a.Summary != b.Summary {
		t.Errorf("Expected summary %+v, got %+v", a.Summary, b.Summary)
	}
	if a.ID == b.ID {
		t.Error("Expected distinct report IDs")
	}
}

func TestPresetReportID(t *testing.T) {
	r := NewRunner(testBatchConfig(1))
	r.engage = fakeEngage
	id := uuid.New()
	r.ID = id

	first, err := r.Run(context.Background(), config.DefaultScenario(), guidance.StrategyLegacy, 2)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if first.ID != id {
		t.Errorf("Expected report ID %s, got %s", id, first.ID)
	}

	second, err := r.Run(context.Background(), config.DefaultScenario(), guidance.StrategyLegacy, 2)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if second.ID == id {
		t.Error("Expected a preset ID to be used once")
	}
}

func TestPanickingRunIsRecorded(t *testing.T) {
	r := NewRunner(testBatchConfig(3))
	r.engage = func(sc config.ScenarioConfig, st guidance.Strategy, opts ...engagement.Option) (*engagement.Result, error) {
		if sc.Target.Maneuver.AoADeg < 0 {
			panic("boom")
		}
		return fakeEngage(sc, st, opts...)
	}

	rep, err := r.Run(context.Background(), config.DefaultScenario(), guidance.StrategyLegacy, 30)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(rep.Runs) != 30 {
		t.Fatalf("Expected 30 runs, got %d", len(rep.Runs))
	}

	panicked := 0
	for _, run := range rep.Runs {
		if !run.Panicked {
			continue
		}
		panicked++
		if run.Case != tracking.CaseNegative {
			t.Errorf("Run %d: expected only negative cases to panic, got %s", run.Index, run.Case)
		}
		if !strings.Contains(run.Err, "boom") {
			t.Errorf("Run %d: expected panic message in error, got %q", run.Index, run.Err)
		}
	}
	// seed 42 draws at least one negative case in 30 runs
	if panicked == 0 {
		t.Fatal("Expected at least one panicking run")
	}
	if rep.Summary.Failed != panicked {
		t.Errorf("Expected %d failed, got %d", panicked, rep.Summary.Failed)
	}
	if rep.Summary.Completed != 30-panicked {
		t.Errorf("Expected %d completed, got %d", 30-panicked, rep.Summary.Completed)
	}
}

func TestEngineErrorIsRecorded(t *testing.T) {
	r := NewRunner(testBatchConfig(1))
	r.engage = func(config.ScenarioConfig, guidance.Strategy, ...engagement.Option) (*engagement.Result, error) {
		return nil, errors.New("engine refused")
	}

	rep, err := r.Run(context.Background(), config.DefaultScenario(), guidance.StrategyLegacy, 3)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.Summary.Failed != 3 {
		t.Errorf("Expected 3 failed, got %d", rep.Summary.Failed)
	}
	if rep.Runs[0].Err != "engine refused" {
		t.Errorf("Expected recorded engine error, got %q", rep.Runs[0].Err)
	}
}

func TestInvalidScenarioRejected(t *testing.T) {
	sc := config.DefaultScenario()
	sc.MaxTime = -1

	_, err := NewRunner(testBatchConfig(1)).Run(context.Background(), sc, guidance.StrategyLegacy, 3)
	if !errors.Is(err, config.ErrInvalidScenario) {
		t.Errorf("Expected ErrInvalidScenario, got %v", err)
	}

	_, err = NewRunner(testBatchConfig(1)).Run(context.Background(), config.DefaultScenario(), guidance.StrategyLegacy, 0)
	if err == nil {
		t.Error("Expected error for zero runs")
	}
}

func TestProgress(t *testing.T) {
	cfg := testBatchConfig(2)
	cfg.ProgressPerSecond = 1000

	var mu sync.Mutex
	var last Progress
	calls := 0

	r := NewRunner(cfg)
	r.engage = fakeEngage
	r.OnProgress = func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		last = p
	}

	rep, err := r.Run(context.Background(), config.DefaultScenario(), guidance.StrategyLegacy, 10)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls < 1 {
		t.Fatal("Expected at least one progress report")
	}
	if last.Done != 10 || last.Total != 10 {
		t.Errorf("Expected final progress 10/10, got %d/%d", last.Done, last.Total)
	}
	if last.BatchID != rep.ID {
		t.Errorf("Expected batch ID %s, got %s", rep.ID, last.BatchID)
	}
}

func TestCancelledBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(testBatchConfig(1))
	r.engage = fakeEngage
	rep, err := r.Run(ctx, config.DefaultScenario(), guidance.StrategyLegacy, 5)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if rep == nil {
		t.Fatal("Expected a partial report")
	}
	if len(rep.Runs) != 0 {
		t.Errorf("Expected no runs, got %d", len(rep.Runs))
	}
}

func TestRealEngagements(t *testing.T) {
	if testing.Short() {
		t.Skip("runs full engagements")
	}

	cfg := testBatchConfig(2)
	cfg.OnsetJitter = 0
	r := NewRunner(cfg)
	r.KeepResults = true

	reports, err := r.RunStrategies(context.Background(), config.DefaultScenario(),
		[]guidance.Strategy{guidance.StrategyLegacy, guidance.StrategyPhaseBased}, 3)
	if err != nil {
		t.Fatalf("RunStrategies failed: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("Expected 2 reports, got %d", len(reports))
	}

	for _, rep := range reports {
		if rep.Summary.Completed != 3 || rep.Summary.Failed != 0 {
			t.Errorf("%s: expected 3 completed and 0 failed, got %d and %d",
				rep.Strategy, rep.Summary.Completed, rep.Summary.Failed)
		}
		for _, run := range rep.Runs {
			if run.Result == nil {
				t.Fatalf("%s run %d: expected kept result", rep.Strategy, run.Index)
			}
			if run.Result.Strategy != rep.Strategy {
				t.Errorf("Expected strategy %s, got %s", rep.Strategy, run.Result.Strategy)
			}
		}
	}
}

func TestParseStrategies(t *testing.T) {
	tests := []struct {
		input   string
		want    []guidance.Strategy
		wantErr bool
	}{
		{"both", []guidance.Strategy{guidance.StrategyLegacy, guidance.StrategyPhaseBased}, false},
		{"Legacy", []guidance.Strategy{guidance.StrategyLegacy}, false},
		{"random", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStrategies(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStrategies(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}
