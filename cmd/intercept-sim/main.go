// intercept-sim runs a single engagement or a batch from the command line.
//
//	intercept-sim -strategy phase-based -record -o run.json
//	intercept-sim -runs 200 -strategy both -store
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unklstewy/intercept-sim/internal/db"
	"github.com/unklstewy/intercept-sim/pkg/batch"
	"github.com/unklstewy/intercept-sim/pkg/config"
	"github.com/unklstewy/intercept-sim/pkg/engagement"
	"github.com/unklstewy/intercept-sim/pkg/guidance"
)

// options are the command-line overrides applied on top of the config file.
type options struct {
	strategy    string
	runs        int
	workers     int
	seed        int64
	record      bool
	silent      bool
	aoa         float64
	onset       float64
	launchDelay float64
	out         string
	store       bool
}

// set records which numeric overrides were given explicitly.
type set map[string]bool

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")

	var opts options
	flag.StringVar(&opts.strategy, "strategy", "both", "Guidance strategy: legacy, phase-based or both")
	flag.IntVar(&opts.runs, "runs", 0, "Batch size per strategy (0 = one engagement)")
	flag.IntVar(&opts.workers, "workers", -1, "Batch workers (0 = detect, 1 = serial; default from config)")
	flag.Int64Var(&opts.seed, "seed", 0, "Batch perturbation seed (default from config)")
	flag.BoolVar(&opts.record, "record", false, "Record per-step history (single engagement)")
	flag.BoolVar(&opts.silent, "silent", false, "Suppress engine logging")
	flag.Float64Var(&opts.aoa, "aoa", 0, "Target maneuver angle of attack in degrees")
	flag.Float64Var(&opts.onset, "onset", 0, "Maneuver onset in seconds of target flight")
	flag.Float64Var(&opts.launchDelay, "launch-delay", 0, "Target launch delay in seconds")
	flag.StringVar(&opts.out, "o", "", "Write JSON results to this file (- for stdout)")
	flag.BoolVar(&opts.store, "store", false, "Store results in the database")
	flag.Parse()

	explicit := set{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyOverrides(cfg, opts, explicit)

	strategies, err := batch.ParseStrategies(opts.strategy)
	if err != nil {
		log.Fatalf("Invalid strategy: %v", err)
	}
	if err := cfg.Scenario.Validate(); err != nil {
		log.Fatalf("Invalid scenario: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var database *db.DB
	if opts.store {
		database, err = db.ReconnectWithRetry(ctx, cfg.Database, db.DefaultRetryConfig())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
		if err := database.InitSchema(ctx); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
	}

	var output interface{}
	if opts.runs > 0 {
		reports, err := runBatches(ctx, cfg, strategies, opts.runs, os.Stdout)
		if err != nil {
			log.Printf("Batch stopped early: %v", err)
		}
		if database != nil {
			repo := db.NewBatchRepository(database)
			for _, rep := range reports {
				if err := db.WithRetry(ctx, db.DefaultRetryConfig(), func() error { return repo.Save(ctx, rep) }); err != nil {
					log.Printf("Failed to store batch %s: %v", rep.ID, err)
				}
			}
		}
		output = reports
	} else {
		results := runSingle(cfg, strategies, os.Stdout)
		if database != nil {
			repo := db.NewEngagementRepository(database)
			for _, r := range results {
				if err := db.WithRetry(ctx, db.DefaultRetryConfig(), func() error { return repo.Save(ctx, r, nil) }); err != nil {
					log.Printf("Failed to store engagement %s: %v", r.ID, err)
				}
			}
		}
		if len(results) == 1 {
			output = results[0]
		} else {
			output = results
		}
	}

	if opts.out != "" {
		if err := writeJSON(opts.out, output); err != nil {
			log.Fatalf("Failed to write output: %v", err)
		}
	}
}

// applyOverrides copies explicitly given flags into cfg.
func applyOverrides(cfg *config.Config, opts options, explicit set) {
	sc := &cfg.Scenario
	if explicit["record"] {
		sc.Recording = opts.record
	}
	if explicit["silent"] {
		sc.Output.Silent = opts.silent
	}
	if explicit["aoa"] {
		sc.Target.Maneuver.AoADeg = opts.aoa
	}
	if explicit["onset"] {
		sc.Target.Maneuver.StartTime = opts.onset
		sc.Target.Maneuver.StartAltitude = 0
	}
	if explicit["launch-delay"] {
		sc.LaunchDelay = opts.launchDelay
	}
	if explicit["workers"] {
		cfg.Batch.Workers = opts.workers
	}
	if explicit["seed"] {
		cfg.Batch.Seed = opts.seed
	}
	if explicit["runs"] {
		cfg.Batch.Runs = opts.runs
	}
}

// runSingle flies one engagement per strategy and prints a summary of each.
func runSingle(cfg *config.Config, strategies []guidance.Strategy, w io.Writer) []*engagement.Result {
	var engineLog *log.Logger
	if cfg.Scenario.Output.Silent {
		engineLog = log.New(io.Discard, "", 0)
	} else {
		engineLog = log.New(os.Stderr, "", log.LstdFlags)
	}

	var results []*engagement.Result
	for _, st := range strategies {
		start := time.Now()
		res, err := engagement.Run(cfg.Scenario, st, engagement.WithLogger(engineLog))
		if err != nil {
			log.Fatalf("Engagement failed: %v", err)
		}
		printResult(w, res, time.Since(start))
		results = append(results, res)
	}
	return results
}

// runBatches runs n engagements per strategy and prints each summary, plus a
// comparison when both strategies ran.
func runBatches(ctx context.Context, cfg *config.Config, strategies []guidance.Strategy, n int, w io.Writer) ([]*batch.Report, error) {
	runner := batch.NewRunner(cfg.Batch)
	runner.Logger = log.New(os.Stderr, "", log.LstdFlags)
	if !cfg.Scenario.Output.Silent {
		runner.OnProgress = func(p batch.Progress) {
			log.Printf("⏳ %d/%d runs (%s)", p.Done, p.Total, p.Elapsed.Round(time.Second))
		}
	}

	reports, err := runner.RunStrategies(ctx, cfg.Scenario, strategies, n)
	var legacy, phase *batch.Summary
	for _, rep := range reports {
		printSummary(w, rep)
		switch rep.Strategy {
		case guidance.StrategyLegacy:
			legacy = &rep.Summary
		case guidance.StrategyPhaseBased:
			phase = &rep.Summary
		}
	}
	if legacy != nil && phase != nil {
		printComparison(w, batch.Compare(*legacy, *phase))
	}
	return reports, err
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(path, data, 0644)
}
