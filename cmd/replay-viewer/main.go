// replay-viewer plays back a recorded engagement in the terminal.
//
// Record one with:
//
//	intercept-sim -record -o run.json
//	replay-viewer run.json
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/unklstewy/intercept-sim/pkg/config"
)

var (
	// Version information (set by build flags)
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	skip := flag.Bool("skip-animation", false, "Open at the final frame, paused")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Usage = printHelp
	flag.Parse()

	if *showVersion {
		fmt.Printf("replay-viewer version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}
	if flag.NArg() != 1 {
		printHelp()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *skip {
		cfg.Scenario.Output.SkipAnimation = true
	}

	results, err := loadResults(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	app := NewApp(results, cfg.Scenario)
	if err := app.Run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func printHelp() {
	fmt.Fprintln(os.Stderr, "replay-viewer - top-down playback of a recorded engagement")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "USAGE:")
	fmt.Fprintln(os.Stderr, "  replay-viewer [options] result.json")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "OPTIONS:")
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "The result file is written by `intercept-sim -record -o result.json`.")
	fmt.Fprintln(os.Stderr, "Guidance gate rings are taken from the configuration file.")
}
