package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/feedrank/internal/loadgen"
)

// Default configuration constants.
const (
	defaultNumVideos = 1000
	defaultNumOwners = 50
	defaultNumEvents = 10000
	defaultTopN      = 50
	defaultWorkers   = 2 // multiplier for runtime.NumCPU()
	defaultTimeout   = 30 * time.Second
	defaultRunTime   = 10 * time.Minute
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString("Load run failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numVideos = flag.Int("videos", defaultNumVideos, "Number of videos to register")
		numOwners = flag.Int("owners", defaultNumOwners, "Number of distinct owners")
		numEvents = flag.Int("events", defaultNumEvents, "Number of engagement events to submit")
		topN      = flag.Int("top", defaultTopN, "Number of feed entries to verify")
		workers   = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle    = flag.Duration("settle", loadgen.DefaultSettleTimeout, "Time allowed for the event queue to drain")
		seed      = flag.Uint64("seed", 0, "Generator seed; 0 picks one from the clock")
		output    = flag.String("output", "", "Write the generated workload to this JSON file")
		viewW     = flag.Float64("view-weight", loadgen.DefaultWeights().View, "Service view weight")
		likeW     = flag.Float64("like-weight", loadgen.DefaultWeights().Like, "Service like weight")
		dislikeW  = flag.Float64("dislike-weight", loadgen.DefaultWeights().Dislike, "Service dislike weight")
		boostWeek = flag.Float64("boost-week", loadgen.DefaultWeights().BoostWeek, "Service boost for videos under a week old")
		boostMon  = flag.Float64("boost-month", loadgen.DefaultWeights().BoostMonth, "Service boost for videos under a month old")
		logFile   = flag.String("log", "", "Log file (default: loadgen_TIMESTAMP.log)")
		logFormat = flag.String("log-format", "text", "Log format: text or json")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return nil
	}

	closeLog, err := loadgen.SetupLogging(*logFile, *logFormat)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTime)
	defer cancel()

	return loadgen.Run(ctx, &loadgen.Config{
		BaseURL:       *baseURL,
		NumVideos:     *numVideos,
		NumOwners:     *numOwners,
		NumEvents:     *numEvents,
		TopN:          *topN,
		Workers:       *workers,
		Timeout:       *timeout,
		SettleTimeout: *settle,
		Seed:          *seed,
		Weights: loadgen.Weights{
			View:       *viewW,
			Like:       *likeW,
			Dislike:    *dislikeW,
			BoostWeek:  *boostWeek,
			BoostMonth: *boostMon,
		},
		OutputFile:    *output,
		Verbose:       *verbose,
	})
}
