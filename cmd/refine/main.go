package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/cognicore/refine/pkg/refine"
	"github.com/cognicore/refine/pkg/refine/config"
	"github.com/cognicore/refine/pkg/refine/pipeline"
)

type options struct {
	configPath string
	inPath     string
	outPath    string
	workers    int
	logLevel   string
	describe   bool
}

func main() {
	var (
		configPath = flag.String("config", "", "YAML run configuration")
		inPath     = flag.String("in", "", "Input file, overrides the configured source")
		outPath    = flag.String("out", "", "Output file, overrides the configured sink")
		workers    = flag.Int("workers", 0, "Goroutines per step (0 keeps the configured value)")
		logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		describe   = flag.Bool("describe", false, "Print the pipeline configuration and exit")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, options{
		configPath: *configPath,
		inPath:     *inPath,
		outPath:    *outPath,
		workers:    *workers,
		logLevel:   *logLevel,
		describe:   *describe,
	}, os.Stdout)
	stop()
	if err != nil {
		log.Fatal(err)
	}
}

// run executes one configured run and closes every component before it
// returns.
func run(ctx context.Context, opts options, stdout io.Writer) error {
	comp, cleanup, err := buildRun(ctx, opts)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	defer cleanup()
	logger := comp.Logger

	if opts.describe {
		return describePipeline(stdout, comp.Pipeline)
	}
	if comp.Source == nil || comp.Sink == nil {
		return errors.New("a source and a sink are required (config or --in/--out)")
	}

	r, err := refine.New(refine.Options{Pipeline: comp.Pipeline, Logger: logger})
	if err != nil {
		return err
	}
	res, err := r.Run(ctx, comp.Source, comp.Sink)
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		return err
	}
	printStats(stdout, res.Stats)
	return nil
}

// buildRun loads the configuration, applies flag overrides and constructs
// the components of the run.
func buildRun(ctx context.Context, opts options) (*config.Components, func(), error) {
	cfg := &config.Config{}
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	} else {
		cfg.ApplyEnv(os.Getenv)
	}

	if opts.inPath != "" {
		cfg.Source = config.Endpoint{Kind: config.KindFile, Path: opts.inPath}
	}
	if opts.outPath != "" {
		cfg.Sink = config.Endpoint{Kind: config.KindFile, Path: opts.outPath}
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	comp, err := (&config.Loader{Config: cfg}).Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	return comp, func() { comp.Close() }, nil
}

func describePipeline(w io.Writer, p *pipeline.Pipeline) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p.Describe())
}

func printStats(w io.Writer, stats []pipeline.StepStats) {
	for _, s := range stats {
		fmt.Fprintf(w, "   %s: %d -> %d records\n", s.Step, s.In, s.Out)
	}
}
