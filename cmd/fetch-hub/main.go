package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/cognicore/refine/pkg/refine/config"
	"github.com/cognicore/refine/pkg/refine/dataio"
	"github.com/cognicore/refine/pkg/refine/fieldmap"
	"github.com/cognicore/refine/pkg/refine/hub"
)

type fetchOptions struct {
	dataset   string
	config    string
	split     string
	limit     int
	outDir    string
	format    dataio.Format
	mapFields bool
	keepExtra bool
}

func main() {
	var (
		dataset   = flag.String("dataset", "", "Dataset name, e.g. tatsu-lab/alpaca (required)")
		cfgName   = flag.String("config", "", "Dataset config (default: first config)")
		split     = flag.String("split", "", "Split to fetch (default: all splits)")
		limit     = flag.Int("limit", 0, "Maximum rows per split (0 = all)")
		outDir    = flag.String("out", "testdata/hub", "Output directory")
		format    = flag.String("format", "jsonl", "Output format: jsonl, json, csv, parquet")
		mapFields = flag.Bool("map", false, "Map columns onto text/output/metadata")
		keepExtra = flag.Bool("keep-extra", false, "Keep unmapped columns as metadata (with --map)")
		rps       = flag.Float64("rps", 2, "Requests per second")
		baseURL   = flag.String("base-url", hub.DefaultBaseURL, "datasets-server endpoint")
	)
	flag.Parse()

	if *dataset == "" {
		log.Fatal("--dataset required")
	}
	f, err := dataio.ParseFormat(*format)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = run(ctx, *baseURL, *rps, fetchOptions{
		dataset:   *dataset,
		config:    *cfgName,
		split:     *split,
		limit:     *limit,
		outDir:    *outDir,
		format:    f,
		mapFields: *mapFields,
		keepExtra: *keepExtra,
	})
	stop()
	if err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, baseURL string, rps float64, opts fetchOptions) error {
	logger, err := config.NewLogger(config.LogConfig{Level: "info", Format: "console"})
	if err != nil {
		return err
	}
	defer logger.Sync()

	client := hub.New(hub.Options{
		BaseURL: baseURL,
		Token:   os.Getenv(config.EnvHubToken),
		RPS:     rps,
		Logger:  logger,
	})

	written, err := fetch(ctx, client, opts)
	for _, path := range written {
		logger.Info("wrote split", zap.String("path", path))
	}
	if err != nil {
		return fmt.Errorf("fetch %s: %w", opts.dataset, err)
	}
	return nil
}

// fetch downloads the selected splits and writes one file per split. It
// returns the written paths in split-name order.
func fetch(ctx context.Context, client *hub.Client, opts fetchOptions) ([]string, error) {
	loaded, err := client.LoadConfig(ctx, opts.dataset, opts.config, opts.split, opts.limit)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(loaded))
	for name := range loaded {
		names = append(names, name)
	}
	sort.Strings(names)

	var written []string
	for _, name := range names {
		recs := loaded[name]
		if opts.mapFields {
			recs = fieldmap.DetectRecords(recs, opts.keepExtra).MapAll(recs)
		}

		path := filepath.Join(opts.outDir, name+"."+string(opts.format))
		if err := dataio.Write(ctx, path, opts.format, recs); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}
