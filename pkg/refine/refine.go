// Package refine cleans batches of training records: it loads them from a
// Source, runs a cleaning pipeline and hands the survivors to a Sink.
package refine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cognicore/refine/pkg/refine/pipeline"
	"github.com/cognicore/refine/pkg/refine/record"
)

// Source produces a batch of records.
type Source interface {
	Load(ctx context.Context) ([]record.Record, error)
}

// Sink consumes a batch of cleaned records.
type Sink interface {
	Store(ctx context.Context, recs []record.Record) error
}

// Refiner is the main cleaning facade
type Refiner struct {
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

// Options configures a Refiner
type Options struct {
	// Pipeline defaults to pipeline.Default.
	Pipeline *pipeline.Pipeline
	Logger   *zap.Logger
}

// Result is the outcome of one cleaning run.
type Result struct {
	Records []record.Record
	Stats   []pipeline.StepStats
}

// Kept returns the number of surviving records.
func (r Result) Kept() int { return len(r.Records) }

// New creates a Refiner with the given dependencies
func New(opts Options) (*Refiner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	p := opts.Pipeline
	if p == nil {
		var err error
		p, err = pipeline.Default(pipeline.WithLogger(logger))
		if err != nil {
			return nil, err
		}
	}
	return &Refiner{pipeline: p, logger: logger}, nil
}

// Pipeline returns the pipeline the refiner runs.
func (r *Refiner) Pipeline() *pipeline.Pipeline {
	return r.pipeline
}

// Clean loads a batch from src and runs the pipeline over it. A load failure
// aborts before any step runs.
func (r *Refiner) Clean(ctx context.Context, src Source) (Result, error) {
	if src == nil {
		return Result{}, errors.New("refine: no source")
	}
	batch, err := src.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("refine: load: %w", err)
	}
	r.logger.Info("batch loaded", zap.Int("records", len(batch)))

	out, stats, err := r.pipeline.Run(ctx, batch)
	if err != nil {
		return Result{}, fmt.Errorf("refine: %w", err)
	}
	return Result{Records: out, Stats: stats}, nil
}

// Export hands the records of res to sink.
func (r *Refiner) Export(ctx context.Context, res Result, sink Sink) error {
	if sink == nil {
		return errors.New("refine: no sink")
	}
	if err := sink.Store(ctx, res.Records); err != nil {
		return fmt.Errorf("refine: store: %w", err)
	}
	r.logger.Info("batch stored", zap.Int("records", len(res.Records)))
	return nil
}

// Run cleans src and exports the result to sink.
func (r *Refiner) Run(ctx context.Context, src Source, sink Sink) (Result, error) {
	res, err := r.Clean(ctx, src)
	if err != nil {
		return Result{}, err
	}
	if err := r.Export(ctx, res, sink); err != nil {
		return res, err
	}
	return res, nil
}
