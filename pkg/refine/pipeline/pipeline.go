// Package pipeline chains cleaning steps over a batch of records and reports
// how many records survived each step.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/refine/pkg/refine/clean"
	"github.com/cognicore/refine/pkg/refine/record"
)

// DecodeStep names the pseudo-step RunValues reports for input conversion.
const DecodeStep = "decode"

// StepStats counts the records entering and leaving one step.
type StepStats struct {
	Step string `json:"step" yaml:"step"`
	In   int    `json:"in" yaml:"in"`
	Out  int    `json:"out" yaml:"out"`
}

// Dropped returns the number of records the step excluded.
func (s StepStats) Dropped() int { return s.In - s.Out }

// Pipeline runs an ordered list of steps.
type Pipeline struct {
	steps   []clean.Step
	logger  *zap.Logger
	workers int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for per-step progress.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithWorkers processes the records of each step on up to n goroutines.
// Order-sensitive steps still run sequentially.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// New creates a pipeline over steps. Nil steps are ignored.
func New(steps []clean.Step, opts ...Option) *Pipeline {
	p := &Pipeline{
		logger:  zap.NewNop(),
		workers: 1,
	}
	for _, s := range steps {
		if s != nil {
			p.steps = append(p.steps, s)
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Default builds the stock chain: standardize, keep 5 to 100 words,
// deduplicate on text and annotate both counts.
func Default(opts ...Option) (*Pipeline, error) {
	quality, err := clean.NewQualityFilter(5, 100)
	if err != nil {
		return nil, err
	}
	dedupe, err := clean.NewDuplicateRemover(record.FieldText)
	if err != nil {
		return nil, err
	}
	return New([]clean.Step{
		clean.NewStandardizer(clean.DefaultStandardizerOptions()),
		quality,
		dedupe,
		clean.NewMetadataAnnotator(clean.AnnotatorOptions{AddWordCount: true, AddSentenceCount: true}),
	}, opts...), nil
}

// Steps returns the steps in execution order.
func (p *Pipeline) Steps() []clean.Step {
	out := make([]clean.Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// Describe returns the name and configuration of every step in order.
func (p *Pipeline) Describe() []map[string]any {
	out := make([]map[string]any, 0, len(p.steps))
	for _, s := range p.steps {
		out = append(out, map[string]any{
			"step":   s.Name(),
			"config": s.Config(),
		})
	}
	return out
}

// Run feeds batch through every step in order. It returns the surviving
// records in input order and one StepStats per step; the Out of each step is
// the In of the next. A cancelled context aborts the run with no output.
func (p *Pipeline) Run(ctx context.Context, batch []record.Record) ([]record.Record, []StepStats, error) {
	current := batch
	stats := make([]StepStats, 0, len(p.steps))

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		next, err := p.apply(ctx, step, current)
		if err != nil {
			return nil, nil, fmt.Errorf("step %s: %w", step.Name(), err)
		}

		st := StepStats{Step: step.Name(), In: len(current), Out: len(next)}
		stats = append(stats, st)
		p.logger.Info("step finished",
			zap.String("step", st.Step),
			zap.Int("in", st.In),
			zap.Int("out", st.Out),
		)
		current = next
	}

	if current == nil {
		current = []record.Record{}
	}
	return current, stats, nil
}

// RunValues converts loosely typed values with record.From and runs the
// result. Values that are not records are excluded and counted under a
// leading DecodeStep entry.
func (p *Pipeline) RunValues(ctx context.Context, values []any) ([]record.Record, []StepStats, error) {
	batch := make([]record.Record, 0, len(values))
	for i, v := range values {
		rec, err := record.From(v)
		if err != nil {
			p.logger.Debug("value excluded", zap.Int("index", i), zap.Error(err))
			continue
		}
		batch = append(batch, rec)
	}

	out, stats, err := p.Run(ctx, batch)
	if err != nil {
		return nil, nil, err
	}
	decode := StepStats{Step: DecodeStep, In: len(values), Out: len(batch)}
	return out, append([]StepStats{decode}, stats...), nil
}

func (p *Pipeline) apply(ctx context.Context, step clean.Step, batch []record.Record) ([]record.Record, error) {
	if p.workers <= 1 || len(batch) < 2 || orderSensitive(step) {
		return applySequential(ctx, step, batch)
	}

	slots := make([]record.Record, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, rec := range batch {
		if gctx.Err() != nil {
			break
		}
		i, rec := i, rec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if out, ok := step.Process(rec); ok {
				slots[i] = out
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]record.Record, 0, len(batch))
	for _, rec := range slots {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func applySequential(ctx context.Context, step clean.Step, batch []record.Record) ([]record.Record, error) {
	out := make([]record.Record, 0, len(batch))
	for i, rec := range batch {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if kept, ok := step.Process(rec); ok && kept != nil {
			out = append(out, kept)
		}
	}
	return out, nil
}

func orderSensitive(step clean.Step) bool {
	o, ok := step.(clean.OrderSensitive)
	return ok && o.OrderSensitive()
}
