package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/refine/internal/objstore"
	"github.com/cognicore/refine/pkg/refine"
	"github.com/cognicore/refine/pkg/refine/clean"
	"github.com/cognicore/refine/pkg/refine/dataio"
	"github.com/cognicore/refine/pkg/refine/hub"
	"github.com/cognicore/refine/pkg/refine/pipeline"
	"github.com/cognicore/refine/pkg/refine/store"
	"github.com/cognicore/refine/pkg/refine/store/memstore"
	"github.com/cognicore/refine/pkg/refine/store/postgres"
	"github.com/cognicore/refine/pkg/refine/store/sqlite"
)

// Loader constructs the components a Config describes
type Loader struct {
	Config *Config
	// Logger overrides the logger built from Config.Log.
	Logger *zap.Logger
}

// Components holds everything a run needs. Source and Sink are nil when the
// config leaves them out; Store and Hub are nil unless an endpoint or the
// store section asks for them.
type Components struct {
	Logger   *zap.Logger
	Pipeline *pipeline.Pipeline
	IO       *dataio.IO
	Store    store.Store
	Hub      *hub.Client
	Source   refine.Source
	Sink     refine.Sink
}

// Close releases the store and flushes the logger.
func (c *Components) Close() error {
	var err error
	if c.Store != nil {
		err = c.Store.Close()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
	return err
}

// Load builds every configured component. On failure, whatever was opened
// is closed again.
func (l *Loader) Load(ctx context.Context) (comp *Components, err error) {
	if l.Config == nil {
		return nil, errors.New("config: nothing to load")
	}
	cfg := l.Config
	comp = &Components{Logger: l.Logger}
	defer func() {
		if err != nil {
			comp.Close()
			comp = nil
		}
	}()

	if comp.Logger == nil {
		if comp.Logger, err = NewLogger(cfg.Log); err != nil {
			return comp, fmt.Errorf("build logger: %w", err)
		}
	}

	if comp.Pipeline, err = BuildPipeline(cfg, comp.Logger); err != nil {
		return comp, fmt.Errorf("build pipeline: %w", err)
	}

	comp.IO = dataio.New()
	if cfg.S3.Endpoint != "" {
		objects, err := objstore.New(cfg.S3)
		if err != nil {
			return comp, err
		}
		comp.IO = dataio.New(dataio.WithObjectStore(objects))
	}

	if cfg.usesStore() {
		if comp.Store, err = OpenStore(ctx, cfg.Store); err != nil {
			return comp, fmt.Errorf("open store: %w", err)
		}
	}

	if cfg.Source.Kind == KindHub {
		comp.Hub = hub.New(hub.Options{
			BaseURL:  cfg.Hub.BaseURL,
			Token:    cfg.Hub.Token,
			RPS:      cfg.Hub.RPS,
			PageSize: cfg.Hub.PageSize,
			Logger:   comp.Logger.Named("hub"),
		})
	}

	if comp.Source, err = comp.source(cfg.Source); err != nil {
		return comp, fmt.Errorf("source: %w", err)
	}
	if comp.Sink, err = comp.sink(cfg.Sink); err != nil {
		return comp, fmt.Errorf("sink: %w", err)
	}
	return comp, nil
}

// NewLogger builds a production (json) or development (console) zap logger.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if strings.EqualFold(cfg.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = level
	}
	return zc.Build()
}

// BuildPipeline creates the configured steps in order. An empty step list
// selects pipeline.Default.
func BuildPipeline(cfg *Config, logger *zap.Logger) (*pipeline.Pipeline, error) {
	opts := []pipeline.Option{pipeline.WithLogger(logger), pipeline.WithWorkers(cfg.Workers)}
	if len(cfg.Steps) == 0 {
		return pipeline.Default(opts...)
	}
	steps := make([]clean.Step, 0, len(cfg.Steps))
	for i, s := range cfg.Steps {
		step, err := clean.FromSpec(s.Kind, s.Params)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		steps = append(steps, step)
	}
	return pipeline.New(steps, opts...), nil
}

// OpenStore opens the document store named by cfg.Driver.
func OpenStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case DriverSQLite:
		return sqlite.OpenSQLite(ctx, cfg.Path)
	case DriverPostgres:
		return postgres.Open(ctx, cfg.DSN)
	case DriverMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", ErrInvalid, cfg.Driver)
	}
}

func (c *Components) source(e Endpoint) (refine.Source, error) {
	var src refine.Source
	switch e.Kind {
	case "":
		return nil, nil
	case KindFile:
		f, err := fileEndpoint(e, c.IO)
		if err != nil {
			return nil, err
		}
		src = f
	case KindStore:
		src = refine.Collection{DB: c.Store, Name: e.Collection, Limit: e.Limit}
	case KindHub:
		src = refine.HubSplit{Client: c.Hub, Dataset: e.Dataset, Config: e.Config, Split: e.Split, Limit: e.Limit}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalid, e.Kind)
	}

	if e.Fields != nil || e.DetectFields {
		src = refine.Mapped{Source: src, Mapper: e.Fields, KeepExtra: e.KeepExtra}
	}
	return src, nil
}

func (c *Components) sink(e Endpoint) (refine.Sink, error) {
	switch e.Kind {
	case "":
		return nil, nil
	case KindFile:
		return fileEndpoint(e, c.IO)
	case KindStore:
		return refine.Collection{DB: c.Store, Name: e.Collection, Replace: e.Replace}, nil
	default:
		return nil, fmt.Errorf("%w: %s cannot be a sink", ErrInvalid, e.Kind)
	}
}

func fileEndpoint(e Endpoint, io *dataio.IO) (refine.File, error) {
	f := refine.File{Path: e.Path, IO: io}
	if e.Format != "" {
		format, err := dataio.ParseFormat(e.Format)
		if err != nil {
			return refine.File{}, err
		}
		f.Format = format
	}
	return f, nil
}
