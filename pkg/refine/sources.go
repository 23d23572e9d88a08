package refine

import (
	"context"
	"fmt"

	"github.com/cognicore/refine/pkg/refine/dataio"
	"github.com/cognicore/refine/pkg/refine/fieldmap"
	"github.com/cognicore/refine/pkg/refine/hub"
	"github.com/cognicore/refine/pkg/refine/record"
	"github.com/cognicore/refine/pkg/refine/store"
)

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]record.Record, error)

// Load implements Source.
func (f SourceFunc) Load(ctx context.Context) ([]record.Record, error) { return f(ctx) }

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, recs []record.Record) error

// Store implements Sink.
func (f SinkFunc) Store(ctx context.Context, recs []record.Record) error { return f(ctx, recs) }

// File reads or writes a data file. An empty Format is inferred from the
// path. IO defaults to local files only.
type File struct {
	Path   string
	Format dataio.Format
	IO     *dataio.IO
}

func (f File) io() *dataio.IO {
	if f.IO == nil {
		return dataio.New()
	}
	return f.IO
}

// Load implements Source.
func (f File) Load(ctx context.Context) ([]record.Record, error) {
	return f.io().Read(ctx, f.Path, f.Format)
}

// Store implements Sink.
func (f File) Store(ctx context.Context, recs []record.Record) error {
	return f.io().Write(ctx, f.Path, f.Format, recs)
}

// Collection reads or writes one document-store collection.
type Collection struct {
	DB    store.Store
	Name  string
	// Limit caps how many records Load returns; <= 0 means all.
	Limit int
	// Replace swaps the collection contents for the stored batch. A failed
	// write keeps the previous contents.
	Replace bool
}

// Load implements Source.
func (c Collection) Load(ctx context.Context) ([]record.Record, error) {
	return c.DB.ListRecords(ctx, c.Name, c.Limit)
}

// Store implements Sink.
func (c Collection) Store(ctx context.Context, recs []record.Record) error {
	var err error
	if c.Replace {
		_, err = c.DB.ReplaceCollection(ctx, c.Name, recs)
	} else {
		_, err = c.DB.UpsertRecords(ctx, c.Name, recs)
	}
	return err
}

// HubSplit loads one split of a hub dataset. An empty Config selects the
// first config that has the split.
type HubSplit struct {
	Client  *hub.Client
	Dataset string
	Config  string
	Split   string
	Limit   int
}

// Load implements Source.
func (h HubSplit) Load(ctx context.Context) ([]record.Record, error) {
	config := h.Config
	if config == "" {
		splits, err := h.Client.Splits(ctx, h.Dataset)
		if err != nil {
			return nil, err
		}
		for _, s := range splits {
			if s.Split == h.Split {
				config = s.Config
				break
			}
		}
		if config == "" {
			return nil, fmt.Errorf("%w: split %q of %s", hub.ErrNotFound, h.Split, h.Dataset)
		}
	}
	return h.Client.Rows(ctx, h.Dataset, config, h.Split, h.Limit)
}

// Mapped applies a field mapping to the records of another source. A nil
// or empty Mapper is detected from the loaded records.
type Mapped struct {
	Source    Source
	Mapper    *fieldmap.Mapper
	KeepExtra bool
}

// Load implements Source.
func (m Mapped) Load(ctx context.Context) ([]record.Record, error) {
	recs, err := m.Source.Load(ctx)
	if err != nil {
		return nil, err
	}
	mapper := m.Mapper
	if mapper.Empty() {
		mapper = fieldmap.DetectRecords(recs, m.KeepExtra)
	}
	return mapper.MapAll(recs), nil
}
