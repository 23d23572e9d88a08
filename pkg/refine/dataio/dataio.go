// Package dataio reads and writes record batches as CSV, JSON, JSONL or
// Parquet, from local paths or s3:// object URLs.
package dataio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cognicore/refine/internal/objstore"
	"github.com/cognicore/refine/pkg/refine/record"
)

// Format names a file encoding.
type Format string

// Supported formats.
const (
	CSV     Format = "csv"
	JSON    Format = "json"
	JSONL   Format = "jsonl"
	Parquet Format = "parquet"
)

var (
	// ErrFormat is returned for unknown formats and extensions.
	ErrFormat = errors.New("unsupported format")
	// ErrNoObjectStore is returned for s3:// paths when no object store is
	// configured.
	ErrNoObjectStore = errors.New("no object store configured")
)

// ParseFormat parses a format name such as "jsonl" or "PARQUET".
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, JSON, JSONL, Parquet:
		return f, nil
	case "ndjson":
		return JSONL, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrFormat, s)
	}
}

// FormatFromPath infers the format from a path's extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrFormat, path)
	}
	return ParseFormat(ext)
}

// IO reads and writes batches. The zero value handles local paths only.
type IO struct {
	objects objstore.Store
}

// Option configures an IO.
type Option func(*IO)

// WithObjectStore enables s3:// paths.
func WithObjectStore(s objstore.Store) Option {
	return func(d *IO) { d.objects = s }
}

// New creates an IO.
func New(opts ...Option) *IO {
	d := &IO{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Read loads and decodes the batch at path. An empty format is inferred
// from the extension.
func (d *IO) Read(ctx context.Context, path string, f Format) ([]record.Record, error) {
	f, err := resolve(path, f)
	if err != nil {
		return nil, err
	}
	data, err := d.load(ctx, path)
	if err != nil {
		return nil, err
	}
	recs, err := Decode(data, f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return recs, nil
}

// Write encodes recs and stores them at path, replacing any existing file.
func (d *IO) Write(ctx context.Context, path string, f Format, recs []record.Record) error {
	f, err := resolve(path, f)
	if err != nil {
		return err
	}
	data, err := Encode(recs, f)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return d.store(ctx, path, data)
}

// Read reads a local file.
func Read(ctx context.Context, path string, f Format) ([]record.Record, error) {
	return New().Read(ctx, path, f)
}

// Write writes a local file.
func Write(ctx context.Context, path string, f Format, recs []record.Record) error {
	return New().Write(ctx, path, f, recs)
}

// Decode parses data in format f.
func Decode(data []byte, f Format) ([]record.Record, error) {
	switch f {
	case CSV:
		return decodeCSV(data)
	case JSON:
		return decodeJSON(data)
	case JSONL:
		return decodeJSONL(data)
	case Parquet:
		return decodeParquet(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrFormat, f)
	}
}

// Encode serializes recs in format f. Invalid records are skipped.
func Encode(recs []record.Record, f Format) ([]byte, error) {
	valid := make([]record.Record, 0, len(recs))
	for _, rec := range recs {
		if record.Valid(rec) {
			valid = append(valid, rec)
		}
	}
	switch f {
	case CSV:
		return encodeCSV(valid)
	case JSON:
		return encodeJSON(valid)
	case JSONL:
		return encodeJSONL(valid)
	case Parquet:
		return encodeParquet(valid)
	default:
		return nil, fmt.Errorf("%w: %q", ErrFormat, f)
	}
}

func resolve(path string, f Format) (Format, error) {
	if f == "" {
		return FormatFromPath(path)
	}
	return ParseFormat(string(f))
}

func (d *IO) load(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !objstore.IsURL(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read file %s: %w", path, err)
		}
		return data, nil
	}
	if d.objects == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoObjectStore, path)
	}
	bucket, key, err := objstore.ParseURL(path)
	if err != nil {
		return nil, err
	}
	return d.objects.Get(ctx, bucket, key)
}

func (d *IO) store(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !objstore.IsURL(path) {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", dir, err)
			}
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write file %s: %w", path, err)
		}
		return nil
	}
	if d.objects == nil {
		return fmt.Errorf("%w: %s", ErrNoObjectStore, path)
	}
	bucket, key, err := objstore.ParseURL(path)
	if err != nil {
		return err
	}
	return d.objects.Put(ctx, bucket, key, data)
}

// columns returns the union of record fields in first-seen order.
func columns(recs []record.Record) []string {
	var cols []string
	seen := make(map[string]bool)
	for _, rec := range recs {
		for _, f := range rec.Fields() {
			if !seen[f] {
				seen[f] = true
				cols = append(cols, f)
			}
		}
	}
	return cols
}
