package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fullConfig = `
workers: 4
steps:
  - kind: standardize
  - kind: quality_filter
    params:
      min_length: 5
      max_length: .inf
  - kind: dedupe
    params:
      selected_key: text
  - kind: annotate
    params:
      add_word_count: true
source:
  kind: hub
  dataset: tatsu-lab/alpaca
  split: train
  limit: 500
  detect_fields: true
  keep_extra: true
sink:
  kind: store
  collection: alpaca
  replace: true
store:
  driver: sqlite
  path: refine.db
hub:
  rps: 5
log:
  level: debug
  format: console
`

func TestParseFullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Workers != 4 {
		t.Errorf("workers = %d", cfg.Workers)
	}
	if len(cfg.Steps) != 4 {
		t.Fatalf("got %d steps", len(cfg.Steps))
	}
	if max, ok := cfg.Steps[1].Params["max_length"].(float64); !ok || !math.IsInf(max, 1) {
		t.Errorf("max_length = %#v, want +Inf", cfg.Steps[1].Params["max_length"])
	}
	if cfg.Source.Kind != KindHub || cfg.Source.Limit != 500 || !cfg.Source.DetectFields {
		t.Errorf("source = %+v", cfg.Source)
	}
	if cfg.Sink.Collection != "alpaca" || !cfg.Sink.Replace {
		t.Errorf("sink = %+v", cfg.Sink)
	}
	if cfg.Hub.RPS != 5 {
		t.Errorf("hub rps = %v", cfg.Hub.RPS)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("workers: 2\nstepz: []\n"))
	if err == nil {
		t.Fatal("unknown key should fail")
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should validate: %v", err)
	}
}

func TestParseFieldMapping(t *testing.T) {
	cfg, err := Parse([]byte(`
source:
  kind: file
  path: qa.csv
  fields:
    input: [question]
    output: [answer]
    extra: [id]
    keep_extra: true
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	f := cfg.Source.Fields
	if f == nil || len(f.Input) != 1 || f.Input[0] != "question" || f.Output[0] != "answer" || !f.KeepExtra {
		t.Errorf("fields = %+v", f)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Driver: DriverPostgres, DSN: "from-file"}}
	env := map[string]string{
		EnvPostgresDSN: "postgres://u@db/refine",
		EnvS3AccessKey: "ak",
		EnvS3SecretKey: "sk",
		EnvHubToken:    "hf_x",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Store.DSN != "postgres://u@db/refine" {
		t.Errorf("dsn = %q", cfg.Store.DSN)
	}
	if cfg.S3.AccessKey != "ak" || cfg.S3.SecretKey != "sk" {
		t.Errorf("s3 = %+v", cfg.S3)
	}
	if cfg.Hub.Token != "hf_x" {
		t.Errorf("token = %q", cfg.Hub.Token)
	}
	if cfg.Log.Level != "" {
		t.Errorf("unset env must not override, level = %q", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"negative workers", Config{Workers: -1}, "workers"},
		{"unknown step", Config{Steps: []StepSpec{{Kind: "shout"}}}, "unknown step kind"},
		{"missing step kind", Config{Steps: []StepSpec{{}}}, "kind is required"},
		{"bad step params", Config{Steps: []StepSpec{{Kind: "quality_filter", Params: map[string]any{"min_length": "five"}}}}, "min_length"},
		{"file without path", Config{Source: Endpoint{Kind: KindFile}}, "needs a path"},
		{"file bad extension", Config{Source: Endpoint{Kind: KindFile, Path: "x.xlsx"}}, "unsupported format"},
		{"file bad format", Config{Sink: Endpoint{Kind: KindFile, Path: "x", Format: "xml"}}, "unsupported format"},
		{"store without collection", Config{Sink: Endpoint{Kind: KindStore}, Store: StoreConfig{Driver: DriverMemory}}, "collection"},
		{"store without driver", Config{Sink: Endpoint{Kind: KindStore, Collection: "c"}}, "unknown driver"},
		{"sqlite without path", Config{Store: StoreConfig{Driver: DriverSQLite}}, "sqlite needs a path"},
		{"postgres without dsn", Config{Store: StoreConfig{Driver: DriverPostgres}}, EnvPostgresDSN},
		{"hub without split", Config{Source: Endpoint{Kind: KindHub, Dataset: "d"}}, "dataset and a split"},
		{"hub sink", Config{Sink: Endpoint{Kind: KindHub, Dataset: "d", Split: "train"}}, "read-only"},
		{"unknown endpoint", Config{Source: Endpoint{Kind: "ftp"}}, "unknown kind"},
		{"bad log format", Config{Log: LogConfig{Format: "xml"}}, "log"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refine.yaml")
	content := `
source:
  kind: file
  path: in.jsonl
sink:
  kind: file
  path: out.parquet
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sink.Path != "out.parquet" {
		t.Errorf("sink = %+v", cfg.Sink)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}
