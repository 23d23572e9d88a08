// Package config reads the YAML description of a cleaning run: its steps,
// where records come from and go to, and the services those endpoints need.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/refine/internal/objstore"
	"github.com/cognicore/refine/pkg/refine/clean"
	"github.com/cognicore/refine/pkg/refine/dataio"
	"github.com/cognicore/refine/pkg/refine/fieldmap"
)

// Endpoint kinds.
const (
	KindFile  = "file"
	KindStore = "store"
	KindHub   = "hub"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Environment variables that override credentials.
const (
	EnvPostgresDSN = "REFINE_PG_DSN"
	EnvS3AccessKey = "REFINE_S3_ACCESS_KEY"
	EnvS3SecretKey = "REFINE_S3_SECRET_KEY"
	EnvHubToken    = "HF_TOKEN"
	EnvLogLevel    = "REFINE_LOG_LEVEL"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config describes one cleaning run.
type Config struct {
	Workers int             `yaml:"workers"`
	Steps   []StepSpec      `yaml:"steps"`
	Source  Endpoint        `yaml:"source"`
	Sink    Endpoint        `yaml:"sink"`
	Store   StoreConfig     `yaml:"store"`
	Hub     HubConfig       `yaml:"hub"`
	S3      objstore.Config `yaml:"s3"`
	Log     LogConfig       `yaml:"log"`
}

// StepSpec names a step kind and its parameters.
type StepSpec struct {
	Kind   string         `yaml:"kind"`
	Params map[string]any `yaml:"params"`
}

// Endpoint is a record source or sink.
type Endpoint struct {
	Kind string `yaml:"kind"`

	// file
	Path   string `yaml:"path"`
	Format string `yaml:"format"`

	// store
	Collection string `yaml:"collection"`
	Limit      int    `yaml:"limit"`
	Replace    bool   `yaml:"replace"`

	// hub
	Dataset string `yaml:"dataset"`
	Config  string `yaml:"config"`
	Split   string `yaml:"split"`

	// Fields maps source columns onto text/output/metadata. DetectFields
	// derives the mapping from the loaded records instead.
	Fields       *fieldmap.Mapper `yaml:"fields"`
	DetectFields bool             `yaml:"detect_fields"`
	KeepExtra    bool             `yaml:"keep_extra"`
}

// StoreConfig selects a document store.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// HubConfig configures the datasets-server client.
type HubConfig struct {
	BaseURL  string  `yaml:"base_url"`
	Token    string  `yaml:"token"`
	RPS      float64 `yaml:"rps"`
	PageSize int     `yaml:"page_size"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Parse decodes a YAML document. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Load reads a YAML file, applies environment overrides and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides credentials with non-empty environment values.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Store.DSN, EnvPostgresDSN)
	set(&c.S3.AccessKey, EnvS3AccessKey)
	set(&c.S3.SecretKey, EnvS3SecretKey)
	set(&c.Hub.Token, EnvHubToken)
	set(&c.Log.Level, EnvLogLevel)
}

// Validate checks the configuration without touching any external system.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", c.Workers))
	}
	for i, s := range c.Steps {
		if strings.TrimSpace(s.Kind) == "" {
			errs = append(errs, fmt.Errorf("steps[%d]: kind is required", i))
			continue
		}
		if _, err := clean.FromSpec(s.Kind, s.Params); err != nil {
			errs = append(errs, fmt.Errorf("steps[%d]: %w", i, err))
		}
	}
	if err := c.validateEndpoint("source", c.Source); err != nil {
		errs = append(errs, err)
	}
	if err := c.validateEndpoint("sink", c.Sink); err != nil {
		errs = append(errs, err)
	}
	if c.Sink.Kind == KindHub {
		errs = append(errs, errors.New("sink: hub datasets are read-only"))
	}
	if c.usesStore() {
		switch c.Store.Driver {
		case DriverSQLite:
			if c.Store.Path == "" {
				errs = append(errs, errors.New("store: sqlite needs a path"))
			}
		case DriverPostgres:
			if c.Store.DSN == "" {
				errs = append(errs, fmt.Errorf("store: postgres needs a dsn (or %s)", EnvPostgresDSN))
			}
		case DriverMemory:
		default:
			errs = append(errs, fmt.Errorf("store: unknown driver %q", c.Store.Driver))
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log: unknown format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func (c *Config) validateEndpoint(name string, e Endpoint) error {
	switch e.Kind {
	case "":
		return nil
	case KindFile:
		if e.Path == "" {
			return fmt.Errorf("%s: file needs a path", name)
		}
		if e.Format != "" {
			if _, err := dataio.ParseFormat(e.Format); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		} else if _, err := dataio.FormatFromPath(e.Path); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	case KindStore:
		if e.Collection == "" {
			return fmt.Errorf("%s: store needs a collection", name)
		}
	case KindHub:
		if e.Dataset == "" || e.Split == "" {
			return fmt.Errorf("%s: hub needs a dataset and a split", name)
		}
	default:
		return fmt.Errorf("%s: unknown kind %q", name, e.Kind)
	}
	return nil
}

func (c *Config) usesStore() bool {
	return c.Source.Kind == KindStore || c.Sink.Kind == KindStore || c.Store.Driver != ""
}
