package config

import (
	"fmt"
	"github.com/Borislavv/wcsketch/pkg/sketch"
	"github.com/Borislavv/wcsketch/pkg/snapshot"
	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"math"
	"os"
	"path/filepath"
	"strings"
)

const (
	Prod = "prod"
	Dev  = "dev"
	Test = "test"
)

type Config struct {
	Sketch sketch.Options `yaml:"sketch" toml:"sketch"`
	Bench  Bench          `yaml:"bench" toml:"bench"`
}

func (c *Config) IsProd() bool {
	return c.Bench.Env == Prod
}

func (c *Config) IsDev() bool {
	return c.Bench.Env == Dev
}

func (c *Config) IsTest() bool {
	return c.Bench.Env == Test
}

type Bench struct {
	Env          string   `yaml:"env" toml:"env"`
	LogLevel     string   `yaml:"log_level" toml:"log_level"`
	BaseSeed     uint64   `yaml:"base_seed" toml:"base_seed"` // trial seeds are drawn from it
	Trials       int      `yaml:"trials" toml:"trials"`
	Elements     int      `yaml:"elements" toml:"elements"` // distinct elements per trial
	Weight       float64  `yaml:"weight" toml:"weight"`
	JaccardSteps int      `yaml:"jaccard_steps" toml:"jaccard_steps"` // J goes 0, 1/steps, ..., 1
	Operations   int      `yaml:"operations" toml:"operations"`       // adds per throughput run
	Snapshot     Snapshot `yaml:"snapshot" toml:"snapshot"`

	Level zerolog.Level `yaml:"-" toml:"-"` // computed from LogLevel
}

type Snapshot struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Format  string `yaml:"format" toml:"format"` // gzip or raw
}

// Default is the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Sketch: sketch.Options{
			Variant:     sketch.Exp,
			M:           400,
			AmountBits:  8,
			LogBase:     2,
			GSeed:       42,
			JaccardBits: 16,
		},
		Bench: Bench{
			Env:          Dev,
			LogLevel:     zerolog.InfoLevel.String(),
			BaseSeed:     1,
			Trials:       20,
			Elements:     1000,
			Weight:       10,
			JaccardSteps: 20,
			Operations:   100_000,
			Snapshot:     Snapshot{Format: string(snapshot.Raw)},
			Level:        zerolog.InfoLevel,
		},
	}
}

// LoadConfig reads a YAML (.yaml, .yml) or TOML (.toml) file over the defaults.
func LoadConfig(path string) (*Config, error) {
	path, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute config filepath: %w", err)
	}

	if _, err = os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
		}
	case ".toml":
		if _, err = toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("unmarshal toml from %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config extension %q", ext)
	}

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every field and fills the computed ones. All problems are
// reported at once.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if _, err := sketch.New(c.Sketch); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("sketch: %w", err))
	}

	switch c.Bench.Env {
	case Prod, Dev, Test:
	default:
		errs = multierror.Append(errs, fmt.Errorf("bench.env: unknown env %q", c.Bench.Env))
	}
	if level, err := zerolog.ParseLevel(c.Bench.LogLevel); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("bench.log_level: %w", err))
	} else {
		c.Bench.Level = level
	}
	if c.Bench.Trials <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("bench.trials must be positive, got %d", c.Bench.Trials))
	}
	if c.Bench.Elements <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("bench.elements must be positive, got %d", c.Bench.Elements))
	}
	if !(c.Bench.Weight > 0) || math.IsInf(c.Bench.Weight, 1) {
		errs = multierror.Append(errs, fmt.Errorf("bench.weight must be positive and finite, got %v", c.Bench.Weight))
	}
	if c.Bench.JaccardSteps <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("bench.jaccard_steps must be positive, got %d", c.Bench.JaccardSteps))
	}
	if c.Bench.Operations <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("bench.operations must be positive, got %d", c.Bench.Operations))
	}
	if _, err := snapshot.ParseFormat(c.Bench.Snapshot.Format); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("bench.snapshot.format: %w", err))
	}

	return errs.ErrorOrNil()
}
