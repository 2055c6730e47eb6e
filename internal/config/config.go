// ============================================================================
// frtrace Configuration
// ============================================================================
//
// Package: internal/config
// File: config.go
// Purpose: YAML configuration of the conversion pipeline
//
// Sources, lowest precedence first:
//   1. Default()
//   2. the YAML file (configs/default.yaml unless --config is given)
//   3. command line flags, applied by internal/cli
//
// A missing default file is not an error; a missing explicit file is.
//
// ============================================================================

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/frtrace/internal/logging"
	"github.com/ChuLiYu/frtrace/internal/storage/capture"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "configs/default.yaml"

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete frtrace configuration.
type Config struct {
	Input struct {
		Encoding capture.Encoding `yaml:"encoding"`
	} `yaml:"input"`

	Decode struct {
		Workers    int `yaml:"workers"`     // 0 picks runtime.NumCPU()
		BufferSize int `yaml:"buffer_size"` // Pool channel capacity
	} `yaml:"decode"`

	Output struct {
		Pretty     bool `yaml:"pretty"`
		IncludeRaw bool `yaml:"include_raw"`
	} `yaml:"output"`

	Report struct {
		Format string `yaml:"format"` // yaml or json
	} `yaml:"report"`

	Metrics struct {
		Enabled  bool   `yaml:"enabled"`
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`

	Logging logging.Config `yaml:"logging"`

	Telemetry struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"telemetry"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Input.Encoding = capture.EncodingHex
	cfg.Decode.Workers = 1
	cfg.Decode.BufferSize = 256
	cfg.Output.IncludeRaw = true
	cfg.Report.Format = "yaml"
	cfg.Metrics.Textfile = "frtrace.prom"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = logging.FormatConsole
	return cfg
}

// Load reads path over the defaults. An empty path means DefaultPath, which
// may be absent.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Input.Encoding {
	case capture.EncodingHex, capture.EncodingBinary:
	default:
		return fmt.Errorf("%w: input.encoding %q", ErrInvalidConfig, c.Input.Encoding)
	}
	if c.Decode.Workers < 0 {
		return fmt.Errorf("%w: decode.workers must not be negative", ErrInvalidConfig)
	}
	if c.Decode.BufferSize < 1 {
		return fmt.Errorf("%w: decode.buffer_size must be positive", ErrInvalidConfig)
	}
	switch c.Report.Format {
	case "yaml", "json":
	default:
		return fmt.Errorf("%w: report.format %q", ErrInvalidConfig, c.Report.Format)
	}
	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		return fmt.Errorf("%w: metrics.textfile is required when metrics are enabled", ErrInvalidConfig)
	}
	if _, ok := logging.ParseLevel(c.Logging.Level); !ok && c.Logging.Level != "" {
		return fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("%w: logging.format %q", ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}

// WorkerCount resolves decode.workers, mapping 0 to the CPU count.
func (c *Config) WorkerCount() int {
	if c.Decode.Workers == 0 {
		return runtime.NumCPU()
	}
	return c.Decode.Workers
}
