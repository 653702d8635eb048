// Package config loads the run configuration for `kabuki run`.
//
// The file is YAML, decoded strictly (unknown fields are rejected so typos
// surface immediately) and checked with go-playground/validator struct tags.
// Command-line flags override file values; the run command applies them.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the pipeline directory when no --config
// flag is given.
const DefaultFileName = "kabuki.yaml"

// Defaults.
const (
	DefaultPeriodMillis = 20
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
}

// Config is the run configuration.
type Config struct {
	// PipelineDir holds the .cue files. Relative paths are resolved against
	// the config file's directory by the CLI.
	PipelineDir string `yaml:"pipeline_dir" validate:"required"`

	// Pipeline selects one pipeline when the directory declares several.
	Pipeline string `yaml:"pipeline,omitempty"`

	// PeriodMillis overrides the pipeline's period_ms when non-zero.
	PeriodMillis int `yaml:"period_ms,omitempty" validate:"gte=0,lte=60000"`

	// DBPath enables the delivery recorder for `record` sinks.
	DBPath string `yaml:"db_path,omitempty"`

	// MetricsAddr serves Prometheus /metrics, e.g. ":9100".
	MetricsAddr string `yaml:"metrics_addr,omitempty" validate:"omitempty,hostname_port"`

	// RemoteAddr serves the websocket remote-control endpoint.
	RemoteAddr string `yaml:"remote_addr,omitempty" validate:"omitempty,hostname_port"`

	// Stdin reads remote-control lines from standard input.
	Stdin bool `yaml:"stdin,omitempty"`

	// Watch rebuilds the pipeline when .cue files change.
	Watch bool `yaml:"watch,omitempty"`

	Influx *Influx `yaml:"influx,omitempty"`

	Log Log `yaml:"log,omitempty"`
}

// Influx configures the `influx` sink.
type Influx struct {
	URL    string `yaml:"url" validate:"required,url"`
	Token  string `yaml:"token,omitempty"`
	Org    string `yaml:"org" validate:"required"`
	Bucket string `yaml:"bucket" validate:"required"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format,omitempty" validate:"omitempty,oneof=text json"`
}

// Period returns the configured period, or zero to use the pipeline's own.
func (c *Config) Period() time.Duration {
	return time.Duration(c.PeriodMillis) * time.Millisecond
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// Load reads, decodes and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration YAML.
func Parse(data []byte) (*Config, error) {
	var c Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks struct tags and reports every failing field.
func (c *Config) Validate() error {
	err := configValidate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
