package config

// config.go — server configuration: prover command, protocol tags, timeouts, watch and telemetry.

import (
	"errors"
	"fmt"
	"time"
)

// Config is the server configuration. Values come from defaults, then an
// optional YAML file, then PIEUVRE_* environment variables.
type Config struct {
	ProverPath string   `mapstructure:"prover_path" yaml:"prover_path" env:"PIEUVRE_PROVER_PATH"`
	ProverArgs []string `mapstructure:"prover_args" yaml:"prover_args" env:"PIEUVRE_PROVER_ARGS" envSeparator:" "`

	ReadyTag string `mapstructure:"ready_tag" yaml:"ready_tag" env:"PIEUVRE_READY_TAG"`
	BeginTag string `mapstructure:"begin_tag" yaml:"begin_tag" env:"PIEUVRE_BEGIN_TAG"`
	EndTag   string `mapstructure:"end_tag" yaml:"end_tag" env:"PIEUVRE_END_TAG"`
	ErrorTag string `mapstructure:"error_tag" yaml:"error_tag" env:"PIEUVRE_ERROR_TAG"`

	StartTimeout   time.Duration `mapstructure:"start_timeout" yaml:"start_timeout" env:"PIEUVRE_START_TIMEOUT"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout" env:"PIEUVRE_COMMAND_TIMEOUT"`

	Transcript      string `mapstructure:"transcript" yaml:"transcript,omitempty" env:"PIEUVRE_TRANSCRIPT"`
	TranscriptLines int    `mapstructure:"transcript_lines" yaml:"transcript_lines" env:"PIEUVRE_TRANSCRIPT_LINES"`

	Watch         bool          `mapstructure:"watch" yaml:"watch" env:"PIEUVRE_WATCH"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce" yaml:"watch_debounce" env:"PIEUVRE_WATCH_DEBOUNCE"`

	OTelEnabled  bool   `mapstructure:"otel_enabled" yaml:"otel_enabled" env:"PIEUVRE_OTEL_ENABLED"`
	OTelEndpoint string `mapstructure:"otel_endpoint" yaml:"otel_endpoint,omitempty" env:"PIEUVRE_OTEL_ENDPOINT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ProverPath:      "pieuvre",
		ReadyTag:        "<<pieuvre:ready>>",
		BeginTag:        "<<pieuvre:begin>>",
		EndTag:          "<<pieuvre:end>>",
		ErrorTag:        "<<pieuvre:error>>",
		StartTimeout:    10 * time.Second,
		CommandTimeout:  30 * time.Second,
		TranscriptLines: 200,
		WatchDebounce:   300 * time.Millisecond,
		OTelEnabled:     true,
	}
}

// Validate reports configuration that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.ProverPath == "" {
		errs = append(errs, errors.New("prover_path is required"))
	}
	tags := map[string]string{
		"ready_tag": c.ReadyTag,
		"begin_tag": c.BeginTag,
		"end_tag":   c.EndTag,
		"error_tag": c.ErrorTag,
	}
	seen := make(map[string]string)
	for _, name := range []string{"ready_tag", "begin_tag", "end_tag", "error_tag"} {
		tag := tags[name]
		if tag == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
			continue
		}
		if other, ok := seen[tag]; ok {
			errs = append(errs, fmt.Errorf("%s duplicates %s", name, other))
		}
		seen[tag] = name
	}
	if c.StartTimeout <= 0 {
		errs = append(errs, errors.New("start_timeout must be positive"))
	}
	if c.CommandTimeout < 0 {
		errs = append(errs, errors.New("command_timeout must not be negative"))
	}
	if c.TranscriptLines <= 0 {
		errs = append(errs, errors.New("transcript_lines must be positive"))
	}
	if c.WatchDebounce < 0 {
		errs = append(errs, errors.New("watch_debounce must not be negative"))
	}
	return errors.Join(errs...)
}
