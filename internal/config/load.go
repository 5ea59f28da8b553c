package config

// load.go — layered configuration: defaults, YAML file, then environment.

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load builds the configuration. path names an optional YAML file; an
// empty path or a missing file leaves the defaults in place. Environment
// variables override both.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("prover_path", cfg.ProverPath)
	v.SetDefault("prover_args", cfg.ProverArgs)
	v.SetDefault("ready_tag", cfg.ReadyTag)
	v.SetDefault("begin_tag", cfg.BeginTag)
	v.SetDefault("end_tag", cfg.EndTag)
	v.SetDefault("error_tag", cfg.ErrorTag)
	v.SetDefault("start_timeout", cfg.StartTimeout)
	v.SetDefault("command_timeout", cfg.CommandTimeout)
	v.SetDefault("transcript", cfg.Transcript)
	v.SetDefault("transcript_lines", cfg.TranscriptLines)
	v.SetDefault("watch", cfg.Watch)
	v.SetDefault("watch_debounce", cfg.WatchDebounce)
	v.SetDefault("otel_enabled", cfg.OTelEnabled)
	v.SetDefault("otel_endpoint", cfg.OTelEndpoint)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// YAML renders the configuration in the format Load reads.
func (c Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(out), nil
}
