// Package config loads the service configuration: defaults, then an
// optional YAML file, then COURTIQ_-prefixed environment variables, each
// layer overriding the previous.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/courtlabs/courtiq/skill"
)

// EnvPrefix is the environment namespace. Nested keys use a double
// underscore: COURTIQ_MONGO__URI sets mongo.uri.
const EnvPrefix = "COURTIQ_"

type Mongo struct {
	URI      string `koanf:"uri"`
	Database string `koanf:"database"`
}

type Config struct {
	LogLevel    string `koanf:"log_level"`
	MetricsAddr string `koanf:"metrics_addr"`

	Mongo Mongo `koanf:"mongo"`

	// HistoricalCSV points at the offline matchup corpus; empty disables it.
	HistoricalCSV string `koanf:"historical_csv"`

	RetrainInterval time.Duration `koanf:"retrain_interval"`

	// Seed fixes split sampling, model initialization and subsampling.
	Seed int64 `koanf:"seed"`

	Skill skill.Settings `koanf:"skill"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:        "info",
		MetricsAddr:     ":9100",
		Mongo:           Mongo{Database: "courtiq"},
		RetrainInterval: time.Hour,
		Seed:            1,
		Skill:           *skill.DefaultSettings(),
	}
}

// Load builds the configuration. path may be empty, in which case the
// COURTIQ_CONFIG environment variable is consulted; a missing file is only
// an error when it was named explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		if s == "CONFIG" {
			return ""
		}
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
