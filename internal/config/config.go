// Package config loads studybuddy settings from defaults, an optional YAML
// file, STUDYBUDDY_* environment variables and command-line flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment variables read into the config.
const EnvPrefix = "STUDYBUDDY_"

// Config holds the application settings.
type Config struct {
	Database        string `koanf:"database" validate:"required"`
	Addr            string `koanf:"addr" validate:"required"`
	ReposDir        string `koanf:"repos_dir" validate:"required"`
	LogLevel        string `koanf:"log_level" validate:"oneof=debug info warn error"`
	MaxSessionCards int    `koanf:"max_session_cards" validate:"gte=0"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Database:        "studybuddy.db",
		Addr:            ":8080",
		ReposDir:        "repos",
		LogLevel:        "info",
		MaxSessionCards: 0,
	}
}

// RegisterFlags adds the config flags to flags. Flag names use dashes where
// config keys use underscores.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("database", d.Database, "Path to the SQLite database file")
	flags.String("addr", d.Addr, "Address for the HTTP API to listen on")
	flags.String("repos-dir", d.ReposDir, "Directory for git source checkouts")
	flags.String("log-level", d.LogLevel, "Log level: debug, info, warn or error")
	flags.Int("max-session-cards", d.MaxSessionCards, "Maximum cards per review session, 0 for no limit")
}

var configKeys = map[string]bool{
	"database":          true,
	"addr":              true,
	"repos_dir":         true,
	"log_level":         true,
	"max_session_cards": true,
}

// Load builds the config. flags must have been set up with RegisterFlags and parsed.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	path, _ := flags.GetString("config")
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
			slog.Warn("config file not found, using defaults", "path", path)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	err = k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !configKeys[key] {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
