// Package config loads LearnHub settings from flag defaults, an optional YAML
// file, LEARNHUB_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "LEARNHUB_"

// DefaultSessionSecret is only suitable for local development.
const DefaultSessionSecret = "learnhub-development-session-secret"

// Config is the complete runtime configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	DB      DBConfig      `koanf:"db"`
	Session SessionConfig `koanf:"session"`
	Log     LogConfig     `koanf:"log"`
	Catalog CatalogConfig `koanf:"catalog"`
	API     APIConfig     `koanf:"api"`
}

type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

type DBConfig struct {
	Driver string `koanf:"driver" validate:"required,oneof=sqlite pgx"`
	DSN    string `koanf:"dsn" validate:"required"`
}

type SessionConfig struct {
	Secret string `koanf:"secret" validate:"required,min=16"`
	Name   string `koanf:"name" validate:"required"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"required,oneof=debug info warn error"`
	Format string `koanf:"format" validate:"required,oneof=text json"`
}

// CatalogConfig controls the catalog sync. Workdir is where git sources are
// cloned.
type CatalogConfig struct {
	Workdir string `koanf:"workdir" validate:"required"`
}

// APIConfig controls the JSON API. An empty Origins list allows any origin
// without credentials; an explicit list also lets the session cookie through.
type APIConfig struct {
	Origins []string `koanf:"origins" validate:"dive,required"`
}

// NewFlagSet defines every command-line flag LearnHub understands.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "Path to a YAML config file")
	fs.String("server.addr", ":8080", "HTTP listen address")
	fs.String("db.driver", "sqlite", "Database driver: sqlite or pgx")
	fs.String("db.dsn", "learnhub.db", "Database DSN (a file path for sqlite)")
	fs.String("session.secret", DefaultSessionSecret, "Key used to sign session cookies")
	fs.String("session.name", "learnhub", "Session cookie name")
	fs.String("log.level", "info", "Log level: debug, info, warn or error")
	fs.String("log.format", "text", "Log format: text or json")
	fs.String("catalog.workdir", "repos", "Directory where git catalog sources are cloned")
	fs.StringSlice("api.origins", nil, "Origins allowed to call the JSON API")
	fs.String("add-source", "", "Register a catalog source (directory or git URL) and exit")
	fs.Bool("sync", false, "Sync all catalog sources and exit")
	return fs
}

// Load builds the configuration from an already parsed flag set.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Flags override everything; unchanged flags only fill in missing keys.
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envKey maps LEARNHUB_DB_DSN to db.dsn.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
}

// NewLogger builds the process logger described by c.
func NewLogger(c LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
