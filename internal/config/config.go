// Package config loads studydeck settings from a YAML file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/studydeck/internal/sm2"
	"github.com/conorfennell/studydeck/internal/validate"
)

// EnvPrefix is the prefix of environment variables read into the config.
// STUDYDECK_LOG_LEVEL sets log-level.
const EnvPrefix = "STUDYDECK_"

// Config holds every setting and the action requested on the command line.
type Config struct {
	File         string        `koanf:"config"`
	DB           string        `koanf:"db" validate:"required"`
	Addr         string        `koanf:"addr" validate:"required,hostname_port"`
	LogLevel     string        `koanf:"log-level" validate:"oneof=debug info warn error"`
	LogFormat    string        `koanf:"log-format" validate:"oneof=text json"`
	ReposDir     string        `koanf:"repos-dir" validate:"required"`
	QualityScale string        `koanf:"quality-scale" validate:"oneof=literal calibrated"`
	SessionTTL   time.Duration `koanf:"session-ttl" validate:"min=1m"`

	AddSource string `koanf:"add-source"`
	Deck      string `koanf:"deck" validate:"required_with=AddSource"`
	Sync      bool   `koanf:"sync"`
	Serve     bool   `koanf:"serve"`
}

// Scale returns the quality scale the scheduling engine should use.
func (c Config) Scale() sm2.Scale {
	return sm2.Scale(c.QualityScale)
}

// NewFlagSet defines every flag studydeck understands, with its default.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "Path to a YAML config file")
	fs.String("db", "studydeck.db", "Path to the SQLite database file")
	fs.String("addr", "localhost:8080", "Address the web server listens on")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("log-format", "text", "Log format: text or json")
	fs.String("repos-dir", defaultReposDir(), "Directory git sources are checked out into")
	fs.String("quality-scale", string(sm2.ScaleLiteral), "How Hard/Good/Easy map onto SM-2 evaluations: literal or calibrated")
	fs.Duration("session-ttl", 2*time.Hour, "How long an idle study session is kept")

	fs.String("add-source", "", "Add a new source (local directory or git URL) and exit")
	fs.String("deck", "", "Title of the deck a new source imports into")
	fs.Bool("sync", false, "Sync all sources and exit")
	fs.Bool("serve", false, "Start the web server")
	return fs
}

func defaultReposDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".studydeck", "repos")
	}
	return filepath.Join(home, ".studydeck", "repos")
}

// Load parses args into fs and merges the config file, the environment and
// the flags. Flag defaults only fill keys no other layer set.
func Load(fs *pflag.FlagSet, args []string) (Config, error) {
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	k := koanf.New(".")

	path, err := fs.GetString("config")
	if err != nil {
		return Config{}, err
	}
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey turns STUDYDECK_REPOS_DIR into repos-dir.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", "-")
}
