// Package config loads the palette command's settings from a YAML file,
// PALETTE_ environment variables, and flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"impractical.co/palette"
	"impractical.co/palette/internal/tracing"
)

// EnvPrefix is prepended to every environment variable the config reads,
// so max_depth is PALETTE_MAX_DEPTH and server.addr is PALETTE_SERVER_ADDR.
const EnvPrefix = "PALETTE"

// Config holds everything the palette command can be configured with.
type Config struct {
	// Templates are directories searched for templates, first match wins.
	Templates []string `mapstructure:"templates"`

	// Extensions are the file extensions treated as templates when
	// watching and listing.
	Extensions []string `mapstructure:"extensions"`

	LeftDelim  string `mapstructure:"left_delim"`
	RightDelim string `mapstructure:"right_delim"`

	MaxDepth  int    `mapstructure:"max_depth"`
	ErrorPage string `mapstructure:"error_page"`
	Preview   bool   `mapstructure:"preview"`
	LogLevel  string `mapstructure:"log_level"`

	Server  ServerConfig   `mapstructure:"server"`
	Tracing tracing.Config `mapstructure:"tracing"`
}

// ServerConfig configures `palette serve`.
type ServerConfig struct {
	Addr     string        `mapstructure:"addr"`
	Watch    bool          `mapstructure:"watch"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// Defaults returns the Config used when nothing is set.
func Defaults() Config {
	return Config{
		Templates:  []string{"."},
		Extensions: []string{".html", ".tmpl", ".gohtml"},
		MaxDepth:   palette.DefaultMaxDepth,
		LogLevel:   "info",
		Server: ServerConfig{
			Addr:     "localhost:8080",
			Debounce: 200 * time.Millisecond,
		},
		Tracing: tracing.DefaultConfig(),
	}
}

// SetDefaults registers every default with v. Keys viper has no default
// for can't be set from the environment, so every field is registered.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("templates", d.Templates)
	v.SetDefault("extensions", d.Extensions)
	v.SetDefault("left_delim", d.LeftDelim)
	v.SetDefault("right_delim", d.RightDelim)
	v.SetDefault("max_depth", d.MaxDepth)
	v.SetDefault("error_page", d.ErrorPage)
	v.SetDefault("preview", d.Preview)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.watch", d.Server.Watch)
	v.SetDefault("server.debounce", d.Server.Debounce)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// Load reads the config file at path, if any, layers the environment on
// top of it, and returns the result. Flags should already be bound to v.
// A path of "" looks for palette.yaml in the working directory and is
// fine with not finding one.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("palette")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg for settings that can't work.
func (c Config) Validate() error {
	if len(c.Templates) == 0 {
		return errors.New("templates: at least one directory is required")
	}
	if (c.LeftDelim == "") != (c.RightDelim == "") {
		return errors.New("left_delim and right_delim must be set together")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative, got %d", c.MaxDepth)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.Tracing.Exporter {
	case "", tracing.ExporterNone, tracing.ExporterStdout, tracing.ExporterFile, tracing.ExporterOTLP:
	default:
		return fmt.Errorf("tracing.exporter must be %q, %q, %q, or %q, got %q",
			tracing.ExporterNone, tracing.ExporterStdout, tracing.ExporterFile, tracing.ExporterOTLP,
			c.Tracing.Exporter)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1, got %v", c.Tracing.SampleRate)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
