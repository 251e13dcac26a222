package dispatchy

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the file/env configuration for a dispatch deployment. All fields have
// working defaults; a zero-config LoadConfig("") is a valid in-process setup.
type Config struct {
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Journal  JournalConfig  `mapstructure:"journal"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
}

type DispatchConfig struct {
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	RecoverPanics  bool          `mapstructure:"recover_panics"`
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from the given file (YAML, TOML, or JSON, by extension),
// environment variables with the DISPATCHY_ prefix (e.g. DISPATCHY_DISPATCH_MAX_CONCURRENCY),
// and built-in defaults, in that order of precedence. An empty path skips the file and uses
// env plus defaults only. Durations accept Go syntax ("5s", "1m30s").
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("dispatch.default_timeout", "5s")
	v.SetDefault("dispatch.max_concurrency", 10)
	v.SetDefault("dispatch.recover_panics", true)
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.path", "dispatchy.db")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix("DISPATCHY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks value ranges and enum fields. Called by LoadConfig; exported for
// configs assembled in code.
func (c *Config) Validate() error {
	if c.Dispatch.DefaultTimeout < 0 {
		return fmt.Errorf("dispatch.default_timeout must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json; got %q", c.Log.Format)
	}
	if c.Journal.Enabled && strings.TrimSpace(c.Journal.Path) == "" {
		return fmt.Errorf("journal.path is required when journal.enabled is true")
	}
	return nil
}

// Options translates the dispatch section into registry options for NewRegistry.
func (c *Config) Options() []RegistryOption {
	return []RegistryOption{
		WithDefaultTimeout(c.Dispatch.DefaultTimeout),
		WithMaxConcurrency(c.Dispatch.MaxConcurrency),
		WithRecoverPanics(c.Dispatch.RecoverPanics),
	}
}

// Logger builds a slog.Logger per the log section, writing to stderr.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(c.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
