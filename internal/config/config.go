// Package config provides Viper-based configuration management for fomc-docs.
//
// Values are layered, highest first: command-line flags, FOMC_* environment
// variables, the YAML config file, then built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pfrederiksen/fomc-docs/internal/cache"
	"github.com/pfrederiksen/fomc-docs/internal/fetch"
	"github.com/pfrederiksen/fomc-docs/internal/scraper"
	"github.com/pfrederiksen/fomc-docs/internal/storage"
	"github.com/pfrederiksen/fomc-docs/internal/verify"
)

// EnvPrefix is prepended to every environment override, e.g. FOMC_DATA_DIR
const EnvPrefix = "FOMC"

// Config represents the complete fomc-docs configuration
type Config struct {
	DataDir               string            `mapstructure:"data_dir"`
	Years                 int               `mapstructure:"years"`
	Download              bool              `mapstructure:"download"`
	Workers               int               `mapstructure:"workers"`
	CalendarURL           string            `mapstructure:"calendar_url"`
	HistoricalURLTemplate string            `mapstructure:"historical_url_template"`
	UserAgent             string            `mapstructure:"user_agent"`
	Timeout               time.Duration     `mapstructure:"timeout"`
	RequestInterval       time.Duration     `mapstructure:"request_interval"`
	RespectRobots         bool              `mapstructure:"respect_robots"`
	Retry                 fetch.RetryPolicy `mapstructure:"retry"`
	MaxDocumentBytes      int64             `mapstructure:"max_document_bytes"`
	StrictPDF             bool              `mapstructure:"strict_pdf"`
	Cache                 CacheConfig       `mapstructure:"cache"`
	Server                ServerConfig      `mapstructure:"server"`
	Log                   LogConfig         `mapstructure:"log"`
	Alert                 AlertConfig       `mapstructure:"alert"`
}

// CacheConfig contains page cache settings
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ServerConfig contains query service settings
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AlertConfig contains structural-change alert settings
type AlertConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// flagKeys maps command-line flag names to config keys
var flagKeys = map[string]string{
	"data-dir":   "data_dir",
	"years":      "years",
	"download":   "download",
	"workers":    "workers",
	"strict-pdf": "strict_pdf",
	"addr":       "server.addr",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// Load reads configuration from file, environment and flags. cfgFile may be
// empty, in which case .fomc-docs.yaml is searched for in the working
// directory and $HOME/.config/fomc-docs. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, string, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".fomc-docs")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/fomc-docs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, "", fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("validating config: %w", err)
	}

	return &cfg, v.ConfigFileUsed(), nil
}

// Default returns the built-in configuration
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults configures default values
func setDefaults(v *viper.Viper) {
	retry := fetch.DefaultRetryPolicy()

	v.SetDefault("data_dir", storage.DefaultRoot)
	v.SetDefault("years", scraper.DefaultLookbackYears)
	v.SetDefault("download", false)
	v.SetDefault("workers", 1)

	v.SetDefault("calendar_url", scraper.CalendarURL)
	v.SetDefault("historical_url_template", scraper.HistoricalURLTemplate)
	v.SetDefault("user_agent", fetch.DefaultUserAgent)
	v.SetDefault("timeout", fetch.DefaultTimeout)
	v.SetDefault("request_interval", fetch.DefaultRequestInterval)
	v.SetDefault("respect_robots", true)

	v.SetDefault("retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("retry.base_delay", retry.BaseDelay)
	v.SetDefault("retry.multiplier", retry.Multiplier)
	v.SetDefault("retry.max_delay", retry.MaxDelay)

	v.SetDefault("max_document_bytes", int64(verify.DefaultMaxBytes))
	v.SetDefault("strict_pdf", false)

	v.SetDefault("cache.enabled", true)
	// empty selects the XDG cache directory, resolved when the cache is opened
	v.SetDefault("cache.path", "")

	v.SetDefault("server.addr", ":8000")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("alert.webhook_url", "")
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Years < 1 {
		return fmt.Errorf("years must be positive, got %d", c.Years)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1, got %g", c.Retry.Multiplier)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.MaxDocumentBytes <= 0 {
		return fmt.Errorf("max_document_bytes must be positive, got %d", c.MaxDocumentBytes)
	}
	if !strings.Contains(c.HistoricalURLTemplate, "%d") && c.HistoricalURLTemplate != "" {
		return fmt.Errorf("historical_url_template must contain %%d: %s", c.HistoricalURLTemplate)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Log.Format)
	}
	return nil
}

// CachePath returns the configured page cache path, defaulting to the XDG cache directory
func (c *Config) CachePath() (string, error) {
	if c.Cache.Path != "" {
		return storage.ExpandHome(c.Cache.Path)
	}
	return cache.DefaultPath()
}

// YAML renders the effective configuration with human-readable durations
func (c *Config) YAML() ([]byte, error) {
	view := map[string]interface{}{
		"data_dir":                c.DataDir,
		"years":                   c.Years,
		"download":                c.Download,
		"workers":                 c.Workers,
		"calendar_url":            c.CalendarURL,
		"historical_url_template": c.HistoricalURLTemplate,
		"user_agent":              c.UserAgent,
		"timeout":                 c.Timeout.String(),
		"request_interval":        c.RequestInterval.String(),
		"respect_robots":          c.RespectRobots,
		"retry": map[string]interface{}{
			"max_attempts": c.Retry.MaxAttempts,
			"base_delay":   c.Retry.BaseDelay.String(),
			"multiplier":   c.Retry.Multiplier,
			"max_delay":    c.Retry.MaxDelay.String(),
		},
		"max_document_bytes": c.MaxDocumentBytes,
		"strict_pdf":         c.StrictPDF,
		"cache": map[string]interface{}{
			"enabled": c.Cache.Enabled,
			"path":    c.Cache.Path,
		},
		"server": map[string]interface{}{"addr": c.Server.Addr},
		"log": map[string]interface{}{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
		"alert": map[string]interface{}{"webhook_url": c.Alert.WebhookURL},
	}
	return yaml.Marshal(view)
}
