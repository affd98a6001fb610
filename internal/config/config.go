// Package config loads favikit settings from favikit.yaml and FAVIKIT_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/toolchest/favikit/internal/favicon"
)

// EnvPrefix prefixes every environment override, e.g. FAVIKIT_SERVER_ADDR.
const EnvPrefix = "FAVIKIT"

// Config is the full favikit configuration.
type Config struct {
	Generate favicon.Options `mapstructure:"generate"`
	Server   ServerConfig    `mapstructure:"server"`
	Remote   RemoteConfig    `mapstructure:"remote"`
	Cache    CacheConfig     `mapstructure:"cache"`
	Usage    UsageConfig     `mapstructure:"usage"`
	Logging  LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig configures `favikit serve`.
type ServerConfig struct {
	Addr          string        `mapstructure:"addr"`
	MaxUploadSize int64         `mapstructure:"max_upload_size"`
	MaxBatchFiles int           `mapstructure:"max_batch_files"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
}

// RemoteConfig points the CLI at a favikit server for fallback runs.
type RemoteConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig sizes the server's result cache.
type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// UsageConfig controls anonymized usage reporting from the CLI.
type UsageConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"` // defaults to Remote.URL
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or text
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Generate: favicon.DefaultOptions(),
		Server: ServerConfig{
			Addr:          ":8080",
			MaxUploadSize: favicon.DefaultMaxFileSize + 1<<20,
			MaxBatchFiles: 20,
			ReadTimeout:   60 * time.Second,
			WriteTimeout:  120 * time.Second,
			IdleTimeout:   120 * time.Second,
		},
		Remote: RemoteConfig{
			Timeout: 2 * time.Minute,
		},
		Cache: CacheConfig{
			TTL:        10 * time.Minute,
			MaxEntries: 64,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// Load reads configPath, or favikit.yaml from the search path when
// configPath is empty, and applies environment overrides. A missing
// config file is not an error.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("favikit")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.favikit")
		v.AddConfigPath("/etc/favikit")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)
	cfg.Generate.Sizes = nil

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// the config file does not mention.
func setDefaults(v *viper.Viper, c *Config) {
	g := c.Generate
	defaults := map[string]interface{}{
		"generate.background":                        g.Background,
		"generate.padding":                           g.Padding,
		"generate.format":                            g.Format,
		"generate.quality":                           g.Quality,
		"generate.sizes":                             g.Sizes,
		"generate.generate_manifest":                 g.GenerateManifest,
		"generate.generate_ico":                      g.GenerateICO,
		"generate.app_name":                          g.AppName,
		"generate.short_name":                        g.ShortName,
		"generate.theme_color":                       g.ThemeColor,
		"generate.compression.preserve_transparency": g.Compression.PreserveTransparency,
		"generate.compression.png_level":             g.Compression.PNGLevel,
		"generate.batch.max_concurrent":              g.Batch.MaxConcurrent,
		"generate.batch.separate_archives":           g.Batch.SeparateArchives,
		"generate.large_file.threshold":              g.LargeFile.Threshold,
		"generate.large_file.max_file_size":          g.LargeFile.MaxFileSize,
		"generate.large_file.max_memory_usage":       g.LargeFile.MaxMemoryUsage,
		"generate.large_file.expansion_factor":       g.LargeFile.ExpansionFactor,
		"generate.large_file.fallback_to_server":     g.LargeFile.FallbackToServer,

		"server.addr":            c.Server.Addr,
		"server.max_upload_size": c.Server.MaxUploadSize,
		"server.max_batch_files": c.Server.MaxBatchFiles,
		"server.read_timeout":    c.Server.ReadTimeout,
		"server.write_timeout":   c.Server.WriteTimeout,
		"server.idle_timeout":    c.Server.IdleTimeout,

		"remote.url":     c.Remote.URL,
		"remote.timeout": c.Remote.Timeout,

		"cache.ttl":         c.Cache.TTL,
		"cache.max_entries": c.Cache.MaxEntries,

		"usage.enabled":  c.Usage.Enabled,
		"usage.endpoint": c.Usage.Endpoint,

		"logging.level":       c.Logging.Level,
		"logging.format":      c.Logging.Format,
		"logging.file_path":   c.Logging.FilePath,
		"logging.max_size":    c.Logging.MaxSize,
		"logging.max_backups": c.Logging.MaxBackups,
		"logging.max_age":     c.Logging.MaxAge,
		"logging.compress":    c.Logging.Compress,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Validate checks the configuration and normalizes the generate options.
func (c *Config) Validate() error {
	if err := c.Generate.Validate(); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.MaxUploadSize < c.Generate.LargeFile.MaxFileSize {
		return fmt.Errorf("server.max_upload_size %d is below generate.large_file.max_file_size %d",
			c.Server.MaxUploadSize, c.Generate.LargeFile.MaxFileSize)
	}
	if c.Server.MaxBatchFiles < 0 {
		return fmt.Errorf("server.max_batch_files must not be negative, got %d", c.Server.MaxBatchFiles)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative, got %d", c.Cache.MaxEntries)
	}
	if c.Remote.URL != "" {
		if err := checkURL("remote.url", c.Remote.URL); err != nil {
			return err
		}
	}
	if c.Usage.Enabled {
		if c.UsageEndpoint() == "" {
			return errors.New("usage.enabled requires usage.endpoint or remote.url")
		}
		if err := checkURL("usage.endpoint", c.UsageEndpoint()); err != nil {
			return err
		}
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

// UsageEndpoint is the server usage records are posted to.
func (c *Config) UsageEndpoint() string {
	if c.Usage.Endpoint != "" {
		return c.Usage.Endpoint
	}
	return c.Remote.URL
}

func checkURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", key, raw)
	}
	return nil
}
