package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Crawler configuration
	Crawler CrawlerConfig `mapstructure:"crawler"`

	// JavaScript rendering configuration
	Render RenderConfig `mapstructure:"render"`

	// Storage configuration
	Storage StorageConfig `mapstructure:"storage"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlerConfig holds crawler-specific configuration
type CrawlerConfig struct {
	MaxWorkers        int           `mapstructure:"max_workers"`
	MaxPages          int           `mapstructure:"max_pages"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	EnableJavaScript  bool          `mapstructure:"enable_javascript"`
	ExcludePatterns   []string      `mapstructure:"exclude_patterns"`
	StrictPersistence bool          `mapstructure:"strict_persistence"`
}

// RenderConfig holds headless browser settings used when JavaScript is enabled
type RenderConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	InitialWait time.Duration `mapstructure:"initial_wait"`
	ScrollWait  time.Duration `mapstructure:"scroll_wait"`
	MaxScrolls  int           `mapstructure:"max_scrolls"`
	Headless    bool          `mapstructure:"headless"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type       string `mapstructure:"type"` // "file" or "sqlite"
	Path       string `mapstructure:"path"`
	SQLitePath string `mapstructure:"sqlite_path"`
	SaveHTML   bool   `mapstructure:"save_html"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" or "text"
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment.
// An empty configPath searches the default locations; a missing file there is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.sitescribe")
	}

	setDefaults(v)
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &config, nil
}

// Default returns the configuration made only of defaults and environment
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Crawler defaults
	v.SetDefault("crawler.max_workers", 4)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.requests_per_second", 0)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36")
	v.SetDefault("crawler.timeout", "40s")
	v.SetDefault("crawler.max_body_bytes", 10*1024*1024)
	v.SetDefault("crawler.enable_javascript", false)
	v.SetDefault("crawler.exclude_patterns", []string{})
	v.SetDefault("crawler.strict_persistence", false)

	// Render defaults
	v.SetDefault("render.timeout", "60s")
	v.SetDefault("render.initial_wait", "1500ms")
	v.SetDefault("render.scroll_wait", "2s")
	v.SetDefault("render.max_scrolls", 20)
	v.SetDefault("render.headless", true)

	// Storage defaults
	v.SetDefault("storage.type", "file")
	v.SetDefault("storage.path", "./downloads")
	v.SetDefault("storage.sqlite_path", "")
	v.SetDefault("storage.save_html", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output_path", "stderr")
}

// bindEnvVars binds environment variables, e.g. SITESCRIBE_CRAWLER_MAX_WORKERS
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix("SITESCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Crawler.MaxWorkers <= 0 {
		return fmt.Errorf("crawler.max_workers must be positive")
	}
	if c.Crawler.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must not be negative")
	}
	if c.Crawler.RequestsPerSecond < 0 {
		return fmt.Errorf("crawler.requests_per_second must not be negative")
	}
	if c.Crawler.Timeout <= 0 {
		return fmt.Errorf("crawler.timeout must be positive")
	}
	if c.Crawler.MaxBodyBytes <= 0 {
		return fmt.Errorf("crawler.max_body_bytes must be positive")
	}

	switch c.Storage.Type {
	case "file", "sqlite":
	default:
		return fmt.Errorf("storage.type must be file or sqlite, got %q", c.Storage.Type)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}

	return nil
}
