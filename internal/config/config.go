// Package config loads and validates runtime configuration for the
// harvesting engine: flags and environment layered over a newsagger.yaml
// file via viper, the way go-civitai-download binds cobra flags to viper
// keys.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the single settings object every engine component is
// constructed from. Fields mirror the teacher's flat Config struct
// (internal/config.Config in the backend) rather than a nested tree.
type Config struct {
	BaseURL      string `mapstructure:"base_url"`
	DatabasePath string `mapstructure:"database_path"`
	DownloadRoot string `mapstructure:"download_root"`

	MaxRequestsPerMinute int `mapstructure:"max_requests_per_minute"`
	MaxRetries           int `mapstructure:"max_retries"`

	FileTypes []string `mapstructure:"file_types"`

	DownloadBatchSize      int `mapstructure:"download_batch_size"`
	DownloadConcurrency    int `mapstructure:"download_concurrency"`
	PerPageFileConcurrency int `mapstructure:"per_page_file_concurrency"`
	MaxIdleMinutes         int `mapstructure:"max_idle_minutes"`

	// RouteDownloadsThroughGate resolves Open Question #1 (spec.md §9):
	// whether binary (pdf/jp2) fetches share the Rate Gate with metadata
	// fetches. Default false — binary fetches use a different host
	// pattern with much higher quota, per spec.md §4.5.
	RouteDownloadsThroughGate bool `mapstructure:"route_downloads_through_gate"`

	StatusAPIAddr string `mapstructure:"status_api_addr"`

	LogLevel string `mapstructure:"log_level"`
}

// Default returns the conservative defaults named throughout spec.md.
func Default() Config {
	return Config{
		BaseURL:                   "https://chroniclingamerica.loc.gov/",
		DatabasePath:              "./newsagger.db",
		DownloadRoot:              "./downloads",
		MaxRequestsPerMinute:      12,
		MaxRetries:                3,
		FileTypes:                 []string{"pdf", "jp2", "ocr", "metadata"},
		DownloadBatchSize:         50,
		DownloadConcurrency:       4,
		PerPageFileConcurrency:    6,
		MaxIdleMinutes:            10,
		RouteDownloadsThroughGate: false,
		StatusAPIAddr:             ":8085",
		LogLevel:                  "info",
	}
}

// Load builds a Config from defaults, an optional newsagger.yaml (searched
// in the working directory and /etc/newsagger), environment variables
// prefixed NEWSAGGER_, and finally whatever the caller has already bound
// into v via cobra flags (go-civitai-download's BindPFlag pattern).
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	def := Default()
	v.SetDefault("base_url", def.BaseURL)
	v.SetDefault("database_path", def.DatabasePath)
	v.SetDefault("download_root", def.DownloadRoot)
	v.SetDefault("max_requests_per_minute", def.MaxRequestsPerMinute)
	v.SetDefault("max_retries", def.MaxRetries)
	v.SetDefault("file_types", def.FileTypes)
	v.SetDefault("download_batch_size", def.DownloadBatchSize)
	v.SetDefault("download_concurrency", def.DownloadConcurrency)
	v.SetDefault("per_page_file_concurrency", def.PerPageFileConcurrency)
	v.SetDefault("max_idle_minutes", def.MaxIdleMinutes)
	v.SetDefault("route_downloads_through_gate", def.RouteDownloadsThroughGate)
	v.SetDefault("status_api_addr", def.StatusAPIAddr)
	v.SetDefault("log_level", def.LogLevel)

	v.SetConfigName("newsagger")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/newsagger")

	v.SetEnvPrefix("NEWSAGGER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("config: reading newsagger.yaml: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate rejects configuration that would violate spec.md invariants
// before any component is constructed.
func (c Config) Validate() error {
	if c.MaxRequestsPerMinute <= 0 {
		return fmt.Errorf("config: max_requests_per_minute must be positive")
	}
	if c.MaxRequestsPerMinute > 20 {
		return fmt.Errorf("config: max_requests_per_minute %d exceeds the declared upstream limit of 20", c.MaxRequestsPerMinute)
	}
	if c.DownloadBatchSize <= 0 {
		return fmt.Errorf("config: download_batch_size must be positive")
	}
	if c.PerPageFileConcurrency <= 0 {
		return fmt.Errorf("config: per_page_file_concurrency must be positive")
	}
	for _, ft := range c.FileTypes {
		switch ft {
		case "pdf", "jp2", "ocr", "metadata":
		default:
			return fmt.Errorf("config: unknown file_type %q", ft)
		}
	}
	return nil
}

// MinInterval is the enforced minimum spacing between requests implied by
// MaxRequestsPerMinute, before jitter (spec.md §4.1).
func (c Config) MinInterval() time.Duration {
	return time.Minute / time.Duration(c.MaxRequestsPerMinute)
}
