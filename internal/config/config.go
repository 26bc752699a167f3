// Package config loads and validates heatmap configuration via Viper.
package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/replay-heatmap/internal/scraper"
	"github.com/JakeFAU/replay-heatmap/internal/transport"
)

// EnvPrefix namespaces environment overrides, e.g. HEATMAP_HTTP_RETRIES=3.
const EnvPrefix = "HEATMAP"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Output    OutputConfig    `mapstructure:"output"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// HTTPConfig configures watch page fetching and retries.
type HTTPConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	AcceptLanguage    string        `mapstructure:"accept_language"`
	Retries           int           `mapstructure:"retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MaxBodyBytes      int           `mapstructure:"max_body_bytes"`
}

// BatchConfig governs batch fan-out.
type BatchConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxItems    int `mapstructure:"max_items"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// OutputConfig controls where the CLI writes results.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// TelemetryConfig controls OpenTelemetry tracing for the HTTP service.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	ProjectID   string `mapstructure:"project_id"`
}

// NewViper returns a Viper instance with defaults and environment bindings,
// ready for flag binding before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load builds a Config from v, reading path first when it is set. A nil v
// starts from NewViper.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = NewViper()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("http.timeout", "10s")
	v.SetDefault("http.user_agent", transport.DefaultUserAgent)
	v.SetDefault("http.accept_language", "en-US,en;q=0.9")
	v.SetDefault("http.retries", transport.DefaultRetries)
	v.SetDefault("http.retry_delay", "1s")
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.max_body_bytes", 8*1024*1024)
	v.SetDefault("batch.concurrency", scraper.DefaultConcurrency)
	v.SetDefault("batch.max_items", 50)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("output.dir", "")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "replay-heatmap")
	v.SetDefault("telemetry.project_id", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if strings.TrimSpace(c.HTTP.UserAgent) == "" {
		return fmt.Errorf("http.user_agent must be set")
	}
	if c.HTTP.Retries <= 0 {
		return fmt.Errorf("http.retries must be > 0")
	}
	if c.HTTP.RetryDelay < 0 {
		return fmt.Errorf("http.retry_delay must be >= 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	if c.Batch.Concurrency <= 0 {
		return fmt.Errorf("batch.concurrency must be > 0")
	}
	if c.Batch.MaxItems < 0 {
		return fmt.Errorf("batch.max_items must be >= 0")
	}
	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		return fmt.Errorf("telemetry.service_name must be set when telemetry is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// ScraperConfig maps the loaded settings onto a scraper.Config.
func (c Config) ScraperConfig() scraper.Config {
	var headers http.Header
	if c.HTTP.AcceptLanguage != "" {
		headers = http.Header{"Accept-Language": {c.HTTP.AcceptLanguage}}
	}
	return scraper.Config{
		Timeout:           c.HTTP.Timeout,
		UserAgent:         c.HTTP.UserAgent,
		Headers:           headers,
		Retries:           c.HTTP.Retries,
		RetryDelay:        c.HTTP.RetryDelay,
		RequestsPerSecond: c.HTTP.RequestsPerSecond,
		MaxBodySize:       c.HTTP.MaxBodyBytes,
		Concurrency:       c.Batch.Concurrency,
	}
}
