package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables. A double underscore
// separates nesting levels: INSIGHTS_LLM__API_KEY -> llm.api_key.
const EnvPrefix = "INSIGHTS_"

// DefaultPath is read when no explicit config file is given.
const DefaultPath = "configs/config.yaml"

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Dashboard DashboardConfig `koanf:"dashboard"`
	LLM       LLMConfig       `koanf:"llm"`
	Insights  InsightsConfig  `koanf:"insights"`
}

type ServerConfig struct {
	Port            int             `koanf:"port"`
	ReadTimeout     time.Duration   `koanf:"read_timeout"`
	WriteTimeout    time.Duration   `koanf:"write_timeout"`
	ShutdownTimeout time.Duration   `koanf:"shutdown_timeout"`
	RateLimit       RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second"`
	BurstSize         int `koanf:"burst_size"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	Address      string        `koanf:"address"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type TelemetryConfig struct {
	Enabled       bool    `koanf:"enabled"`
	ServiceName   string  `koanf:"service_name"`
	OTLPEndpoint  string  `koanf:"otlp_endpoint"`
	SamplingRate  float64 `koanf:"sampling_rate"`
	EnableMetrics bool    `koanf:"enable_metrics"`
	EnableTracing bool    `koanf:"enable_tracing"`
}

// DashboardConfig controls chart data loading.
type DashboardConfig struct {
	// UpstreamURL points at a remote analytics endpoint. Empty means the
	// in-process analytics service is used.
	UpstreamURL      string        `koanf:"upstream_url"`
	FetchTimeout     time.Duration `koanf:"fetch_timeout"`
	RetryMaxAttempts int           `koanf:"retry_max_attempts"`
	RetryDelay       time.Duration `koanf:"retry_delay"`
	SessionIdleTTL   time.Duration `koanf:"session_idle_ttl"`
}

// LLMConfig selects and tunes the generative model.
type LLMConfig struct {
	Provider          string        `koanf:"provider"`
	Model             string        `koanf:"model"`
	APIKey            string        `koanf:"api_key"`
	BaseURL           string        `koanf:"base_url"`
	Timeout           time.Duration `koanf:"timeout"`
	Temperature       float32       `koanf:"temperature"`
	MaxTokens         int           `koanf:"max_tokens"`
	RequestsPerMinute int           `koanf:"requests_per_minute"`
}

// InsightsConfig tunes analysis reuse and per-session quotas. Both need
// redis and are off without it.
type InsightsConfig struct {
	CacheTTL       time.Duration `koanf:"cache_ttl"`
	QuotaPerWindow int           `koanf:"quota_per_window"`
	QuotaWindow    time.Duration `koanf:"quota_window"`
}

// Defaults returns the configuration used before any file or environment
// override is applied.
func Defaults() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 50,
				BurstSize:         100,
			},
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:   "barangay-insights",
			OTLPEndpoint:  "localhost:4317",
			SamplingRate:  1.0,
			EnableMetrics: true,
			EnableTracing: true,
		},
		Dashboard: DashboardConfig{
			FetchTimeout:     15 * time.Second,
			RetryMaxAttempts: 3,
			RetryDelay:       3 * time.Second,
			SessionIdleTTL:   30 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:          "gemini",
			Model:             "gemini-2.0-flash",
			Timeout:           60 * time.Second,
			Temperature:       0.2,
			MaxTokens:         2048,
			RequestsPerMinute: 30,
		},
		Insights: InsightsConfig{
			CacheTTL:       10 * time.Minute,
			QuotaPerWindow: 20,
			QuotaWindow:    time.Hour,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// DefaultPath when path is empty) and INSIGHTS_* environment variables.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	load := true
	if path == "" {
		path = DefaultPath
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			load = false
		}
	}
	if load {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Dashboard.RetryMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("dashboard.retry_max_attempts must be at least 1"))
	}
	if c.Dashboard.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("dashboard.retry_delay must not be negative"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("llm.timeout must be positive"))
	}
	if c.Insights.QuotaPerWindow > 0 && c.Insights.QuotaWindow <= 0 {
		errs = append(errs, fmt.Errorf("insights.quota_window must be positive when a quota is set"))
	}
	switch c.LLM.Provider {
	case "gemini", "claude", "openai":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
