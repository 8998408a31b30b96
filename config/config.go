// Package config loads the score service configuration from a YAML file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"gopkg.in/yaml.v3"
)

// Default values for the service configuration.
const (
	DefaultListenAddr      = ":8080"
	DefaultSourceURL       = "https://cdn.valk.sh/mc-discord-archive/latest.json"
	DefaultRefreshInterval = 20 * time.Minute
	DefaultFetchTimeout    = 2 * time.Minute
	DefaultLogLevel        = "info"
	DefaultMetricInterval  = 30 * time.Second
)

// Config holds the score service configuration.
type Config struct {
	// ListenAddr is the address the lookup API listens on (default ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// Sources are the score archives to fetch. When there is more than one,
	// later sources win for ids that appear in several.
	Sources []SourceConfig `yaml:"sources"`

	// Refresh controls the refresh schedule.
	Refresh RefreshConfig `yaml:"refresh"`

	// LogLevel is the level for all loggers: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// Metrics configures export of cache metrics.
	Metrics MetricsConfig `yaml:"metrics"`
}

// SourceConfig defines one score archive.
type SourceConfig struct {
	URL string `yaml:"url"`

	// Headers are added to every request to the archive.
	Headers map[string]string `yaml:"headers"`

	// AuthEnv is the name of the environment variable that holds the value
	// of the Authorization header, if the archive needs one.
	AuthEnv string `yaml:"auth_env"`

	// Retry retries failed requests within one fetch.
	Retry RetryConfig `yaml:"retry"`
}

// Auth returns the Authorization header value resolved from the environment.
func (s SourceConfig) Auth() string {
	if s.AuthEnv == "" {
		return ""
	}
	return os.Getenv(s.AuthEnv)
}

// RetryConfig controls per-request retries. Max 0 disables retries.
type RetryConfig struct {
	Max     int           `yaml:"max"`
	WaitMin time.Duration `yaml:"wait_min"`
	WaitMax time.Duration `yaml:"wait_max"`
}

// RefreshConfig controls how often the cache is refreshed.
type RefreshConfig struct {
	// Interval between the starts of consecutive refreshes. 0 refreshes only
	// once at startup. Default: 20m.
	Interval time.Duration `yaml:"interval"`

	// FetchTimeout bounds each fetch. 0 disables the bound. Default: 2m.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// Preload fetches scores before the API starts listening. Default: true.
	Preload bool `yaml:"preload"`
}

// MetricsConfig controls OTLP metric export. Export is disabled when
// Endpoint is empty.
type MetricsConfig struct {
	// Endpoint is the OTLP HTTP collector host:port, e.g. "localhost:4318".
	Endpoint string `yaml:"endpoint"`

	// Insecure sends metrics over plain HTTP.
	Insecure bool `yaml:"insecure"`

	// Interval between metric exports. Default: 30s.
	Interval time.Duration `yaml:"interval"`
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation. An empty path gives the default
// configuration.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		ListenAddr: DefaultListenAddr,
		Sources: []SourceConfig{
			{URL: DefaultSourceURL},
		},
		Refresh: RefreshConfig{
			Interval:     DefaultRefreshInterval,
			FetchTimeout: DefaultFetchTimeout,
			Preload:      true,
		},
		LogLevel: DefaultLogLevel,
		Metrics: MetricsConfig{
			Interval: DefaultMetricInterval,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	for i, src := range cfg.Sources {
		u, err := url.Parse(src.URL)
		if err != nil {
			return fmt.Errorf("sources[%d].url: %w", i, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("sources[%d].url %q must have http or https scheme", i, src.URL)
		}
		if src.Retry.Max < 0 {
			return fmt.Errorf("sources[%d].retry.max must not be negative", i)
		}
		if src.Retry.WaitMin > src.Retry.WaitMax {
			return fmt.Errorf("sources[%d].retry.wait_min exceeds wait_max", i)
		}
	}
	if cfg.Refresh.Interval < 0 {
		return fmt.Errorf("refresh.interval must not be negative")
	}
	if cfg.Refresh.FetchTimeout < 0 {
		return fmt.Errorf("refresh.fetch_timeout must not be negative")
	}
	if _, err := logging.LevelFromString(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level %q unknown: want debug|info|warn|error", cfg.LogLevel)
	}
	if cfg.Metrics.Interval <= 0 {
		return fmt.Errorf("metrics.interval must be positive")
	}
	return nil
}
