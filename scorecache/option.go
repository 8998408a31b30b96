package scorecache

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	defaultRefreshIn    = 20 * time.Minute
	defaultFetchTimeout = 2 * time.Minute
)

type config struct {
	clock        clock.Clock
	fetchTimeout time.Duration
	preload      bool
	refreshIn    time.Duration
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		clock:        clock.New(),
		fetchTimeout: defaultFetchTimeout,
		refreshIn:    defaultRefreshIn,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithClock sets the clock used to schedule refreshes. Tests supply a mock
// clock to drive the refresh schedule deterministically.
func WithClock(clk clock.Clock) Option {
	return func(cfg *config) error {
		if clk != nil {
			cfg.clock = clk
		}
		return nil
	}
}

// WithFetchTimeout sets the maximum time a single fetch from the source may
// take. A fetch that exceeds this fails the refresh. If set to 0, fetches are
// not bounded.
//
// Default is 2 minutes.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(cfg *config) error {
		if timeout < 0 {
			return errors.New("fetch timeout cannot be negative")
		}
		cfg.fetchTimeout = timeout
		return nil
	}
}

// WithPreload, if true, performs the first refresh synchronously when the
// Refresher is created, so that the cache is populated before it is used.
// Run then waits one refresh interval, measured from the preload, before its
// first refresh.
func WithPreload(preload bool) Option {
	return func(cfg *config) error {
		cfg.preload = preload
		return nil
	}
}

// WithRefreshInterval sets the interval between the starts of consecutive
// refreshes. If set to 0, then Run performs one refresh and then only waits
// for its context to be canceled.
//
// Default is 20 minutes.
func WithRefreshInterval(interval time.Duration) Option {
	return func(cfg *config) error {
		if interval < 0 {
			return errors.New("refresh interval cannot be negative")
		}
		cfg.refreshIn = interval
		return nil
	}
}

type httpConfig struct {
	client       *http.Client
	header       http.Header
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

// HTTPOption is a function that sets a value in an httpConfig.
type HTTPOption func(*httpConfig) error

func getHTTPOpts(opts []HTTPOption) (httpConfig, error) {
	cfg := httpConfig{
		client:       http.DefaultClient,
		retryWaitMin: time.Second,
		retryWaitMax: 30 * time.Second,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return httpConfig{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithHTTPClient sets the http client used to fetch scores.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(cfg *httpConfig) error {
		if c != nil {
			cfg.client = c
		}
		return nil
	}
}

// WithHeader adds a header to every request sent to the source.
func WithHeader(key, value string) HTTPOption {
	return func(cfg *httpConfig) error {
		if cfg.header == nil {
			cfg.header = make(http.Header)
		}
		cfg.header.Add(key, value)
		return nil
	}
}

// WithRetry retries a failed request up to max times within a single fetch,
// waiting between waitMin and waitMax between attempts. This does not retry
// failed refreshes; those wait for the next refresh interval.
//
// Default is no retries. Zero waits keep the default waits of 1s and 30s.
func WithRetry(max int, waitMin, waitMax time.Duration) HTTPOption {
	return func(cfg *httpConfig) error {
		if max < 0 {
			return errors.New("retry max cannot be negative")
		}
		if waitMin > waitMax {
			return errors.New("minimum retry wait exceeds maximum")
		}
		cfg.retryMax = max
		if waitMax != 0 {
			cfg.retryWaitMin = waitMin
			cfg.retryWaitMax = waitMax
		}
		return nil
	}
}
