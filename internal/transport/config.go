package transport

import (
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/birbparty/metabase-go/apierr"
)

// Config holds the transport settings.
type Config struct {
	// BaseURL is the instance root, e.g. https://bi.example.com. A path
	// prefix is kept in front of every request path.
	BaseURL string

	// Timeout bounds each HTTP attempt. It can be changed at runtime with
	// SetTimeout.
	Timeout time.Duration

	UserAgent string
	Headers   map[string]string

	Retry RetryConfig
	Pool  PoolConfig

	// RequestsPerSecond enables a client-side rate limit when positive.
	RequestsPerSecond float64
	Burst             int

	Observer Observer
	Logger   *logrus.Entry

	// HTTPClient replaces the pooled client built from Pool.
	HTTPClient *http.Client
}

// RetryConfig configures exponential backoff. MaxAttempts counts the first
// attempt, so 3 means up to two retries.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64
}

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxIdleConns    int
	MaxConnsPerHost int
	IdleConnTimeout time.Duration
}

// DefaultRetryConfig returns 3 attempts backing off from 100ms to 2s with
// ±30% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.3,
	}
}

// DefaultConfig returns the default transport settings for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		Timeout:   30 * time.Second,
		UserAgent: "metabase-go/1.0.0",
		Headers:   map[string]string{},
		Retry:     DefaultRetryConfig(),
		Pool: PoolConfig{
			MaxIdleConns:    100,
			MaxConnsPerHost: 10,
			IdleConnTimeout: 90 * time.Second,
		},
	}
}

// Validate checks the configuration and fills zero values with defaults.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return apierr.New(apierr.KindConfiguration, "base URL cannot be empty")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return apierr.Wrap(err, apierr.KindConfiguration, "invalid base URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return apierr.Newf(apierr.KindConfiguration, "base URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return apierr.New(apierr.KindConfiguration, "base URL must have a host")
	}
	if c.Timeout < 0 {
		return apierr.New(apierr.KindConfiguration, "timeout cannot be negative")
	}
	if c.RequestsPerSecond < 0 {
		return apierr.New(apierr.KindConfiguration, "requests per second cannot be negative")
	}

	defaults := DefaultConfig(c.BaseURL)
	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}
	if c.UserAgent == "" {
		c.UserAgent = defaults.UserAgent
	}
	if c.Retry.MaxAttempts < 0 {
		return apierr.New(apierr.KindConfiguration, "retry attempts cannot be negative")
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if c.Retry.InitialInterval <= 0 {
		c.Retry.InitialInterval = defaults.Retry.InitialInterval
	}
	if c.Retry.MaxInterval <= 0 {
		c.Retry.MaxInterval = defaults.Retry.MaxInterval
	}
	if c.Retry.Multiplier < 1 {
		c.Retry.Multiplier = defaults.Retry.Multiplier
	}
	if c.Pool.MaxIdleConns <= 0 {
		c.Pool.MaxIdleConns = defaults.Pool.MaxIdleConns
	}
	if c.Pool.MaxConnsPerHost <= 0 {
		c.Pool.MaxConnsPerHost = defaults.Pool.MaxConnsPerHost
	}
	if c.Pool.IdleConnTimeout <= 0 {
		c.Pool.IdleConnTimeout = defaults.Pool.IdleConnTimeout
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		c.Burst = 1
	}
	return nil
}
