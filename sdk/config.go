package sdk

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/internal/cache"
	"github.com/birbparty/metabase-go/internal/service"
	"github.com/birbparty/metabase-go/internal/transport"
)

// RetryPolicy configures exponential backoff for transient failures.
// MaxAttempts counts the first attempt, so 3 means up to two retries.
// Only idempotent requests are retried.
//
// Example:
//
//	config.WithRetryPolicy(sdk.RetryPolicy{
//	    MaxAttempts:     5,
//	    InitialInterval: 50 * time.Millisecond,
//	    MaxInterval:     5 * time.Second,
//	    Multiplier:      2,
//	    Jitter:          0.2,
//	})
type RetryPolicy = transport.RetryConfig

// PoolConfig sizes the HTTP connection pool.
type PoolConfig = transport.PoolConfig

// CacheConfig configures the in-process cache: shard count, entry bound and
// the metadata and query lifetimes.
type CacheConfig = cache.Config

// ServiceConfig controls the checks applied before a write is sent:
// validation of names, colors and queries, and business rules such as cycle
// detection and archive-before-delete.
type ServiceConfig = service.Config

// Config holds the configuration for the Metabase client.
// Only BaseURL is required; everything else has a default.
//
// Configuration is usually built with the fluent builder:
//
//	config := sdk.DefaultConfig().
//	    WithBaseURL("https://bi.example.com").
//	    WithTimeout(30 * time.Second).
//	    WithCache(true)
//
//	client, err := sdk.NewClient(config)
type Config struct {
	// BaseURL is the root of the instance, e.g. https://bi.example.com.
	// A path prefix is kept in front of every API path.
	BaseURL string

	// Timeout bounds each HTTP attempt.
	// Default: 30s
	Timeout time.Duration

	// UserAgent is sent with every request.
	// Default: metabase-go/<version>
	UserAgent string

	// Headers are added to every request.
	Headers map[string]string

	// Retry configures automatic retries of idempotent requests.
	Retry RetryPolicy

	// Pool sizes the connection pool.
	Pool PoolConfig

	// RequestsPerSecond enables a client-side rate limit when positive.
	// Burst is the number of requests allowed at once.
	RequestsPerSecond float64
	Burst             int

	// Cache configures the metadata and query cache. Cache.Enabled is the
	// initial state, which can be changed later with SetCacheEnabled.
	Cache CacheConfig

	// Service configures validation and business rules.
	Service ServiceConfig

	// SessionTTL expires sessions locally after this long. Zero leaves
	// expiry to the server.
	SessionTTL time.Duration

	// Logger receives the client logs. If nil, a JSON logger at warn level
	// writing to stderr is used.
	Logger *logrus.Entry

	// MetricsRegisterer receives the client metrics. If nil, they are kept
	// in a private registry.
	MetricsRegisterer prometheus.Registerer

	// Observer is told about every request and retry, in addition to the
	// built-in metrics.
	Observer Observer

	// HTTPClient replaces the pooled client built from Pool. Mostly useful
	// in tests.
	HTTPClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults:
//   - Timeout: 30 seconds
//   - Retries: 3 attempts from 100ms to 2s with jitter
//   - Connection pooling: 100 idle connections, 10 per host
//   - Cache: enabled, 1000 entries, 5 minute metadata lifetime
//   - Validation and business rules: on
//
// The base URL must still be set with WithBaseURL.
func DefaultConfig() *Config {
	tc := transport.DefaultConfig("")
	return &Config{
		Timeout:   tc.Timeout,
		UserAgent: tc.UserAgent,
		Headers:   make(map[string]string),
		Retry:     tc.Retry,
		Pool:      tc.Pool,
		Cache:     cache.DefaultConfig(),
		Service:   service.DefaultConfig(),
	}
}

// WithBaseURL sets the instance root. A trailing slash is removed.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithBaseURL("https://bi.example.com")
func (c *Config) WithBaseURL(url string) *Config {
	c.BaseURL = strings.TrimRight(url, "/")
	return c
}

// WithTimeout sets the per-attempt request timeout.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithUserAgent sets the User-Agent header.
func (c *Config) WithUserAgent(ua string) *Config {
	c.UserAgent = ua
	return c
}

// WithHeader adds a header sent with every request.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithHeader("X-Request-Source", "nightly-report")
func (c *Config) WithHeader(key, value string) *Config {
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	c.Headers[key] = value
	return c
}

// WithCache turns the cache on or off.
func (c *Config) WithCache(enabled bool) *Config {
	c.Cache.Enabled = enabled
	return c
}

// WithCacheConfig replaces the cache configuration.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithCacheConfig(sdk.CacheConfig{
//	        Enabled:     true,
//	        MaxEntries:  5000,
//	        MetadataTTL: time.Minute,
//	    })
func (c *Config) WithCacheConfig(cfg CacheConfig) *Config {
	c.Cache = cfg
	return c
}

// WithRetryPolicy replaces the retry policy.
func (c *Config) WithRetryPolicy(policy RetryPolicy) *Config {
	c.Retry = policy
	return c
}

// WithRetries sets the maximum number of attempts, the first one included.
// 1 disables retries.
func (c *Config) WithRetries(maxAttempts int) *Config {
	c.Retry.MaxAttempts = maxAttempts
	return c
}

// WithServiceConfig replaces the validation and business rule settings.
//
// Example:
//
//	svc := sdk.DefaultConfig().Service
//	svc.RequireArchiveBeforeDelete = true
//	config := sdk.DefaultConfig().WithServiceConfig(svc)
func (c *Config) WithServiceConfig(cfg ServiceConfig) *Config {
	c.Service = cfg
	return c
}

// WithRequestsPerSecond limits the request rate. A burst below 1 is raised
// to 1.
func (c *Config) WithRequestsPerSecond(rps float64, burst int) *Config {
	c.RequestsPerSecond = rps
	c.Burst = burst
	return c
}

// WithSessionTTL expires sessions locally after ttl.
func (c *Config) WithSessionTTL(ttl time.Duration) *Config {
	c.SessionTTL = ttl
	return c
}

// WithLogger sets the logger.
func (c *Config) WithLogger(logger *logrus.Entry) *Config {
	c.Logger = logger
	return c
}

// WithMetricsRegisterer registers the client metrics with reg, e.g.
// prometheus.DefaultRegisterer.
func (c *Config) WithMetricsRegisterer(reg prometheus.Registerer) *Config {
	c.MetricsRegisterer = reg
	return c
}

// WithObserver adds an observer of requests and retries.
func (c *Config) WithObserver(observer Observer) *Config {
	c.Observer = observer
	return c
}

// WithHTTPClient replaces the HTTP client.
func (c *Config) WithHTTPClient(client *http.Client) *Config {
	c.HTTPClient = client
	return c
}

// Validate checks the configuration and fills zero values with defaults.
// Problems are reported as Configuration errors.
func (c *Config) Validate() error {
	tc := c.transportConfig()
	if err := tc.Validate(); err != nil {
		return err
	}
	c.Timeout, c.UserAgent, c.Retry, c.Pool, c.Burst = tc.Timeout, tc.UserAgent, tc.Retry, tc.Pool, tc.Burst

	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Service.Validate(); err != nil {
		return err
	}
	if c.SessionTTL < 0 {
		return apierr.New(apierr.KindConfiguration, "session TTL cannot be negative")
	}
	return nil
}

func (c *Config) transportConfig() transport.Config {
	return transport.Config{
		BaseURL:           c.BaseURL,
		Timeout:           c.Timeout,
		UserAgent:         c.UserAgent,
		Headers:           c.Headers,
		Retry:             c.Retry,
		Pool:              c.Pool,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		HTTPClient:        c.HTTPClient,
	}
}
