package sdk

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/internal/auth"
	"github.com/birbparty/metabase-go/internal/cache"
	"github.com/birbparty/metabase-go/internal/repository"
	"github.com/birbparty/metabase-go/internal/service"
	"github.com/birbparty/metabase-go/internal/telemetry"
	"github.com/birbparty/metabase-go/internal/transport"
	"github.com/birbparty/metabase-go/models"
)

const healthPath = "/api/health"

// Client is a Metabase client. It owns one connection pool, one session and
// one cache, all shared by concurrent calls.
//
// Example:
//
//	client, err := sdk.NewClient(sdk.DefaultConfig().
//	    WithBaseURL("https://bi.example.com"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Authenticate(ctx, models.APIKey{Key: key}); err != nil {
//	    log.Fatal(err)
//	}
//	cards, err := client.ListCards(ctx, models.ListParams{})
type Client struct {
	transport *transport.Transport
	auth      *auth.Manager
	cache     *cache.Cache
	metrics   *telemetry.Metrics
	log       *logrus.Entry

	cards       *service.CardService
	collections *service.CollectionService
	dashboards  *service.DashboardService
	databases   *service.DatabaseService
	queries     *service.QueryService

	closed atomic.Bool
}

// NewClient creates a client with the provided configuration. If config is
// nil, DefaultConfig is used, which still needs a base URL.
//
// The configuration is copied; changing it afterwards has no effect on the
// client.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithBaseURL("https://bi.example.com").
//	    WithTimeout(10 * time.Second)
//	client, err := sdk.NewClient(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	cfg.Headers = make(map[string]string, len(config.Headers))
	for k, v := range config.Headers {
		cfg.Headers[k] = v
	}
	cfg.Service.AllowedCardTypes = append([]models.CardType(nil), config.Service.AllowedCardTypes...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = telemetry.L()
	}
	metrics := telemetry.NewMetrics(cfg.MetricsRegisterer)

	tc := cfg.transportConfig()
	tc.Observer = observers(metrics, cfg.Observer)
	tc.Logger = log
	t, err := transport.New(tc)
	if err != nil {
		return nil, err
	}

	cc := cfg.Cache
	cc.Recorder = metrics
	cc.Logger = log
	store, err := cache.New(cc)
	if err != nil {
		t.Close()
		return nil, err
	}

	sc := cfg.Service
	sc.Logger = log

	cardRepo := repository.NewCardRepository(t)
	collectionRepo := repository.NewCollectionRepository(t)

	c := &Client{
		transport: t,
		auth: auth.NewManager(t, auth.Config{
			SessionTTL: cfg.SessionTTL,
			OnChange:   metrics.OnSessionChange,
			Logger:     log,
		}),
		cache:       store,
		metrics:     metrics,
		log:         log.WithField("component", "client"),
		cards:       service.NewCardService(cardRepo, collectionRepo, store, sc),
		collections: service.NewCollectionService(collectionRepo, store, sc),
		dashboards:  service.NewDashboardService(repository.NewDashboardRepository(t), collectionRepo, store, sc),
		databases:   service.NewDatabaseService(repository.NewDatabaseRepository(t), store, sc),
		queries:     service.NewQueryService(repository.NewQueryRepository(t), store, sc),
	}
	c.log.WithFields(logrus.Fields{
		"base_url": cfg.BaseURL,
		"cache":    cc.Enabled,
	}).Debug("client created")
	return c, nil
}

// call runs fn in a span once the client is open and, when authenticated is
// set, a session exists. A missing session fails without touching the
// network.
func call[T any](ctx context.Context, c *Client, name string, authenticated bool, fn func(context.Context) (T, error), attrs ...attribute.KeyValue) (T, error) {
	var zero T
	ctx, span := telemetry.StartSpan(ctx, "metabase."+name, attrs...)

	err := c.ready()
	if err == nil && authenticated {
		err = c.auth.Require()
	}
	if err != nil {
		telemetry.EndSpan(span, err)
		return zero, err
	}

	v, err := fn(ctx)
	if err != nil {
		telemetry.WithContext(ctx, c.log).WithFields(logrus.Fields{
			"operation": name,
			"kind":      apierr.KindOf(err).String(),
		}).WithError(err).Debug("call failed")
	}
	telemetry.EndSpan(span, err)
	return v, err
}

// exec is call for operations without a result.
func exec(ctx context.Context, c *Client, name string, authenticated bool, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	_, err := call(ctx, c, name, authenticated, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, attrs...)
	return err
}

func (c *Client) ready() error {
	if c.closed.Load() {
		return apierr.New(apierr.KindConfiguration, "client is closed")
	}
	return nil
}

// Authenticate establishes a session, replacing any existing one. Cached
// entries are dropped since another user may see different content.
//
// Example:
//
//	err := client.Authenticate(ctx, models.EmailPassword{
//	    Email:    "analyst@example.com",
//	    Password: "secret",
//	})
func (c *Client) Authenticate(ctx context.Context, creds models.Credentials) error {
	return exec(ctx, c, "authenticate", false, func(ctx context.Context) error {
		if err := c.auth.Authenticate(ctx, creds); err != nil {
			return err
		}
		c.cache.Clear()
		return nil
	})
}

// Logout ends the session. The local session and the cache are cleared even
// when the server cannot be reached. Logging out without a session is a
// no-op.
func (c *Client) Logout(ctx context.Context) error {
	return exec(ctx, c, "logout", false, func(ctx context.Context) error {
		err := c.auth.Logout(ctx)
		c.cache.Clear()
		return err
	})
}

// RefreshSession re-validates the session, logging in again for
// email/password credentials. Any failure clears the session.
func (c *Client) RefreshSession(ctx context.Context) error {
	return exec(ctx, c, "refresh_session", false, c.auth.Refresh)
}

// IsAuthenticated reports whether a live session exists. It never touches
// the network.
func (c *Client) IsAuthenticated() bool {
	return c.auth.IsAuthenticated()
}

// CurrentUser returns the user of the current session.
func (c *Client) CurrentUser() (models.User, error) {
	return c.auth.CurrentUser()
}

// HealthCheck asks the server whether it is up. It does not need a session.
func (c *Client) HealthCheck(ctx context.Context) (*models.HealthStatus, error) {
	return call(ctx, c, "health_check", false, func(ctx context.Context) (*models.HealthStatus, error) {
		var status models.HealthStatus
		if err := c.transport.Get(ctx, healthPath, nil, &status); err != nil {
			return nil, err
		}
		return &status, nil
	})
}

// BaseURL returns the instance root the client talks to.
func (c *Client) BaseURL() string {
	return c.transport.BaseURL()
}

// SetCacheEnabled turns the cache on or off. Turning it off keeps the
// entries, which are still invalidated by writes in the meantime.
func (c *Client) SetCacheEnabled(enabled bool) {
	c.cache.SetEnabled(enabled)
}

// IsCacheEnabled reports whether reads are served from the cache.
func (c *Client) IsCacheEnabled() bool {
	return c.cache.Enabled()
}

// ClearCache drops every cached entry.
func (c *Client) ClearCache() {
	c.cache.Clear()
}

// SetTimeout changes the per-attempt timeout of subsequent requests.
func (c *Client) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return apierr.Newf(apierr.KindConfiguration, "timeout must be positive, got %s", timeout)
	}
	c.transport.SetTimeout(timeout)
	return nil
}

// Close releases the connection pool. Further calls fail with a
// Configuration error. Close is safe to call multiple times.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.transport.Close()
	c.log.Debug("client closed")
	return nil
}
