package telemetry

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/birbparty/metabase-go/apierr"
)

// Metrics records client activity in prometheus collectors. It satisfies the
// observer interfaces of the transport, cache and auth packages.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	retriesTotal    *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	sessionChanges  *prometheus.CounterVec
	authenticated   prometheus.Gauge
}

// NewMetrics registers the client collectors with reg. A nil reg uses a fresh
// private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metabase_client_requests_total",
				Help: "Total number of logical requests sent to the BI service",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "metabase_client_request_duration_seconds",
				Help:    "Duration of logical requests including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "metabase_client_requests_in_flight",
			Help: "Number of requests currently in flight",
		}),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metabase_client_retries_total",
				Help: "Total number of retried HTTP attempts",
			},
			[]string{"method", "endpoint"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metabase_client_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"namespace"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metabase_client_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"namespace"},
		),
		sessionChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metabase_client_session_transitions_total",
				Help: "Session state transitions",
			},
			[]string{"state"},
		),
		authenticated: factory.NewGauge(prometheus.GaugeOpts{
			Name: "metabase_client_authenticated",
			Help: "1 while the client holds a session",
		}),
	}
}

// OnRequestStart is called before the first attempt of a request
func (m *Metrics) OnRequestStart(method, path string) {
	m.inFlight.Inc()
}

// OnRequestEnd is called once the request succeeded or gave up
func (m *Metrics) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
	m.inFlight.Dec()
	endpoint := Endpoint(path)
	m.requestsTotal.WithLabelValues(method, endpoint, statusLabel(status, err)).Inc()
	m.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// OnRetryAttempt is called before each retry
func (m *Metrics) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
	m.retriesTotal.WithLabelValues(method, Endpoint(path)).Inc()
}

// OnCacheHit records a cache hit in a namespace
func (m *Metrics) OnCacheHit(namespace string) {
	m.cacheHits.WithLabelValues(namespace).Inc()
}

// OnCacheMiss records a cache miss in a namespace
func (m *Metrics) OnCacheMiss(namespace string) {
	m.cacheMisses.WithLabelValues(namespace).Inc()
}

// OnSessionChange records a login or a session loss
func (m *Metrics) OnSessionChange(authenticated bool) {
	if authenticated {
		m.sessionChanges.WithLabelValues("authenticated").Inc()
		m.authenticated.Set(1)
		return
	}
	m.sessionChanges.WithLabelValues("unauthenticated").Inc()
	m.authenticated.Set(0)
}

// Endpoint collapses numeric path segments so label cardinality stays bounded:
// /api/card/42/query becomes /api/card/:id/query.
func Endpoint(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

func statusLabel(status int, err error) string {
	if status > 0 {
		return strconv.Itoa(status)
	}
	if err == nil {
		return "ok"
	}
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind.String()
	}
	return "error"
}
