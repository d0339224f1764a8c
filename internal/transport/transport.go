// Package transport sends requests to the BI service: it adds the session
// and standard headers, retries transient failures, normalizes errors into
// apierr kinds and decodes JSON responses.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/internal/telemetry"
)

// Header names understood by the BI service.
const (
	SessionHeader   = "X-Metabase-Session"
	APIKeyHeader    = "X-Api-Key"
	RequestIDHeader = "X-Request-Id"
)

// Transport is safe for concurrent use.
type Transport struct {
	client   *http.Client
	baseURL  *url.URL
	cfg      Config
	retry    *retryExecutor
	limiter  *rate.Limiter
	observer Observer
	log      *logrus.Entry

	mu             sync.RWMutex
	timeout        time.Duration
	authHeader     string
	authValue      string
	onUnauthorized func(token string)
}

// New creates a transport. cfg is validated and defaulted first.
func New(cfg Config) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	baseURL, _ := url.Parse(cfg.BaseURL)

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        cfg.Pool.MaxIdleConns,
				MaxConnsPerHost:     cfg.Pool.MaxConnsPerHost,
				IdleConnTimeout:     cfg.Pool.IdleConnTimeout,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}

	log := cfg.Logger
	if log == nil {
		log = telemetry.L()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NoopObserver{}
	}

	t := &Transport{
		client:   client,
		baseURL:  baseURL,
		cfg:      cfg,
		retry:    newRetryExecutor(NewExponentialBackoff(cfg.Retry)),
		observer: observer,
		log:      log.WithField("component", "transport"),
		timeout:  cfg.Timeout,
	}
	if cfg.RequestsPerSecond > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return t, nil
}

// BaseURL returns the instance root.
func (t *Transport) BaseURL() string {
	return t.baseURL.String()
}

// SetAuth installs the credential header sent with every request.
func (t *Transport) SetAuth(header, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.authHeader = header
	t.authValue = value
}

// ClearAuth removes the credential header.
func (t *Transport) ClearAuth() {
	t.SetAuth("", "")
}

// ClearAuthIf removes the credential header only while value is still the
// installed credential.
func (t *Transport) ClearAuthIf(value string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if value == "" || t.authValue != value {
		return false
	}
	t.authHeader, t.authValue = "", ""
	return true
}

// Auth returns the current credential header and value.
func (t *Transport) Auth() (header, value string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.authHeader, t.authValue
}

// OnUnauthorized registers fn to run when a request carrying a credential is
// answered with 401. fn receives the credential value that was rejected.
func (t *Transport) OnUnauthorized(fn func(token string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onUnauthorized = fn
}

// SetTimeout changes the per-attempt timeout for subsequent requests.
func (t *Transport) SetTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = d
}

// Timeout returns the per-attempt timeout.
func (t *Transport) Timeout() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.timeout
}

// Get performs a GET request and decodes the response into out.
func (t *Transport) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return t.do(ctx, request{method: http.MethodGet, path: path, query: query}, out)
}

// Post performs a POST request. It is retried only when the failure happened
// before the request reached the wire.
func (t *Transport) Post(ctx context.Context, path string, body, out interface{}) error {
	return t.do(ctx, request{method: http.MethodPost, path: path, body: body}, out)
}

// PostIdempotent performs a POST request that is safe to repeat, so transient
// failures are retried like a GET.
func (t *Transport) PostIdempotent(ctx context.Context, path string, body, out interface{}) error {
	return t.do(ctx, request{method: http.MethodPost, path: path, body: body, idempotent: true}, out)
}

// Put performs a PUT request
func (t *Transport) Put(ctx context.Context, path string, body, out interface{}) error {
	return t.do(ctx, request{method: http.MethodPut, path: path, body: body}, out)
}

// Delete performs a DELETE request
func (t *Transport) Delete(ctx context.Context, path string) error {
	return t.do(ctx, request{method: http.MethodDelete, path: path}, nil)
}

// PostBinary performs a POST request and returns the raw response body, used
// for exports.
func (t *Transport) PostBinary(ctx context.Context, path string, body interface{}) ([]byte, error) {
	return t.execute(ctx, request{method: http.MethodPost, path: path, body: body, binary: true})
}

// Close releases idle pooled connections.
func (t *Transport) Close() {
	t.client.CloseIdleConnections()
}

type request struct {
	method     string
	path       string
	query      url.Values
	body       interface{}
	idempotent bool
	binary     bool
}

func (r request) repeatable() bool {
	return r.method != http.MethodPost || r.idempotent
}

type requiredChecker interface {
	CheckRequired() error
}

func (t *Transport) do(ctx context.Context, req request, out interface{}) error {
	data, err := t.execute(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		if !json.Valid(data) {
			e := apierr.Wrap(err, apierr.KindTransport, "malformed response body")
			e.Retryable = false
			e.Body = string(data)
			return e.WithRequest(req.method, req.path, "")
		}
		return apierr.Wrap(err, apierr.KindSerialization, "decode response").WithRequest(req.method, req.path, "")
	}
	if c, ok := out.(requiredChecker); ok {
		if err := c.CheckRequired(); err != nil {
			return apierr.Wrap(err, apierr.KindSerialization, "decode response").WithRequest(req.method, req.path, "")
		}
	}
	return nil
}

func (t *Transport) execute(ctx context.Context, req request) ([]byte, error) {
	var payload []byte
	if req.body != nil {
		var err error
		if payload, err = json.Marshal(req.body); err != nil {
			kind := apierr.KindSerialization
			if apierr.KindOf(err) == apierr.KindValidation {
				kind = apierr.KindValidation
			}
			return nil, apierr.Wrap(err, kind, "encode request body").WithRequest(req.method, req.path, "")
		}
	}

	requestID := uuid.NewString()
	ctx, span := telemetry.StartSpan(ctx, "metabase "+req.method+" "+telemetry.Endpoint(req.path),
		attribute.String("http.request.method", req.method),
		attribute.String("url.path", req.path),
		attribute.String("metabase.request_id", requestID),
	)

	start := time.Now()
	t.observer.OnRequestStart(req.method, req.path)

	var (
		written atomic.Bool
		status  int
		body    []byte
	)
	retryable := func(err error) bool {
		if !apierr.IsRetryable(err) {
			return false
		}
		return req.repeatable() || !written.Load()
	}
	executor := *t.retry
	executor.onRetry = func(attempt int, delay time.Duration, err error) {
		t.observer.OnRetryAttempt(req.method, req.path, attempt, delay, err)
		telemetry.WithContext(ctx, t.log).WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     req.method,
			"path":       req.path,
			"attempt":    attempt,
			"delay_ms":   delay.Milliseconds(),
		}).WithError(err).Warn("retrying request")
	}

	attempts, err := executor.Execute(ctx, retryable, func(attempt int) error {
		written.Store(false)
		var attemptErr error
		status, body, attemptErr = t.attempt(ctx, req, payload, requestID, &written)
		return attemptErr
	})

	duration := time.Since(start)
	if err != nil {
		var apiErr *apierr.Error
		if !errors.As(err, &apiErr) {
			apiErr = apierr.Wrap(err, apierr.KindTransport, "request failed")
		}
		apiErr.WithRequest(req.method, req.path, requestID)
		apiErr.Attempts = attempts
		err = apiErr
	}

	t.observer.OnRequestEnd(req.method, req.path, status, duration, err)
	telemetry.EndSpan(span, err)

	entry := telemetry.WithContext(ctx, t.log).WithFields(logrus.Fields{
		"request_id":  requestID,
		"method":      req.method,
		"path":        req.path,
		"status":      status,
		"attempts":    attempts,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Debug("request failed")
		return nil, err
	}
	entry.Debug("request completed")
	return body, nil
}

// attempt performs a single HTTP exchange.
func (t *Transport) attempt(ctx context.Context, req request, payload []byte, requestID string, written *atomic.Bool) (int, []byte, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return 0, nil, canceled(err)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, t.Timeout())
	defer cancel()
	attemptCtx = httptrace.WithClientTrace(attemptCtx, &httptrace.ClientTrace{
		WroteHeaders: func() { written.Store(true) },
	})

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, req.method, t.resolve(req.path, req.query), bodyReader)
	if err != nil {
		return 0, nil, apierr.Wrap(err, apierr.KindConfiguration, "build request")
	}

	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.binary {
		httpReq.Header.Set("Accept", "*/*")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	httpReq.Header.Set("User-Agent", t.cfg.UserAgent)
	httpReq.Header.Set(RequestIDHeader, requestID)
	for key, value := range t.cfg.Headers {
		httpReq.Header.Set(key, value)
	}
	authHeader, authValue := t.Auth()
	if authHeader != "" && authValue != "" {
		httpReq.Header.Set(authHeader, authValue)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return 0, nil, canceled(ctx.Err())
		case errors.Is(err, context.DeadlineExceeded):
			return 0, nil, apierr.Wrap(err, apierr.KindTransport, "request timed out")
		default:
			return 0, nil, apierr.Wrap(err, apierr.KindTransport, "network error")
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return resp.StatusCode, nil, canceled(ctx.Err())
		}
		return resp.StatusCode, nil, apierr.Wrap(err, apierr.KindTransport, "reading response")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, respBody, nil
	}

	if resp.StatusCode == http.StatusUnauthorized && authValue != "" {
		t.mu.RLock()
		hook := t.onUnauthorized
		t.mu.RUnlock()
		if hook != nil {
			hook(authValue)
		}
	}

	apiErr := apierr.FromStatus(resp.StatusCode, errorMessage(respBody), string(respBody))
	if resp.StatusCode == http.StatusTooManyRequests {
		apiErr.RetryAfter = retryAfter(resp.Header.Get("Retry-After"))
	}
	return resp.StatusCode, nil, apiErr
}

func (t *Transport) resolve(path string, query url.Values) string {
	u := *t.baseURL
	u.Path = strings.TrimRight(t.baseURL.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// errorMessage extracts a readable message from an error body. The server
// answers with {"message": …}, {"errors": {field: msg}}, a JSON string or
// plain text.
func errorMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}
	var envelope struct {
		Message string                 `json:"message"`
		Error   string                 `json:"error"`
		Errors  map[string]interface{} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.Message != "":
			return envelope.Message
		case envelope.Error != "":
			return envelope.Error
		case len(envelope.Errors) > 0:
			parts := make([]string, 0, len(envelope.Errors))
			for field, msg := range envelope.Errors {
				b, _ := json.Marshal(msg)
				parts = append(parts, field+": "+strings.Trim(string(b), `"`))
			}
			sort.Strings(parts)
			return strings.Join(parts, "; ")
		}
	}
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
