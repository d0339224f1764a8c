// Package testutil provides an in-process BI server for tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// HandlerFunc answers a request with a status and a body. A nil body writes
// no content, a Raw body is written as-is and anything else is JSON encoded.
// A zero status means the handler wrote the response itself.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) (int, interface{})

// Raw is a response body written without encoding.
type Raw []byte

// RecordedRequest stores information about a received request
type RecordedRequest struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Body    []byte
	Time    time.Time
}

// JSON decodes the recorded body into v.
func (r RecordedRequest) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// MockServer is a configurable httptest server speaking the BI API.
type MockServer struct {
	*httptest.Server

	mu           sync.RWMutex
	handlers     map[string]HandlerFunc
	requestCount atomic.Int32
	requests     []RecordedRequest
}

// NewMockServer creates a mock server. Unregistered routes answer 404 with a
// JSON message.
func NewMockServer() *MockServer {
	ms := &MockServer{
		handlers: make(map[string]HandlerFunc),
	}
	ms.Server = httptest.NewServer(http.HandlerFunc(ms.handleRequest))
	return ms
}

// RegisterHandler registers handler for "METHOD /path". A pattern ending in
// "/" matches every path below it; the longest matching prefix wins.
func (ms *MockServer) RegisterHandler(pattern string, handler HandlerFunc) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.handlers[pattern] = handler
}

// Respond registers a handler that always returns status and body.
func (ms *MockServer) Respond(pattern string, status int, body interface{}) {
	ms.RegisterHandler(pattern, func(http.ResponseWriter, *http.Request) (int, interface{}) {
		return status, body
	})
}

// WithErrorResponse sets up a handler that returns an error message
func (ms *MockServer) WithErrorResponse(pattern string, statusCode int, message string) {
	ms.Respond(pattern, statusCode, map[string]string{"message": message})
}

// WithRetryResponse fails failCount times with failStatus, then answers
// 200 with body.
func (ms *MockServer) WithRetryResponse(pattern string, failCount int, failStatus int, body interface{}) {
	var attempts atomic.Int32
	ms.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		if int(attempts.Add(1)) <= failCount {
			return failStatus, map[string]string{"message": "temporary failure"}
		}
		return http.StatusOK, body
	})
}

// WithDelayedResponse delays handler by delay, returning early if the client
// goes away.
func (ms *MockServer) WithDelayedResponse(pattern string, delay time.Duration, handler HandlerFunc) {
	ms.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return http.StatusServiceUnavailable, nil
		}
		return handler(w, r)
	})
}

func (ms *MockServer) lookup(method, path string) HandlerFunc {
	pattern := method + " " + path

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if h, ok := ms.handlers[pattern]; ok {
		return h
	}
	var (
		best    HandlerFunc
		bestLen int
	)
	for p, h := range ms.handlers {
		if strings.HasSuffix(p, "/") && strings.HasPrefix(pattern, p) && len(p) > bestLen {
			best, bestLen = h, len(p)
		}
	}
	return best
}

func (ms *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	body := []byte{}
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	ms.mu.Lock()
	ms.requests = append(ms.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: r.Header.Clone(),
		Body:    body,
		Time:    time.Now(),
	})
	ms.mu.Unlock()
	ms.requestCount.Add(1)

	handler := ms.lookup(r.Method, r.URL.Path)
	if handler == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Not found."})
		return
	}

	status, response := handler(w, r)
	if status == 0 {
		return
	}

	switch v := response.(type) {
	case nil:
		w.WriteHeader(status)
	case Raw:
		w.WriteHeader(status)
		_, _ = w.Write(v)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
}

// GetRequestCount returns the total number of requests received
func (ms *MockServer) GetRequestCount() int {
	return int(ms.requestCount.Load())
}

// GetRequests returns all recorded requests
func (ms *MockServer) GetRequests() []RecordedRequest {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	result := make([]RecordedRequest, len(ms.requests))
	copy(result, ms.requests)
	return result
}

// RequestsTo returns the recorded requests matching method and path.
func (ms *MockServer) RequestsTo(method, path string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range ms.GetRequests() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// LastRequest returns the most recent request, if any.
func (ms *MockServer) LastRequest() (RecordedRequest, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if len(ms.requests) == 0 {
		return RecordedRequest{}, false
	}
	return ms.requests[len(ms.requests)-1], true
}

// Reset clears all recorded requests
func (ms *MockServer) Reset() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.requestCount.Store(0)
	ms.requests = ms.requests[:0]
}

// Close shuts down the mock server
func (ms *MockServer) Close() {
	if ms.Server != nil {
		ms.Server.Close()
	}
}
