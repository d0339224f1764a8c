package transport

import "time"

// Observer provides hooks for monitoring requests. Methods must be fast and
// non-blocking; they run on the calling goroutine.
type Observer interface {
	// OnRequestStart is called before the first attempt of a request.
	OnRequestStart(method, path string)

	// OnRequestEnd is called once the request succeeded or gave up. status is
	// the last HTTP status seen, zero if no response arrived.
	OnRequestEnd(method, path string, status int, duration time.Duration, err error)

	// OnRetryAttempt is called before each retry. attempt counts retries
	// from 1.
	OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error)
}

// NoopObserver ignores every event
type NoopObserver struct{}

func (NoopObserver) OnRequestStart(method, path string) {}
func (NoopObserver) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
}
func (NoopObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
}

// CompositeObserver fans events out to several observers
type CompositeObserver []Observer

func (c CompositeObserver) OnRequestStart(method, path string) {
	for _, o := range c {
		o.OnRequestStart(method, path)
	}
}

func (c CompositeObserver) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
	for _, o := range c {
		o.OnRequestEnd(method, path, status, duration, err)
	}
}

func (c CompositeObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
	for _, o := range c {
		o.OnRetryAttempt(method, path, attempt, delay, err)
	}
}
