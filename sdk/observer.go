package sdk

import "github.com/birbparty/metabase-go/internal/transport"

// Observer provides hooks for monitoring requests. Implement it to feed your
// own metrics or logs; the client already records prometheus metrics.
//
// OnRequestStart and OnRequestEnd bracket one logical request, retries
// included. OnRetryAttempt is called before each retry with the delay about
// to be waited and the error that caused it. Methods must be fast and must
// not block.
//
// Example implementation:
//
//	type slowRequests struct{ log *logrus.Entry }
//
//	func (slowRequests) OnRequestStart(method, path string) {}
//
//	func (o slowRequests) OnRequestEnd(method, path string, status int, d time.Duration, err error) {
//	    if d > time.Second {
//	        o.log.WithField("path", path).Warn("slow request")
//	    }
//	}
//
//	func (slowRequests) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {}
//
//	config := sdk.DefaultConfig().WithObserver(slowRequests{log: logger})
type Observer = transport.Observer

// NoopObserver ignores every event. Embed it to implement only some hooks.
type NoopObserver = transport.NoopObserver

// observers combines the built-in metrics with the configured observer.
func observers(builtin, extra Observer) Observer {
	if extra == nil {
		return builtin
	}
	return transport.CompositeObserver{builtin, extra}
}
