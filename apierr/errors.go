// Package apierr defines the error taxonomy shared by every layer of the
// Metabase client. All failures surfaced to callers are *Error values carrying
// a Kind; use errors.Is with the sentinel values or KindOf to branch on them.
//
// Example:
//
//	card, err := client.GetCard(ctx, 42)
//	switch {
//	case errors.Is(err, apierr.ErrNotFound):
//	    // card 42 does not exist
//	case errors.Is(err, apierr.ErrUnauthenticated):
//	    // call Authenticate first
//	case apierr.IsRetryable(err):
//	    // transient failure, try again later
//	}
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors, one per Kind. An *Error matches the sentinel of its kind
// under errors.Is.
var (
	ErrConfiguration   = errors.New("invalid configuration")
	ErrUnauthenticated = errors.New("not authenticated")
	ErrAuthentication  = errors.New("authentication failed")
	ErrAuthorization   = errors.New("not authorized")
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrRateLimited     = errors.New("rate limited")
	ErrTransport       = errors.New("transport failure")
	ErrSerialization   = errors.New("serialization failure")
	ErrQueryExecution  = errors.New("query execution failed")
)

// Kind categorizes an error for handling decisions.
type Kind int

const (
	// KindUnknown is an unclassified error
	KindUnknown Kind = iota
	// KindConfiguration is a bad client configuration (base URL, timeouts)
	KindConfiguration
	// KindUnauthenticated means no session exists; no request was sent
	KindUnauthenticated
	// KindAuthentication means credentials were rejected or the session expired (401)
	KindAuthentication
	// KindAuthorization means the session lacks permission (403)
	KindAuthorization
	// KindValidation is a client-side or server-side (400) input rejection
	KindValidation
	// KindNotFound is a missing entity (404)
	KindNotFound
	// KindConflict is a write conflict (409)
	KindConflict
	// KindRateLimited is a throttled request (429)
	KindRateLimited
	// KindTransport covers network failures, timeouts and 5xx responses
	KindTransport
	// KindSerialization is a payload that could not be encoded or decoded
	KindSerialization
	// KindQueryExecution means the server ran the query and reported failure
	KindQueryExecution
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindTransport:
		return "transport"
	case KindSerialization:
		return "serialization"
	case KindQueryExecution:
		return "query_execution"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindUnauthenticated:
		return ErrUnauthenticated
	case KindAuthentication:
		return ErrAuthentication
	case KindAuthorization:
		return ErrAuthorization
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindRateLimited:
		return ErrRateLimited
	case KindTransport:
		return ErrTransport
	case KindSerialization:
		return ErrSerialization
	case KindQueryExecution:
		return ErrQueryExecution
	}
	return nil
}

// Error is the enhanced error returned by every client operation. It records
// what went wrong, whether retrying could help, and which request failed.
//
// Example:
//
//	var apiErr *apierr.Error
//	if errors.As(err, &apiErr) {
//	    fmt.Printf("kind=%s status=%d request=%s\n", apiErr.Kind, apiErr.StatusCode, apiErr.RequestID)
//	    fmt.Printf("server said: %s\n", apiErr.Body)
//	}
type Error struct {
	// Kind categorizes the error
	Kind Kind `json:"kind"`
	// Message is a human-readable description
	Message string `json:"message"`
	// StatusCode is the HTTP status, zero when no response was received
	StatusCode int `json:"status_code,omitempty"`
	// Body is the raw upstream response body, if any
	Body string `json:"body,omitempty"`
	// Method and Path identify the failed request
	Method string `json:"method,omitempty"`
	Path   string `json:"path,omitempty"`
	// RequestID is the X-Request-Id sent with the failed request
	RequestID string `json:"request_id,omitempty"`
	// Attempts is the number of HTTP attempts made before giving up
	Attempts int `json:"attempts,omitempty"`
	// Retryable indicates the operation may succeed if repeated
	Retryable bool `json:"retryable"`
	// RetryAfter is the server's requested back-off on 429, zero if absent
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	// Timestamp is when the error was created
	Timestamp time.Time `json:"timestamp"`

	wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	if e.Method != "" {
		msg += fmt.Sprintf(" (%s %s", e.Method, e.Path)
		if e.StatusCode != 0 {
			msg += fmt.Sprintf(", status %d", e.StatusCode)
		}
		if e.Attempts > 1 {
			msg += fmt.Sprintf(", attempts %d", e.Attempts)
		}
		msg += ")"
	}
	if e.wrapped != nil {
		msg += ": " + e.wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.wrapped
}

// Is matches the sentinel error of the same kind
func (e *Error) Is(target error) bool {
	if s := e.Kind.sentinel(); s != nil && target == s {
		return true
	}
	return false
}

// IsRetryable returns true if the error is retryable
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// WithRequest records the request that failed
func (e *Error) WithRequest(method, path, requestID string) *Error {
	e.Method = method
	e.Path = path
	e.RequestID = requestID
	return e
}

// New creates an error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Retryable: retryableKind(kind),
		Timestamp: time.Now(),
	}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an error of the given kind around an underlying cause. If err
// is already an *Error its kind and request details are kept and only the
// message gains the new prefix.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		clone := *existing
		if message != "" {
			clone.Message = message + ": " + existing.Message
		}
		return &clone
	}
	e := New(kind, message)
	e.wrapped = err
	return e
}

func retryableKind(kind Kind) bool {
	switch kind {
	case KindTransport, KindRateLimited:
		return true
	default:
		return false
	}
}

// FromStatus classifies a non-2xx HTTP response.
func FromStatus(status int, message, body string) *Error {
	var kind Kind
	switch {
	case status == http.StatusBadRequest:
		kind = KindValidation
	case status == http.StatusUnauthorized:
		kind = KindAuthentication
	case status == http.StatusForbidden:
		kind = KindAuthorization
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusConflict:
		kind = KindConflict
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusRequestTimeout || status >= 500:
		kind = KindTransport
	default:
		kind = KindValidation
	}
	if message == "" {
		message = http.StatusText(status)
	}
	e := New(kind, message)
	e.StatusCode = status
	e.Body = body
	return e
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsNotFound checks if the error represents a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable checks if an error is retryable. Transport failures and rate
// limiting are retryable; everything else, including malformed response
// bodies, is not.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.IsRetryable()
	}
	return false
}
