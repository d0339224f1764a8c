package sdk

import "github.com/birbparty/metabase-go/apierr"

// Error is the single error type returned by the client. Kind tells what went
// wrong; StatusCode, Method, Path and RequestID describe the failed request
// when there was one.
//
// Example:
//
//	var mbErr *sdk.Error
//	if errors.As(err, &mbErr) {
//	    log.Printf("%s %s failed with %d (request %s)",
//	        mbErr.Method, mbErr.Path, mbErr.StatusCode, mbErr.RequestID)
//	}
type Error = apierr.Error

// ErrorKind categorizes an Error.
type ErrorKind = apierr.Kind

// Error kinds.
const (
	KindUnknown         = apierr.KindUnknown
	KindConfiguration   = apierr.KindConfiguration
	KindUnauthenticated = apierr.KindUnauthenticated
	KindAuthentication  = apierr.KindAuthentication
	KindAuthorization   = apierr.KindAuthorization
	KindValidation      = apierr.KindValidation
	KindNotFound        = apierr.KindNotFound
	KindConflict        = apierr.KindConflict
	KindRateLimited     = apierr.KindRateLimited
	KindTransport       = apierr.KindTransport
	KindSerialization   = apierr.KindSerialization
	KindQueryExecution  = apierr.KindQueryExecution
)

// Sentinel errors for errors.Is, one per kind.
//
// Example:
//
//	if errors.Is(err, sdk.ErrUnauthenticated) {
//	    // call Authenticate first
//	}
var (
	ErrConfiguration   = apierr.ErrConfiguration
	ErrUnauthenticated = apierr.ErrUnauthenticated
	ErrAuthentication  = apierr.ErrAuthentication
	ErrAuthorization   = apierr.ErrAuthorization
	ErrValidation      = apierr.ErrValidation
	ErrNotFound        = apierr.ErrNotFound
	ErrConflict        = apierr.ErrConflict
	ErrRateLimited     = apierr.ErrRateLimited
	ErrTransport       = apierr.ErrTransport
	ErrSerialization   = apierr.ErrSerialization
	ErrQueryExecution  = apierr.ErrQueryExecution
)

// KindOf returns the kind of err, KindUnknown if it is not an *Error.
func KindOf(err error) ErrorKind {
	return apierr.KindOf(err)
}

// IsNotFound reports whether err is a missing entity.
func IsNotFound(err error) bool {
	return apierr.IsNotFound(err)
}

// IsRetryable reports whether err is transient. The client has already
// retried idempotent requests by the time such an error is returned.
func IsRetryable(err error) bool {
	return apierr.IsRetryable(err)
}
