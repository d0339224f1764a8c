package transport

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/birbparty/metabase-go/apierr"
)

// RetryStrategy decides the delay before each retry.
type RetryStrategy interface {
	// NextInterval returns the delay before retry number attempt (from 1).
	NextInterval(attempt int) time.Duration
	// MaxAttempts is the total attempt budget, first attempt included.
	MaxAttempts() int
}

// ExponentialBackoffStrategy implements exponential backoff with jitter:
//
//	base = InitialInterval * (Multiplier ^ (attempt-1))
//	delay = min(base, MaxInterval) ± jitter
type ExponentialBackoffStrategy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64
	Attempts        int
}

// NewExponentialBackoff builds the strategy described by cfg.
func NewExponentialBackoff(cfg RetryConfig) *ExponentialBackoffStrategy {
	return &ExponentialBackoffStrategy{
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Multiplier:      cfg.Multiplier,
		Jitter:          cfg.Jitter,
		Attempts:        cfg.MaxAttempts,
	}
}

// NextInterval calculates the next retry interval
func (s *ExponentialBackoffStrategy) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	interval := float64(s.InitialInterval) * math.Pow(s.Multiplier, float64(attempt-1))
	if interval > float64(s.MaxInterval) {
		interval = float64(s.MaxInterval)
	}

	if s.Jitter > 0 {
		jitterRange := interval * s.Jitter
		interval += jitterRange * (2*rand.Float64() - 1)
	}
	if interval > float64(s.MaxInterval) {
		interval = float64(s.MaxInterval)
	}
	if interval < 0 {
		interval = 0
	}
	return time.Duration(interval)
}

// MaxAttempts returns the attempt budget
func (s *ExponentialBackoffStrategy) MaxAttempts() int {
	return s.Attempts
}

// retryExecutor runs an operation until it succeeds, fails permanently or the
// attempt budget is spent.
type retryExecutor struct {
	strategy RetryStrategy
	onRetry  func(attempt int, delay time.Duration, err error)
}

func newRetryExecutor(strategy RetryStrategy) *retryExecutor {
	return &retryExecutor{strategy: strategy}
}

// Execute runs fn with retry logic. It returns the number of attempts made.
// fn receives the attempt number starting at 1; retryable decides whether a
// failure may be retried.
func (re *retryExecutor) Execute(ctx context.Context, retryable func(error) bool, fn func(attempt int) error) (int, error) {
	maxAttempts := re.strategy.MaxAttempts()
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if attempt >= maxAttempts || !retryable(err) || ctx.Err() != nil {
			return attempt, lastErr
		}

		interval := re.strategy.NextInterval(attempt)
		var apiErr *apierr.Error
		if errors.As(err, &apiErr) && apiErr.RetryAfter > interval {
			interval = apiErr.RetryAfter
			if s, ok := re.strategy.(*ExponentialBackoffStrategy); ok && interval > s.MaxInterval {
				interval = s.MaxInterval
			}
		}
		if re.onRetry != nil {
			re.onRetry(attempt, interval, err)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, canceled(ctx.Err())
		case <-timer.C:
		}
	}
}

func canceled(err error) *apierr.Error {
	e := apierr.Wrap(err, apierr.KindTransport, "request canceled")
	e.Retryable = false
	return e
}
