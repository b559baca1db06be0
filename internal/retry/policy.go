package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultJitter      = 0.2
)

// StatusError is implemented by API errors that carry an HTTP status code.
type StatusError interface {
	error
	HTTPStatus() int
}

// RetryAfterError is implemented by errors that carry a server-provided delay hint.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// Classifier decides whether an error is worth another attempt.
type Classifier func(error) bool

// Notify is invoked before each sleep with the failed attempt number.
type Notify func(attempt int, err error, delay time.Duration)

// Policy describes how outbound calls are retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the randomization factor applied to each delay (0 disables it).
	Jitter float64

	Retryable Classifier
	OnRetry   Notify
	// Sleep overrides how delays are waited out; tests use it to avoid real sleeps.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the policy used when no configuration is supplied.
func Default() Policy {
	return Policy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		Jitter:      defaultJitter,
	}
}

// FromSettings builds a policy from configured attempt and delay values.
// Non-positive values keep the defaults.
func FromSettings(maxAttempts int, baseDelay time.Duration) Policy {
	p := Default()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if baseDelay > 0 {
		p.BaseDelay = baseDelay
		if p.MaxDelay < baseDelay {
			p.MaxDelay = baseDelay
		}
	}
	return p
}

// WithClassifier returns a copy of the policy using the supplied classifier.
func (p Policy) WithClassifier(fn Classifier) Policy {
	p.Retryable = fn
	return p
}

// WithNotify returns a copy of the policy that reports each retry.
func (p Policy) WithNotify(fn Notify) Policy {
	p.OnRetry = fn
	return p
}

// Attempts reports the effective attempt budget.
func (p Policy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Do runs op until it succeeds, returns a non-retryable error, exhausts the
// attempt budget, or the context ends.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	attempts := p.Attempts()
	schedule := p.newBackOff()
	classify := p.Retryable
	if classify == nil {
		classify = DefaultClassifier
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Unwrap()
		}
		if attempt == attempts || !classify(err) || isContextError(err) {
			break
		}

		delay := schedule.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		if hint := retryAfter(err); hint > 0 {
			delay = hint
		}
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}
	if attempts > 1 && classify(lastErr) && !isContextError(lastErr) {
		return &ExhaustedError{Attempts: attempts, Err: lastErr}
	}
	return lastErr
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Permanent marks err so Do returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// MarkRetryable tags err as transient for DefaultClassifier.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}

// DefaultClassifier retries HTTP 408/429/5xx, network timeouts, and errors
// tagged with MarkRetryable.
func DefaultClassifier(err error) bool {
	if err == nil || isContextError(err) {
		return false
	}
	var marked retryableError
	if errors.As(err, &marked) {
		return true
	}
	if status, ok := httpStatus(err); ok {
		return status == http.StatusRequestTimeout ||
			status == http.StatusTooManyRequests ||
			status >= http.StatusInternalServerError
	}
	return isNetworkTimeout(err)
}

// RateLimitClassifier retries only HTTP 429 and transport-level failures.
func RateLimitClassifier(err error) bool {
	if err == nil || isContextError(err) {
		return false
	}
	if status, ok := httpStatus(err); ok {
		return status == http.StatusTooManyRequests
	}
	var marked retryableError
	if errors.As(err, &marked) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func httpStatus(err error) (int, bool) {
	var statusErr StatusError
	if errors.As(err, &statusErr) {
		return statusErr.HTTPStatus(), true
	}
	return 0, false
}

func retryAfter(err error) time.Duration {
	var hinted RetryAfterError
	if errors.As(err, &hinted) {
		return hinted.RetryAfter()
	}
	return 0
}

func isNetworkTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return false
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Millisecond
	}
	b.Multiplier = 2
	b.RandomizationFactor = clampJitter(p.Jitter)
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = defaultMaxDelay
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (p Policy) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if p.Sleep != nil {
		return p.Sleep(ctx, delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func clampJitter(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
