package stripe

import (
	"context"
	"math"
	"math/rand"
	"reflect"
	"time"

	"github.com/stripe/stripe-go/v76"

	ierr "github.com/instpay/instpay/internal/errors"
	"github.com/instpay/instpay/internal/logger"
)

// RetryPolicy controls how provider calls are retried on rate limiting and
// on empty responses.
type RetryPolicy struct {
	Attempts    int
	InitialWait time.Duration
}

// DefaultRetryPolicy matches the provider's recommended backoff window for
// burst rate limits.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:    5,
	InitialWait: 10 * time.Millisecond,
}

// Retrier retries provider calls with jittered exponential backoff. The
// sleep and jitter functions are injectable so tests can run instantly and
// assert the backoff schedule.
type Retrier struct {
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
	logger *logger.Logger
}

// NewRetrier creates a retrier with real sleeping and jitter.
func NewRetrier(policy RetryPolicy, logger *logger.Logger) *Retrier {
	if policy.Attempts <= 0 {
		policy = DefaultRetryPolicy
	}
	return &Retrier{
		policy: policy,
		sleep:  sleepContext,
		jitter: rand.Float64,
		logger: logger,
	}
}

// NewRetrierForTest creates a retrier with injected sleep and jitter.
func NewRetrierForTest(policy RetryPolicy, sleep func(context.Context, time.Duration) error, jitter func() float64, logger *logger.Logger) *Retrier {
	r := NewRetrier(policy, logger)
	if sleep != nil {
		r.sleep = sleep
	}
	if jitter != nil {
		r.jitter = jitter
	}
	return r
}

// Do runs fn until it returns a usable result. Rate limited calls back off
// and retry; an empty result without an error also retries, since the
// provider occasionally returns incomplete data right after a write. Any
// other error fails immediately.
func Do[T any](ctx context.Context, r *Retrier, op string, fn func() (T, error)) (T, error) {
	var zero T
	wait := r.policy.InitialWait
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		result, err := fn()
		if err != nil {
			if !isRateLimited(err) {
				return zero, err
			}
			if attempt == r.policy.Attempts {
				return zero, ierr.WithError(err).
					WithHintf("%s rate limited after %d attempts", op, attempt).
					Mark(ierr.ErrRateLimited)
			}
			r.logger.Warnw("rate limited, backing off", "operation", op, "attempt", attempt, "wait", wait)
			if sleepErr := r.sleep(ctx, wait); sleepErr != nil {
				return zero, sleepErr
			}
			wait = r.nextWait(wait)
			continue
		}
		if !isEmpty(result) {
			return result, nil
		}
		if attempt < r.policy.Attempts {
			if sleepErr := r.sleep(ctx, wait); sleepErr != nil {
				return zero, sleepErr
			}
			wait = r.nextWait(wait)
		}
	}
	return zero, ierr.NewErrorf("%s invalid data after %d attempts", op, r.policy.Attempts).
		Mark(ierr.ErrSystem)
}

// nextWait grows the backoff by a random factor in [1.5, 2.0).
func (r *Retrier) nextWait(wait time.Duration) time.Duration {
	multiplier := 1.5 + 0.5*r.jitter()
	return time.Duration(math.Ceil(float64(wait) * multiplier))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isRateLimited detects HTTP 429 responses from the provider, plus errors
// already marked as rate limited by an inner layer.
func isRateLimited(err error) bool {
	if ierr.IsRateLimited(err) {
		return true
	}
	var stripeErr *stripe.Error
	if ierr.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == 429
	}
	return false
}

// isEmpty reports whether a generic result carries no data: a nil pointer,
// nil map or slice, or a zero-length list.
func isEmpty(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	case reflect.Slice, reflect.Map:
		return rv.IsNil()
	}
	return false
}
