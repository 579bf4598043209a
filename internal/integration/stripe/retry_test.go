package stripe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	ierr "github.com/instpay/instpay/internal/errors"
	"github.com/instpay/instpay/internal/logger"
)

func newTestRetrier(t *testing.T, waits *[]time.Duration, jitter float64) *Retrier {
	t.Helper()
	sleep := func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return NewRetrierForTest(DefaultRetryPolicy, sleep, func() float64 { return jitter }, logger.NewNopLogger())
}

func TestDoRetriesRateLimitsWithBackoff(t *testing.T) {
	var waits []time.Duration
	r := newTestRetrier(t, &waits, 0)

	calls := 0
	result, err := Do(context.Background(), r, "products.list", func() (*stripe.Product, error) {
		calls++
		if calls < 3 {
			return nil, &stripe.Error{HTTPStatusCode: 429}
		}
		return &stripe.Product{ID: "prod_1"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "prod_1", result.ID)
	assert.Equal(t, 3, calls)
	// jitter pinned to 0 makes the growth factor exactly 1.5
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 15 * time.Millisecond}, waits)
}

func TestDoFailsFastOnOtherErrors(t *testing.T) {
	var waits []time.Duration
	r := newTestRetrier(t, &waits, 0)

	calls := 0
	_, err := Do(context.Background(), r, "products.create", func() (*stripe.Product, error) {
		calls++
		return nil, &stripe.Error{HTTPStatusCode: 400}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, waits)
}

func TestDoRetriesEmptyResults(t *testing.T) {
	var waits []time.Duration
	r := newTestRetrier(t, &waits, 0)

	calls := 0
	_, err := Do(context.Background(), r, "customers.get", func() (*stripe.Customer, error) {
		calls++
		return nil, nil
	})

	require.Error(t, err)
	assert.True(t, ierr.Is(err, ierr.ErrSystem))
	assert.Contains(t, err.Error(), "customers.get invalid data after 5 attempts")
	assert.Equal(t, 5, calls)
	assert.Len(t, waits, 4)
}

func TestDoTreatsEmptyListAsValid(t *testing.T) {
	var waits []time.Duration
	r := newTestRetrier(t, &waits, 0)

	result, err := Do(context.Background(), r, "subscriptions.list", func() ([]*stripe.Subscription, error) {
		return []*stripe.Subscription{}, nil
	})

	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Empty(t, waits)
}

func TestDoExhaustedRateLimits(t *testing.T) {
	var waits []time.Duration
	r := newTestRetrier(t, &waits, 0.5)

	calls := 0
	_, err := Do(context.Background(), r, "prices.list", func() ([]*stripe.Price, error) {
		calls++
		return nil, &stripe.Error{HTTPStatusCode: 429}
	})

	require.Error(t, err)
	assert.True(t, ierr.IsRateLimited(err))
	assert.Equal(t, 5, calls)
	assert.Len(t, waits, 4)
}

func TestNextWaitJitterBounds(t *testing.T) {
	base := 100 * time.Millisecond

	low := NewRetrierForTest(DefaultRetryPolicy, nil, func() float64 { return 0 }, logger.NewNopLogger())
	assert.Equal(t, 150*time.Millisecond, low.nextWait(base))

	high := NewRetrierForTest(DefaultRetryPolicy, nil, func() float64 { return 0.999999 }, logger.NewNopLogger())
	next := high.nextWait(base)
	assert.GreaterOrEqual(t, next, 150*time.Millisecond)
	assert.Less(t, next, 200*time.Millisecond)
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sleep := func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	r := NewRetrierForTest(DefaultRetryPolicy, sleep, func() float64 { return 0 }, logger.NewNopLogger())

	calls := 0
	_, err := Do(ctx, r, "products.list", func() (*stripe.Product, error) {
		calls++
		return nil, &stripe.Error{HTTPStatusCode: 429}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
