package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestBreaker(t *testing.T, clock *time.Time) *CircuitBreaker {
	cb := New("test", Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      time.Second,
	}, zaptest.NewLogger(t))
	cb.now = func() time.Time { return *clock }
	return cb
}

func TestCircuitBreakerStates(t *testing.T) {
	clock := time.Unix(0, 0)
	cb := newTestBreaker(t, &clock)
	ctx := context.Background()
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		require.NoError(t, cb.Execute(ctx, func(context.Context) error { return nil }))
	}
	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, func(context.Context) error { return boom }), boom)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	clock = clock.Add(time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, func(context.Context) error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, func(context.Context) error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	clock := time.Unix(0, 0)
	cb := newTestBreaker(t, &clock)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return errors.New("x") })
	}
	clock = clock.Add(2 * time.Second)
	_ = cb.Execute(ctx, func(context.Context) error { return errors.New("still down") })
	assert.Equal(t, StateOpen, cb.State())
}

func TestCancellationDoesNotCount(t *testing.T) {
	clock := time.Unix(0, 0)
	cb := newTestBreaker(t, &clock)
	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	clock := time.Unix(0, 0)
	cb := newTestBreaker(t, &clock)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return errors.New("x") })
		_ = cb.Execute(ctx, func(context.Context) error { return nil })
	}
	assert.Equal(t, StateClosed, cb.State())
}
