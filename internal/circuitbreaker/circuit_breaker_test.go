package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errDown = errors.New("down")

func newTestBreaker() (*CircuitBreaker, *time.Time) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(&Config{
		Name:             "test",
		MaxFailures:      3,
		FailureThreshold: 0.5,
		Timeout:          time.Minute,
		HalfOpenMaxCalls: 2,
	})
	cb.now = func() time.Time { return now }
	cb.lastStateChange = now
	return cb, &now
}

func fail(context.Context) error    { return errDown }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_OpensOnConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
		assert.Equal(t, StateClosed, cb.GetState())
	}
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open circuit does not call through")
}

func TestCircuitBreaker_FailureRate(t *testing.T) {
	cb, _ := newTestBreaker()
	ctx := context.Background()

	assert.NoError(t, cb.Execute(ctx, succeed))
	assert.Error(t, cb.Execute(ctx, fail))
	assert.Equal(t, StateClosed, cb.GetState(), "below the minimum number of calls")
	assert.Error(t, cb.Execute(ctx, fail))
	assert.Equal(t, StateOpen, cb.GetState(), "2 of 3 failed")
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, now := newTestBreaker()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	*now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.GetState())
	assert.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Zero(t, cb.GetStats().TotalCalls)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail)
	}

	*now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)
}

func TestCircuitBreaker_CancelledContextNotCounted(t *testing.T) {
	cb, _ := newTestBreaker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	}
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Zero(t, cb.GetStats().Failures)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker()
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.NoError(t, cb.Execute(context.Background(), succeed))
}
