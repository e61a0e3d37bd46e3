package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/uptime-rewards/internal/errors"
)

func fastConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestCalculateDelay(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, calculateDelay(cfg, 1))
	assert.Equal(t, 2*time.Second, calculateDelay(cfg, 2))
	assert.Equal(t, 4*time.Second, calculateDelay(cfg, 3))
	assert.Equal(t, 5*time.Second, calculateDelay(cfg, 4), "capped")
}

func TestWithExponentialBackoff(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(5), func(_ context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, calls)
	assert.NoError(t, result.LastError)

	result = WithExponentialBackoff(context.Background(), fastConfig(2), func(context.Context, int) error {
		return errors.New("still down")
	})
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	assert.EqualError(t, result.LastError, "still down")
}

func TestWithExponentialBackoff_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(10)
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour

	result := WithExponentialBackoff(ctx, cfg, func(context.Context, int) error {
		cancel()
		return errors.New("down")
	})
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.ErrorIs(t, result.LastError, context.Canceled)
}

func TestConnect(t *testing.T) {
	attempts := 0
	err := Connect(context.Background(), "postgres", fastConfig(4), func(context.Context) error {
		attempts++
		if attempts < 2 {
			return apperrors.NewDatabaseError("ping", errors.New("refused"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	attempts = 0
	err = Connect(context.Background(), "postgres", fastConfig(4), func(context.Context) error {
		attempts++
		return apperrors.NewInvalidParameterError("dsn", "malformed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "validation errors are not retried")
	assert.Contains(t, err.Error(), "connect to postgres failed after 1 attempts")
}
