package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestNew_WithZeroValues(t *testing.T) {
	r := New(&Config{JitterFactor: 3})

	assert.Equal(t, time.Second, r.config.InitialInterval)
	assert.Equal(t, 30*time.Second, r.config.MaxInterval)
	assert.Equal(t, 2.0, r.config.Multiplier)
	assert.Equal(t, 1.0, r.config.JitterFactor)
}

func TestNew_DoesNotMutateCallerConfig(t *testing.T) {
	cfg := &Config{}
	New(cfg)
	assert.Zero(t, cfg.InitialInterval)
}

func TestRetrier_Do_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	result := New(fastConfig(3)).Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	require.NoError(t, result.Err)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, attempts)
}

func TestRetrier_Do_MaxRetriesExceeded(t *testing.T) {
	boom := errors.New("boom")
	result := New(fastConfig(2)).Do(context.Background(), func(ctx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, result.Err, ErrMaxRetriesExceeded)
	assert.ErrorIs(t, result.LastError, boom)
	assert.Equal(t, 3, result.Attempts)
}

func TestRetrier_Do_PermanentError(t *testing.T) {
	invalid := errors.New("invalid payload")
	attempts := 0
	result := New(fastConfig(5)).Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return Permanent(invalid)
	})

	assert.ErrorIs(t, result.Err, invalid)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsPermanent(Permanent(invalid)))
	assert.False(t, IsPermanent(invalid))
	assert.Nil(t, Permanent(nil))
}

func TestRetrier_Do_ShouldRetry(t *testing.T) {
	notFound := errors.New("not found")
	cfg := fastConfig(5)
	cfg.ShouldRetry = func(err error) bool { return !errors.Is(err, notFound) }

	attempts := 0
	result := New(cfg).Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return notFound
	})

	assert.ErrorIs(t, result.Err, notFound)
	assert.Equal(t, 1, attempts)
}

func TestRetrier_Do_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(10)
	cfg.InitialInterval = time.Hour
	cfg.MaxInterval = time.Hour

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := New(cfg).Do(ctx, func(ctx context.Context) error {
		return errors.New("temporary")
	})

	assert.ErrorIs(t, result.Err, ErrContextCanceled)
	assert.Equal(t, 1, result.Attempts)
}

func TestRetrier_DoWithCallback(t *testing.T) {
	var seen []int
	New(fastConfig(2)).DoWithCallback(context.Background(), func(ctx context.Context) error {
		return errors.New("temporary")
	}, func(attempt int, err error, next time.Duration) {
		seen = append(seen, attempt)
		assert.Greater(t, next, time.Duration(0))
	})

	assert.Equal(t, []int{1, 2}, seen)
}

func TestInterval_ExponentialBackoffCapped(t *testing.T) {
	r := New(&Config{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2})

	assert.Equal(t, 100*time.Millisecond, r.interval(0))
	assert.Equal(t, 200*time.Millisecond, r.interval(1))
	assert.Equal(t, 800*time.Millisecond, r.interval(3))
	assert.Equal(t, time.Second, r.interval(10))
}

func TestInterval_JitterBounds(t *testing.T) {
	r := New(&Config{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2, JitterFactor: 0.1})

	for i := 0; i < 100; i++ {
		got := r.interval(0)
		assert.GreaterOrEqual(t, got, 90*time.Millisecond)
		assert.LessOrEqual(t, got, 110*time.Millisecond)
	}
}
