package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoStopsOnFirstSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, func(_ context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoWrapsLastErrorWhenExhausted(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	start := time.Now()

	err := Do(context.Background(), 2, 20*time.Millisecond, func(context.Context, int) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDoHonoursCancellationBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Do(ctx, 5, time.Hour, func(context.Context, int) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoTreatsNonPositiveAttemptsAsOne(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), 0, 0, func(context.Context, int) error {
		calls++
		return errors.New("fail")
	})
	assert.Equal(t, 1, calls)
}
