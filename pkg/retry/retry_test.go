package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "opsflow/pkg/errors"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      1.5,
	}
}

func TestDo_SucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func() error {
		calls++
		if calls < 2 {
			return errors.New("connection refused")
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_StopsOnFatal(t *testing.T) {
	calls := 0
	cause := errors.New("malformed event")
	err := Do(context.Background(), fastPolicy(5), func() error {
		calls++
		return NewFatalError(cause)
	}, nil)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, 1, calls)
}

func TestDo_AppErrors(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		calls int
	}{
		{"unavailable is retried", apperrors.ErrServiceUnavailable, 3},
		{"wrapped internal is retried", fmt.Errorf("insert run: %w", apperrors.ErrInternal), 3},
		{"invalid rule is not", apperrors.ErrInvalidRule, 1},
		{"forced fatal is not", apperrors.ErrInternal.AsFatal(), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), fastPolicy(3), func() error {
				calls++
				return tt.err
			}, nil)
			require.Error(t, err)
			assert.Equal(t, tt.calls, calls)
		})
	}
}

func TestDo_NotifiesBeforeEachRetry(t *testing.T) {
	var attempts []int
	err := Do(context.Background(), fastPolicy(3), func() error {
		return errors.New("timeout")
	}, func(attempt int, err error, nextDelay time.Duration) {
		attempts = append(attempts, attempt)
		assert.EqualError(t, err, "timeout")
		assert.Positive(t, nextDelay)
		// jitter may push past MaxInterval by half
		assert.LessOrEqual(t, nextDelay, 3*time.Millisecond)
	})

	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 5, InitialInterval: time.Second, MaxInterval: time.Second, Multiplier: 2}, func() error {
		calls++
		return errors.New("unavailable")
	}, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls, 1)
}

func TestDo_ZeroPolicyUsesDefaultAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}, func() error {
		calls++
		return errors.New("unavailable")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, DefaultPolicy().MaxAttempts, calls)
}
