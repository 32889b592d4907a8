package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryInvokesOnRetryBeforeEachBackoff(t *testing.T) {
	b := NewBaseProvider("test", 3, time.Millisecond)
	var attempts []int
	b.OnRetry(func(attempt, maxRetries int, err error) {
		attempts = append(attempts, attempt)
	})

	calls := 0
	err := b.Retry(context.Background(), func(error) bool { return true }, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRetryStopsWhenNotRetryable(t *testing.T) {
	b := NewBaseProvider("test", 3, time.Millisecond)
	calls := 0
	err := b.Retry(context.Background(), func(error) bool { return false }, func() error {
		calls++
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBaseProviderNameMatchesConstructorArgument(t *testing.T) {
	b := NewBaseProvider("anthropic", 0, 0)
	assert.Equal(t, "anthropic", b.Name())
}
