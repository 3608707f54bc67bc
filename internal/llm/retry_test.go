package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yantianqi1/write-agent/internal/coreerr"
)

func TestDoRetriesRetryableKind(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	attempts := 0
	val, err := Do(context.Background(), policy, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, coreerr.New(coreerr.Timeout, "slow")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 3, attempts)
}

func TestDoDoesNotRetryNonRetryableKind(t *testing.T) {
	policy := DefaultRetryPolicy()
	attempts := 0
	_, err := Do(context.Background(), policy, func() (int, error) {
		attempts++
		return 0, coreerr.New(coreerr.Auth, "bad key")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, coreerr.Auth, coreerr.OfKind(err))
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	attempts := 0
	_, err := Do(context.Background(), policy, func() (int, error) {
		attempts++
		return 0, coreerr.New(coreerr.Network, "down")
	})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDoAbortsOnContextCancellation(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx, policy, func() (int, error) {
		attempts++
		return 0, coreerr.New(coreerr.Timeout, "slow")
	})
	require.Error(t, err)
	assert.Equal(t, coreerr.Cancelled, coreerr.OfKind(err))
}
