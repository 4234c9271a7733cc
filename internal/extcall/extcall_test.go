package extcall

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCallSucceedsOnPrimary(t *testing.T) {
	client := NewClient(DefaultConfig())
	result := client.Call(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})

	require.NoError(t, result.Err)
	require.Equal(t, "primary", result.Source)
	require.Equal(t, 1, result.Attempts)
}

func TestCallFallsBackOnPrimaryFailure(t *testing.T) {
	client := NewClient(Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2})
	result := client.Call(
		context.Background(),
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("mutation engine unreachable") },
		func(ctx context.Context) (interface{}, error) { return "fallback-value", nil },
	)

	require.NoError(t, result.Err)
	require.Equal(t, "fallback-value", result.Value)
	require.Equal(t, "fallback", result.Source)
	require.Equal(t, 2, result.Attempts)
}

func TestCallExhaustsAllOptions(t *testing.T) {
	client := NewClient(Config{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2})
	failing := func(ctx context.Context) (interface{}, error) { return nil, errors.New("down") }

	result := client.Call(context.Background(), failing, failing)
	require.Error(t, result.Err)
	require.Equal(t, "exhausted", result.Source)
	require.Equal(t, 2, result.Attempts)
}

func TestCacheRoundTripAndExpiry(t *testing.T) {
	client := NewClient(DefaultConfig())
	client.SetCache("peer:alpha:score", 0.82, 10*time.Millisecond)

	value, ok := client.GetCache("peer:alpha:score")
	require.True(t, ok)
	require.Equal(t, 0.82, value)

	time.Sleep(15 * time.Millisecond)
	client.Cleanup()

	_, ok = client.GetCache("peer:alpha:score")
	require.False(t, ok)
}

func TestCallRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(Config{BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2})
	failing := func(ctx context.Context) (interface{}, error) { return nil, errors.New("down") }

	result := client.Call(ctx, failing, failing)
	require.ErrorIs(t, result.Err, context.Canceled)
}
