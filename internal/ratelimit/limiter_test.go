package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterWaitPacesSource(t *testing.T) {
	t.Parallel()

	l := New(map[string]time.Duration{"pension": 100 * time.Millisecond}, 0)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "pension"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "pension"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterSourcesIndependent(t *testing.T) {
	t.Parallel()

	l := New(map[string]time.Duration{"pension": time.Second}, 0)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "pension"))

	// A second source must not inherit the first one's pacing.
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "profile"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterCanceledContext(t *testing.T) {
	t.Parallel()

	l := New(map[string]time.Duration{"pension": time.Hour}, 0)
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "pension"))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	require.Error(t, l.Wait(canceled, "pension"))
}
