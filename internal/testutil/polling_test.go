package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoll(t *testing.T) {
	t.Parallel()

	calls := 0
	require.NoError(t, Poll(context.Background(), func() bool {
		calls++
		return calls >= 3
	}, time.Second, time.Millisecond))
	require.Equal(t, 3, calls)
}

func TestPoll_Timeout(t *testing.T) {
	t.Parallel()

	err := Poll(context.Background(), func() bool { return false }, 10*time.Millisecond, time.Millisecond)
	require.ErrorContains(t, err, "timeout waiting for bool state")
}

func TestPoll_ContextDone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Eventually(ctx, func() bool { return false })
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitForState(t *testing.T) {
	t.Parallel()

	n := 0
	got, err := WaitForState(context.Background(),
		func() int { n++; return n },
		func(v int) bool { return v > 4 },
		time.Second, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 5, got)
}
