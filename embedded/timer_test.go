package embedded_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raftlab/raftkit/embedded"
)

func TestMonotonicTimer_ExpiresAfterConfiguredTicks(t *testing.T) {
	timer := embedded.NewMonotonicTimer(10, 3, 1)

	timer.ResetElectionTimer()
	timer.ResetHeartbeatTimer()

	timer.Advance(2)
	expired := timer.CheckExpired()
	require.False(t, expired.Election)
	require.False(t, expired.Heartbeat)

	timer.Advance(1)
	expired = timer.CheckExpired()
	require.False(t, expired.Election)
	require.True(t, expired.Heartbeat)

	// The election deadline is jittered into [10, 20) ticks, so 9 more
	// ticks (12 total) isn't guaranteed to expire it, but 20 always is.
	timer.Advance(17)
	expired = timer.CheckExpired()
	require.True(t, expired.Election)
	require.True(t, expired.Heartbeat)
}

func TestMonotonicTimer_ElectionDeadlineIsJitteredWithinBounds(t *testing.T) {
	timer := embedded.NewMonotonicTimer(10, 1000, 7)
	timer.ResetElectionTimer()

	timer.Advance(9)
	require.False(t, timer.CheckExpired().Election, "must not fire before the base timeout T")

	timer.Advance(11) // now at 20 ticks total
	require.True(t, timer.CheckExpired().Election, "must have fired by 2T")
}

func TestMonotonicTimer_StopClearsBothDeadlines(t *testing.T) {
	timer := embedded.NewMonotonicTimer(1, 1, 2)
	timer.ResetElectionTimer()
	timer.ResetHeartbeatTimer()
	timer.Advance(5)

	timer.StopTimers()

	expired := timer.CheckExpired()
	require.False(t, expired.Election)
	require.False(t, expired.Heartbeat)
}
