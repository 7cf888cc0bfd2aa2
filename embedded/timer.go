package embedded

import (
	"math/rand"

	"github.com/raftlab/raftkit/raft"
)

// MonotonicTimer is a raft.TimerService driven by an explicit logical
// clock (Advance) instead of wall time — grounded on the structure of
// the original EmbassyTimer (deadline = now + timeout, checked against
// "now" on demand), but substituting a tick counter for
// embassy_time::Instant so the embedded driver runs deterministically
// on the host without a real-time executor. Election deadlines are
// still drawn uniformly from [T, 2T) ticks, per spec.md §4.4/§9: the
// randomization is a liveness requirement, not a property of wall-clock
// drivers only.
type MonotonicTimer struct {
	now                  uint64
	electionTimeoutTicks uint64
	heartbeatTicks       uint64

	rnd               *rand.Rand
	electionDeadline  *uint64
	heartbeatDeadline *uint64
}

// NewMonotonicTimer returns a MonotonicTimer whose election timeout is
// drawn from [electionTimeoutTicks, 2*electionTimeoutTicks) and whose
// heartbeat interval is heartbeatTicks, both counted in Advance calls.
// seed makes the jitter reproducible for tests. Timers start stopped.
func NewMonotonicTimer(electionTimeoutTicks, heartbeatTicks uint64, seed int64) *MonotonicTimer {
	return &MonotonicTimer{
		electionTimeoutTicks: electionTimeoutTicks,
		heartbeatTicks:       heartbeatTicks,
		rnd:                  rand.New(rand.NewSource(seed)),
	}
}

// Advance moves the logical clock forward by n ticks.
func (m *MonotonicTimer) Advance(n uint64) { m.now += n }

func (m *MonotonicTimer) ResetElectionTimer() {
	jitter := uint64(0)
	if m.electionTimeoutTicks > 0 {
		jitter = uint64(m.rnd.Int63n(int64(m.electionTimeoutTicks)))
	}
	deadline := m.now + m.electionTimeoutTicks + jitter
	m.electionDeadline = &deadline
}

func (m *MonotonicTimer) ResetHeartbeatTimer() {
	deadline := m.now + m.heartbeatTicks
	m.heartbeatDeadline = &deadline
}

func (m *MonotonicTimer) StopTimers() {
	m.electionDeadline = nil
	m.heartbeatDeadline = nil
}

func (m *MonotonicTimer) CheckExpired() raft.ExpiredTimers {
	var expired raft.ExpiredTimers
	if m.electionDeadline != nil && m.now >= *m.electionDeadline {
		expired.Election = true
	}
	if m.heartbeatDeadline != nil && m.now >= *m.heartbeatDeadline {
		expired.Heartbeat = true
	}
	return expired
}
