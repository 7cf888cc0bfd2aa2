package sim

import (
	"math/rand"
	"sync"
	"time"

	"github.com/raftlab/raftkit/raft"
)

// ClockTimer is a real-clock raft.TimerService. Election deadlines are
// drawn uniformly from [T, 2T), heartbeat deadlines are fixed at the
// configured interval — matching the ElectionTimeout/BroadcastInterval
// split the teacher's HTTP-transport sibling implementation uses, with
// the randomization spec.md §4.4/§9 requires for liveness.
type ClockTimer struct {
	baseElection time.Duration
	heartbeat    time.Duration

	mu                sync.Mutex
	rnd               *rand.Rand
	electionDeadline  *time.Time
	heartbeatDeadline *time.Time
}

// NewClockTimer returns a ClockTimer whose election timeout is drawn
// from [baseElection, 2*baseElection) and whose heartbeat fires every
// heartbeat interval. Timers start stopped; call ResetElectionTimer (or
// ResetHeartbeatTimer) to arm them.
func NewClockTimer(baseElection, heartbeat time.Duration, seed int64) *ClockTimer {
	return &ClockTimer{
		baseElection: baseElection,
		heartbeat:    heartbeat,
		rnd:          rand.New(rand.NewSource(seed)),
	}
}

func (c *ClockTimer) ResetElectionTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	jitter := time.Duration(c.rnd.Int63n(int64(c.baseElection)))
	deadline := time.Now().Add(c.baseElection + jitter)
	c.electionDeadline = &deadline
}

func (c *ClockTimer) ResetHeartbeatTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline := time.Now().Add(c.heartbeat)
	c.heartbeatDeadline = &deadline
}

func (c *ClockTimer) StopTimers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.electionDeadline = nil
	c.heartbeatDeadline = nil
}

func (c *ClockTimer) CheckExpired() raft.ExpiredTimers {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	var expired raft.ExpiredTimers
	if c.electionDeadline != nil && !now.Before(*c.electionDeadline) {
		expired.Election = true
	}
	if c.heartbeatDeadline != nil && !now.Before(*c.heartbeatDeadline) {
		expired.Heartbeat = true
	}
	return expired
}
