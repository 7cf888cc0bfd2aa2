package raft

// Transport is the fire-and-forget send port. Duplicates and drops are
// permitted; reordering is permitted. Raft tolerates all three, so Send
// never blocks the core waiting for delivery or acknowledgement. A failed
// Send is absorbed (TransportSendFailure, spec.md §7): the next heartbeat
// or tick simply retries.
type Transport[P any] interface {
	Send(target NodeId, msg Message)
}

// StateMachine applies committed entries in order. Opaque to consensus;
// must be deterministic so every node converges on the same state after
// applying the same prefix of the log.
type StateMachine[P any] interface {
	Apply(entry LogEntry[P])
}

// TimerKind names one of the two deadlines the core tracks.
type TimerKind int

const (
	TimerElection TimerKind = iota
	TimerHeartbeat
)

// ExpiredTimers reports which of the election/heartbeat deadlines, if
// any, has elapsed as of the last CheckExpired call.
type ExpiredTimers struct {
	Election  bool
	Heartbeat bool
}

// Any reports whether at least one timer expired.
func (e ExpiredTimers) Any() bool {
	return e.Election || e.Heartbeat
}

// TimerService is the deadline port. The consensus core never reads
// wall-clock time directly; it only asks a TimerService to reset,
// stop, or check its deadlines. Election resets must randomize the new
// deadline uniformly from [T, 2T) (spec.md §4.4) — a correctness
// requirement for liveness, not a style choice (spec.md §9).
type TimerService interface {
	ResetElectionTimer()
	ResetHeartbeatTimer()
	StopTimers()
	CheckExpired() ExpiredTimers
}
