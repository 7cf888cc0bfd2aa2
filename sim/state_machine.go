package sim

import "github.com/raftlab/raftkit/raft"

// StateMachine is an in-memory, deterministic StateMachine that just
// records every applied payload in order, for tests and for the `sim`
// CLI subcommand to print on exit.
type StateMachine[P any] struct {
	Applied []P
}

// NewStateMachine returns an empty StateMachine.
func NewStateMachine[P any]() *StateMachine[P] {
	return &StateMachine[P]{}
}

func (s *StateMachine[P]) Apply(entry raft.LogEntry[P]) {
	s.Applied = append(s.Applied, entry.Payload)
}
