package raft

import (
	"fmt"

	"github.com/pingcap/errors"
)

// NotLeader is returned by Submit when the node is not the current leader.
// Hint, when non-nil, names the node that the refusing node currently
// believes is leader.
type NotLeader struct {
	Hint *NodeId
}

func (e *NotLeader) Error() string {
	if e.Hint == nil {
		return "raft: not leader"
	}
	return fmt.Sprintf("raft: not leader, hint: node %d", *e.Hint)
}

// ErrCollectionFull is returned when a bounded NodeCollection or MapCollection
// rejects an insertion because it is at capacity. Fatal at configuration
// time: the cluster does not fit the compiled-in bound.
var ErrCollectionFull = errors.New("raft: collection is full")

// newStorageError wraps a failed durable write or read with a stack trace,
// matching the teacher's use of github.com/pingcap/errors throughout
// raftstore for I/O failures. StorageError is fatal to the node: the
// caller must restart it.
func newStorageError(op string, cause error) error {
	return errors.Annotatef(cause, "raft: storage error during %s", op)
}
