package sim

import (
	"sync"

	"github.com/raftlab/raftkit/raft"
)

type envelope struct {
	from raft.NodeId
	msg  raft.Message
}

// Broker is the mutex-guarded message broker spec.md §5 calls out
// explicitly as test infrastructure, not core: a shared, in-process
// mailbox per node. Sends append to the target's queue; drains pop in
// FIFO order. Nothing here prevents drop/reorder/duplication from being
// layered on top by a test harness (see Cluster), matching the
// transport contract in spec.md §4.5.
type Broker struct {
	mu     sync.Mutex
	queues map[raft.NodeId][]envelope
}

// NewBroker returns an empty Broker.
func NewBroker() *Broker {
	return &Broker{queues: make(map[raft.NodeId][]envelope)}
}

// Enqueue appends msg, sent by from, to target's queue.
func (b *Broker) Enqueue(from, target raft.NodeId, msg raft.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[target] = append(b.queues[target], envelope{from: from, msg: msg})
}

// Dequeue pops the oldest pending message for node, if any.
func (b *Broker) Dequeue(node raft.NodeId) (raft.NodeId, raft.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[node]
	if len(q) == 0 {
		return 0, nil, false
	}
	head := q[0]
	b.queues[node] = q[1:]
	return head.from, head.msg, true
}

// Pending reports how many messages are queued for node, for test
// harnesses driving quiescence checks.
func (b *Broker) Pending(node raft.NodeId) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[node])
}
