package sim

import (
	"math/rand"
	"sort"
	"time"

	"github.com/raftlab/raftkit/raft"
)

// Cluster wires N in-process nodes together over a shared Broker, each
// with its own Storage/StateMachine/ClockTimer, and drives them with
// Tick/deliver loops. It is the hosted analogue of the original
// raft-sim crate's harness: used both by property tests (P1-P7) and by
// the `raftnode sim` CLI subcommand.
type Cluster[P any] struct {
	broker *Broker
	nodes  map[raft.NodeId]*raft.Node[P]
	sms    map[raft.NodeId]*StateMachine[P]
	rnd    *rand.Rand
	cancel raft.CancellationToken

	// DropRate is the probability, in [0,1), that a dequeued message is
	// discarded instead of delivered. Zero by default (no induced loss).
	DropRate float64
}

// NewCluster builds a Cluster of n nodes numbered 1..n, each configured
// with the given base election timeout and heartbeat interval. seed
// drives both per-node timer jitter and this Cluster's own drop
// decisions. The Cluster never reorders messages: each node's queue is
// delivered in FIFO order.
func NewCluster[P any](n int, baseElection, heartbeat time.Duration, seed int64) *Cluster[P] {
	c := &Cluster[P]{
		broker: NewBroker(),
		nodes:  make(map[raft.NodeId]*raft.Node[P]),
		sms:    make(map[raft.NodeId]*StateMachine[P]),
		rnd:    rand.New(rand.NewSource(seed)),
		cancel: raft.NewCancellationToken(),
	}

	ids := make([]raft.NodeId, n)
	for i := 0; i < n; i++ {
		ids[i] = raft.NodeId(i + 1)
	}

	for i, id := range ids {
		peers := NewNodeCollection()
		for j, other := range ids {
			if j != i {
				peers.Push(other)
			}
		}
		sm := NewStateMachine[P]()
		c.sms[id] = sm
		cfg := raft.Config[P]{
			SelfID:           id,
			Peers:            peers,
			Storage:          NewStorage[P](),
			Transport:        NewTransport[P](id, c.broker),
			StateMachine:     sm,
			Timer:            NewClockTimer(baseElection, heartbeat, seed+int64(id)),
			ElectionTimeoutT: int(baseElection / time.Millisecond),
			NewMapCollection: NewMapCollection,
			NewEntryBatch:    NewEntryBatch[P],
			Cancel:           c.cancel,
		}
		c.nodes[id] = raft.NewNode[P](cfg)
	}

	return c
}

// Tick advances every node's timer-driven logic by one step.
func (c *Cluster[P]) Tick() {
	for _, n := range c.nodes {
		n.Tick()
	}
}

// DeliverPending drains every node's inbound queue once, applying
// Cluster.DropRate to simulate an unreliable network. It returns the
// number of messages actually delivered.
func (c *Cluster[P]) DeliverPending() int {
	delivered := 0
	for id, n := range c.nodes {
		for {
			from, msg, ok := c.broker.Dequeue(id)
			if !ok {
				break
			}
			if c.DropRate > 0 && c.rnd.Float64() < c.DropRate {
				continue
			}
			n.HandleMessage(from, msg)
			delivered++
		}
	}
	return delivered
}

// Step runs one simulation round: deliver everything pending, then tick
// every node once. Most tests drive the cluster by calling Step in a
// loop until a convergence predicate holds.
func (c *Cluster[P]) Step() {
	c.DeliverPending()
	c.Tick()
}

// Node returns the node with the given id, or nil if none exists.
func (c *Cluster[P]) Node(id raft.NodeId) *raft.Node[P] { return c.nodes[id] }

// Nodes returns every node id in the cluster, in construction order.
func (c *Cluster[P]) Nodes() []raft.NodeId {
	ids := make([]raft.NodeId, 0, len(c.nodes))
	for id := range c.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Applied returns the sequence of payloads the given node's state
// machine has applied so far.
func (c *Cluster[P]) Applied(id raft.NodeId) []P {
	sm, ok := c.sms[id]
	if !ok {
		return nil
	}
	return sm.Applied
}

// Leader returns the id of the node that currently believes itself
// Leader, and true, or (0, false) if none does. Panics on disagreement
// are deliberately not checked here — that belongs to a property test,
// not the harness.
func (c *Cluster[P]) Leader() (raft.NodeId, bool) {
	for id, n := range c.nodes {
		if n.Role() == raft.StateLeader && !n.Dead() {
			return id, true
		}
	}
	return 0, false
}

// Submit routes payload directly to the given node, as a local client
// would via ClientSubmit.
func (c *Cluster[P]) Submit(id raft.NodeId, payload P) (raft.LogIndex, error) {
	n, ok := c.nodes[id]
	if !ok {
		return 0, &raft.NotLeader{}
	}
	return n.Submit(payload)
}

// maxShutdownDrainRounds bounds how many rounds Shutdown spends draining
// in-flight traffic, matching spec.md §5's "bounded grace period" rather
// than waiting for every broker queue to empty unconditionally.
const maxShutdownDrainRounds = 64

// Shutdown cancels the token shared by every node in the cluster — one
// call reaches all of them, the way the original embassy-sim driver's
// single cancel() reaches every spawned node task sharing its cloned
// CancellationToken — ticks each node once so it stops its own timers,
// then drains whatever traffic is still in flight for up to
// maxShutdownDrainRounds rounds.
func (c *Cluster[P]) Shutdown() {
	c.cancel.Cancel()
	c.Tick()
	for i := 0; i < maxShutdownDrainRounds; i++ {
		if c.DeliverPending() == 0 {
			return
		}
	}
}
