// Package embedded provides bounded-capacity ports modeling the
// constraints of a microcontroller-class deployment: a fixed-size peer
// table and progress map, and a monotonic logical clock instead of a
// wall clock. It plays the role the original raft-embassy-sim crate
// plays on real embedded hardware, without requiring one: capacity is
// still enforced, but Push/Set run on the host.
package embedded

import "github.com/raftlab/raftkit/raft"

// NodeCollection is a fixed-capacity peer list. Push beyond capacity
// returns raft.ErrCollectionFull rather than growing, matching the
// embedded target's "push returning Full is the only capacity error"
// design note.
type NodeCollection struct {
	nodes []raft.NodeId
	cap   int
}

// NewNodeCollection returns an empty NodeCollection that rejects the
// (capacity+1)th Push.
func NewNodeCollection(capacity int) *NodeCollection {
	return &NodeCollection{nodes: make([]raft.NodeId, 0, capacity), cap: capacity}
}

func (c *NodeCollection) Push(id raft.NodeId) error {
	if len(c.nodes) >= c.cap {
		return raft.ErrCollectionFull
	}
	c.nodes = append(c.nodes, id)
	return nil
}

func (c *NodeCollection) Len() int      { return len(c.nodes) }
func (c *NodeCollection) IsEmpty() bool { return len(c.nodes) == 0 }
func (c *NodeCollection) Clear()        { c.nodes = c.nodes[:0] }

func (c *NodeCollection) Nodes() []raft.NodeId {
	out := make([]raft.NodeId, len(c.nodes))
	copy(out, c.nodes)
	return out
}

// MapCollection is a fixed-capacity NodeId -> uint64 map, used for
// next_index/match_index on the embedded driver path. Set on a key not
// already present fails with raft.ErrCollectionFull once at capacity;
// updating an existing key always succeeds.
type MapCollection struct {
	keys   []raft.NodeId
	values map[raft.NodeId]uint64
	cap    int
}

// NewMapCollection returns an empty MapCollection bounded at capacity
// entries. Because it takes a capacity, it does not itself fit the
// raft.Config.NewMapCollection factory signature;
// NewMapCollectionFactory binds a capacity into a factory that does.
func NewMapCollection(capacity int) *MapCollection {
	return &MapCollection{values: make(map[raft.NodeId]uint64, capacity), cap: capacity}
}

// NewMapCollectionFactory returns a raft.Config.NewMapCollection-shaped
// factory bound to a fixed capacity, so one bounded cluster size can be
// threaded through every node's replication manager.
func NewMapCollectionFactory(capacity int) func() raft.MapCollection {
	return func() raft.MapCollection { return NewMapCollection(capacity) }
}

func (m *MapCollection) Get(id raft.NodeId) (uint64, bool) {
	v, ok := m.values[id]
	return v, ok
}

func (m *MapCollection) Set(id raft.NodeId, v uint64) error {
	if _, exists := m.values[id]; !exists && len(m.values) >= m.cap {
		return raft.ErrCollectionFull
	}
	if _, exists := m.values[id]; !exists {
		m.keys = append(m.keys, id)
	}
	m.values[id] = v
	return nil
}

func (m *MapCollection) Keys() []raft.NodeId {
	out := make([]raft.NodeId, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *MapCollection) Len() int { return len(m.values) }
