// Package sim implements the hosted, real-clock, unbounded drivers used
// for in-process multi-node testing and for the `raftnode sim` demo
// cluster. It plays the role the original raft-sim crate plays for the
// Rust reference implementation this module's spec was distilled from:
// InMemory* ports plus a mutex-guarded MessageBroker.
package sim

import "github.com/raftlab/raftkit/raft"

// NodeCollection is an unbounded, insertion-order peer list. Push never
// fails: the hosted simulation has no compiled-in capacity ceiling.
type NodeCollection struct {
	nodes []raft.NodeId
}

// NewNodeCollection returns an empty, unbounded NodeCollection.
func NewNodeCollection() *NodeCollection {
	return &NodeCollection{}
}

func (c *NodeCollection) Push(id raft.NodeId) error {
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

// MapCollection is an unbounded NodeId -> uint64 map, used for next_index
// and match_index on the hosted driver path.
type MapCollection struct {
	values map[raft.NodeId]uint64
}

// NewMapCollection returns an empty, unbounded MapCollection. Matches the
// raft.Config.NewMapCollection factory signature.
func NewMapCollection() raft.MapCollection {
	return &MapCollection{values: make(map[raft.NodeId]uint64)}
}

func (m *MapCollection) Get(id raft.NodeId) (uint64, bool) {
	v, ok := m.values[id]
	return v, ok
}

func (m *MapCollection) Set(id raft.NodeId, v uint64) error {
	m.values[id] = v
	return nil
}

func (m *MapCollection) Keys() []raft.NodeId {
	keys := make([]raft.NodeId, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	return keys
}

func (m *MapCollection) Len() int { return len(m.values) }
