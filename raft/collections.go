package raft

// NodeCollection is an insertion-order list of peer NodeIds with a
// capacity that may be bounded (embedded target) or unbounded (hosted
// simulation). Push is the only mutator that can fail: the core never
// silently truncates a peer list.
type NodeCollection interface {
	Push(id NodeId) error
	Len() int
	IsEmpty() bool
	Clear()
	Nodes() []NodeId
}

// MapCollection is a finite map from NodeId to a uint64 counter, used for
// the leader's next_index and match_index tables. Like NodeCollection its
// capacity may be bounded or unbounded depending on the driver.
type MapCollection interface {
	Get(id NodeId) (uint64, bool)
	Set(id NodeId, v uint64) error
	Keys() []NodeId
	Len() int
}
