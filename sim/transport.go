package sim

import "github.com/raftlab/raftkit/raft"

// Transport is a raft.Transport[P] that enqueues onto a shared Broker.
// Send is fire-and-forget: it never blocks and never reports delivery.
type Transport[P any] struct {
	self   raft.NodeId
	broker *Broker
}

// NewTransport returns a Transport bound to self and broker.
func NewTransport[P any](self raft.NodeId, broker *Broker) *Transport[P] {
	return &Transport[P]{self: self, broker: broker}
}

func (t *Transport[P]) Send(target raft.NodeId, msg raft.Message) {
	t.broker.Enqueue(t.self, target, msg)
}

// EntryBatch is the unbounded, slice-backed raft.LogEntryCollection[P]
// used to carry entries in an AppendEntries over this transport.
type EntryBatch[P any] struct {
	entries []raft.LogEntry[P]
}

// NewEntryBatch wraps entries as a raft.LogEntryCollection[P]. Matches
// the raft.Config.NewEntryBatch factory signature.
func NewEntryBatch[P any](entries []raft.LogEntry[P]) raft.LogEntryCollection[P] {
	return &EntryBatch[P]{entries: entries}
}

func (b *EntryBatch[P]) Len() int                  { return len(b.entries) }
func (b *EntryBatch[P]) At(i int) raft.LogEntry[P] { return b.entries[i] }
func (b *EntryBatch[P]) Slice() []raft.LogEntry[P] { return b.entries }
