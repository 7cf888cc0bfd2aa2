package sim

import (
	"github.com/google/btree"
	"github.com/raftlab/raftkit/raft"
)

// entryItem adapts a single log entry to btree.Item, ordered by index.
type entryItem[P any] struct {
	index uint64
	entry raft.LogEntry[P]
}

func (e *entryItem[P]) Less(than btree.Item) bool {
	return e.index < than.(*entryItem[P]).index
}

// Storage is an in-memory raft.Storage[P] for the hosted simulation. Log
// entries live in a google/btree ordered by index so TermAt/GetEntries
// run in O(log n) instead of a linear scan, matching how a real WAL-
// backed implementation would index by position. current_term and
// voted_for are plain fields: nothing here survives a process restart,
// which is exactly what distinguishes this driver from
// storage/badgerstore.
type Storage[P any] struct {
	currentTerm raft.Term
	votedFor    raft.NodeId
	hasVoted    bool

	log       *btree.BTree
	lastIndex raft.LogIndex
	lastTerm  raft.Term
}

// NewStorage returns an empty Storage with current_term 0 and no vote.
func NewStorage[P any]() *Storage[P] {
	return &Storage[P]{log: btree.New(32)}
}

func (s *Storage[P]) CurrentTerm() raft.Term { return s.currentTerm }

func (s *Storage[P]) SetCurrentTerm(t raft.Term) error {
	s.currentTerm = t
	return nil
}

func (s *Storage[P]) VotedFor() (raft.NodeId, bool) { return s.votedFor, s.hasVoted }

func (s *Storage[P]) SetVotedFor(id raft.NodeId, ok bool) error {
	s.votedFor = id
	s.hasVoted = ok
	return nil
}

func (s *Storage[P]) AppendLogEntries(entries []raft.LogEntry[P]) error {
	for _, e := range entries {
		s.lastIndex++
		s.log.ReplaceOrInsert(&entryItem[P]{index: uint64(s.lastIndex), entry: e})
		s.lastTerm = e.Term
	}
	return nil
}

func (s *Storage[P]) TruncateFrom(from raft.LogIndex) error {
	if from == 0 {
		from = 1
	}
	if from > s.lastIndex {
		return nil
	}
	var toDelete []btree.Item
	s.log.AscendGreaterOrEqual(&entryItem[P]{index: uint64(from)}, func(item btree.Item) bool {
		toDelete = append(toDelete, item)
		return true
	})
	for _, item := range toDelete {
		s.log.Delete(item)
	}
	s.lastIndex = from - 1
	s.lastTerm = s.TermAt(s.lastIndex)
	return nil
}

func (s *Storage[P]) GetEntries(from, toExclusive raft.LogIndex) []raft.LogEntry[P] {
	if toExclusive <= from {
		return nil
	}
	var out []raft.LogEntry[P]
	s.log.AscendRange(
		&entryItem[P]{index: uint64(from)},
		&entryItem[P]{index: uint64(toExclusive)},
		func(item btree.Item) bool {
			out = append(out, item.(*entryItem[P]).entry)
			return true
		},
	)
	return out
}

func (s *Storage[P]) TermAt(index raft.LogIndex) raft.Term {
	if index == 0 {
		return 0
	}
	item := s.log.Get(&entryItem[P]{index: uint64(index)})
	if item == nil {
		return 0
	}
	return item.(*entryItem[P]).entry.Term
}

func (s *Storage[P]) LastLogIndex() raft.LogIndex { return s.lastIndex }
func (s *Storage[P]) LastLogTerm() raft.Term      { return s.lastTerm }
