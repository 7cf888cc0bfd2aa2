package raft

import (
	"fmt"
	"sort"

	"github.com/pingcap/log"
)

// LogReplicationManager owns the leader-side next_index/match_index
// tables plus commit_index/last_applied, which are volatile on every
// node (spec.md §3). Leader-side operations build and interpret
// AppendEntries traffic; the follower-side operation validates and
// applies it.
type LogReplicationManager[P any] struct {
	nextIndex  MapCollection
	matchIndex MapCollection

	commitIndex LogIndex
	lastApplied LogIndex

	newEntries func([]LogEntry[P]) LogEntryCollection[P]
}

func newLogReplicationManager[P any](
	newMap func() MapCollection,
	newEntries func([]LogEntry[P]) LogEntryCollection[P],
) *LogReplicationManager[P] {
	return &LogReplicationManager[P]{
		nextIndex:  newMap(),
		matchIndex: newMap(),
		newEntries: newEntries,
	}
}

// InitializeLeaderState resets next_index/match_index for every peer on
// becoming leader: next_index starts at our own last index + 1,
// match_index starts at 0.
func (lr *LogReplicationManager[P]) InitializeLeaderState(n *Node[P]) {
	last := n.storage.LastLogIndex()
	for _, peer := range n.peers.Nodes() {
		if err := lr.nextIndex.Set(peer, uint64(last)+1); err != nil {
			n.fail(newStorageError("initialize next_index", err))
			return
		}
		if err := lr.matchIndex.Set(peer, 0); err != nil {
			n.fail(newStorageError("initialize match_index", err))
			return
		}
	}
}

// BroadcastAppendEntries sends every peer an AppendEntries carrying
// whatever entries follow that peer's next_index (possibly none, i.e. a
// heartbeat).
func (lr *LogReplicationManager[P]) BroadcastAppendEntries(n *Node[P]) {
	term := n.storage.CurrentTerm()
	for _, peer := range n.peers.Nodes() {
		next, ok := lr.nextIndex.Get(peer)
		if !ok {
			continue
		}
		prevLogIndex := LogIndex(0)
		if next > 0 {
			prevLogIndex = LogIndex(next - 1)
		}
		prevLogTerm := n.storage.TermAt(prevLogIndex)
		entries := n.storage.GetEntries(LogIndex(next), n.storage.LastLogIndex()+1)

		n.transport.Send(peer, AppendEntries[P]{
			Term:         term,
			LeaderID:     n.id,
			PrevLogIndex: prevLogIndex,
			PrevLogTerm:  prevLogTerm,
			Entries:      lr.newEntries(entries),
			LeaderCommit: lr.commitIndex,
		})
	}
}

// HandleAppendEntriesResponse updates next_index/match_index for the
// responding peer and, on success, attempts to advance commit_index.
// Inconsistent reports never decrease the stored match_index.
func (lr *LogReplicationManager[P]) HandleAppendEntriesResponse(n *Node[P], from NodeId, msg AppendEntriesResponse) {
	if n.role != StateLeader || msg.Term != n.storage.CurrentTerm() {
		return
	}

	if msg.Success {
		cur, _ := lr.matchIndex.Get(from)
		if uint64(msg.MatchIndex) > cur {
			if err := lr.matchIndex.Set(from, uint64(msg.MatchIndex)); err != nil {
				n.fail(newStorageError("update match_index", err))
				return
			}
		}
		newMatch, _ := lr.matchIndex.Get(from)
		if err := lr.nextIndex.Set(from, newMatch+1); err != nil {
			n.fail(newStorageError("update next_index", err))
			return
		}
		lr.maybeAdvanceCommit(n)
		return
	}

	next, ok := lr.nextIndex.Get(from)
	if !ok || next <= 1 {
		return
	}
	if err := lr.nextIndex.Set(from, next-1); err != nil {
		n.fail(newStorageError("back off next_index", err))
	}
}

// maybeAdvanceCommit computes the highest N > commit_index replicated on
// a majority (counting ourselves, whose match_index is always our own
// last log index) whose entry was appended in the current term, and
// applies newly committed entries to the state machine.
func (lr *LogReplicationManager[P]) maybeAdvanceCommit(n *Node[P]) {
	clusterSize := n.peers.Len() + 1
	matches := make([]LogIndex, 0, clusterSize)
	matches = append(matches, n.storage.LastLogIndex())
	for _, peer := range n.peers.Nodes() {
		v, ok := lr.matchIndex.Get(peer)
		if !ok {
			v = 0
		}
		matches = append(matches, LogIndex(v))
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] > matches[j] })

	candidate := matches[quorum(clusterSize)-1]
	if candidate <= lr.commitIndex {
		return
	}
	if n.storage.TermAt(candidate) != n.storage.CurrentTerm() {
		return
	}

	lr.commitIndex = candidate
	log.Info(fmt.Sprintf("%d advanced commit_index to %d", n.id, lr.commitIndex))
	lr.applyCommitted(n)
}

// HandleAppendEntries validates and applies an inbound AppendEntries,
// following the follower-side steps of spec.md §4.3.
func (lr *LogReplicationManager[P]) HandleAppendEntries(n *Node[P], from NodeId, msg AppendEntries[P]) AppendEntriesResponse {
	currentTerm := n.storage.CurrentTerm()
	if msg.Term < currentTerm {
		return AppendEntriesResponse{Term: currentTerm, Success: false, MatchIndex: 0}
	}

	if n.role == StateCandidate {
		n.role = StateFollower
	}
	n.lead = from
	n.timer.ResetElectionTimer()

	if msg.PrevLogIndex > 0 {
		if n.storage.LastLogIndex() < msg.PrevLogIndex || n.storage.TermAt(msg.PrevLogIndex) != msg.PrevLogTerm {
			log.Debug(fmt.Sprintf("%d rejected AppendEntries from %d: prev log mismatch at index %d", n.id, from, msg.PrevLogIndex))
			return AppendEntriesResponse{Term: currentTerm, Success: false, MatchIndex: 0}
		}
	}

	var entries []LogEntry[P]
	if msg.Entries != nil {
		entries = msg.Entries.Slice()
	}
	for k, entry := range entries {
		idx := msg.PrevLogIndex + 1 + LogIndex(k)
		if idx <= n.storage.LastLogIndex() {
			if n.storage.TermAt(idx) == entry.Term {
				continue // already present and matching: idempotent, leave untouched
			}
			if err := n.storage.TruncateFrom(idx); err != nil {
				n.fail(newStorageError("truncate conflicting suffix", err))
				return AppendEntriesResponse{Term: currentTerm, Success: false, MatchIndex: 0}
			}
		}
		if err := n.storage.AppendLogEntries(entries[k:]); err != nil {
			n.fail(newStorageError("append new entries", err))
			return AppendEntriesResponse{Term: currentTerm, Success: false, MatchIndex: 0}
		}
		break
	}

	if msg.LeaderCommit > lr.commitIndex {
		newCommit := msg.LeaderCommit
		if n.storage.LastLogIndex() < newCommit {
			newCommit = n.storage.LastLogIndex()
		}
		lr.commitIndex = newCommit
		lr.applyCommitted(n)
	}

	return AppendEntriesResponse{Term: currentTerm, Success: true, MatchIndex: n.storage.LastLogIndex()}
}

// applyCommitted applies every entry in (last_applied, commit_index] to
// the state machine, strictly in order, each entry applied exactly once.
func (lr *LogReplicationManager[P]) applyCommitted(n *Node[P]) {
	for lr.lastApplied < lr.commitIndex {
		next := lr.lastApplied + 1
		entries := n.storage.GetEntries(next, next+1)
		if len(entries) == 0 {
			break
		}
		n.stateMachine.Apply(entries[0])
		lr.lastApplied = next
	}
}
