package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Scenario 1: accept entries from the current leader into an empty log.
func TestHandleAppendEntries_AcceptsFromCurrentLeader(t *testing.T) {
	storage := &fakeStorage[string]{currentTerm: 2}
	n, _, _, _ := newTestNode(1, []NodeId{2, 3}, storage)

	msg := AppendEntries[string]{
		Term:         2,
		LeaderID:     2,
		PrevLogIndex: 0,
		PrevLogTerm:  0,
		Entries: newEntrySlice([]LogEntry[string]{
			{Term: 2, Payload: "cmd1"},
			{Term: 2, Payload: "cmd2"},
		}),
		LeaderCommit: 2,
	}

	resp := n.replication.HandleAppendEntries(n, 2, msg)

	require.Equal(t, Term(2), resp.Term)
	require.True(t, resp.Success)
	require.Equal(t, LogIndex(2), resp.MatchIndex)
	require.Equal(t, LogIndex(2), storage.LastLogIndex())
	require.Equal(t, LogIndex(2), n.replication.commitIndex)
}

// Scenario 2: stale term is rejected and storage is untouched.
func TestHandleAppendEntries_RejectsStaleTerm(t *testing.T) {
	storage := &fakeStorage[string]{currentTerm: 5}
	n, _, _, _ := newTestNode(1, []NodeId{2, 3}, storage)

	resp := n.replication.HandleAppendEntries(n, 2, AppendEntries[string]{Term: 3, LeaderID: 2})

	require.False(t, resp.Success)
	require.Equal(t, Term(5), resp.Term)
	require.Equal(t, LogIndex(0), storage.LastLogIndex())
}

// Scenario 3: prev-log term mismatch is rejected.
func TestHandleAppendEntries_RejectsPrevLogMismatch(t *testing.T) {
	storage := &fakeStorage[string]{
		currentTerm: 3,
		entries:     []LogEntry[string]{{Term: 1, Payload: "old"}},
	}
	n, _, _, _ := newTestNode(1, []NodeId{2, 3}, storage)

	resp := n.replication.HandleAppendEntries(n, 2, AppendEntries[string]{
		Term: 3, LeaderID: 2, PrevLogIndex: 1, PrevLogTerm: 2,
	})

	require.False(t, resp.Success)
}

// Scenario 4: conflicting suffix is truncated and replaced.
func TestHandleAppendEntries_TruncatesOnConflict(t *testing.T) {
	storage := &fakeStorage[string]{
		currentTerm: 2,
		entries: []LogEntry[string]{
			{Term: 1, Payload: "a"},
			{Term: 1, Payload: "b"},
			{Term: 1, Payload: "c"},
		},
	}
	n, _, _, _ := newTestNode(1, []NodeId{2, 3}, storage)

	resp := n.replication.HandleAppendEntries(n, 2, AppendEntries[string]{
		Term: 2, LeaderID: 2, PrevLogIndex: 1, PrevLogTerm: 1,
		Entries:      newEntrySlice([]LogEntry[string]{{Term: 2, Payload: "b'"}}),
		LeaderCommit: 2,
	})

	require.True(t, resp.Success)
	require.Equal(t, LogIndex(2), storage.LastLogIndex())
	require.Equal(t, "a", storage.entries[0].Payload)
	require.Equal(t, "b'", storage.entries[1].Payload)
}

// Scenario 5: commit_index advances to the majority match index, in a
// 5-node cluster, and does not advance past whatever isn't yet on a
// majority.
func TestMaybeAdvanceCommit_MajorityInFiveNodeCluster(t *testing.T) {
	storage := &fakeStorage[string]{
		currentTerm: 2,
		entries: []LogEntry[string]{
			{Term: 2, Payload: "1"}, {Term: 2, Payload: "2"}, {Term: 2, Payload: "3"},
			{Term: 2, Payload: "4"}, {Term: 2, Payload: "5"},
		},
	}
	n, _, _, _ := newTestNode(1, []NodeId{2, 3, 4, 5}, storage)
	n.role = StateLeader
	n.replication.InitializeLeaderState(n)

	n.replication.matchIndex.Set(2, 3)
	n.replication.matchIndex.Set(3, 3)
	n.replication.maybeAdvanceCommit(n)
	require.Equal(t, LogIndex(3), n.replication.commitIndex)

	n.replication.matchIndex.Set(4, 5)
	n.replication.maybeAdvanceCommit(n)
	require.Equal(t, LogIndex(3), n.replication.commitIndex, "only self and peer4 are at >=4, so the quorum line stays at 3")

	n.replication.matchIndex.Set(5, 4)
	n.replication.maybeAdvanceCommit(n)
	require.Equal(t, LogIndex(4), n.replication.commitIndex)
}

// Scenario 6: only current-term entries are ever committed directly;
// once one is, earlier-term entries beneath it cascade-apply.
func TestMaybeAdvanceCommit_OnlyCurrentTermDirectly(t *testing.T) {
	storage := &fakeStorage[string]{
		currentTerm: 3,
		entries: []LogEntry[string]{
			{Term: 1, Payload: "old1"},
			{Term: 2, Payload: "old2"},
			{Term: 3, Payload: "new1"},
		},
	}
	n, _, sm, _ := newTestNode(1, []NodeId{2, 3}, storage)
	n.role = StateLeader
	n.replication.InitializeLeaderState(n)

	n.replication.matchIndex.Set(2, 2)
	n.replication.maybeAdvanceCommit(n)
	require.Equal(t, LogIndex(0), n.replication.commitIndex)

	n.replication.matchIndex.Set(2, 3)
	n.replication.maybeAdvanceCommit(n)
	require.Equal(t, LogIndex(3), n.replication.commitIndex)
	require.Equal(t, []string{"old1", "old2", "new1"}, sm.applied)
}
