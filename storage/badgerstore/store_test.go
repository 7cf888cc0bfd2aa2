package badgerstore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raftlab/raftkit/raft"
	"github.com/raftlab/raftkit/storage/badgerstore"
)

func TestStore_PersistsTermVoteAndLogAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := badgerstore.Open[string](dir)
	require.NoError(t, err)

	require.NoError(t, store.SetCurrentTerm(7))
	require.NoError(t, store.SetVotedFor(3, true))
	require.NoError(t, store.AppendLogEntries([]raft.LogEntry[string]{
		{Term: 7, Payload: "cmd1"},
		{Term: 7, Payload: "cmd2"},
	}))
	require.NoError(t, store.Close())

	reopened, err := badgerstore.Open[string](dir)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, raft.Term(7), reopened.CurrentTerm())
	votedFor, hasVoted := reopened.VotedFor()
	require.True(t, hasVoted)
	require.Equal(t, raft.NodeId(3), votedFor)
	require.Equal(t, raft.LogIndex(2), reopened.LastLogIndex())
	require.Equal(t, raft.Term(7), reopened.LastLogTerm())

	entries := reopened.GetEntries(1, 3)
	require.Len(t, entries, 2)
	require.Equal(t, "cmd1", entries[0].Payload)
	require.Equal(t, "cmd2", entries[1].Payload)
}

func TestStore_TruncateFromRemovesSuffixAndFixesLastTerm(t *testing.T) {
	dir := t.TempDir()
	store, err := badgerstore.Open[string](dir)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.AppendLogEntries([]raft.LogEntry[string]{
		{Term: 1, Payload: "a"},
		{Term: 1, Payload: "b"},
		{Term: 2, Payload: "c"},
	}))

	require.NoError(t, store.TruncateFrom(2))

	require.Equal(t, raft.LogIndex(1), store.LastLogIndex())
	require.Equal(t, raft.Term(1), store.LastLogTerm())
	require.Empty(t, store.GetEntries(2, 10))
}

func TestStore_ClearingVoteRemovesIt(t *testing.T) {
	dir := t.TempDir()
	store, err := badgerstore.Open[string](dir)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SetVotedFor(9, true))
	_, ok := store.VotedFor()
	require.True(t, ok)

	require.NoError(t, store.SetVotedFor(0, false))
	_, ok = store.VotedFor()
	require.False(t, ok)
}
