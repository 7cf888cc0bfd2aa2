package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartElection_BecomesCandidateAndVotesSelf(t *testing.T) {
	storage := &fakeStorage[string]{currentTerm: 1}
	n, transport, _, timer := newTestNode(1, []NodeId{2, 3}, storage)

	n.election.StartElection(n)

	require.Equal(t, StateCandidate, n.role)
	require.Equal(t, Term(2), storage.CurrentTerm())
	votedFor, hasVoted := storage.VotedFor()
	require.True(t, hasVoted)
	require.Equal(t, NodeId(1), votedFor)
	require.Equal(t, 2, timer.electionResets) // once from NewNode, once from campaign
	require.Len(t, transport.sent, 2)
	for _, s := range transport.sent {
		_, ok := s.msg.(RequestVote)
		require.True(t, ok)
	}
}

func TestStartElection_SingleNodeClusterWinsImmediately(t *testing.T) {
	storage := &fakeStorage[string]{}
	n, _, _, _ := newTestNode(1, nil, storage)

	n.election.StartElection(n)

	require.Equal(t, StateLeader, n.role)
}

func TestHandleRequestVote_GrantsOncePerTerm(t *testing.T) {
	storage := &fakeStorage[string]{currentTerm: 1}
	n, _, _, _ := newTestNode(1, []NodeId{2, 3}, storage)

	resp := n.election.HandleRequestVote(n, 2, RequestVote{Term: 1, CandidateID: 2, LastLogIndex: 0, LastLogTerm: 0})
	require.True(t, resp.Granted)

	// A second candidate in the same term must be refused: P6 vote
	// uniqueness.
	resp2 := n.election.HandleRequestVote(n, 3, RequestVote{Term: 1, CandidateID: 3, LastLogIndex: 0, LastLogTerm: 0})
	require.False(t, resp2.Granted)

	// The same candidate asking again in the same term is still granted
	// (idempotent retry of an already-cast vote).
	resp3 := n.election.HandleRequestVote(n, 2, RequestVote{Term: 1, CandidateID: 2, LastLogIndex: 0, LastLogTerm: 0})
	require.True(t, resp3.Granted)
}

func TestHandleRequestVote_RejectsStaleCandidateLog(t *testing.T) {
	storage := &fakeStorage[string]{
		currentTerm: 3,
		entries:     []LogEntry[string]{{Term: 2, Payload: "a"}, {Term: 3, Payload: "b"}},
	}
	n, _, _, _ := newTestNode(1, []NodeId{2}, storage)

	// Candidate's last entry is term 2, index 1: strictly behind our
	// (term 3, index 2) log. P7 up-to-date vote.
	resp := n.election.HandleRequestVote(n, 2, RequestVote{Term: 3, CandidateID: 2, LastLogIndex: 1, LastLogTerm: 2})
	require.False(t, resp.Granted)
}

func TestIsLogUpToDate(t *testing.T) {
	require.True(t, isLogUpToDate(2, 5, 1, 100))  // higher term wins regardless of index
	require.False(t, isLogUpToDate(1, 100, 2, 5)) // lower term loses regardless of index
	require.True(t, isLogUpToDate(2, 10, 2, 5))   // tie on term: longer index wins
	require.True(t, isLogUpToDate(2, 5, 2, 5))    // tie on both: up to date
	require.False(t, isLogUpToDate(2, 4, 2, 5))   // tie on term: shorter index loses
}

func TestMaybeBecomeLeader_RequiresQuorum(t *testing.T) {
	storage := &fakeStorage[string]{currentTerm: 1}
	n, transport, _, _ := newTestNode(1, []NodeId{2, 3, 4, 5}, storage)

	n.election.StartElection(n)
	require.Equal(t, StateCandidate, n.role)

	n.election.HandleRequestVoteResponse(n, 2, RequestVoteResponse{Term: 2, Granted: true})
	require.Equal(t, StateCandidate, n.role, "2 of 5 votes (self+1) is not yet quorum")

	n.election.HandleRequestVoteResponse(n, 3, RequestVoteResponse{Term: 2, Granted: true})
	require.Equal(t, StateLeader, n.role, "3 of 5 votes reaches quorum")

	var sawHeartbeat bool
	for _, s := range transport.sent {
		if ae, ok := s.msg.(AppendEntries[string]); ok && ae.Entries.Len() == 0 {
			sawHeartbeat = true
		}
	}
	require.True(t, sawHeartbeat, "new leader broadcasts an initial heartbeat")
}
