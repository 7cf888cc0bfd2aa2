package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTick_FollowerStartsElectionOnExpiry(t *testing.T) {
	storage := &fakeStorage[string]{currentTerm: 1}
	n, _, _, timer := newTestNode(1, []NodeId{2, 3}, storage)

	timer.expired = ExpiredTimers{Election: true}
	n.Tick()

	require.Equal(t, StateCandidate, n.role)
}

func TestTick_LeaderHeartbeatsOnExpiry(t *testing.T) {
	storage := &fakeStorage[string]{currentTerm: 1}
	n, transport, _, timer := newTestNode(1, []NodeId{2, 3}, storage)
	n.role = StateLeader
	n.replication.InitializeLeaderState(n)

	timer.expired = ExpiredTimers{Heartbeat: true}
	n.Tick()

	require.NotEmpty(t, transport.sent)
	require.Equal(t, 1, timer.heartbeatResets)
}

func TestHandleMessage_StepsDownOnHigherTerm(t *testing.T) {
	storage := &fakeStorage[string]{currentTerm: 1}
	n, _, _, _ := newTestNode(1, []NodeId{2, 3}, storage)
	n.role = StateLeader

	n.HandleMessage(2, AppendEntries[string]{Term: 5, LeaderID: 2})

	require.Equal(t, StateFollower, n.role)
	require.Equal(t, Term(5), n.Term())
	require.Equal(t, NodeId(2), n.Lead())
	_, hasVoted := storage.VotedFor()
	require.False(t, hasVoted)
}

func TestHandleMessage_StepsDownWithoutLeaderOnHigherTermVoteRequest(t *testing.T) {
	storage := &fakeStorage[string]{currentTerm: 1}
	n, _, _, _ := newTestNode(1, []NodeId{2, 3}, storage)
	n.role = StateLeader

	n.HandleMessage(2, RequestVote{Term: 5, CandidateID: 2})

	require.Equal(t, StateFollower, n.role)
	require.Equal(t, NodeId(None), n.Lead(), "a vote request doesn't imply the sender is leader")
}

func TestHandleMessage_RepliesStaleTermToOldRequest(t *testing.T) {
	storage := &fakeStorage[string]{currentTerm: 5}
	n, transport, _, _ := newTestNode(1, []NodeId{2, 3}, storage)

	n.HandleMessage(2, RequestVote{Term: 2, CandidateID: 2})

	require.Len(t, transport.sent, 1)
	resp, ok := transport.sent[0].msg.(RequestVoteResponse)
	require.True(t, ok)
	require.False(t, resp.Granted)
	require.Equal(t, Term(5), resp.Term)
}

func TestSubmit_RejectsWhenNotLeader(t *testing.T) {
	storage := &fakeStorage[string]{currentTerm: 1}
	n, _, _, _ := newTestNode(1, []NodeId{2}, storage)
	n.lead = 2

	_, err := n.Submit("cmd")

	require.Error(t, err)
	var notLeader *NotLeader
	require.ErrorAs(t, err, &notLeader)
	require.NotNil(t, notLeader.Hint)
	require.Equal(t, NodeId(2), *notLeader.Hint)
}

func TestSubmit_AppendsAndCommitsOnSingleNodeCluster(t *testing.T) {
	storage := &fakeStorage[string]{currentTerm: 3}
	n, _, sm, _ := newTestNode(1, nil, storage)
	n.role = StateLeader
	n.replication.InitializeLeaderState(n)

	index, err := n.Submit("cmd1")

	require.NoError(t, err)
	require.Equal(t, LogIndex(1), index)
	require.Equal(t, LogIndex(1), n.replication.commitIndex, "sole node is its own majority")
	require.Equal(t, []string{"cmd1"}, sm.applied)
}

func TestSubmit_RejectsAfterFatalStorageFailure(t *testing.T) {
	storage := &fakeStorage[string]{currentTerm: 1}
	n, _, _, _ := newTestNode(1, []NodeId{2}, storage)
	n.role = StateLeader
	n.dead = true

	_, err := n.Submit("cmd")
	require.Error(t, err)
}

func TestTick_CancellationTokenStopsTimersOnce(t *testing.T) {
	storage := &fakeStorage[string]{currentTerm: 1}
	n, _, _, timer := newTestNode(1, []NodeId{2, 3}, storage)

	n.CancellationToken().Cancel()
	n.Tick()

	require.True(t, n.Stopped())
	require.Equal(t, 1, timer.stops)

	// A second Tick after cancellation is a no-op: it must not stop the
	// timer again or otherwise touch state.
	n.Tick()
	require.Equal(t, 1, timer.stops)
}

func TestTick_CancellationDoesNotSuppressInFlightHandleMessage(t *testing.T) {
	storage := &fakeStorage[string]{currentTerm: 1}
	n, transport, _, _ := newTestNode(1, []NodeId{2, 3}, storage)

	n.CancellationToken().Cancel()
	n.Tick()

	// A driver's bounded grace-period drain still expects HandleMessage to
	// work on whatever was already queued (spec.md §5).
	n.HandleMessage(2, RequestVote{Term: 1, CandidateID: 2})
	require.Len(t, transport.sent, 1)
}

func TestCancellationToken_SharedAcrossNodesCancelsAll(t *testing.T) {
	shared := NewCancellationToken()
	storageA := &fakeStorage[string]{currentTerm: 1}
	storageB := &fakeStorage[string]{currentTerm: 1}

	cfgA := Config[string]{
		SelfID: 1, Peers: newFakeNodeCollection(2), Storage: storageA,
		Transport: &fakeTransport[string]{}, StateMachine: &fakeStateMachine[string]{},
		Timer: &fakeTimer{}, NewMapCollection: newFakeMapCollection,
		NewEntryBatch: newEntrySlice[string], Cancel: shared,
	}
	cfgB := cfgA
	cfgB.SelfID, cfgB.Peers, cfgB.Storage, cfgB.Timer = 2, newFakeNodeCollection(1), storageB, &fakeTimer{}

	nodeA := NewNode[string](cfgA)
	nodeB := NewNode[string](cfgB)

	shared.Cancel()
	nodeA.Tick()
	nodeB.Tick()

	require.True(t, nodeA.Stopped())
	require.True(t, nodeB.Stopped())
}
