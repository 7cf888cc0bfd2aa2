package raft

import (
	"fmt"

	"github.com/pingcap/log"
)

// ElectionManager owns the candidate-side bookkeeping: who has voted for
// us this term, and whether we've already converted that into a win.
// State transitions (spec.md §4.2):
//
//	Follower  --(election timeout)--> Candidate
//	Candidate --(quorum votes)------> Leader
//	Candidate --(higher term seen)--> Follower
//	Candidate --(election timeout)--> Candidate (new term)
//	Leader    --(higher term seen)--> Follower
type ElectionManager[P any] struct {
	votesGranted map[NodeId]bool
}

func newElectionManager[P any]() *ElectionManager[P] {
	return &ElectionManager[P]{votesGranted: make(map[NodeId]bool)}
}

// StartElection increments the term, becomes Candidate, votes for self,
// and broadcasts RequestVote to every peer. Called on election timeout
// (Follower or Candidate) — including the split-vote retry, which simply
// starts a fresh election at term+1.
func (em *ElectionManager[P]) StartElection(n *Node[P]) {
	term := n.storage.CurrentTerm() + 1
	if err := n.storage.SetCurrentTerm(term); err != nil {
		n.fail(newStorageError("persist new term on campaign", err))
		return
	}
	n.term = term
	if err := n.storage.SetVotedFor(n.id, true); err != nil {
		n.fail(newStorageError("persist self vote on campaign", err))
		return
	}
	n.role = StateCandidate
	n.lead = None

	em.votesGranted = make(map[NodeId]bool, n.peers.Len()+1)
	em.votesGranted[n.id] = true

	n.timer.ResetElectionTimer()

	log.Info(fmt.Sprintf("%d is starting a new election at term %d", n.id, term))

	lastIndex := n.storage.LastLogIndex()
	lastTerm := n.storage.LastLogTerm()
	for _, peer := range n.peers.Nodes() {
		n.transport.Send(peer, RequestVote{
			Term:         term,
			CandidateID:  n.id,
			LastLogIndex: lastIndex,
			LastLogTerm:  lastTerm,
		})
	}

	// Single-node cluster: the self-vote above is already a quorum.
	em.maybeBecomeLeader(n)
}

// HandleRequestVote decides whether to grant a vote. The caller (Node)
// has already applied the universal higher-term preamble; by the time
// this runs, msg.Term <= n.currentTerm.
func (em *ElectionManager[P]) HandleRequestVote(n *Node[P], from NodeId, msg RequestVote) RequestVoteResponse {
	if msg.Term < n.storage.CurrentTerm() {
		return RequestVoteResponse{Term: n.storage.CurrentTerm(), Granted: false}
	}

	votedFor, hasVoted := n.storage.VotedFor()
	canVote := !hasVoted || votedFor == msg.CandidateID
	upToDate := isLogUpToDate(msg.LastLogTerm, msg.LastLogIndex, n.storage.LastLogTerm(), n.storage.LastLogIndex())

	if canVote && upToDate {
		if err := n.storage.SetVotedFor(msg.CandidateID, true); err != nil {
			n.fail(newStorageError("persist vote grant", err))
			return RequestVoteResponse{Term: n.storage.CurrentTerm(), Granted: false}
		}
		n.timer.ResetElectionTimer()
		log.Info(fmt.Sprintf("%d granted vote to %d at term %d", n.id, msg.CandidateID, msg.Term))
		return RequestVoteResponse{Term: n.storage.CurrentTerm(), Granted: true}
	}

	log.Debug(fmt.Sprintf("%d rejected vote for %d at term %d (canVote=%t upToDate=%t)",
		n.id, msg.CandidateID, msg.Term, canVote, upToDate))
	return RequestVoteResponse{Term: n.storage.CurrentTerm(), Granted: false}
}

// isLogUpToDate implements the spec.md §4.2 comparison: a candidate's log
// is at least as up-to-date as ours iff its last term is higher, or the
// terms tie and its last index is at least ours.
func isLogUpToDate(candidateLastTerm Term, candidateLastIndex LogIndex, ourLastTerm Term, ourLastIndex LogIndex) bool {
	if candidateLastTerm != ourLastTerm {
		return candidateLastTerm > ourLastTerm
	}
	return candidateLastIndex >= ourLastIndex
}

// HandleRequestVoteResponse tallies a vote and, on reaching quorum,
// converts the win into a leader transition.
func (em *ElectionManager[P]) HandleRequestVoteResponse(n *Node[P], from NodeId, msg RequestVoteResponse) {
	if n.role != StateCandidate || msg.Term != n.storage.CurrentTerm() {
		return
	}
	if msg.Granted {
		em.votesGranted[from] = true
		em.maybeBecomeLeader(n)
	}
}

func (em *ElectionManager[P]) maybeBecomeLeader(n *Node[P]) {
	if n.role != StateCandidate {
		return
	}
	clusterSize := n.peers.Len() + 1
	if len(em.votesGranted) < quorum(clusterSize) {
		return
	}

	n.role = StateLeader
	n.lead = n.id
	n.replication.InitializeLeaderState(n)
	n.timer.StopTimers()
	n.timer.ResetHeartbeatTimer()

	log.Info(fmt.Sprintf("%d became leader at term %d", n.id, n.storage.CurrentTerm()))

	n.replication.BroadcastAppendEntries(n)
}
