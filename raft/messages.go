package raft

import "github.com/google/uuid"

// Message is the marker interface implemented by every wire variant the
// core sends and receives. Field order within each struct is fixed for
// wire compatibility, per spec.md §6.1.
type Message interface {
	isRaftMessage()
}

// RequestVote is sent by a candidate to every peer at the start of an
// election.
type RequestVote struct {
	Term         Term
	CandidateID  NodeId
	LastLogIndex LogIndex
	LastLogTerm  Term
}

func (RequestVote) isRaftMessage() {}
func (m RequestVote) termValue() (Term, bool) { return m.Term, true }
func (RequestVote) isRequest() bool           { return true }

// RequestVoteResponse answers a RequestVote.
type RequestVoteResponse struct {
	Term    Term
	Granted bool
}

func (RequestVoteResponse) isRaftMessage() {}
func (m RequestVoteResponse) termValue() (Term, bool) { return m.Term, true }
func (RequestVoteResponse) isRequest() bool           { return false }

// AppendEntries is sent by the leader, either as a heartbeat (Entries
// empty) or carrying new log entries to replicate.
type AppendEntries[P any] struct {
	Term         Term
	LeaderID     NodeId
	PrevLogIndex LogIndex
	PrevLogTerm  Term
	Entries      LogEntryCollection[P]
	LeaderCommit LogIndex
}

func (AppendEntries[P]) isRaftMessage() {}
func (m AppendEntries[P]) termValue() (Term, bool) { return m.Term, true }
func (AppendEntries[P]) isRequest() bool           { return true }
func (AppendEntries[P]) isLeaderBearing() bool     { return true }

// AppendEntriesResponse answers an AppendEntries.
type AppendEntriesResponse struct {
	Term       Term
	Success    bool
	MatchIndex LogIndex
}

func (AppendEntriesResponse) isRaftMessage() {}
func (m AppendEntriesResponse) termValue() (Term, bool) { return m.Term, true }
func (AppendEntriesResponse) isRequest() bool           { return false }

// ClientSubmit lets an external collaborator (e.g. a KV-style client)
// propose a payload over the same Transport the consensus messages use,
// instead of calling Node.Submit in-process. Optional per spec.md §6.1.
// RequestID is the client's own correlation id, generated once per
// logical request: Transport permits duplicates and reordering (spec.md
// §4.5), so a client that resends an unacknowledged submit needs a
// stable id to match the eventual ClientSubmitResponse back to the
// request that prompted it. It is carried through unchanged, never
// interpreted or deduplicated by the consensus core itself — persistent
// client tracking is a non-goal (spec.md §1).
type ClientSubmit[P any] struct {
	RequestID uuid.UUID
	Payload   P
}

func (ClientSubmit[P]) isRaftMessage() {}

// ClientSubmitResponse answers a ClientSubmit, echoing its RequestID.
type ClientSubmitResponse struct {
	RequestID  uuid.UUID
	OK         bool
	LeaderHint *NodeId
}

func (ClientSubmitResponse) isRaftMessage() {}

// termedMessage is implemented by every message variant that carries a
// term (every variant except ClientSubmit/ClientSubmitResponse, which are
// treated as local messages exactly like MsgPropose in the teacher's
// Step, and skip the universal term preamble in Node.HandleMessage).
//
// Go generics can't type-switch on a partially-instantiated generic type
// (`case AppendEntries[P]:` needs a concrete P), so dispatch goes through
// this interface instead of a type switch.
type termedMessage interface {
	Message
	termValue() (Term, bool)
}

// requestMessage is implemented by message variants that expect a reply
// to be sent even when their term turns out to be stale. Response-type
// messages with a stale term are discarded outright (spec.md §4.3
// "Failure semantics"); they are never themselves replied to.
type requestMessage interface {
	Message
	isRequest() bool
}

// messageTerm extracts the term carried by a message, or (0, false) for
// message types that carry none.
func messageTerm(msg Message) (Term, bool) {
	if tm, ok := msg.(termedMessage); ok {
		return tm.termValue()
	}
	return 0, false
}

// isRequestMessage reports whether msg expects a stale-term rejection
// reply rather than silent discard.
func isRequestMessage(msg Message) bool {
	if rm, ok := msg.(requestMessage); ok {
		return rm.isRequest()
	}
	return true
}

// leaderBearingMessage is implemented by message variants whose sender
// is, by construction, the cluster leader (only AppendEntries today —
// the core has no snapshot/heartbeat-only variant). Seeing one with a
// higher term tells the node who to believe is leader; seeing any other
// higher-term message does not (spec.md §4.1 preamble).
type leaderBearingMessage interface {
	Message
	isLeaderBearing() bool
}

func messageHasLeader(msg Message) bool {
	if lb, ok := msg.(leaderBearingMessage); ok {
		return lb.isLeaderBearing()
	}
	return false
}
