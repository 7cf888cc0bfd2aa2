package raft

import (
	"fmt"

	"github.com/pingcap/log"
)

// Config bundles everything Node needs at construction: the ports it runs
// over and the base election timeout T. Node stores T but does not use it
// for timing (the TimerService, constructed separately, is the one that
// actually randomizes and tracks deadlines — spec.md §6.2).
type Config[P any] struct {
	SelfID           NodeId
	Peers            NodeCollection // every other cluster member, NOT including SelfID
	Storage          Storage[P]
	Transport        Transport[P]
	StateMachine     StateMachine[P]
	Timer            TimerService
	ElectionTimeoutT int // base election timeout T; stored, not used for timing
	NewMapCollection func() MapCollection
	NewEntryBatch    func([]LogEntry[P]) LogEntryCollection[P]

	// Cancel is the shared cancellation token this node observes on every
	// Tick (spec.md §5, §6.2's cancellation_token()). Leave unset to let
	// NewNode allocate a private one-node token; pass the same token to
	// every node in a multi-node process (see sim.Cluster) so one Cancel
	// call reaches all of them at once, the way the original embassy-sim
	// driver clones a single CancellationToken into every spawned node
	// task.
	Cancel CancellationToken
}

// Node owns role, term, and vote, routes inbound messages, and drives
// ticks. It holds no locks: a Node is single-threaded cooperative
// (spec.md §5) and must only ever be driven by one goroutine at a time.
type Node[P any] struct {
	id    NodeId
	peers NodeCollection
	role  NodeState
	term  Term // mirrors storage.CurrentTerm(), kept for fast reads
	lead  NodeId

	storage      Storage[P]
	transport    Transport[P]
	stateMachine StateMachine[P]
	timer        TimerService

	election    *ElectionManager[P]
	replication *LogReplicationManager[P]

	electionTimeoutT int
	dead             bool

	cancel  CancellationToken
	stopped bool
}

// NewNode constructs a Node in Follower at whatever term/vote/log Storage
// already holds — a restored node always begins as Follower regardless
// of its prior role (spec.md §6.3).
func NewNode[P any](cfg Config[P]) *Node[P] {
	n := &Node[P]{
		id:               cfg.SelfID,
		peers:            cfg.Peers,
		role:             StateFollower,
		term:             cfg.Storage.CurrentTerm(),
		lead:             None,
		storage:          cfg.Storage,
		transport:        cfg.Transport,
		stateMachine:     cfg.StateMachine,
		timer:            cfg.Timer,
		electionTimeoutT: cfg.ElectionTimeoutT,
		cancel:           cfg.Cancel,
	}
	if n.cancel.ch == nil {
		n.cancel = NewCancellationToken()
	}
	n.election = newElectionManager[P]()
	n.replication = newLogReplicationManager[P](cfg.NewMapCollection, cfg.NewEntryBatch)
	n.timer.ResetElectionTimer()

	log.Info(fmt.Sprintf("%d started as follower at term %d [peers: %v, last index: %d, last term: %d]",
		n.id, n.term, n.peers.Nodes(), cfg.Storage.LastLogIndex(), cfg.Storage.LastLogTerm()))

	return n
}

// ID returns the node's own identifier.
func (n *Node[P]) ID() NodeId { return n.id }

// Role returns the node's current role.
func (n *Node[P]) Role() NodeState { return n.role }

// Term returns the node's current term.
func (n *Node[P]) Term() Term { return n.term }

// Lead returns the node this node currently believes is leader, or None.
func (n *Node[P]) Lead() NodeId { return n.lead }

// fail marks the node dead after a fatal storage error. No operation
// panics (spec.md §4.1 "Failure semantics"); a dead node simply stops
// making progress and logs the cause so its owner can restart it.
func (n *Node[P]) fail(err error) {
	n.dead = true
	log.Error(fmt.Sprintf("%d: fatal storage error, node must be restarted: %v", n.id, err))
}

// Dead reports whether a fatal storage error has taken this node out of
// service.
func (n *Node[P]) Dead() bool { return n.dead }

// CancellationToken returns the shared token this node observes on every
// Tick (spec.md §6.2). Cancelling it (directly, or via whatever other
// node shares it) stops this node's timers on its next Tick; the caller
// is responsible for the bounded inbound-queue drain spec.md §5
// describes, since the mailbox a message is dequeued from belongs to the
// driver (Transport's owner), not to Node itself.
func (n *Node[P]) CancellationToken() CancellationToken { return n.cancel }

// Stopped reports whether this node has observed its cancellation token
// and stopped ticking. A stopped node still answers HandleMessage, so a
// driver can finish draining whatever was already in flight before it
// stops calling into the node entirely.
func (n *Node[P]) Stopped() bool { return n.stopped }

// Tick consults the TimerService and, on expiry, starts a new election
// (Follower/Candidate) or broadcasts a heartbeat (Leader) and resets the
// heartbeat timer. Once the cancellation token fires, Tick stops timers
// exactly once and every subsequent call is a no-op (spec.md §5: "stops
// timers ... and exits").
func (n *Node[P]) Tick() {
	if n.dead || n.stopped {
		return
	}
	if n.cancel.IsCancelled() {
		n.stopped = true
		n.timer.StopTimers()
		log.Info(fmt.Sprintf("%d: cancellation token signaled, stopping timers", n.id))
		return
	}
	expired := n.timer.CheckExpired()
	switch n.role {
	case StateFollower, StateCandidate:
		if expired.Election {
			n.election.StartElection(n)
		}
	case StateLeader:
		if expired.Heartbeat {
			n.replication.BroadcastAppendEntries(n)
			n.timer.ResetHeartbeatTimer()
		}
	}
}

// HandleMessage applies the universal term preamble and dispatches to
// the election or replication manager. Stale (lower-term) requests get a
// rejection carrying the current term; stale responses are silently
// discarded, same as any other message addressed to a manager that finds
// its term check fails.
func (n *Node[P]) HandleMessage(from NodeId, msg Message) {
	if n.dead {
		return
	}

	if term, hasTerm := messageTerm(msg); hasTerm {
		switch {
		case term > n.storage.CurrentTerm():
			n.stepDown(term, from, msg)
		case term < n.storage.CurrentTerm():
			if isRequestMessage(msg) {
				n.replyStaleTerm(from, msg)
			}
			return
		}
	}

	switch m := msg.(type) {
	case RequestVote:
		resp := n.election.HandleRequestVote(n, from, m)
		n.transport.Send(from, resp)
	case RequestVoteResponse:
		n.election.HandleRequestVoteResponse(n, from, m)
	case AppendEntries[P]:
		resp := n.replication.HandleAppendEntries(n, from, m)
		n.transport.Send(from, resp)
	case AppendEntriesResponse:
		n.replication.HandleAppendEntriesResponse(n, from, m)
	case ClientSubmit[P]:
		n.handleClientSubmit(from, m)
	}
}

// stepDown is the universal higher-term reaction: adopt the new term,
// clear our vote, become Follower, and reset the election timer, then
// let HandleMessage's dispatch continue to process msg under the new
// term.
func (n *Node[P]) stepDown(term Term, from NodeId, msg Message) {
	log.Info(fmt.Sprintf("%d [term: %d] saw higher term %d, stepping down to follower", n.id, n.storage.CurrentTerm(), term))
	if err := n.storage.SetCurrentTerm(term); err != nil {
		n.fail(newStorageError("persist higher term", err))
		return
	}
	if err := n.storage.SetVotedFor(None, false); err != nil {
		n.fail(newStorageError("clear vote on higher term", err))
		return
	}
	n.term = term
	n.role = StateFollower
	if messageHasLeader(msg) {
		n.lead = from
	} else {
		n.lead = None
	}
	n.timer.ResetElectionTimer()
}

func (n *Node[P]) replyStaleTerm(from NodeId, msg Message) {
	currentTerm := n.storage.CurrentTerm()
	switch msg.(type) {
	case RequestVote:
		n.transport.Send(from, RequestVoteResponse{Term: currentTerm, Granted: false})
	case AppendEntries[P]:
		n.transport.Send(from, AppendEntriesResponse{Term: currentTerm, Success: false, MatchIndex: 0})
	}
}

func (n *Node[P]) handleClientSubmit(from NodeId, msg ClientSubmit[P]) {
	_, err := n.Submit(msg.Payload)
	if err == nil {
		n.transport.Send(from, ClientSubmitResponse{RequestID: msg.RequestID, OK: true})
		return
	}
	var notLeader *NotLeader
	if nl, ok := err.(*NotLeader); ok {
		notLeader = nl
	}
	hint := n.lead
	if notLeader != nil && notLeader.Hint != nil {
		hint = *notLeader.Hint
	}
	n.transport.Send(from, ClientSubmitResponse{RequestID: msg.RequestID, OK: false, LeaderHint: &hint})
}

// Submit appends a new entry with term = current_term to the leader's
// own log. Accepted only when Leader; fails fast with NotLeader
// otherwise, naming whichever node we currently believe is leader.
func (n *Node[P]) Submit(payload P) (LogIndex, error) {
	if n.dead {
		return 0, &NotLeader{}
	}
	if n.role != StateLeader {
		var hint *NodeId
		if n.lead != None {
			h := n.lead
			hint = &h
		}
		return 0, &NotLeader{Hint: hint}
	}

	entry := LogEntry[P]{Term: n.storage.CurrentTerm(), Payload: payload}
	if err := n.storage.AppendLogEntries([]LogEntry[P]{entry}); err != nil {
		n.fail(newStorageError("append submitted entry", err))
		return 0, err
	}
	index := n.storage.LastLogIndex()

	// The leader's own progress is read straight off storage (see
	// maybeAdvanceCommit), so appending locally is enough to make this
	// entry commit-eligible once a majority of peers catch up.
	n.replication.maybeAdvanceCommit(n)

	return index, nil
}
