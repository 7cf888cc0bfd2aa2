package raft

// Minimal in-package fakes for the Storage/Transport/StateMachine/Timer/
// Collections ports, used only by this package's white-box tests. The
// hosted (sim) and embedded ports live in sibling packages and cannot be
// imported here without a cycle, so scenario tests build their own tiny
// stand-ins grounded on the same semantics.

type fakeStorage[P any] struct {
	currentTerm Term
	votedFor    NodeId
	hasVoted    bool
	entries     []LogEntry[P] // 1-indexed: entries[0] is index 1
}

func (s *fakeStorage[P]) CurrentTerm() Term { return s.currentTerm }
func (s *fakeStorage[P]) SetCurrentTerm(t Term) error {
	s.currentTerm = t
	return nil
}
func (s *fakeStorage[P]) VotedFor() (NodeId, bool) { return s.votedFor, s.hasVoted }
func (s *fakeStorage[P]) SetVotedFor(id NodeId, ok bool) error {
	s.votedFor = id
	s.hasVoted = ok
	return nil
}
func (s *fakeStorage[P]) AppendLogEntries(entries []LogEntry[P]) error {
	s.entries = append(s.entries, entries...)
	return nil
}
func (s *fakeStorage[P]) TruncateFrom(from LogIndex) error {
	if from < 1 {
		s.entries = nil
		return nil
	}
	if int(from)-1 < len(s.entries) {
		s.entries = s.entries[:from-1]
	}
	return nil
}
func (s *fakeStorage[P]) GetEntries(from, toExclusive LogIndex) []LogEntry[P] {
	if toExclusive <= from || from < 1 {
		return nil
	}
	lo, hi := int(from)-1, int(toExclusive)-1
	if hi > len(s.entries) {
		hi = len(s.entries)
	}
	if lo >= hi {
		return nil
	}
	out := make([]LogEntry[P], hi-lo)
	copy(out, s.entries[lo:hi])
	return out
}
func (s *fakeStorage[P]) TermAt(index LogIndex) Term {
	if index < 1 || int(index) > len(s.entries) {
		return 0
	}
	return s.entries[index-1].Term
}
func (s *fakeStorage[P]) LastLogIndex() LogIndex { return LogIndex(len(s.entries)) }
func (s *fakeStorage[P]) LastLogTerm() Term {
	if len(s.entries) == 0 {
		return 0
	}
	return s.entries[len(s.entries)-1].Term
}

type sentMessage struct {
	target NodeId
	msg    Message
}

type fakeTransport[P any] struct {
	sent []sentMessage
}

func (t *fakeTransport[P]) Send(target NodeId, msg Message) {
	t.sent = append(t.sent, sentMessage{target: target, msg: msg})
}

type fakeStateMachine[P any] struct {
	applied []P
}

func (m *fakeStateMachine[P]) Apply(entry LogEntry[P]) {
	m.applied = append(m.applied, entry.Payload)
}

type fakeTimer struct {
	electionResets  int
	heartbeatResets int
	stops           int
	expired         ExpiredTimers
}

func (t *fakeTimer) ResetElectionTimer()  { t.electionResets++ }
func (t *fakeTimer) ResetHeartbeatTimer() { t.heartbeatResets++ }
func (t *fakeTimer) StopTimers()          { t.stops++ }
func (t *fakeTimer) CheckExpired() ExpiredTimers {
	e := t.expired
	t.expired = ExpiredTimers{}
	return e
}

type fakeNodeCollection struct {
	nodes []NodeId
}

func (c *fakeNodeCollection) Push(id NodeId) error {
	c.nodes = append(c.nodes, id)
	return nil
}
func (c *fakeNodeCollection) Len() int      { return len(c.nodes) }
func (c *fakeNodeCollection) IsEmpty() bool { return len(c.nodes) == 0 }
func (c *fakeNodeCollection) Clear()        { c.nodes = nil }
func (c *fakeNodeCollection) Nodes() []NodeId {
	out := make([]NodeId, len(c.nodes))
	copy(out, c.nodes)
	return out
}

func newFakeNodeCollection(peers ...NodeId) *fakeNodeCollection {
	return &fakeNodeCollection{nodes: peers}
}

type fakeMapCollection struct {
	values map[NodeId]uint64
}

func newFakeMapCollection() MapCollection {
	return &fakeMapCollection{values: make(map[NodeId]uint64)}
}
func (m *fakeMapCollection) Get(id NodeId) (uint64, bool) {
	v, ok := m.values[id]
	return v, ok
}
func (m *fakeMapCollection) Set(id NodeId, v uint64) error {
	m.values[id] = v
	return nil
}
func (m *fakeMapCollection) Keys() []NodeId {
	out := make([]NodeId, 0, len(m.values))
	for k := range m.values {
		out = append(out, k)
	}
	return out
}
func (m *fakeMapCollection) Len() int { return len(m.values) }

type entrySlice[P any] struct {
	entries []LogEntry[P]
}

func newEntrySlice[P any](entries []LogEntry[P]) LogEntryCollection[P] {
	return &entrySlice[P]{entries: entries}
}
func (e *entrySlice[P]) Len() int                 { return len(e.entries) }
func (e *entrySlice[P]) At(i int) LogEntry[P]     { return e.entries[i] }
func (e *entrySlice[P]) Slice() []LogEntry[P]     { return e.entries }

// newTestNode builds a Node[string] with fake ports and the given peers,
// storage pre-seeded with entries/term/vote, ready for direct handler
// calls in scenario tests.
func newTestNode(self NodeId, peers []NodeId, storage *fakeStorage[string]) (*Node[string], *fakeTransport[string], *fakeStateMachine[string], *fakeTimer) {
	transport := &fakeTransport[string]{}
	sm := &fakeStateMachine[string]{}
	timer := &fakeTimer{}
	cfg := Config[string]{
		SelfID:           self,
		Peers:            newFakeNodeCollection(peers...),
		Storage:          storage,
		Transport:        transport,
		StateMachine:     sm,
		Timer:            timer,
		ElectionTimeoutT: 150,
		NewMapCollection: newFakeMapCollection,
		NewEntryBatch:    newEntrySlice[string],
	}
	return NewNode[string](cfg), transport, sm, timer
}
