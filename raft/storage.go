package raft

// Storage is the persistence port. current_term, voted_for, and the log
// must all be durable: per spec.md §4.5, every mutation of any of the
// three must complete before a response depending on it is sent. The core
// calls Storage synchronously and treats any returned error as fatal to
// the node (StorageError, spec.md §7) — the caller must restart it.
type Storage[P any] interface {
	// CurrentTerm returns the last persisted term.
	CurrentTerm() Term
	// SetCurrentTerm durably persists a new term.
	SetCurrentTerm(Term) error
	// VotedFor returns the candidate voted for in the current term, if any.
	VotedFor() (NodeId, bool)
	// SetVotedFor durably persists the vote. Passing ok=false clears it
	// (used when the term advances).
	SetVotedFor(id NodeId, ok bool) error

	// AppendLogEntries durably appends entries after the current end of
	// the log. The leader never calls this in a way that overwrites or
	// deletes existing entries (invariant 2, "leader append-only").
	AppendLogEntries(entries []LogEntry[P]) error
	// TruncateFrom destructively removes every entry at index >= from.
	// Truncate-then-append must be atomic with respect to any reader
	// (spec.md §9 design note).
	TruncateFrom(from LogIndex) error
	// GetEntries returns a copy of every entry with from <= index < toExclusive,
	// in order.
	GetEntries(from, toExclusive LogIndex) []LogEntry[P]
	// TermAt returns the term of the entry at index, or 0 if index is 0
	// or past the end of the log.
	TermAt(index LogIndex) Term
	// LastLogIndex returns the index of the last entry, or 0 if empty.
	LastLogIndex() LogIndex
	// LastLogTerm returns the term of the last entry, or 0 if empty.
	LastLogTerm() Term
}
