package raft

import "sync"

// CancellationToken is a shared, copyable cancellation signal. Grounded on
// the original embassy-sim driver's `CancellationToken` (`new`/`clone`/
// `cancel`, embassy-sim/src/main.rs), which is constructed once and cloned
// into every spawned node task so a single `cancel()` call reaches every
// node sharing it. A CancellationToken value copied by assignment shares
// the same underlying channel and guard, the Go analogue of the original's
// Arc-backed clone — there is no separate Clone method because copying the
// struct already does the right thing.
//
// The zero value is not usable; construct with NewCancellationToken.
type CancellationToken struct {
	mu   *sync.Mutex
	done *bool
	ch   chan struct{}
}

// NewCancellationToken returns a fresh, uncancelled token.
func NewCancellationToken() CancellationToken {
	return CancellationToken{mu: &sync.Mutex{}, done: new(bool), ch: make(chan struct{})}
}

// Cancelled returns a channel that is closed once Cancel has been called on
// this token or any value copied from it.
func (t CancellationToken) Cancelled() <-chan struct{} { return t.ch }

// IsCancelled reports whether Cancel has already been called.
func (t CancellationToken) IsCancelled() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// Cancel signals every holder of this token. Safe to call more than once
// and safe to call concurrently.
func (t CancellationToken) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !*t.done {
		*t.done = true
		close(t.ch)
	}
}
