package core

import (
	"context"
	"time"
)

// PollState is the per-session polling bookkeeping. It is never shown to
// the user.
type PollState struct {
	Cursor   string
	Attempts int
	Interval time.Duration
	Sequence uint64
	Active   bool
}

// Poller owns the PollState of one session: the cursor, the backoff
// position, the sequence number that supersedes stale calls, and the
// context that aborts in-flight calls and pending timers.
//
// A Poller is not safe for concurrent use; the session event loop owns it.
type Poller struct {
	backoff  Backoff
	ordering CursorOrdering
	state    PollState
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewPoller creates an idle Poller.
func NewPoller(backoff Backoff, ordering CursorOrdering) *Poller {
	return &Poller{
		backoff:  backoff,
		ordering: ordering,
		state:    PollState{Interval: backoff.Base},
	}
}

// Begin invalidates everything scheduled so far and opens a new phase
// derived from parent. It returns the sequence number work in the new phase
// must carry.
func (p *Poller) Begin(parent context.Context) uint64 {
	p.Stop()
	p.ctx, p.cancel = context.WithCancel(parent)
	p.state.Attempts = 0
	p.state.Interval = p.backoff.Base
	return p.state.Sequence
}

// StartTracking begins a phase with an active incremental loop positioned
// at cursor.
func (p *Poller) StartTracking(parent context.Context, cursor string) uint64 {
	seq := p.Begin(parent)
	p.state.Cursor = cursor
	p.state.Active = true
	return seq
}

// Stop synchronously bumps the sequence number and cancels the phase
// context, so pending timers never fire and late responses are discarded.
func (p *Poller) Stop() {
	p.state.Sequence++
	if p.cancel != nil {
		p.cancel()
	}
	p.ctx, p.cancel = nil, nil
	p.state.Active = false
}

// Clear stops the poller and forgets the cursor and backoff position.
func (p *Poller) Clear() {
	p.Stop()
	p.state = PollState{Sequence: p.state.Sequence, Interval: p.backoff.Base}
}

// Current reports whether seq still belongs to the live phase.
func (p *Poller) Current(seq uint64) bool {
	return p.ctx != nil && seq == p.state.Sequence
}

// Context is the live phase context. It is nil after Stop.
func (p *Poller) Context() context.Context {
	return p.ctx
}

// Accept checks that cursor strictly advances past the stored one and
// stores it. On error the stored cursor is kept.
func (p *Poller) Accept(cursor string) error {
	if err := Advances(p.ordering, p.state.Cursor, cursor); err != nil {
		return err
	}
	p.state.Cursor = cursor
	return nil
}

// Succeed resets the backoff and returns the delay before the next call.
func (p *Poller) Succeed() time.Duration {
	p.state.Attempts = 0
	p.state.Interval = p.backoff.Base
	return p.state.Interval
}

// Fail records a failed call and returns the backoff delay before the retry.
func (p *Poller) Fail() time.Duration {
	p.state.Attempts++
	p.state.Interval = p.backoff.Interval(p.state.Attempts)
	return p.state.Interval
}

// State returns a copy of the bookkeeping.
func (p *Poller) State() PollState {
	return p.state
}

// Active reports whether an incremental loop is live.
func (p *Poller) Active() bool {
	return p.state.Active && p.ctx != nil
}
