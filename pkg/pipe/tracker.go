package pipe

import (
	"context"
	"sync/atomic"
)

// Registration is a granted, exclusive in-flight record for one buffer.
type Registration struct {
	tracker  *Tracker
	id       BufferID
	released atomic.Bool
}

// Release clears the registration and hands the buffer to the next waiter.
// Calling Release more than once is a no-op.
func (r *Registration) Release() {
	if r == nil || !r.released.CompareAndSwap(false, true) {
		return
	}
	r.tracker.tickets.done(r.id)
}

// Tracker enforces at most one in-flight job per buffer identity.
//
// Acquire is the only serialization point that prevents a worker from
// reading a buffer the producer is about to overwrite. Waiters for the same
// identity are served first-come first-served, so a steady stream of
// submissions for one buffer never starves anybody.
type Tracker struct {
	tickets *keyedTickets[BufferID]
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{tickets: newKeyedTickets[BufferID]()}
}

// Acquire registers id, blocking until every earlier registration for id has
// been released.
//
// If ctx is cancelled while waiting, the place in line is given up and
// ctx.Err() is returned. A registration that was already granted is
// returned even if ctx is done.
func (t *Tracker) Acquire(ctx context.Context, id BufferID) (*Registration, error) {
	ticket := t.tickets.take(id)
	if err := t.tickets.await(ctx, id, ticket); err != nil {
		return nil, err
	}
	return &Registration{tracker: t, id: id}, nil
}

// Wait blocks until every registration for id that was granted or pending
// when Wait was called has been released. It does not register anything.
func (t *Tracker) Wait(ctx context.Context, id BufferID) error {
	return t.tickets.drain(ctx, id)
}

// WaitAll blocks until the tracker is empty.
func (t *Tracker) WaitAll(ctx context.Context) error {
	return t.tickets.drainAll(ctx)
}

// Busy reports whether id has a granted or pending registration.
func (t *Tracker) Busy(id BufferID) bool {
	return t.tickets.busy(id)
}

// Len returns the number of identities with a granted or pending registration.
func (t *Tracker) Len() int {
	return t.tickets.len()
}

// reset forgets all registrations. Only used once the pool has been joined.
func (t *Tracker) reset() {
	t.tickets.reset()
}
