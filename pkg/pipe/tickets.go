package pipe

import (
	"context"
	"sync"
)

// ticketLane is the per-key state of a keyedTickets set.
//
// Tickets [serving, next) are outstanding. The holder of ticket serving may
// proceed; everybody else waits. Tickets whose waiter gave up are recorded in
// skip and jumped over when their turn comes.
type ticketLane struct {
	next    uint64
	serving uint64
	skip    map[uint64]struct{}
}

// keyedTickets is a set of FIFO ticket locks indexed by key.
//
// A lane exists for a key only while it has outstanding tickets, so the
// number of lanes equals the number of busy keys. All lanes share one mutex
// and condition variable.
type keyedTickets[K comparable] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	lanes map[K]*ticketLane
}

func newKeyedTickets[K comparable]() *keyedTickets[K] {
	t := &keyedTickets[K]{lanes: make(map[K]*ticketLane)}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// take issues the next ticket for key.
func (t *keyedTickets[K]) take(key K) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	lane, ok := t.lanes[key]
	if !ok {
		lane = &ticketLane{}
		t.lanes[key] = lane
	}
	ticket := lane.next
	lane.next++
	return ticket
}

// await blocks until ticket is being served for key.
//
// If ctx is cancelled first the ticket is abandoned and ctx.Err() returned.
// A ticket that is already being served is never abandoned.
func (t *keyedTickets[K]) await(ctx context.Context, key K, ticket uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	lane := t.lanes[key]
	if lane.serving == ticket {
		return nil
	}

	stop := t.wakeOnDone(ctx)
	defer stop()

	for lane.serving != ticket {
		if err := ctx.Err(); err != nil {
			t.abandonLocked(key, lane, ticket)
			return err
		}
		t.cond.Wait()
	}
	return nil
}

// done ends the turn of the ticket currently served for key.
func (t *keyedTickets[K]) done(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()

	lane, ok := t.lanes[key]
	if !ok {
		return
	}
	lane.serving++
	t.advanceLocked(key, lane)
	t.cond.Broadcast()
}

// drain blocks until every ticket issued for key before the call has ended.
func (t *keyedTickets[K]) drain(ctx context.Context, key K) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	lane, ok := t.lanes[key]
	if !ok {
		return nil
	}
	target := lane.next

	stop := t.wakeOnDone(ctx)
	defer stop()

	// A different lane pointer means the old one was fully drained and removed.
	for t.lanes[key] == lane && lane.serving < target {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.cond.Wait()
	}
	return nil
}

// drainAll blocks until no key has outstanding tickets.
func (t *keyedTickets[K]) drainAll(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.lanes) == 0 {
		return nil
	}

	stop := t.wakeOnDone(ctx)
	defer stop()

	for len(t.lanes) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.cond.Wait()
	}
	return nil
}

// busy reports whether key has outstanding tickets.
func (t *keyedTickets[K]) busy(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.lanes[key]
	return ok
}

// len returns the number of keys with outstanding tickets.
func (t *keyedTickets[K]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lanes)
}

// reset drops every lane and wakes all waiters. Only safe once nothing holds
// or awaits a ticket.
func (t *keyedTickets[K]) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.lanes)
	t.cond.Broadcast()
}

func (t *keyedTickets[K]) abandonLocked(key K, lane *ticketLane, ticket uint64) {
	if lane.skip == nil {
		lane.skip = make(map[uint64]struct{})
	}
	lane.skip[ticket] = struct{}{}
	t.advanceLocked(key, lane)
	t.cond.Broadcast()
}

// advanceLocked skips abandoned tickets and removes the lane once empty.
func (t *keyedTickets[K]) advanceLocked(key K, lane *ticketLane) {
	for {
		if _, skipped := lane.skip[lane.serving]; !skipped {
			break
		}
		delete(lane.skip, lane.serving)
		lane.serving++
	}
	if lane.serving == lane.next {
		delete(t.lanes, key)
	}
}

// wakeOnDone broadcasts the condition when ctx is cancelled so that waiters
// can observe it. Must be called with t.mu held.
func (t *keyedTickets[K]) wakeOnDone(ctx context.Context) func() bool {
	return wakeCondOnDone(ctx, &t.mu, t.cond)
}
