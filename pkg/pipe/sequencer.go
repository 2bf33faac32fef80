package pipe

import "context"

// Sequencer orders writes per destination descriptor.
//
// The work queue hands out a turn for the job's destination while it holds
// its own lock, so turns follow enqueue order exactly. A worker holding a
// job must wait for its turn before writing, even when other workers are
// idle; this is what keeps frames for one pipe in submission order.
type Sequencer struct {
	tickets *keyedTickets[int]
}

// NewSequencer creates a sequencer with no outstanding turns.
func NewSequencer() *Sequencer {
	return &Sequencer{tickets: newKeyedTickets[int]()}
}

// next assigns the next turn for fd.
func (s *Sequencer) next(fd int) uint64 {
	return s.tickets.take(fd)
}

// wait blocks until turn is current for fd. Turns are never abandoned:
// every job that entered the queue is eventually popped.
func (s *Sequencer) wait(fd int, turn uint64) {
	_ = s.tickets.await(context.Background(), fd, turn)
}

// finish ends the current turn for fd.
func (s *Sequencer) finish(fd int) {
	s.tickets.done(fd)
}

// Wait blocks until every job enqueued for fd before the call was written.
func (s *Sequencer) Wait(ctx context.Context, fd int) error {
	return s.tickets.drain(ctx, fd)
}

// WaitAll blocks until no destination has an outstanding job.
func (s *Sequencer) WaitAll(ctx context.Context) error {
	return s.tickets.drainAll(ctx)
}

// Len returns the number of destinations with outstanding jobs.
func (s *Sequencer) Len() int {
	return s.tickets.len()
}

func (s *Sequencer) reset() {
	s.tickets.reset()
}
