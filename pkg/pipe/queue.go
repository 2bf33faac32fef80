package pipe

import (
	"context"
	"sync"
	"time"

	"github.com/eapache/queue"
)

// Queue is a bounded multi-producer multi-consumer FIFO of jobs.
//
// Push blocks while the queue is full, Pop blocks while it is empty. After
// Close, Push fails with ErrQueueClosed while Pop keeps returning queued jobs
// until none are left.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	items    *queue.Queue
	capacity int
	closed   bool

	seq *Sequencer
}

// NewQueue creates a queue holding at most capacity jobs. Destination turns
// are assigned from seq; a nil seq disables per-destination ordering.
func NewQueue(capacity int, seq *Sequencer) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	q := &Queue{
		items:    queue.New(),
		capacity: capacity,
		seq:      seq,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push appends job, blocking while the queue is full.
//
// Returns ErrQueueClosed if the queue is closed before room is available,
// or ctx.Err() if ctx is cancelled first. The job is either fully enqueued
// with its destination turn assigned, or not enqueued at all.
func (q *Queue) Push(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Length() >= q.capacity && !q.closed {
		stop := wakeCondOnDone(ctx, &q.mu, q.notFull)
		defer stop()
	}

	for q.items.Length() >= q.capacity && !q.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.notFull.Wait()
	}
	if q.closed {
		return ErrQueueClosed
	}

	if q.seq != nil {
		job.seq = q.seq.next(job.FD)
	}
	job.EnqueuedAt = time.Now()
	q.items.Add(job)
	q.notEmpty.Signal()
	return nil
}

// Pop removes the oldest job, blocking while the queue is empty.
// ok is false once the queue is closed and drained.
func (q *Queue) Pop() (job Job, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Length() == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.items.Length() == 0 {
		return Job{}, false
	}

	job = q.items.Remove().(Job)
	q.notFull.Signal()
	return job, true
}

// Close stops accepting jobs and wakes every blocked caller. Jobs already
// queued remain poppable. Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return q.capacity
}

// wakeCondOnDone broadcasts cond when ctx is cancelled. mu is the lock
// associated with cond.
func wakeCondOnDone(ctx context.Context, mu sync.Locker, cond *sync.Cond) func() bool {
	if ctx.Done() == nil {
		return func() bool { return true }
	}
	return context.AfterFunc(ctx, func() {
		mu.Lock()
		cond.Broadcast()
		mu.Unlock()
	})
}
