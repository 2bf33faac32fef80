package pipe

import (
	"sync"

	"github.com/eapache/queue"
)

// failureLog keeps the most recent write failures, oldest first. When full,
// the oldest entry is dropped.
type failureLog struct {
	mu      sync.Mutex
	entries *queue.Queue
	max     int
	dropped uint64
}

func newFailureLog(max int) *failureLog {
	if max <= 0 {
		max = DefaultMaxFailures
	}
	return &failureLog{entries: queue.New(), max: max}
}

func (l *failureLog) add(err *WriteError) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.entries.Length() >= l.max {
		l.entries.Remove()
		l.dropped++
	}
	l.entries.Add(err)
}

// snapshot returns the retained failures without clearing them.
func (l *failureLog) snapshot() []*WriteError {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*WriteError, l.entries.Length())
	for i := range out {
		out[i] = l.entries.Get(i).(*WriteError)
	}
	return out
}

// drain returns and clears the retained failures.
func (l *failureLog) drain() []*WriteError {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*WriteError, 0, l.entries.Length())
	for l.entries.Length() > 0 {
		out = append(out, l.entries.Remove().(*WriteError))
	}
	return out
}

// droppedCount returns how many failures were evicted because the log was full.
func (l *failureLog) droppedCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
