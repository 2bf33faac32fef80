package pipe

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeWriter is an in-memory FDWriter. Each descriptor accumulates the bytes
// written to it; positional writes land at their offset.
type fakeWriter struct {
	mu      sync.Mutex
	dest    map[int][]byte
	calls   map[int]int
	fail    map[int]error
	closed  map[int]bool
	delay   time.Duration
	maxCall int // bytes accepted per call, 0 = all

	// gate, when set, blocks every write until it is closed.
	gate chan struct{}
	// started receives one value per write call before it blocks on gate.
	started chan int

	active    map[uintptr]int // concurrent readers per source address
	maxActive int
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		dest:   make(map[int][]byte),
		calls:  make(map[int]int),
		fail:   make(map[int]error),
		closed: make(map[int]bool),
		active: make(map[uintptr]int),
	}
}

func (w *fakeWriter) Check(fd int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed[fd] {
		return invalidDescriptor(fd)
	}
	return nil
}

func (w *fakeWriter) Write(fd int, p []byte, off int64) (int, error) {
	key := uintptr(IdentityOf(p))

	w.mu.Lock()
	w.calls[fd]++
	w.active[key]++
	if w.active[key] > w.maxActive {
		w.maxActive = w.active[key]
	}
	gate, started, delay := w.gate, w.started, w.delay
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.active[key]--
		w.mu.Unlock()
	}()

	if started != nil {
		started <- fd
	}
	if gate != nil {
		<-gate
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.fail[fd]; err != nil {
		return 0, err
	}

	n := len(p)
	if w.maxCall > 0 && n > w.maxCall {
		n = w.maxCall
	}

	buf := w.dest[fd]
	if off < 0 {
		buf = append(buf, p[:n]...)
	} else {
		end := int(off) + n
		if end > len(buf) {
			buf = append(buf, make([]byte, end-len(buf))...)
		}
		copy(buf[off:end], p[:n])
	}
	w.dest[fd] = buf
	return n, nil
}

func (w *fakeWriter) bytes(fd int) []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return bytes.Clone(w.dest[fd])
}

func (w *fakeWriter) callCount(fd int) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[fd]
}

func (w *fakeWriter) setFail(fd int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fail[fd] = err
}

func invalidDescriptor(fd int) error {
	return fmt.Errorf("%w: %w: fd %d", ErrInvalidArgument, ErrInvalidDescriptor, fd)
}

// filled returns n bytes of b.
func filled(n int, b byte) []byte {
	return bytes.Repeat([]byte{b}, n)
}

// newTestEngine builds an engine around a fake writer.
func newTestEngine(t *testing.T, w *fakeWriter, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Writer = w
	if mutate != nil {
		mutate(&cfg)
	}
	e := New(cfg, nil)
	t.Cleanup(func() {
		w.mu.Lock()
		if w.gate != nil {
			select {
			case <-w.gate:
			default:
				close(w.gate)
			}
		}
		w.mu.Unlock()
		_ = e.Close(context.Background())
	})
	return e
}

// eventually fails the test if cond does not hold within a second.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
