package pipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Testable properties
// ============================================================================

func TestPipeAtMostOneInFlightPerBuffer(t *testing.T) {
	w := newFakeWriter()
	w.delay = time.Millisecond
	e := newTestEngine(t, w, func(c *Config) { c.Workers = 8 })

	buf := filled(64, 0x11)
	id := IdentityOf(buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.Pipe(context.Background(), id, buf, 1))
		}()
	}
	wg.Wait()
	require.NoError(t, e.Sync(context.Background()))

	assert.Equal(t, 1, w.maxActive)
	assert.Len(t, w.bytes(1), 20*64)
}

func TestPipeByteFidelityToFile(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "frame.raw"))
	require.NoError(t, err)
	defer f.Close()

	e := New(DefaultConfig(), nil)
	defer e.Close(context.Background())

	const n = 1 << 20
	buf := filled(n, 0xAB)
	require.NoError(t, e.PipeBytes(context.Background(), buf, int(f.Fd())))
	require.NoError(t, e.Sync(context.Background()))

	got, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, n, len(got))
	assert.True(t, bytes.Equal(buf, got))
}

func TestPipeOrderingPerDestination(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("Workers%d", workers), func(t *testing.T) {
			w := newFakeWriter()
			e := newTestEngine(t, w, func(c *Config) { c.Workers = workers })

			markers := []byte{'1', '2', '3'}
			bufs := make([][]byte, len(markers))
			for i, m := range markers {
				bufs[i] = filled(4096, m)
				require.NoError(t, e.PipeBytes(context.Background(), bufs[i], 9))
			}
			require.NoError(t, e.Sync(context.Background()))

			want := append(append(bytes.Clone(bufs[0]), bufs[1]...), bufs[2]...)
			assert.Equal(t, want, w.bytes(9))
		})
	}
}

func TestPipeOrderingWithSlowEarlyJob(t *testing.T) {
	w := newFakeWriter()
	w.gate = make(chan struct{})
	w.started = make(chan int, 16)
	e := newTestEngine(t, w, func(c *Config) { c.Workers = 4 })

	first := filled(8, 'a')
	require.NoError(t, e.PipeBytes(context.Background(), first, 3))
	<-w.started

	// Idle workers pick these up but must wait for their turn.
	second := filled(8, 'b')
	third := filled(8, 'c')
	require.NoError(t, e.PipeBytes(context.Background(), second, 3))
	require.NoError(t, e.PipeBytes(context.Background(), third, 3))

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, w.callCount(3))

	close(w.gate)
	require.NoError(t, e.Sync(context.Background()))
	assert.Equal(t, "aaaaaaaabbbbbbbbcccccccc", string(w.bytes(3)))
}

func TestSyncIdempotent(t *testing.T) {
	w := newFakeWriter()
	e := newTestEngine(t, w, nil)

	t.Run("NeverStarted", func(t *testing.T) {
		assert.NoError(t, e.Sync(context.Background()))
		assert.NoError(t, e.SyncBuffer(context.Background(), 1))
		assert.NoError(t, e.SyncDestination(context.Background(), 1))
		assert.NoError(t, e.Flush(context.Background()))
		assert.Equal(t, StateUninitialized, e.State())
	})

	t.Run("AfterWork", func(t *testing.T) {
		require.NoError(t, e.PipeBytes(context.Background(), filled(16, 1), 2))
		require.NoError(t, e.Sync(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		start := time.Now()
		assert.NoError(t, e.Sync(ctx))
		assert.NoError(t, e.Sync(ctx))
		assert.Less(t, time.Since(start), 50*time.Millisecond)
	})
}

func TestCloseDrainsAllJobs(t *testing.T) {
	dir := t.TempDir()
	files := make([]*os.File, 3)
	for i := range files {
		f, err := os.Create(filepath.Join(dir, "out"+string(rune('a'+i))))
		require.NoError(t, err)
		defer f.Close()
		files[i] = f
	}

	e := New(Config{Workers: 2, QueueSize: 4}, nil)

	const k = 30
	bufs := make([][]byte, k)
	for i := 0; i < k; i++ {
		bufs[i] = filled(32<<10, byte(i))
		require.NoError(t, e.PipeBytes(context.Background(), bufs[i], int(files[i%3].Fd())))
	}
	require.NoError(t, e.Close(context.Background()))

	assert.Equal(t, StateStopped, e.State())
	assert.Equal(t, uint64(k), e.Stats().Completed)

	for i, f := range files {
		got, err := os.ReadFile(f.Name())
		require.NoError(t, err)

		var want []byte
		for j := i; j < k; j += 3 {
			want = append(want, bufs[j]...)
		}
		assert.True(t, bytes.Equal(want, got), "file %d", i)
	}

	// The engine never closes descriptors.
	_, err := files[0].Write([]byte("still open"))
	assert.NoError(t, err)
}

func TestBackpressureNeverDropsJobs(t *testing.T) {
	w := newFakeWriter()
	w.delay = 2 * time.Millisecond
	e := newTestEngine(t, w, func(c *Config) {
		c.Workers = 1
		c.QueueSize = 2
	})

	const jobs = 20
	bufs := make([][]byte, jobs)
	start := time.Now()
	for i := range bufs {
		bufs[i] = filled(10, byte(i))
		require.NoError(t, e.PipeBytes(context.Background(), bufs[i], 4))
		assert.LessOrEqual(t, e.Stats().QueueDepth, 2)
	}
	// 20 jobs through one slow worker with two slots must have blocked.
	assert.Greater(t, time.Since(start), 20*time.Millisecond)

	require.NoError(t, e.Sync(context.Background()))

	var want []byte
	for _, b := range bufs {
		want = append(want, b...)
	}
	assert.Equal(t, want, w.bytes(4))
	assert.Equal(t, uint64(jobs), e.Stats().Completed)
}

// ============================================================================
// Failures
// ============================================================================

func TestWriteFailureDoesNotBlockSync(t *testing.T) {
	w := newFakeWriter()
	boom := errors.New("EPIPE")
	w.setFail(5, boom)

	var reported atomic.Int32
	e := newTestEngine(t, w, func(c *Config) {
		c.OnFailure = func(*WriteError) { reported.Add(1) }
	})

	bad := filled(10, 1)
	good := filled(10, 2)
	require.NoError(t, e.PipeBytes(context.Background(), bad, 5))
	require.NoError(t, e.PipeBytes(context.Background(), good, 6))

	err := e.Flush(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var werr *WriteError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, 5, werr.FD)
	assert.Equal(t, 10, werr.Size)
	assert.Equal(t, IdentityOf(bad), werr.Buffer)

	assert.Equal(t, int32(1), reported.Load())
	assert.Equal(t, good, w.bytes(6))

	// The buffer was released despite the failure.
	assert.NoError(t, e.SyncBuffer(context.Background(), IdentityOf(bad)))

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, uint64(1), stats.Completed)
	assert.Contains(t, stats.LastError, "EPIPE")

	at, last := e.LastError()
	assert.False(t, at.IsZero())
	assert.ErrorIs(t, last, boom)

	// Flush clears what it reported.
	assert.NoError(t, e.Flush(context.Background()))
	assert.Empty(t, e.Failures())
}

func TestFailureLogBounded(t *testing.T) {
	w := newFakeWriter()
	w.setFail(5, errors.New("EIO"))
	e := newTestEngine(t, w, func(c *Config) { c.MaxFailures = 3 })

	for i := 0; i < 5; i++ {
		require.NoError(t, e.PipeBytes(context.Background(), filled(4, byte(i)), 5))
	}
	require.NoError(t, e.Sync(context.Background()))

	assert.Len(t, e.Failures(), 3)
	assert.Equal(t, uint64(2), e.Stats().DroppedFailures)
	assert.Equal(t, uint64(5), e.Stats().Failed)
}

// panicWriter panics on every write.
type panicWriter struct{}

func (panicWriter) Check(int) error                        { return nil }
func (panicWriter) Write(int, []byte, int64) (int, error) { panic("writer exploded") }

func TestWorkerPanicIsReported(t *testing.T) {
	e := New(Config{Workers: 1, Writer: panicWriter{}}, nil)
	defer e.Close(context.Background())

	buf := filled(8, 1)
	require.NoError(t, e.PipeBytes(context.Background(), buf, 3))
	require.NoError(t, e.PipeBytes(context.Background(), buf, 3))

	err := e.Flush(context.Background())
	assert.ErrorIs(t, err, ErrWorkerPanic)
	assert.Equal(t, uint64(2), e.Stats().Failed)
	assert.Equal(t, StateRunning, e.State())
}

func TestPanickingFailureCallbackIsContained(t *testing.T) {
	t.Run("WriteError", func(t *testing.T) {
		w := newFakeWriter()
		w.setFail(5, errors.New("EPIPE"))

		var calls atomic.Int32
		e := newTestEngine(t, w, func(c *Config) {
			c.OnFailure = func(*WriteError) {
				calls.Add(1)
				panic("callback bug")
			}
		})

		bad := filled(10, 1)
		require.NoError(t, e.PipeBytes(context.Background(), bad, 5))
		require.NoError(t, e.PipeBytes(context.Background(), filled(10, 2), 5))
		require.NoError(t, e.PipeBytes(context.Background(), filled(10, 3), 6))

		err := e.Flush(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrWorkerPanic)

		// One report per failed job, and the destination turn moved on.
		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, uint64(2), e.Stats().Failed)
		assert.Equal(t, filled(10, 3), w.bytes(6))
		assert.NoError(t, e.SyncBuffer(context.Background(), IdentityOf(bad)))
		assert.Equal(t, StateRunning, e.State())
	})

	t.Run("WriterPanic", func(t *testing.T) {
		var calls atomic.Int32
		e := New(Config{
			Workers: 1,
			Writer:  panicWriter{},
			OnFailure: func(*WriteError) {
				calls.Add(1)
				panic("callback bug")
			},
		}, nil)
		defer e.Close(context.Background())

		buf := filled(8, 1)
		require.NoError(t, e.PipeBytes(context.Background(), buf, 3))
		require.NoError(t, e.PipeBytes(context.Background(), buf, 3))

		assert.ErrorIs(t, e.Flush(context.Background()), ErrWorkerPanic)
		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, uint64(2), e.Stats().Failed)
	})
}

// ============================================================================
// Validation
// ============================================================================

func TestPipeInvalidArguments(t *testing.T) {
	w := newFakeWriter()
	w.closed[8] = true
	e := newTestEngine(t, w, nil)

	tests := []struct {
		name string
		data []byte
		fd   int
		opts []JobOption
		want error
	}{
		{"EmptyData", nil, 1, nil, ErrInvalidArgument},
		{"NegativeDescriptor", []byte{1}, -1, nil, ErrInvalidArgument},
		{"NegativeOffset", []byte{1}, 1, []JobOption{WithOffset(-2)}, ErrInvalidArgument},
		{"ClosedDescriptor", []byte{1}, 8, nil, ErrInvalidDescriptor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Pipe(context.Background(), 1, tt.data, tt.fd, tt.opts...)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, StateUninitialized, e.State())
	assert.Equal(t, uint64(0), e.Stats().Submitted)
}

func TestPipeInvalidDescriptorRealFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	e := New(DefaultConfig(), nil)
	defer e.Close(context.Background())

	err = e.PipeBytes(context.Background(), []byte("x"), int(f.Fd()))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestLifecycle(t *testing.T) {
	w := newFakeWriter()
	e := newTestEngine(t, w, nil)

	assert.Equal(t, StateUninitialized, e.State())
	assert.NoError(t, e.Close(context.Background()))
	assert.Equal(t, StateUninitialized, e.State())

	require.NoError(t, e.PipeBytes(context.Background(), []byte("one"), 1))
	assert.Equal(t, StateRunning, e.State())

	require.NoError(t, e.Close(context.Background()))
	assert.Equal(t, StateStopped, e.State())
	require.NoError(t, e.Close(context.Background()))

	// Pipe after Close starts a fresh pool.
	require.NoError(t, e.PipeBytes(context.Background(), []byte("two"), 1))
	assert.Equal(t, StateRunning, e.State())
	require.NoError(t, e.Close(context.Background()))

	assert.Equal(t, "onetwo", string(w.bytes(1)))
	assert.Equal(t, uint64(2), e.Stats().Submitted)
}

func TestStartIsIdempotent(t *testing.T) {
	e := newTestEngine(t, newFakeWriter(), func(c *Config) { c.Workers = 3 })
	e.Start()
	e.Start()
	assert.Equal(t, StateRunning, e.State())
	assert.Equal(t, 3, e.Stats().Workers)
}

func TestPipeDuringDrainWaitsAndRestarts(t *testing.T) {
	w := newFakeWriter()
	w.gate = make(chan struct{})
	w.started = make(chan int, 16)
	e := newTestEngine(t, w, func(c *Config) { c.Workers = 1 })

	require.NoError(t, e.PipeBytes(context.Background(), []byte("a"), 1))
	<-w.started

	closed := make(chan error, 1)
	go func() { closed <- e.Close(context.Background()) }()
	eventually(t, func() bool { return e.State() == StateDraining }, "engine draining")

	piped := make(chan error, 1)
	go func() { piped <- e.PipeBytes(context.Background(), []byte("b"), 1) }()

	select {
	case <-piped:
		t.Fatal("Pipe completed while the engine was draining")
	case <-time.After(10 * time.Millisecond):
	}

	close(w.gate)
	require.NoError(t, <-closed)
	require.NoError(t, <-piped)
	assert.Equal(t, StateRunning, e.State())

	require.NoError(t, e.Sync(context.Background()))
	assert.Equal(t, "ab", string(w.bytes(1)))
}

func TestCloseContextCancelled(t *testing.T) {
	w := newFakeWriter()
	w.gate = make(chan struct{})
	w.started = make(chan int, 16)
	e := newTestEngine(t, w, nil)

	require.NoError(t, e.PipeBytes(context.Background(), []byte("slow"), 1))
	<-w.started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Close(ctx), context.DeadlineExceeded)
	assert.Equal(t, StateDraining, e.State())

	close(w.gate)
	eventually(t, func() bool { return e.State() == StateStopped }, "drain finished in background")
	assert.Equal(t, "slow", string(w.bytes(1)))
}

func TestCloseDuringBackgroundDrainHonorsContext(t *testing.T) {
	w := newFakeWriter()
	w.gate = make(chan struct{})
	w.started = make(chan int, 16)
	e := newTestEngine(t, w, nil)

	require.NoError(t, e.PipeBytes(context.Background(), []byte("slow"), 1))
	<-w.started

	first, cancelFirst := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelFirst()
	require.ErrorIs(t, e.Close(first), context.DeadlineExceeded)

	second, cancelSecond := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelSecond()
	start := time.Now()
	assert.ErrorIs(t, e.Close(second), context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateDraining, e.State())

	done := make(chan error, 1)
	go func() { done <- e.Close(context.Background()) }()
	close(w.gate)

	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, e.State())
	assert.Equal(t, "slow", string(w.bytes(1)))
}

func TestCloseStoppedEngineWithCancelledContext(t *testing.T) {
	e := newTestEngine(t, newFakeWriter(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, e.Close(ctx))
}

func TestPipeCancelledWhileBufferBusy(t *testing.T) {
	w := newFakeWriter()
	w.gate = make(chan struct{})
	w.started = make(chan int, 16)
	e := newTestEngine(t, w, nil)

	buf := filled(8, 7)
	require.NoError(t, e.PipeBytes(context.Background(), buf, 1))
	<-w.started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.PipeBytes(ctx, buf, 1), context.DeadlineExceeded)

	close(w.gate)
	require.NoError(t, e.Sync(context.Background()))
	assert.Equal(t, buf, w.bytes(1))
	assert.Equal(t, uint64(1), e.Stats().Submitted)
}

// ============================================================================
// Sync variants
// ============================================================================

func TestSyncBufferWaitsOnlyForThatBuffer(t *testing.T) {
	w := newFakeWriter()
	w.gate = make(chan struct{})
	w.started = make(chan int, 16)
	e := newTestEngine(t, w, func(c *Config) { c.Workers = 2 })

	slow := filled(8, 1)
	fast := filled(8, 2)
	require.NoError(t, e.PipeBytes(context.Background(), slow, 1))
	<-w.started

	// Different destination, different buffer: not gated behind slow's turn.
	w.mu.Lock()
	gate := w.gate
	w.gate = nil
	w.mu.Unlock()
	defer close(gate)
	require.NoError(t, e.PipeBytes(context.Background(), fast, 2))

	require.NoError(t, e.SyncBuffer(context.Background(), IdentityOf(fast)))
	require.NoError(t, e.SyncDestination(context.Background(), 2))
	assert.Equal(t, fast, w.bytes(2))
	assert.True(t, e.tracker.Busy(IdentityOf(slow)))
}

func TestSnapshotReleasesBufferBeforeWrite(t *testing.T) {
	w := newFakeWriter()
	w.gate = make(chan struct{})
	w.started = make(chan int, 16)
	e := newTestEngine(t, w, func(c *Config) { c.Snapshot = true })

	buf := filled(4096, 0xCD)
	require.NoError(t, e.PipeBytes(context.Background(), buf, 1))
	<-w.started

	// The copy has been taken: the buffer is free while the write is blocked.
	require.NoError(t, e.SyncBuffer(context.Background(), IdentityOf(buf)))
	for i := range buf {
		buf[i] = 0x00
	}

	close(w.gate)
	require.NoError(t, e.Sync(context.Background()))
	assert.Equal(t, filled(4096, 0xCD), w.bytes(1))
}

func TestPositionalWrites(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "positional"))
	require.NoError(t, err)
	defer f.Close()

	e := New(Config{Workers: 4, ChunkSize: 1000}, nil)
	defer e.Close(context.Background())

	const frame = 3000
	frames := make([][]byte, 5)
	for i := len(frames) - 1; i >= 0; i-- {
		frames[i] = filled(frame, byte('A'+i))
		require.NoError(t, e.PipeBytes(context.Background(), frames[i], int(f.Fd()), WithOffset(int64(i*frame))))
	}
	require.NoError(t, e.Flush(context.Background()))

	got, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	require.Len(t, got, 5*frame)
	for i := range frames {
		assert.Equal(t, frames[i], got[i*frame:(i+1)*frame])
	}
}

func TestStatsAndMetrics(t *testing.T) {
	m := &recordingMetrics{}
	w := newFakeWriter()
	e := New(Config{Writer: w}, m)
	defer e.Close(context.Background())

	require.NoError(t, e.PipeBytes(context.Background(), filled(100, 1), 1))
	require.NoError(t, e.PipeBytes(context.Background(), filled(50, 2), 1))
	require.NoError(t, e.Sync(context.Background()))

	stats := e.Stats()
	assert.Equal(t, uint64(2), stats.Submitted)
	assert.Equal(t, uint64(2), stats.Completed)
	assert.Equal(t, uint64(150), stats.BytesWritten)
	assert.Equal(t, 0, stats.InFlight)
	assert.Equal(t, DefaultQueueSize, stats.QueueCap)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 2, m.submits)
	assert.Equal(t, 150, m.bytes)
	assert.Contains(t, m.states, StateRunning)
}

type recordingMetrics struct {
	mu      sync.Mutex
	submits int
	bytes   int
	failed  int
	states  []State
}

func (m *recordingMetrics) ObserveSubmit(time.Duration) {
	m.mu.Lock()
	m.submits++
	m.mu.Unlock()
}

func (m *recordingMetrics) ObserveWrite(bytes int, _, _ time.Duration, err error) {
	m.mu.Lock()
	m.bytes += bytes
	if err != nil {
		m.failed++
	}
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordQueueDepth(int) {}
func (m *recordingMetrics) RecordInFlight(int)   {}

func (m *recordingMetrics) RecordState(s State) {
	m.mu.Lock()
	m.states = append(m.states, s)
	m.mu.Unlock()
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(42).String())
}
