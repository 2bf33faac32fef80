package pipe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/marmos91/turbopipe/internal/logger"
	"github.com/marmos91/turbopipe/internal/telemetry"
	"github.com/marmos91/turbopipe/pkg/bufpool"
)

const (
	// DefaultWorkers is the worker pool size when Config.Workers is unset.
	DefaultWorkers = 4

	// DefaultQueueSize is the work queue capacity when Config.QueueSize is unset.
	DefaultQueueSize = 64

	// DefaultMaxFailures is how many write failures are retained for Flush
	// and Failures when Config.MaxFailures is unset.
	DefaultMaxFailures = 128
)

// State is the engine lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds engine configuration.
type Config struct {
	// Workers is the number of goroutines writing to descriptors.
	// Default: 4
	Workers int

	// QueueSize is the maximum number of jobs waiting for a worker.
	// Pipe blocks while the queue is full.
	// Default: 64
	QueueSize int

	// ChunkSize caps the bytes passed to a single write call.
	// 0 writes each job with as few calls as the destination allows.
	ChunkSize int

	// Snapshot makes workers copy the buffer and release it before writing.
	// The producer gets its buffer back sooner at the cost of one memcpy.
	Snapshot bool

	// MaxFailures is how many write failures are retained.
	// Default: 128
	MaxFailures int

	// Writer performs the raw writes. Default: SyscallWriter.
	Writer FDWriter

	// Buffers supplies snapshot copies. Default: a new bufpool.Pool.
	Buffers *bufpool.Pool

	// OnFailure, if set, is called from the worker goroutine for every failed
	// job. It must not block for long and must not call Pipe or Close.
	OnFailure func(*WriteError)
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Workers:     DefaultWorkers,
		QueueSize:   DefaultQueueSize,
		MaxFailures: DefaultMaxFailures,
	}
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.ChunkSize < 0 {
		c.ChunkSize = 0
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = DefaultMaxFailures
	}
	if c.Writer == nil {
		c.Writer = SyscallWriter{}
	}
	if c.Buffers == nil {
		c.Buffers = bufpool.NewPool(nil)
	}
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	State        State
	Workers      int
	QueueDepth   int
	QueueCap     int
	InFlight     int
	Destinations int

	Submitted       uint64
	Completed       uint64
	Failed          uint64
	BytesWritten    uint64
	DroppedFailures uint64

	LastError   string
	LastErrorAt time.Time
}

// Engine moves caller-owned buffers to file descriptors in the background.
//
// The engine starts lazily on the first Pipe and can be closed and reused
// any number of times. All methods are safe for concurrent use.
type Engine struct {
	cfg     Config
	metrics Metrics

	tracker  *Tracker
	seq      *Sequencer
	failures *failureLog

	// mu is held shared by submitters and exclusively while starting or
	// draining, so Close never races an enqueue.
	mu    sync.RWMutex
	state atomic.Int32
	queue atomic.Pointer[Queue]
	pool  *Pool

	submitted    atomic.Uint64
	completed    atomic.Uint64
	failed       atomic.Uint64
	bytesWritten atomic.Uint64

	errMu       sync.Mutex
	lastError   error
	lastErrorAt time.Time
}

// New creates an engine. It does not start any goroutine.
// metrics may be nil.
func New(cfg Config, metrics Metrics) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:      cfg,
		metrics:  metrics,
		tracker:  NewTracker(),
		seq:      NewSequencer(),
		failures: newFailureLog(cfg.MaxFailures),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Start builds the queue and launches the workers. Pipe calls it
// implicitly; calling it again while running is a no-op. If the engine is
// draining, Start waits for the drain to finish and then starts afresh.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startLocked()
}

func (e *Engine) startLocked() {
	if e.State() == StateRunning {
		return
	}

	q := NewQueue(e.cfg.QueueSize, e.seq)
	p := NewPool(q, e.cfg.Workers, e.process, e.recoverJob)
	e.queue.Store(q)
	e.pool = p
	p.Start()

	e.setState(StateRunning)
	logger.Info("Pipe engine started",
		logger.Workers(e.cfg.Workers),
		logger.QueueCap(e.cfg.QueueSize),
		logger.ChunkSize(e.cfg.ChunkSize),
		logger.Snapshot(e.cfg.Snapshot))
}

// lockRunning returns the live queue with e.mu held shared, starting the
// engine if needed. The caller must RUnlock.
func (e *Engine) lockRunning() *Queue {
	for {
		e.mu.RLock()
		if e.State() == StateRunning {
			return e.queue.Load()
		}
		e.mu.RUnlock()
		e.Start()
	}
}

// Pipe schedules data to be written to fd and returns once the job is queued.
//
// id identifies the memory region. If a previous job for id is still in
// flight, Pipe blocks until it completes, so the caller must not modify data
// until SyncBuffer(id) (or Sync) returns. Pipe also blocks while the work
// queue is full.
//
// Invalid arguments are rejected synchronously with ErrInvalidArgument. Write
// failures are reported asynchronously (see Flush). If ctx is cancelled while
// blocked, nothing is queued and ctx.Err() is returned.
func (e *Engine) Pipe(ctx context.Context, id BufferID, data []byte, fd int, opts ...JobOption) error {
	job := newJob(id, data, fd, opts...)
	if err := e.validate(job); err != nil {
		return err
	}

	start := time.Now()
	ctx, span := telemetry.StartPipeSpan(ctx, telemetry.SpanPipeSubmit,
		telemetry.JobID(job.ID.String()),
		telemetry.Buffer(uintptr(id)),
		telemetry.FD(fd),
		telemetry.Size(len(data)),
	)
	defer span.End()

	q := e.lockRunning()
	defer e.mu.RUnlock()

	reg, err := e.tracker.Acquire(ctx, id)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	job.reg = reg

	if err := q.Push(ctx, job); err != nil {
		reg.Release()
		telemetry.RecordError(ctx, err)
		return err
	}
	e.submitted.Add(1)

	if e.metrics != nil {
		e.metrics.ObserveSubmit(time.Since(start))
		e.metrics.RecordQueueDepth(q.Len())
		e.metrics.RecordInFlight(e.tracker.Len())
	}
	return nil
}

// PipeBytes is Pipe with the buffer identity derived from data's address.
func (e *Engine) PipeBytes(ctx context.Context, data []byte, fd int, opts ...JobOption) error {
	return e.Pipe(ctx, IdentityOf(data), data, fd, opts...)
}

func (e *Engine) validate(job Job) error {
	switch {
	case len(job.Data) == 0:
		return invalidArgument("empty buffer")
	case job.FD < 0:
		return invalidArgument("negative descriptor %d", job.FD)
	case job.Offset < NoOffset:
		return invalidArgument("negative offset %d", job.Offset)
	}
	return e.cfg.Writer.Check(job.FD)
}

// process is the worker body for one job.
func (e *Engine) process(workerID int, job Job) {
	queueWait := time.Since(job.EnqueuedAt)
	ctx, span := telemetry.StartPipeSpan(context.Background(), telemetry.SpanPipeWrite,
		telemetry.JobID(job.ID.String()),
		telemetry.Buffer(uintptr(job.Buffer)),
		telemetry.FD(job.FD),
		telemetry.Offset(job.Offset),
		telemetry.Size(job.Len()),
		telemetry.WorkerID(workerID),
		telemetry.QueueWaitMs(float64(queueWait.Microseconds())/1000.0),
	)
	defer span.End()

	data := job.Data
	var copied []byte
	turn := false

	defer func() {
		if !turn {
			e.seq.wait(job.FD, job.seq)
		}
		e.seq.finish(job.FD)
		job.reg.Release()
		if copied != nil {
			e.cfg.Buffers.Put(copied)
		}
	}()
	// Runs before the release above, so a Flush observing the release also
	// observes the failure.
	defer func() {
		if r := recover(); r != nil {
			e.recoverJob(workerID, job, fmt.Errorf("%w: %v", ErrWorkerPanic, r))
		}
	}()

	if e.cfg.Snapshot {
		copied = e.cfg.Buffers.Get(len(data))
		copy(copied, data)
		data = copied
		job.reg.Release()
	}

	e.seq.wait(job.FD, job.seq)
	turn = true

	start := time.Now()
	n, err := writeAll(e.cfg.Writer, job.FD, data, job.Offset, e.cfg.ChunkSize)
	duration := time.Since(start)

	telemetry.SetAttributes(ctx, telemetry.BytesWritten(n))
	if err != nil {
		e.fail(ctx, workerID, &WriteError{
			JobID:   job.ID,
			Buffer:  job.Buffer,
			FD:      job.FD,
			Offset:  job.Offset,
			Size:    job.Len(),
			Written: n,
			Err:     err,
		})
	} else {
		e.completed.Add(1)
		e.bytesWritten.Add(uint64(n))
		logger.Debug("Pipe job written",
			logger.JobID(job.ID.String()),
			logger.WorkerID(workerID),
			logger.FD(job.FD),
			logger.BytesWritten(n),
			logger.DurationMs(float64(duration.Microseconds())/1000.0))
	}

	if e.metrics != nil {
		e.metrics.ObserveWrite(n, queueWait, duration, err)
	}
}

// recoverJob reports a job whose processing panicked.
func (e *Engine) recoverJob(workerID int, job Job, err error) {
	e.fail(context.Background(), workerID, &WriteError{
		JobID:  job.ID,
		Buffer: job.Buffer,
		FD:     job.FD,
		Offset: job.Offset,
		Size:   job.Len(),
		Err:    err,
	})
	if e.metrics != nil {
		e.metrics.ObserveWrite(0, time.Since(job.EnqueuedAt), 0, err)
	}
}

// fail records a failed job. The job is not retried.
func (e *Engine) fail(ctx context.Context, workerID int, werr *WriteError) {
	e.failed.Add(1)

	e.errMu.Lock()
	e.lastError = werr
	e.lastErrorAt = time.Now()
	e.errMu.Unlock()

	e.failures.add(werr)
	telemetry.RecordError(ctx, werr)

	lc := logger.NewLogContext("pipe").
		WithJob(werr.JobID.String(), werr.FD).
		WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	args := []any{
		logger.WorkerID(workerID),
		logger.Buffer(uintptr(werr.Buffer)),
		logger.Size(werr.Size),
		logger.BytesWritten(werr.Written),
		logger.Err(werr.Err),
	}
	var errno syscall.Errno
	if errors.As(werr.Err, &errno) {
		args = append(args, logger.ErrorCode(int(errno)))
	}
	logger.ErrorCtx(logger.WithContext(ctx, lc), "Pipe write failed", args...)

	e.notifyFailure(workerID, werr)
}

// notifyFailure runs Config.OnFailure. A panicking callback is logged and
// otherwise ignored.
func (e *Engine) notifyFailure(workerID int, werr *WriteError) {
	if e.cfg.OnFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Pipe failure callback panicked",
				logger.WorkerID(workerID),
				logger.JobID(werr.JobID.String()),
				logger.Err(fmt.Errorf("%v", r)))
		}
	}()
	e.cfg.OnFailure(werr)
}

// Close drains the engine and stops its workers.
//
// New submissions wait until Close finishes. Every queued job is written,
// the queue is closed and all workers are joined; the engine then reports
// StateStopped and a later Pipe starts it again. Descriptors are never
// closed. Close on an engine that is not running is a no-op.
//
// If ctx is cancelled first, Close returns ctx.Err() while the drain
// continues in the background. A Close that arrives during such a drain
// waits for it under its own ctx and then returns nil.
func (e *Engine) Close(ctx context.Context) error {
	if err := e.lockCtx(ctx); err != nil {
		return err
	}
	if e.State() != StateRunning {
		e.mu.Unlock()
		return nil
	}

	ctx, span := telemetry.StartPipeSpan(ctx, telemetry.SpanPipeClose)
	defer span.End()

	e.setState(StateDraining)
	start := time.Now()
	logger.Info("Pipe engine draining",
		logger.QueueDepth(e.queue.Load().Len()),
		logger.InFlight(e.tracker.Len()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer e.mu.Unlock()
		e.drainLocked()
		logger.Info("Pipe engine stopped", logger.DurationMs(logger.Duration(start)))
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		logger.Warn("Pipe engine close interrupted, drain continues in background",
			logger.QueueDepth(e.Stats().QueueDepth))
		telemetry.RecordError(ctx, ctx.Err())
		return ctx.Err()
	}
}

// lockCtx takes e.mu exclusively, giving up when ctx is done. A lock that
// is granted after ctx is done is released right away.
func (e *Engine) lockCtx(ctx context.Context) error {
	if e.mu.TryLock() {
		return nil
	}

	locked := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(locked)
	}()

	select {
	case <-locked:
		return nil
	case <-ctx.Done():
		go func() {
			<-locked
			e.mu.Unlock()
		}()
		return ctx.Err()
	}
}

// drainLocked runs the shutdown sequence. e.mu must be held exclusively.
func (e *Engine) drainLocked() {
	_ = e.Sync(context.Background())

	q := e.queue.Load()
	q.Close()
	e.pool.Wait()

	e.tracker.reset()
	e.seq.reset()
	e.pool = nil
	e.queue.Store(nil)
	e.setState(StateStopped)
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	if e.metrics != nil {
		e.metrics.RecordState(s)
	}
	logger.Debug("Pipe engine state changed", logger.State(s.String()))
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		State:           e.State(),
		Workers:         e.cfg.Workers,
		QueueCap:        e.cfg.QueueSize,
		InFlight:        e.tracker.Len(),
		Destinations:    e.seq.Len(),
		Submitted:       e.submitted.Load(),
		Completed:       e.completed.Load(),
		Failed:          e.failed.Load(),
		BytesWritten:    e.bytesWritten.Load(),
		DroppedFailures: e.failures.droppedCount(),
	}
	if q := e.queue.Load(); q != nil {
		s.QueueDepth = q.Len()
	}

	e.errMu.Lock()
	if e.lastError != nil {
		s.LastError = e.lastError.Error()
		s.LastErrorAt = e.lastErrorAt
	}
	e.errMu.Unlock()
	return s
}

// LastError returns the most recent write failure and when it happened.
func (e *Engine) LastError() (time.Time, error) {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.lastErrorAt, e.lastError
}

// Failures returns the retained write failures, oldest first, without
// clearing them.
func (e *Engine) Failures() []*WriteError {
	return e.failures.snapshot()
}
