package pipe

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/marmos91/turbopipe/internal/logger"
)

// ProcessFunc handles one job on behalf of a worker.
type ProcessFunc func(workerID int, job Job)

// PanicFunc is called when a ProcessFunc panics. The worker keeps running.
type PanicFunc func(workerID int, job Job, err error)

// Pool runs a fixed number of workers draining a Queue.
//
// Workers exit only once the queue is closed and empty, so every job that
// was accepted by Push is processed before Wait returns.
type Pool struct {
	queue   *Queue
	workers int
	process ProcessFunc
	onPanic PanicFunc

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

// NewPool creates a pool of n workers. It does nothing until Start.
func NewPool(q *Queue, n int, process ProcessFunc, onPanic PanicFunc) *Pool {
	if n <= 0 {
		n = DefaultWorkers
	}
	return &Pool{
		queue:   q,
		workers: n,
		process: process,
		onPanic: onPanic,
	}
}

// Start launches the workers. Subsequent calls are no-ops.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}
	p.started = true

	logger.Debug("Starting pipe workers", logger.Workers(p.workers), logger.QueueCap(p.queue.Cap()))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Wait blocks until every worker has exited. Close the queue first.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.workers
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		job, ok := p.queue.Pop()
		if !ok {
			logger.Debug("Pipe worker exiting", logger.WorkerID(id))
			return
		}
		p.run(id, job)
	}
}

// run processes one job, converting a panic into a reported failure.
func (p *Pool) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrWorkerPanic, r)
			logger.Error("Pipe worker panic",
				logger.WorkerID(id),
				logger.JobID(job.ID.String()),
				logger.Err(err),
				"stack", string(debug.Stack()))
			if p.onPanic != nil {
				p.onPanic(id, job, err)
			}
		}
	}()
	p.process(id, job)
}
