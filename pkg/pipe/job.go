package pipe

import (
	"time"
	"unsafe"

	"github.com/google/uuid"
)

// NoOffset makes a job write at the descriptor's current position.
const NoOffset int64 = -1

// BufferID is an opaque, stable key identifying one caller-owned memory
// region. It is only ever used as a map key.
type BufferID uintptr

// IdentityOf derives a BufferID from the address of the slice's backing
// array. Two slices that start at the same address share an identity.
// Returns 0 for a nil or empty slice.
func IdentityOf(data []byte) BufferID {
	if len(data) == 0 {
		return 0
	}
	return BufferID(uintptr(unsafe.Pointer(unsafe.SliceData(data))))
}

// Job describes one pending transfer. It is a plain value: the engine owns it
// from enqueue until the write completes, then discards it.
type Job struct {
	// ID correlates logs, spans and failure reports for this job.
	ID uuid.UUID

	// Buffer is the identity registered in the tracker for this job.
	Buffer BufferID

	// Data is the borrowed source region. Never modified by the engine.
	Data []byte

	// FD is the destination descriptor. Never closed by the engine.
	FD int

	// Offset is the absolute position for positional writes, or NoOffset.
	Offset int64

	// EnqueuedAt is when the job entered the work queue.
	EnqueuedAt time.Time

	// seq is the destination turn assigned at enqueue.
	seq uint64

	// reg is the tracker registration released when the job completes.
	reg *Registration
}

// Len returns the number of bytes the job writes.
func (j Job) Len() int {
	return len(j.Data)
}

// JobOption customizes a job created by Engine.Pipe.
type JobOption func(*Job)

// WithOffset makes the job write at an absolute offset (pwrite) instead of
// the descriptor's current position.
func WithOffset(offset int64) JobOption {
	return func(j *Job) {
		j.Offset = offset
	}
}

// newJob builds a job for the given buffer and destination.
func newJob(id BufferID, data []byte, fd int, opts ...JobOption) Job {
	j := Job{
		ID:     uuid.New(),
		Buffer: id,
		Data:   data,
		FD:     fd,
		Offset: NoOffset,
	}
	for _, opt := range opts {
		opt(&j)
	}
	return j
}
