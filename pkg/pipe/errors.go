package pipe

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidArgument is returned synchronously by Pipe for a request that
	// can never be written (empty data, bad descriptor, bad offset).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidDescriptor is returned when the destination is closed or not
	// open for writing. It always comes wrapped together with ErrInvalidArgument.
	ErrInvalidDescriptor = errors.New("invalid descriptor")

	// ErrQueueClosed is returned by Queue.Push after Close.
	ErrQueueClosed = errors.New("work queue closed")

	// ErrUnsupported is returned by the default writer on platforms without
	// raw descriptor writes.
	ErrUnsupported = errors.New("raw descriptor writes not supported on this platform")

	// ErrShortWrite is reported when the destination accepts zero bytes
	// without an error.
	ErrShortWrite = errors.New("short write")

	// ErrWorkerPanic wraps a panic recovered while a worker was writing.
	ErrWorkerPanic = errors.New("worker panic")
)

// WriteError reports a job that could not be fully written. The job was
// abandoned and its buffer released.
type WriteError struct {
	JobID   uuid.UUID
	Buffer  BufferID
	FD      int
	Offset  int64
	Size    int
	Written int
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("pipe job %s: wrote %d of %d bytes to fd %d: %v",
		e.JobID, e.Written, e.Size, e.FD, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// invalidArgument wraps a detail message with ErrInvalidArgument.
func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
