package pipe

import "time"

// Metrics receives engine observations. A nil Metrics disables collection
// with zero overhead.
type Metrics interface {
	// ObserveSubmit records how long Pipe blocked waiting for the buffer
	// registration and a free queue slot.
	ObserveSubmit(wait time.Duration)

	// ObserveWrite records a completed job. err is nil on success.
	ObserveWrite(bytes int, queueWait, duration time.Duration, err error)

	// RecordQueueDepth records the number of jobs waiting in the work queue.
	RecordQueueDepth(depth int)

	// RecordInFlight records the number of buffers with a live registration.
	RecordInFlight(count int)

	// RecordState records a lifecycle transition.
	RecordState(state State)
}
