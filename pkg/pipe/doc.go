// Package pipe implements an asynchronous buffer-to-descriptor write engine.
//
// The engine lets a producer (typically a render loop handing over mapped
// frame memory) fire off a write of a byte slice to a raw file descriptor and
// keep going, while a fixed pool of background workers performs the blocking
// write(2) calls.
//
// The pipe package is responsible for:
//   - Tracking which buffers are in flight (at most one job per buffer)
//   - Queueing jobs in a bounded FIFO with backpressure
//   - Writing each job fully, in submission order per destination
//   - Letting callers wait for one buffer, one destination, or everything
//
// Key Design Principles:
//   - Borrow, never own: the engine reads caller memory and never copies it
//     unless snapshot mode is enabled, and never closes descriptors
//   - Ordering is fixed at enqueue time, not at execution time
//   - A failed write is reported, never fatal: the buffer is still released
//
// # Buffer handshake
//
// A caller must not overwrite, reuse or free a slice passed to Pipe until it
// has observed the buffer's registration clear through SyncBuffer, Sync,
// Flush or Close. A later Pipe for the same BufferID also blocks until the
// earlier job is done, but by then the memory has already been rewritten.
// The engine cannot enforce the handshake; it only makes it checkable.
//
// # Usage
//
//	engine := pipe.New(pipe.DefaultConfig(), nil)
//	defer engine.Close(context.Background())
//
//	for frame := range frames {
//		if err := engine.SyncBuffer(ctx, id); err != nil {
//			return err
//		}
//		render(frame, buf)
//		if err := engine.Pipe(ctx, id, buf, int(f.Fd())); err != nil {
//			return err
//		}
//	}
//	return engine.Flush(ctx)
package pipe
