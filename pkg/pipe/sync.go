package pipe

import (
	"context"
	"errors"

	"github.com/marmos91/turbopipe/internal/telemetry"
)

// SyncBuffer blocks until every job for id submitted before the call has
// released the buffer. After it returns, the caller may overwrite the
// memory. In snapshot mode the buffer is released once copied, which may be
// before the bytes reach the destination.
func (e *Engine) SyncBuffer(ctx context.Context, id BufferID) error {
	return e.tracker.Wait(ctx, id)
}

// Sync blocks until no buffer is in flight and every queued job has been
// written or has failed. It returns immediately when nothing is pending.
func (e *Engine) Sync(ctx context.Context) error {
	if err := e.tracker.WaitAll(ctx); err != nil {
		return err
	}
	return e.seq.WaitAll(ctx)
}

// SyncDestination blocks until every job for fd enqueued before the call
// has been written or has failed.
func (e *Engine) SyncDestination(ctx context.Context, fd int) error {
	return e.seq.Wait(ctx, fd)
}

// Flush is Sync followed by collecting the write failures recorded since the
// last Flush. The returned error joins every *WriteError; use errors.As to
// inspect them. Retained failures are cleared.
func (e *Engine) Flush(ctx context.Context) error {
	ctx, span := telemetry.StartPipeSpan(ctx, telemetry.SpanPipeSync)
	defer span.End()

	if err := e.Sync(ctx); err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}

	failures := e.failures.drain()
	if len(failures) == 0 {
		return nil
	}
	errs := make([]error, len(failures))
	for i, f := range failures {
		errs[i] = f
	}
	err := errors.Join(errs...)
	telemetry.RecordError(ctx, err)
	return err
}
