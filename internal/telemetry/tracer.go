package telemetry

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for pipe operations.
const (
	AttrJobID        = "pipe.job_id"
	AttrBuffer       = "pipe.buffer"
	AttrFD           = "pipe.fd"
	AttrOffset       = "pipe.offset"
	AttrSize         = "pipe.size"
	AttrBytesWritten = "pipe.bytes_written"
	AttrWorkerID     = "pipe.worker_id"
	AttrQueueWaitMs  = "pipe.queue_wait_ms"
	AttrSnapshot     = "pipe.snapshot"
	AttrChunkSize    = "pipe.chunk_size"

	AttrBenchMethod = "bench.method"
	AttrBenchFrames = "bench.frames"
)

// Span names. Format: <component>.<operation>
const (
	SpanPipeSubmit = "pipe.submit"
	SpanPipeWrite  = "pipe.write"
	SpanPipeSync   = "pipe.sync"
	SpanPipeClose  = "pipe.close"
	SpanBenchRun   = "bench.run"
)

// JobID returns an attribute for a job identifier.
func JobID(id string) attribute.KeyValue {
	return attribute.String(AttrJobID, id)
}

// Buffer returns an attribute for a buffer identity, rendered as hex.
func Buffer(id uintptr) attribute.KeyValue {
	return attribute.String(AttrBuffer, "0x"+strconv.FormatUint(uint64(id), 16))
}

// FD returns an attribute for a destination descriptor.
func FD(fd int) attribute.KeyValue {
	return attribute.Int(AttrFD, fd)
}

// Offset returns an attribute for a positional write offset.
func Offset(off int64) attribute.KeyValue {
	return attribute.Int64(AttrOffset, off)
}

// Size returns an attribute for a job size.
func Size(n int) attribute.KeyValue {
	return attribute.Int(AttrSize, n)
}

// BytesWritten returns an attribute for bytes accepted by the destination.
func BytesWritten(n int) attribute.KeyValue {
	return attribute.Int(AttrBytesWritten, n)
}

// WorkerID returns an attribute for a worker index.
func WorkerID(id int) attribute.KeyValue {
	return attribute.Int(AttrWorkerID, id)
}

// QueueWaitMs returns an attribute for time spent in the work queue.
func QueueWaitMs(ms float64) attribute.KeyValue {
	return attribute.Float64(AttrQueueWaitMs, ms)
}

// Snapshot returns an attribute for snapshot mode.
func Snapshot(on bool) attribute.KeyValue {
	return attribute.Bool(AttrSnapshot, on)
}

// ChunkSize returns an attribute for the per-syscall chunk size.
func ChunkSize(n int) attribute.KeyValue {
	return attribute.Int(AttrChunkSize, n)
}

// BenchMethod returns an attribute for a benchmark method.
func BenchMethod(m string) attribute.KeyValue {
	return attribute.String(AttrBenchMethod, m)
}

// BenchFrames returns an attribute for a benchmark frame count.
func BenchFrames(n int) attribute.KeyValue {
	return attribute.Int(AttrBenchFrames, n)
}

// StartPipeSpan starts a span for a pipe engine operation.
func StartPipeSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}
