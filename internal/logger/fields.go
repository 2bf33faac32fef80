package logger

import (
	"fmt"
	"log/slog"
	"strconv"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Jobs & Buffers
	// ========================================================================
	KeyJobID  = "job_id" // Unique job identifier (UUID)
	KeyBuffer = "buffer" // Buffer identity (opaque address key)
	KeySize   = "size"   // Job size in bytes

	// ========================================================================
	// Destination I/O
	// ========================================================================
	KeyFD           = "fd"            // Destination file descriptor
	KeyOffset       = "offset"        // Absolute offset for positional writes
	KeyBytesWritten = "bytes_written" // Bytes accepted by the destination
	KeyChunkSize    = "chunk_size"    // Maximum bytes per write syscall
	KeyPath         = "path"          // File path (input, output, config)

	// ========================================================================
	// Engine
	// ========================================================================
	KeyWorkerID   = "worker_id"   // Worker index within the pool
	KeyWorkers    = "workers"     // Pool size
	KeyQueueDepth = "queue_depth" // Jobs waiting in the work queue
	KeyQueueCap   = "queue_cap"   // Work queue capacity
	KeyInFlight   = "in_flight"   // Buffers with a live registration
	KeyState      = "state"       // Lifecycle state
	KeySnapshot   = "snapshot"    // Snapshot mode enabled

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Numeric error code (errno)
	KeyOperation  = "operation"   // Sub-operation type
	KeyMethod     = "method"      // Benchmark method: standard, threaded, turbopipe
	KeyFrames     = "frames"      // Number of frames written
	KeyResolution = "resolution"  // Frame resolution (WxH)
	KeyRepeat     = "repeat"      // Repetitions of the same input
	KeyAddr       = "addr"        // Listen address
)

// ============================================================================
// Field constructors for type safety
// These functions provide type-safe construction of slog.Attr values.
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// JobID returns a slog.Attr for a job identifier
func JobID(id string) slog.Attr {
	return slog.String(KeyJobID, id)
}

// Buffer returns a slog.Attr for a buffer identity, rendered as hex
func Buffer(id uintptr) slog.Attr {
	return slog.String(KeyBuffer, "0x"+strconv.FormatUint(uint64(id), 16))
}

// Size returns a slog.Attr for a size in bytes
func Size(n int) slog.Attr {
	return slog.Int(KeySize, n)
}

// FD returns a slog.Attr for a file descriptor
func FD(fd int) slog.Attr {
	return slog.Int(KeyFD, fd)
}

// Offset returns a slog.Attr for a positional write offset
func Offset(off int64) slog.Attr {
	return slog.Int64(KeyOffset, off)
}

// BytesWritten returns a slog.Attr for bytes written
func BytesWritten(n int) slog.Attr {
	return slog.Int(KeyBytesWritten, n)
}

// ChunkSize returns a slog.Attr for the per-syscall chunk size
func ChunkSize(n int) slog.Attr {
	return slog.Int(KeyChunkSize, n)
}

// Path returns a slog.Attr for a file path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// WorkerID returns a slog.Attr for a worker index
func WorkerID(id int) slog.Attr {
	return slog.Int(KeyWorkerID, id)
}

// Workers returns a slog.Attr for the pool size
func Workers(n int) slog.Attr {
	return slog.Int(KeyWorkers, n)
}

// QueueDepth returns a slog.Attr for queued jobs
func QueueDepth(n int) slog.Attr {
	return slog.Int(KeyQueueDepth, n)
}

// QueueCap returns a slog.Attr for queue capacity
func QueueCap(n int) slog.Attr {
	return slog.Int(KeyQueueCap, n)
}

// InFlight returns a slog.Attr for in-flight buffers
func InFlight(n int) slog.Attr {
	return slog.Int(KeyInFlight, n)
}

// State returns a slog.Attr for a lifecycle state
func State(s string) slog.Attr {
	return slog.String(KeyState, s)
}

// Snapshot returns a slog.Attr for snapshot mode
func Snapshot(on bool) slog.Attr {
	return slog.Bool(KeySnapshot, on)
}

// DurationMs returns a slog.Attr for operation duration
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric error code
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Operation returns a slog.Attr for sub-operation type
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Method returns a slog.Attr for a benchmark method
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// Frames returns a slog.Attr for a frame count
func Frames(n int) slog.Attr {
	return slog.Int(KeyFrames, n)
}

// Addr returns a slog.Attr for a listen address
func Addr(addr string) slog.Attr {
	return slog.String(KeyAddr, addr)
}

// Resolution returns a slog.Attr for a frame resolution as WxH
func Resolution(width, height int) slog.Attr {
	return slog.String(KeyResolution, fmt.Sprintf("%dx%d", width, height))
}

// Repeat returns a slog.Attr for a repetition count
func Repeat(n int) slog.Attr {
	return slog.Int(KeyRepeat, n)
}
