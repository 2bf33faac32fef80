// Package bench measures how fast raw frames reach a destination with a
// blocking write per frame, a writer goroutine fed by a bounded channel, and
// the pipe engine.
package bench

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/marmos91/turbopipe/internal/logger"
	"github.com/marmos91/turbopipe/internal/telemetry"
	"github.com/marmos91/turbopipe/pkg/bufpool"
	"github.com/marmos91/turbopipe/pkg/pipe"
)

// Method is a way of moving frames to the destination.
type Method string

const (
	// MethodStandard copies each frame and writes it synchronously.
	MethodStandard Method = "standard"

	// MethodThreaded copies each frame and hands it to a writer goroutine
	// through a bounded channel.
	MethodThreaded Method = "threaded"

	// MethodTurboPipe submits the frame memory itself to the pipe engine.
	MethodTurboPipe Method = "turbopipe"
)

// Methods lists every method in report order. The first is the baseline
// for the gain column.
var Methods = []Method{MethodStandard, MethodThreaded, MethodTurboPipe}

// ParseMethods parses a comma separated list of method names or "all".
// Duplicates are dropped and the result keeps the order of Methods.
func ParseMethods(s string) ([]Method, error) {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	if trimmed == "" || trimmed == "all" {
		return Methods, nil
	}

	wanted := make(map[Method]bool)
	for _, part := range strings.Split(trimmed, ",") {
		name := strings.TrimSpace(part)
		if name == "all" {
			return Methods, nil
		}
		found := false
		for _, m := range Methods {
			if string(m) == name {
				wanted[m] = true
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown method %q (valid: standard, threaded, turbopipe, all)", part)
		}
	}

	selected := make([]Method, 0, len(wanted))
	for _, m := range Methods {
		if wanted[m] {
			selected = append(selected, m)
		}
	}
	return selected, nil
}

// threadedQueueDepth bounds the frames waiting for the writer goroutine.
const threadedQueueDepth = 10

// Options describes one benchmark run.
type Options struct {
	Width  int
	Height int

	// Frames is the number of frames written per method.
	Frames int

	// Buffers is the number of distinct frame buffers cycled through.
	Buffers int

	// Render stamps the frame number into each buffer before it is written.
	// For the engine this means waiting for the buffer's previous write.
	Render bool

	// Seed makes frame contents reproducible. Zero picks a fixed seed.
	Seed uint64
}

// FrameSize returns the bytes in one RGB24 frame.
func (o Options) FrameSize() int {
	return o.Width * o.Height * 3
}

// Validate rejects options that cannot produce any frames.
func (o Options) Validate() error {
	switch {
	case o.Width <= 0 || o.Height <= 0:
		return fmt.Errorf("invalid resolution %dx%d", o.Width, o.Height)
	case o.Frames <= 0:
		return fmt.Errorf("frames must be positive, got %d", o.Frames)
	case o.Buffers <= 0:
		return fmt.Errorf("buffers must be positive, got %d", o.Buffers)
	}
	return nil
}

// Runner executes benchmark methods against destinations it opens.
type Runner struct {
	engine  *pipe.Engine
	open    func() (*Destination, error)
	buffers *bufpool.Pool
}

// NewRunner creates a runner. open is called once per method so each
// method starts with a fresh destination.
func NewRunner(engine *pipe.Engine, open func() (*Destination, error)) *Runner {
	return &Runner{engine: engine, open: open, buffers: bufpool.NewPool(nil)}
}

// Run measures every method in order and returns their results. The gain
// of each result is relative to the first method.
func (r *Runner) Run(ctx context.Context, opts Options, methods []Method) (Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	frames := makeFrames(opts)
	report := make(Report, 0, len(methods))

	for _, m := range methods {
		res, err := r.runMethod(ctx, opts, m, frames)
		if err != nil {
			return report, fmt.Errorf("%s: %w", m, err)
		}
		report = append(report, res)
	}

	report.computeGains()
	return report, nil
}

func (r *Runner) runMethod(ctx context.Context, opts Options, m Method, frames [][]byte) (Result, error) {
	ctx, span := telemetry.StartPipeSpan(ctx, telemetry.SpanBenchRun,
		telemetry.BenchMethod(string(m)),
		telemetry.BenchFrames(opts.Frames),
	)
	defer span.End()

	dest, err := r.open()
	if err != nil {
		telemetry.RecordError(ctx, err)
		return Result{}, err
	}

	start := time.Now()
	var runErr error
	switch m {
	case MethodStandard:
		runErr = r.standard(ctx, dest, opts, frames)
	case MethodThreaded:
		runErr = r.threaded(ctx, dest, opts, frames)
	case MethodTurboPipe:
		runErr = r.turbopipe(ctx, dest, opts, frames)
	default:
		runErr = fmt.Errorf("unknown method %q", m)
	}
	elapsed := time.Since(start)

	if err := dest.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		telemetry.RecordError(ctx, runErr)
		return Result{}, runErr
	}

	res := newResult(m, opts, elapsed)
	logger.InfoCtx(ctx, "Benchmark method finished",
		logger.Method(string(m)),
		logger.Frames(opts.Frames),
		logger.DurationMs(float64(elapsed.Microseconds())/1000),
		"fps", res.FPS,
	)
	return res, nil
}

// standard copies the frame out of the render buffer and writes the copy
// with a blocking write, like reading a GPU buffer back before writing it.
func (r *Runner) standard(ctx context.Context, dest *Destination, opts Options, frames [][]byte) error {
	for i := 0; i < opts.Frames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame := frames[i%len(frames)]
		if opts.Render {
			stamp(frame, i)
		}

		buf := r.buffers.Get(len(frame))
		copy(buf, frame)
		_, err := dest.File.Write(buf)
		r.buffers.Put(buf)
		if err != nil {
			return err
		}
	}
	return nil
}

// threaded hands frame copies to a single writer goroutine.
func (r *Runner) threaded(ctx context.Context, dest *Destination, opts Options, frames [][]byte) error {
	queue := make(chan []byte, threadedQueueDepth)
	writeErr := make(chan error, 1)

	go func() {
		var err error
		for buf := range queue {
			if err == nil {
				_, err = dest.File.Write(buf)
			}
			r.buffers.Put(buf)
		}
		writeErr <- err
	}()

	var err error
	for i := 0; i < opts.Frames && err == nil; i++ {
		frame := frames[i%len(frames)]
		if opts.Render {
			stamp(frame, i)
		}

		buf := r.buffers.Get(len(frame))
		copy(buf, frame)
		select {
		case queue <- buf:
		case <-ctx.Done():
			r.buffers.Put(buf)
			err = ctx.Err()
		}
	}
	close(queue)

	return errors.Join(err, <-writeErr)
}

// turbopipe submits each frame buffer to the engine without copying.
//
// The destination is closed right after, so every frame already accepted
// must land first, even when ctx ends the run early. Otherwise a queued
// frame could be written to whatever file next reuses the descriptor.
func (r *Runner) turbopipe(ctx context.Context, dest *Destination, opts Options, frames [][]byte) (err error) {
	fd := int(dest.File.Fd())
	defer func() {
		if err != nil {
			_ = r.engine.SyncDestination(context.Background(), fd)
		}
	}()

	for i := 0; i < opts.Frames; i++ {
		frame := frames[i%len(frames)]
		id := pipe.IdentityOf(frame)

		if opts.Render {
			if err := r.engine.SyncBuffer(ctx, id); err != nil {
				return err
			}
			stamp(frame, i)
		}

		if err := r.engine.Pipe(ctx, id, frame, fd); err != nil {
			return err
		}
	}
	return r.engine.Flush(ctx)
}

// makeFrames allocates the frame buffers filled with noise in the range
// the reference benchmark uses, so no layer can shortcut uniform data.
func makeFrames(opts Options) [][]byte {
	seed := opts.Seed
	if seed == 0 {
		seed = 0x7475726270697065
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1))

	frames := make([][]byte, opts.Buffers)
	for i := range frames {
		frame := make([]byte, opts.FrameSize())
		for j := range frame {
			frame[j] = byte(128 + rng.IntN(7))
		}
		frames[i] = frame
	}
	return frames
}

// stamp writes the frame number into the first bytes of the frame.
func stamp(frame []byte, n int) {
	for i := 0; i < 8 && i < len(frame); i++ {
		frame[i] = byte(n >> (8 * i))
	}
}
