package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/turbopipe/internal/bench"
	"github.com/marmos91/turbopipe/internal/logger"
	"github.com/marmos91/turbopipe/pkg/pipe"
	"github.com/spf13/cobra"
)

var (
	pipeInput      string
	pipeOutput     string
	pipeExec       string
	pipeRepeat     int
	pipePositional bool
)

var pipeCmd = &cobra.Command{
	Use:   "pipe",
	Short: "Write a file to a destination through the engine",
	Long: `Map a file into memory and submit it to the engine one or more times.
The mapped pages are written directly, without an intermediate copy.

With --positional each repetition is written at its own offset, so the
destination must be seekable; otherwise repetitions are appended in
submission order.

Examples:
  # Copy a raw video file into a named pipe
  turbopipe pipe --input frames.raw --output /tmp/encoder.fifo

  # Stream a frame 100 times into an encoder
  turbopipe pipe --input frame.rgb --repeat 100 --exec "ffmpeg -f rawvideo -pix_fmt rgb24 -s 1920x1080 -i - out.mp4"

  # Write to stdout
  turbopipe pipe --input frame.rgb --output - | xxd | head`,
	RunE: runPipe,
}

func init() {
	pipeCmd.Flags().StringVarP(&pipeInput, "input", "i", "", "Input file to map")
	pipeCmd.Flags().StringVar(&pipeOutput, "output", "", "Destination path, or - for stdout")
	pipeCmd.Flags().StringVar(&pipeExec, "exec", "", "Shell command whose stdin receives the data")
	pipeCmd.Flags().IntVarP(&pipeRepeat, "repeat", "n", 1, "Number of times the input is written")
	pipeCmd.Flags().BoolVar(&pipePositional, "positional", false, "Write each repetition at its own offset")
	_ = pipeCmd.MarkFlagRequired("input")
	pipeCmd.MarkFlagsMutuallyExclusive("output", "exec")
	pipeCmd.MarkFlagsOneRequired("output", "exec")
}

func runPipe(cmd *cobra.Command, args []string) error {
	if pipeRepeat < 1 {
		return fmt.Errorf("--repeat must be positive, got %d", pipeRepeat)
	}
	if pipePositional && pipeExec != "" {
		return errors.New("--positional requires a seekable --output")
	}

	data, release, err := mapInput(pipeInput)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	s, err := startSession(ctx)
	if err != nil {
		_ = release()
		return err
	}

	var dest *bench.Destination
	if pipeExec != "" {
		dest, err = bench.OpenCommand(ctx, pipeExec, os.Stderr)
	} else {
		dest, err = bench.OpenPath(pipeOutput)
	}
	if err != nil {
		_ = s.Close()
		_ = release()
		return err
	}

	start := time.Now()
	runErr := submitRepeated(ctx, s.engine, data, int(dest.File.Fd()), pipeRepeat, pipePositional)
	if err := teardownPipe(s.Close, dest, release); err != nil {
		return errors.Join(runErr, err)
	}
	if runErr != nil {
		return runErr
	}

	total := uint64(len(data)) * uint64(pipeRepeat)
	logger.Info("Pipe complete",
		logger.Path(pipeInput),
		logger.Repeat(pipeRepeat),
		logger.BytesWritten(int(total)),
		logger.DurationMs(logger.Duration(start)),
	)
	if pipeOutput != "-" {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s in %s\n", humanize.IBytes(total), time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// teardownPipe stops the engine, then closes the destination and unmaps the
// input. If the engine is still draining when closeEngine returns, workers
// keep reading the mapping and writing to the descriptor, so both are left
// for the process exit to reclaim.
func teardownPipe(closeEngine func() error, dest *bench.Destination, release func() error) error {
	if err := closeEngine(); err != nil {
		logger.Warn("Leaving input mapped and destination open while the engine drains",
			logger.Path(pipeInput),
			logger.FD(int(dest.File.Fd())))
		return err
	}
	return errors.Join(dest.Close(), release())
}

// submitRepeated writes data to fd repeat times and waits for the writes.
func submitRepeated(ctx context.Context, engine *pipe.Engine, data []byte, fd, repeat int, positional bool) error {
	id := pipe.IdentityOf(data)

	for i := 0; i < repeat; i++ {
		var opts []pipe.JobOption
		if positional {
			opts = append(opts, pipe.WithOffset(int64(i)*int64(len(data))))
		}
		if err := engine.Pipe(ctx, id, data, fd, opts...); err != nil {
			return fmt.Errorf("submit repetition %d: %w", i, err)
		}
	}
	return engine.Flush(ctx)
}
