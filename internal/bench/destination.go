package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Destination is an open descriptor frames are written to.
type Destination struct {
	File  *os.File
	close func() error
}

// Close releases the destination. For a spawned command it closes the
// command's stdin and waits for it to exit.
func (d *Destination) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}

// OpenPath opens a destination by path. "-" is standard output, which is
// never closed. An empty path discards the frames.
func OpenPath(path string) (*Destination, error) {
	switch path {
	case "-":
		return &Destination{File: os.Stdout}, nil
	case "":
		path = os.DevNull
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("open destination: %w", err)
	}
	return &Destination{File: f, close: f.Close}, nil
}

// OpenCommand starts command through the shell and returns its stdin as the
// destination. The command's stdout and stderr are forwarded to stderr.
func OpenCommand(ctx context.Context, command string, stderr io.Writer) (*Destination, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create pipe: %w", err)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdin = r
	cmd.Stdout = stderr
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, fmt.Errorf("start %q: %w", command, err)
	}
	// The child holds its own copy of the read end.
	_ = r.Close()

	return &Destination{
		File: w,
		close: func() error {
			closeErr := w.Close()
			if err := cmd.Wait(); err != nil {
				return errors.Join(closeErr, fmt.Errorf("%q: %w", command, err))
			}
			return closeErr
		},
	}, nil
}
