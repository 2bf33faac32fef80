package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/turbopipe/internal/bench"
	"github.com/marmos91/turbopipe/pkg/api"
	"github.com/marmos91/turbopipe/pkg/pipe"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args against an isolated config
// directory. Flags are reset first since cobra keeps them between runs.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("TURBOPIPE_LOGGING_LEVEL", "ERROR")

	root := GetRootCmd()
	resetFlags(root)

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	t.Cleanup(func() {
		root.SetOut(nil)
		root.SetErr(nil)
		root.SetArgs(nil)
	})

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestVersion(t *testing.T) {
	Version = "1.2.3"
	t.Cleanup(func() { Version = "dev" })

	t.Run("Full", func(t *testing.T) {
		out, _, err := execute(t, "version")
		require.NoError(t, err)
		assert.Contains(t, out, "turbopipe 1.2.3")
		assert.Contains(t, out, "Go version:")
		assert.Contains(t, out, "Engine:     4 workers, queue of 64 jobs")
	})

	t.Run("Short", func(t *testing.T) {
		out, _, err := execute(t, "version", "--short")
		require.NoError(t, err)
		assert.Equal(t, "1.2.3\n", out)
	})
}

func TestBench(t *testing.T) {
	t.Run("JSONReport", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "frames.raw")
		out, _, err := execute(t, "bench",
			"--width", "8", "--height", "4", "--frames", "6", "--buffers", "2",
			"--output", dest, "-o", "json")
		require.NoError(t, err)

		var results []bench.Result
		require.NoError(t, json.Unmarshal([]byte(out), &results))
		require.Len(t, results, len(bench.Methods))
		for i, m := range bench.Methods {
			assert.Equal(t, m, results[i].Method)
			assert.Equal(t, uint64(6*8*4*3), results[i].Bytes)
		}

		// Each method truncates the destination; the last run remains.
		info, err := os.Stat(dest)
		require.NoError(t, err)
		assert.Equal(t, int64(6*8*4*3), info.Size())
	})

	t.Run("TableReport", func(t *testing.T) {
		out, _, err := execute(t, "bench",
			"--width", "8", "--height", "4", "--frames", "3", "--buffers", "1",
			"--method", "standard,turbopipe", "--render")
		require.NoError(t, err)
		assert.Contains(t, strings.ToLower(out), "framerate")
		assert.Contains(t, out, "turbopipe")
		assert.NotContains(t, out, "threaded")
	})

	t.Run("Exec", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "from-cat.raw")
		_, _, err := execute(t, "bench",
			"--width", "4", "--height", "4", "--frames", "5", "--buffers", "2",
			"--method", "turbopipe", "--exec", "cat > "+dest, "-o", "yaml")
		require.NoError(t, err)

		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Len(t, data, 5*4*4*3)
	})

	t.Run("UnknownMethod", func(t *testing.T) {
		_, _, err := execute(t, "bench", "--method", "carrier-pigeon")
		assert.Error(t, err)
	})

	t.Run("OutputAndExecConflict", func(t *testing.T) {
		_, _, err := execute(t, "bench", "--output", "x", "--exec", "cat")
		assert.Error(t, err)
	})
}

func TestPipe(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.bin")
	require.NoError(t, os.WriteFile(input, []byte("frame-"), 0o644))

	t.Run("Append", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out")
		_, _, err := execute(t, "pipe", "--input", input, "--output", dest, "--repeat", "4")
		require.NoError(t, err)

		got, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("frame-", 4), string(got))
	})

	t.Run("Positional", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out")
		_, _, err := execute(t, "pipe", "-i", input, "--output", dest, "-n", "3", "--positional")
		require.NoError(t, err)

		got, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("frame-", 3), string(got))
	})

	t.Run("Exec", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out")
		_, _, err := execute(t, "pipe", "-i", input, "--exec", "cat > "+dest, "-n", "2")
		require.NoError(t, err)

		got, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "frame-frame-", string(got))
	})

	t.Run("EmptyInput", func(t *testing.T) {
		empty := filepath.Join(dir, "empty")
		require.NoError(t, os.WriteFile(empty, nil, 0o644))

		_, _, err := execute(t, "pipe", "-i", empty, "--output", filepath.Join(dir, "never"))
		assert.ErrorContains(t, err, "empty")
	})

	t.Run("MissingInput", func(t *testing.T) {
		_, _, err := execute(t, "pipe", "-i", filepath.Join(dir, "nope"), "--output", filepath.Join(dir, "never"))
		assert.Error(t, err)
	})

	t.Run("InvalidRepeat", func(t *testing.T) {
		_, _, err := execute(t, "pipe", "-i", input, "--output", filepath.Join(dir, "never"), "-n", "0")
		assert.ErrorContains(t, err, "--repeat")
	})

	t.Run("PositionalNeedsOutput", func(t *testing.T) {
		_, _, err := execute(t, "pipe", "-i", input, "--exec", "cat >/dev/null", "--positional")
		assert.ErrorContains(t, err, "--positional")
	})

	t.Run("DestinationRequired", func(t *testing.T) {
		_, _, err := execute(t, "pipe", "-i", input)
		assert.Error(t, err)
	})
}

// gatedWriter holds every write until gate is closed.
type gatedWriter struct {
	pipe.SyscallWriter
	gate chan struct{}
}

func (w gatedWriter) Write(fd int, p []byte, off int64) (int, error) {
	<-w.gate
	return w.SyscallWriter.Write(fd, p, off)
}

func TestTeardownPipe(t *testing.T) {
	t.Run("EngineStillDraining", func(t *testing.T) {
		gate := make(chan struct{})
		engine := pipe.New(pipe.Config{Workers: 1, Writer: gatedWriter{gate: gate}}, nil)

		path := filepath.Join(t.TempDir(), "out")
		dest, err := bench.OpenPath(path)
		require.NoError(t, err)
		require.NoError(t, engine.PipeBytes(context.Background(), []byte("frame-"), int(dest.File.Fd())))

		closeEngine := func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()
			return engine.Close(ctx)
		}
		released := false
		err = teardownPipe(closeEngine, dest, func() error {
			released = true
			return nil
		})
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, released)

		// The queued write still lands in the file it was submitted for.
		close(gate)
		require.NoError(t, engine.Close(context.Background()))
		require.NoError(t, dest.Close())

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "frame-", string(got))
	})

	t.Run("Drained", func(t *testing.T) {
		dest, err := bench.OpenPath(filepath.Join(t.TempDir(), "out"))
		require.NoError(t, err)

		released := false
		require.NoError(t, teardownPipe(func() error { return nil }, dest, func() error {
			released = true
			return nil
		}))
		assert.True(t, released)

		_, err = dest.File.Write([]byte("x"))
		assert.Error(t, err)
	})
}

func TestInvalidEnvironmentRejected(t *testing.T) {
	t.Setenv("TURBOPIPE_ENGINE_WORKERS", "-1")
	input := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))

	_, _, err := execute(t, "pipe", "-i", input, "--output", filepath.Join(t.TempDir(), "out"))
	assert.ErrorContains(t, err, "engine.workers")
}

type stubEngine struct{ stats pipe.Stats }

func (s stubEngine) Stats() pipe.Stats { return s.stats }

func TestStatus(t *testing.T) {
	t.Run("Running", func(t *testing.T) {
		srv := httptest.NewServer(api.NewRouter(stubEngine{pipe.Stats{
			State: pipe.StateRunning, Workers: 4, QueueCap: 64, BytesWritten: 2048,
		}}))
		defer srv.Close()

		out, _, err := execute(t, "status", "--addr", srv.URL)
		require.NoError(t, err)
		assert.Contains(t, out, "running")
		assert.Contains(t, out, "0 / 64")
		assert.Contains(t, out, "2.0 KiB")
	})

	t.Run("DrainingFails", func(t *testing.T) {
		srv := httptest.NewServer(api.NewRouter(stubEngine{pipe.Stats{State: pipe.StateDraining}}))
		defer srv.Close()

		out, _, err := execute(t, "status", "--addr", srv.URL, "-o", "json")
		assert.ErrorContains(t, err, "unhealthy")
		assert.Contains(t, out, `"state": "draining"`)
	})

	t.Run("Unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()

		_, _, err := execute(t, "status", "--addr", addr)
		assert.ErrorContains(t, err, "failed to query")
	})
}
