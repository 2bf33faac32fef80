//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package pipe

import "fmt"

// SyscallWriter is unavailable on this platform. Supply a custom FDWriter
// through Config.Writer instead.
type SyscallWriter struct{}

func (SyscallWriter) Check(fd int) error {
	return fmt.Errorf("%w: %w", ErrInvalidArgument, ErrUnsupported)
}

func (SyscallWriter) Write(fd int, p []byte, off int64) (int, error) {
	return 0, ErrUnsupported
}
