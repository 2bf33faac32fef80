//go:build linux || darwin || freebsd || netbsd || openbsd

package pipe

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// SyscallWriter writes with write(2) and pwrite(2).
type SyscallWriter struct{}

// Check verifies that fd is open and not read-only.
func (SyscallWriter) Check(fd int) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return fmt.Errorf("%w: %w: fd %d: %v", ErrInvalidArgument, ErrInvalidDescriptor, fd, err)
	}
	if flags&unix.O_ACCMODE == unix.O_RDONLY {
		return fmt.Errorf("%w: %w: fd %d is not open for writing", ErrInvalidArgument, ErrInvalidDescriptor, fd)
	}
	return nil
}

// Write writes p to fd, retrying on EINTR and polling for POLLOUT when the
// descriptor is non-blocking and full.
func (SyscallWriter) Write(fd int, p []byte, off int64) (int, error) {
	for {
		var (
			n   int
			err error
		)
		if off >= 0 {
			n, err = unix.Pwrite(fd, p, off)
		} else {
			n, err = unix.Write(fd, p)
		}

		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			if err := waitWritable(fd); err != nil {
				return 0, err
			}
			continue
		default:
			return 0, err
		}
	}
}

// waitWritable blocks until fd reports POLLOUT, or an error/hangup which the
// next write will surface.
func waitWritable(fd int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		_, err := unix.Poll(fds, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return err
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return unix.EBADF
		}
		return nil
	}
}
