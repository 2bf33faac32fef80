//go:build linux || darwin || freebsd || netbsd || openbsd

package commands

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapInput maps path read-only. The returned release unmaps it and must
// only be called once no write references the data.
func mapInput(path string) ([]byte, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("stat input: %w", err)
	}
	if info.Size() == 0 {
		return nil, nil, fmt.Errorf("input %s is empty", path)
	}
	if !info.Mode().IsRegular() {
		return nil, nil, fmt.Errorf("input %s is not a regular file", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap input: %w", err)
	}
	return data, func() error { return unix.Munmap(data) }, nil
}
