//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package commands

import (
	"fmt"
	"os"
)

func mapInput(path string) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read input: %w", err)
	}
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("input %s is empty", path)
	}
	return data, func() error { return nil }, nil
}
