// Package prompt provides interactive terminal prompts for CLI commands.
package prompt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
)

var (
	// ErrAborted is returned when the user interrupts a prompt.
	ErrAborted = errors.New("aborted by user")

	// ErrNotInteractive is returned when a prompt is needed but stdin is
	// not a terminal.
	ErrNotInteractive = errors.New("confirmation required but stdin is not a terminal (use --force)")
)

// Prompter runs prompts against the given streams. The zero value uses the
// process's stdin and stdout.
type Prompter struct {
	Stdin  io.ReadCloser
	Stdout io.WriteCloser

	// Interactive overrides terminal detection when non-nil.
	Interactive func() bool
}

func (p Prompter) interactive() bool {
	if p.Interactive != nil {
		return p.Interactive()
	}
	return IsTerminal(os.Stdin)
}

// Confirm asks a yes/no question. Empty input selects defaultYes.
func (p Prompter) Confirm(label string, defaultYes bool) (bool, error) {
	if !p.interactive() {
		return false, ErrNotInteractive
	}

	defaultStr := "y/N"
	if defaultYes {
		defaultStr = "Y/n"
	}

	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("%s [%s]", label, defaultStr),
		IsConfirm: true,
		Stdin:     p.Stdin,
		Stdout:    p.Stdout,
	}

	result, err := prompt.Run()
	if err != nil {
		switch {
		case errors.Is(err, promptui.ErrInterrupt), errors.Is(err, promptui.ErrEOF):
			return false, ErrAborted
		case errors.Is(err, promptui.ErrAbort):
			// promptui reports a "n" answer as ErrAbort
			return false, nil
		case result == "":
			return defaultYes, nil
		}
		return false, err
	}

	answer := strings.ToLower(strings.TrimSpace(result))
	if answer == "" {
		return defaultYes, nil
	}
	return answer == "y" || answer == "yes", nil
}

// ConfirmWithForce returns true without prompting when force is set.
func (p Prompter) ConfirmWithForce(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	return p.Confirm(label, false)
}

// Confirm asks a yes/no question on the process terminal.
func Confirm(label string, defaultYes bool) (bool, error) {
	return Prompter{}.Confirm(label, defaultYes)
}

// ConfirmWithForce returns true when force is set, otherwise prompts on the
// process terminal.
func ConfirmWithForce(label string, force bool) (bool, error) {
	return Prompter{}.ConfirmWithForce(label, force)
}

// IsTerminal reports whether f is a character device.
func IsTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
