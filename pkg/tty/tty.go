// Package tty centralizes terminal-detection so every package answers the
// "am I interactive" question the same way.
package tty

import (
	"os"

	"github.com/mattn/go-isatty"
)

// IsStdoutTerminal reports whether stdout is attached to an interactive terminal.
func IsStdoutTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// IsStderrTerminal reports whether stderr is attached to an interactive terminal.
func IsStderrTerminal() bool {
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}

// IsStdinTerminal reports whether stdin is attached to an interactive terminal,
// used to decide whether a fix-confidence prompt can be read at all.
func IsStdinTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}
