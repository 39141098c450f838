// Package console abstracts the user-facing side of a migration: progress
// reporting and the interactive confirmation gate used before pushing.
package console

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Console receives human-readable progress from a migration and answers
// confirmation prompts. Implementations must be safe to call from a single
// goroutine only; the migration core is synchronous.
type Console interface {
	Progress(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)

	// PromptConfirmation asks the user a yes/no question. It returns the
	// answer, or an error if the answer channel is unusable (for example a
	// closed stdin).
	PromptConfirmation(msg string) (bool, error)
}

// LogConsole routes progress to a structured logger and reads confirmation
// answers line-by-line from a reader, typically stdin.
type LogConsole struct {
	logger *slog.Logger
	out    io.Writer
	in     *bufio.Scanner
}

// NewLogConsole builds a console over the given logger. Prompts are written
// to out and answered from in. A nil logger falls back to slog.Default().
func NewLogConsole(logger *slog.Logger, out io.Writer, in io.Reader) *LogConsole {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogConsole{
		logger: logger,
		out:    out,
		in:     bufio.NewScanner(in),
	}
}

// Progress logs a progress message at debug level.
func (c *LogConsole) Progress(msg string) { c.logger.Debug(msg) }

// Info logs an informational message.
func (c *LogConsole) Info(msg string) { c.logger.Info(msg) }

// Warn logs a warning.
func (c *LogConsole) Warn(msg string) { c.logger.Warn(msg) }

// Error logs an error message.
func (c *LogConsole) Error(msg string) { c.logger.Error(msg) }

// PromptConfirmation writes the question followed by " [y/N] " and accepts
// "y" or "yes" (case-insensitive) as confirmation. Anything else, including
// an empty line, declines.
func (c *LogConsole) PromptConfirmation(msg string) (bool, error) {
	if _, err := fmt.Fprintf(c.out, "%s [y/N] ", msg); err != nil {
		return false, fmt.Errorf("failed to write prompt: %w", err)
	}
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return false, fmt.Errorf("failed to read confirmation: %w", err)
		}
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(c.in.Text()))
	return answer == "y" || answer == "yes", nil
}
