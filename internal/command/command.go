// Package command runs external tools and captures their output.
//
// Every invocation spawns a fresh process; nothing is kept between calls.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ErrCommandFailed indicates the command could not be started or exited
// with a non-zero status.
var ErrCommandFailed = errors.New("command failed")

// Error describes a failed command invocation. Stderr holds whatever the
// tool printed before failing.
type Error struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v", e.Command, e.Err)
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": %s", e.Stderr)
	}
	return b.String()
}

// Unwrap returns both ErrCommandFailed and the underlying cause.
func (e *Error) Unwrap() []error {
	return []error{ErrCommandFailed, e.Err}
}

// Exec runs commands on the local host via os/exec.
type Exec struct{}

// Run starts name with args, waits for it and returns its stdout. A non-zero
// exit status yields an *Error carrying the trimmed stderr output.
func (Exec) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		cerr := &Error{
			Command:  Line(name, args...),
			ExitCode: -1,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cerr.ExitCode = exitErr.ExitCode()
		}
		return stdout.Bytes(), cerr
	}

	return stdout.Bytes(), nil
}

// Line renders a command line for logs and diagnostics.
func Line(name string, args ...string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
