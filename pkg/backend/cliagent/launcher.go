package cliagent

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// Invocation is one subprocess run: the resolved executable, its
// arguments, the prompt delivered on stdin, and the working directory.
type Invocation struct {
	Executable string
	Args       []string
	Stdin      string
	Dir        string
}

// Output captures what the subprocess produced. Stdout carries the
// newline-delimited JSON event stream.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Launcher runs one subprocess invocation to completion. The process
// lifecycle sits behind this interface so turn logic is testable without
// spawning anything.
type Launcher interface {
	Run(ctx context.Context, inv Invocation) (Output, error)
}

// execLauncher spawns real processes. Cancellation of ctx kills the
// process; it is never left running past the caller's deadline.
type execLauncher struct{}

// NewLauncher returns the process-spawning launcher.
func NewLauncher() Launcher {
	return execLauncher{}
}

func (execLauncher) Run(ctx context.Context, inv Invocation) (Output, error) {
	cmd := exec.CommandContext(ctx, inv.Executable, inv.Args...)
	cmd.Stdin = strings.NewReader(inv.Stdin)
	if inv.Dir != "" {
		cmd.Dir = inv.Dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	out := Output{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Nonzero exit is not a launcher failure; the event stream
			// carries the structured error.
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, err
	}
	return out, nil
}
