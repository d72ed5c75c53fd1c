package align

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Output is what a finished command wrote.
type Output struct {
	Stdout string
	Stderr string
}

// Runner executes external commands. ExecRunner is the real one; tests
// substitute fakes.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// CommandError reports a command that started but exited non-zero. Both
// streams are kept; mfa prints its validation problems on stdout.
type CommandError struct {
	Argv     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", strings.Join(e.Argv, " "), e.ExitCode)
	if s := strings.TrimSpace(e.Stdout); s != "" {
		msg += "\nstdout: " + s
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += "\nstderr: " + s
	}
	return msg
}

// ExecRunner runs commands with os/exec and captures both streams.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return out, &CommandError{
			Argv:     append([]string{name}, args...),
			ExitCode: exitErr.ExitCode(),
			Stdout:   out.Stdout,
			Stderr:   out.Stderr,
		}
	}
	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	return out, err
}
