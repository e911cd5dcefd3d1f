package strategy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// maxCapturedOutput bounds how much tool output is kept for error messages.
const maxCapturedOutput = 4096

// CommandError describes a failed subprocess run.
type CommandError struct {
	Binary   string
	ExitCode int
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Binary, e.ExitCode)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// runCommand runs binary with args under ctx, capturing combined output.
// Exit codes listed in okCodes are treated as success.
func runCommand(ctx context.Context, binary string, args []string, okCodes ...int) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
		for _, ok := range okCodes {
			if code == ok {
				return nil
			}
		}
	}
	return &CommandError{
		Binary:   binary,
		ExitCode: code,
		Output:   truncate(strings.TrimSpace(out.String()), maxCapturedOutput),
		Err:      err,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
