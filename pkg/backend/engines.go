package backend

import (
	"bytes"
	"context"
	"io"
	"os/exec"
)

// CommandRunner executes an external conversion engine. stdin may be nil.
// When stdout is non-nil the process stdout streams into it and the returned
// bytes hold stderr alone; otherwise the returned bytes hold the combined
// output. Backends keep their runner as a field so tests can swap in a fake
// without spawning processes.
type CommandRunner func(ctx context.Context, stdin io.Reader, stdout io.Writer, name string, arg ...string) ([]byte, error)

// Run is the production CommandRunner. The context bounds the process
// lifetime; exceeding it kills the process.
func Run(ctx context.Context, stdin io.Reader, stdout io.Writer, name string, arg ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Stdin = stdin

	var captured bytes.Buffer
	if stdout != nil {
		cmd.Stdout = stdout
		cmd.Stderr = &captured
	} else {
		cmd.Stdout = &captured
		cmd.Stderr = &captured
	}

	err := cmd.Run()
	if ctx.Err() != nil {
		// The kill makes the process error unhelpful; surface the deadline.
		err = ctx.Err()
	}
	return captured.Bytes(), err
}

// tail trims engine output for error messages.
func tail(out []byte) string {
	const max = 512
	out = bytes.TrimSpace(out)
	if len(out) > max {
		out = out[len(out)-max:]
	}
	return string(out)
}
