// Package renderer runs the external render executable: the scene goes in on
// stdin, the image comes back on stdout, diagnostics pass through to stderr.
package renderer

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"time"

	"rendernode/internal/pkg/errors"
)

// waitDelay bounds how long Wait keeps reading stdout after a killed
// renderer if a grandchild still holds the pipe.
const waitDelay = 5 * time.Second

type Client interface {
	Render(ctx context.Context, scene []byte) ([]byte, error)
}

type ExecClient struct {
	path   string
	args   []string
	stderr io.Writer
}

// NewExecClient returns a client for the executable at path. A nil stderr
// defaults to os.Stderr.
func NewExecClient(path string, args []string, stderr io.Writer) *ExecClient {
	if stderr == nil {
		stderr = os.Stderr
	}
	return &ExecClient{path: path, args: args, stderr: stderr}
}

// Render blocks until the process exits. A nonzero exit becomes a
// RENDER_ERROR carrying exit_code; ctx cancellation kills the process.
func (c *ExecClient) Render(ctx context.Context, scene []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.path, c.args...)
	cmd.Stdin = bytes.NewReader(scene)
	cmd.Stderr = c.stderr
	cmd.WaitDelay = waitDelay

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) && ctx.Err() == nil {
			code := exitErr.ExitCode()
			return nil, errors.Newf(errors.CodeRender, "renderer exited with code %d", code).
				WithField(errors.FieldExitCode, code)
		}
		return nil, errors.WrapWithCode(err, errors.CodeRender, "renderer.run", "renderer failed to run")
	}

	return out.Bytes(), nil
}
