// Package e2e runs mirrorsync commands end to end against isolated
// directories and a local HTTP file server.
package e2e

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/klauern/mirrorsync/internal/cli"
	"github.com/klauern/mirrorsync/internal/util"
)

// Result is the outcome of one CLI invocation.
type Result struct {
	Stdout string
	Err    error
}

// Harness runs CLI commands with MIRRORSYNC_HOME pointed at a private
// directory so config and cache never touch the real home. Progress
// display is off.
type Harness struct {
	t       *testing.T
	homeDir string
}

// NewHarness creates a harness with an empty mirrorsync home.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	h := &Harness{t: t, homeDir: t.TempDir()}
	t.Setenv(util.HomeEnv, h.homeDir)
	t.Setenv("MIRRORSYNC_OUTPUT_PROGRESS", "none")
	return h
}

// HomeDir returns the isolated mirrorsync home.
func (h *Harness) HomeDir() string {
	return h.homeDir
}

// Run executes the CLI with args.
func (h *Harness) Run(args ...string) *Result {
	h.t.Helper()
	return h.RunContext(context.Background(), args...)
}

// RunContext executes the CLI with args under ctx.
func (h *Harness) RunContext(ctx context.Context, args ...string) *Result {
	h.t.Helper()

	var err error
	stdout := h.captureStdout(func() {
		err = cli.Run(ctx, append([]string{"mirrorsync"}, args...))
	})
	return &Result{Stdout: stdout, Err: err}
}

// captureStdout runs fn with os.Stdout redirected and returns what fn
// printed. The pipe is drained while fn runs so large output cannot block.
func (h *Harness) captureStdout(fn func()) string {
	h.t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		h.t.Fatalf("failed to create stdout pipe: %v", err)
	}

	var buf bytes.Buffer
	drained := make(chan error, 1)
	go func() {
		_, err := io.Copy(&buf, r)
		drained <- err
	}()

	old := os.Stdout
	os.Stdout = w
	fn()
	os.Stdout = old

	if err := w.Close(); err != nil {
		h.t.Fatalf("failed to close stdout pipe: %v", err)
	}
	if err := <-drained; err != nil {
		h.t.Fatalf("failed to read stdout: %v", err)
	}
	return buf.String()
}
