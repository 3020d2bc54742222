package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// capture runs the program with args and returns its exit code with
// everything written to stdout and stderr.
func capture(t *testing.T, ctx context.Context, args ...string) (int, string, string) {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() error = %v", err)
	}
	saved := os.Stdout
	os.Stdout = w
	t.Cleanup(func() { os.Stdout = saved })

	var stderr bytes.Buffer
	code := run(ctx, append([]string{"mirrorsync"}, args...), &stderr)

	os.Stdout = saved
	_ = w.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading stdout: %v", err)
	}
	return code, string(out), stderr.String()
}

func TestRun_Help(t *testing.T) {
	code, stdout, _ := capture(t, context.Background(), "--help")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	for _, want := range []string{"mirrorsync", "USAGE", "COMMANDS", "fetch", "mirror", "hash", "cache", "config", "version"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestRun_ExitCodes(t *testing.T) {
	tests := map[string]struct {
		args       []string
		wantCode   int
		wantStderr string
	}{
		"version flag":   {args: []string{"--version"}},
		"verbose":        {args: []string{"--verbose", "version", "--short"}},
		"debug json":     {args: []string{"--debug", "--log-json", "version", "--short"}},
		"no color":       {args: []string{"--no-color", "version", "--short"}},
		"unknown flag":   {args: []string{"--bogus", "version"}, wantCode: 1, wantStderr: "Error:"},
		"missing arg":    {args: []string{"hash"}, wantCode: 1, wantStderr: "at least one file"},
		"missing source": {args: []string{"hash", "does-not-exist"}, wantCode: 1, wantStderr: "Error:"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			code, _, stderr := capture(t, context.Background(), tt.args...)
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d (stderr %q)", code, tt.wantCode, stderr)
			}
			if !strings.Contains(stderr, tt.wantStderr) {
				t.Errorf("stderr = %q, want it to contain %q", stderr, tt.wantStderr)
			}
		})
	}
}

func TestRun_Interrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("a"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, _, stderr := capture(t, ctx, "hash", path)
	if code != exitInterrupted {
		t.Fatalf("exit code = %d, want %d (stderr %q)", code, exitInterrupted, stderr)
	}
	if !strings.Contains(stderr, "Interrupted") {
		t.Errorf("stderr = %q, want Interrupted", stderr)
	}
}
