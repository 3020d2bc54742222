package e2e

import (
	"os"
	"strings"
	"testing"
)

// MustSucceed fails the test unless the command returned no error.
func (r *Result) MustSucceed(t *testing.T) *Result {
	t.Helper()
	if r.Err != nil {
		t.Fatalf("mirrorsync failed: %v\nstdout:\n%s", r.Err, r.Stdout)
	}
	return r
}

// MustFail fails the test unless the command returned an error mentioning
// every one of substrs.
func (r *Result) MustFail(t *testing.T, substrs ...string) *Result {
	t.Helper()
	if r.Err == nil {
		t.Fatalf("mirrorsync succeeded, want an error\nstdout:\n%s", r.Stdout)
	}
	for _, s := range substrs {
		if !strings.Contains(r.Err.Error(), s) {
			t.Errorf("error %q does not mention %q", r.Err, s)
		}
	}
	return r
}

// Printed fails the test unless stdout contains every one of lines.
func (r *Result) Printed(t *testing.T, lines ...string) *Result {
	t.Helper()
	for _, line := range lines {
		if !strings.Contains(r.Stdout, line) {
			t.Errorf("stdout does not contain %q\nstdout:\n%s", line, r.Stdout)
		}
	}
	return r
}

// HasContent fails the test unless the file at relPath holds want.
func (f *Fixture) HasContent(relPath, want string) {
	f.t.Helper()
	if got := f.ReadFile(relPath); got != want {
		f.t.Errorf("%s = %q, want %q", relPath, got, want)
	}
}

// Missing fails the test if relPath exists.
func (f *Fixture) Missing(relPath string) {
	f.t.Helper()
	if _, err := os.Lstat(f.Path(relPath)); err == nil {
		f.t.Errorf("%s exists, want it gone", relPath)
	}
}
