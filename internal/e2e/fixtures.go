package e2e

import (
	"crypto/sha1" // #nosec G505 - manifests carry SHA-1 digests
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// Fixture is a directory tree a test builds and inspects.
type Fixture struct {
	t       *testing.T
	baseDir string
}

// NewFixture returns a fixture rooted at baseDir.
func NewFixture(t *testing.T, baseDir string) *Fixture {
	t.Helper()
	return &Fixture{t: t, baseDir: baseDir}
}

// TempFixture returns a fixture rooted at a fresh temp directory.
func (h *Harness) TempFixture() *Fixture {
	h.t.Helper()
	return NewFixture(h.t, h.t.TempDir())
}

// WriteFile writes content to relPath, creating parents, and returns the
// absolute path.
func (f *Fixture) WriteFile(relPath, content string) string {
	f.t.Helper()
	path := f.Path(relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		f.t.Fatalf("failed to create directory for %s: %v", relPath, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		f.t.Fatalf("failed to write %s: %v", relPath, err)
	}
	return path
}

// MkdirAll creates relPath and returns its absolute path.
func (f *Fixture) MkdirAll(relPath string) string {
	f.t.Helper()
	path := f.Path(relPath)
	if err := os.MkdirAll(path, 0o750); err != nil {
		f.t.Fatalf("failed to create %s: %v", relPath, err)
	}
	return path
}

// Path returns the absolute path of relPath.
func (f *Fixture) Path(relPath string) string {
	return filepath.Join(f.baseDir, relPath)
}

// Exists reports whether relPath exists.
func (f *Fixture) Exists(relPath string) bool {
	_, err := os.Stat(f.Path(relPath))
	return err == nil
}

// ReadFile returns the content of relPath.
func (f *Fixture) ReadFile(relPath string) string {
	f.t.Helper()
	// #nosec G304 - path is inside the fixture directory
	data, err := os.ReadFile(f.Path(relPath))
	if err != nil {
		f.t.Fatalf("failed to read %s: %v", relPath, err)
	}
	return string(data)
}

// Remote is an HTTP server publishing files by path. It counts requests per
// path so tests can tell what was downloaded.
type Remote struct {
	*httptest.Server

	mu       sync.Mutex
	files    map[string]string
	requests map[string]int
}

// NewRemote starts a server that is closed when the test ends.
func NewRemote(t *testing.T) *Remote {
	t.Helper()
	r := &Remote{files: map[string]string{}, requests: map[string]int{}}
	r.Server = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.Close)
	return r
}

func (r *Remote) serve(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	body, ok := r.files[req.URL.Path]
	r.requests[req.URL.Path]++
	r.mu.Unlock()

	if !ok {
		http.NotFound(w, req)
		return
	}
	_, _ = io.WriteString(w, body)
}

// Publish serves content at path and returns its URL.
func (r *Remote) Publish(path, content string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = content
	return r.URL + path
}

// Requests returns how often path was requested.
func (r *Remote) Requests(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[path]
}

// ManifestEntry is one line of a fetch manifest.
type ManifestEntry struct {
	URL     string
	Content string // when set, its SHA-1 goes into the manifest
	Path    string
}

// WriteManifest writes a YAML fetch manifest to relPath and returns its
// absolute path.
func (f *Fixture) WriteManifest(relPath, baseDir string, entries ...ManifestEntry) string {
	f.t.Helper()
	var b strings.Builder
	if baseDir != "" {
		fmt.Fprintf(&b, "base_dir: %s\n", baseDir)
	}
	b.WriteString("entries:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "  - url: %s\n", e.URL)
		if e.Content != "" {
			fmt.Fprintf(&b, "    sha1: %s\n", SHA1(e.Content))
		}
		fmt.Fprintf(&b, "    path: %s\n", e.Path)
	}
	return f.WriteFile(relPath, b.String())
}

// SHA1 returns the hex SHA-1 digest of content.
func SHA1(content string) string {
	sum := sha1.Sum([]byte(content)) // #nosec G401 - content digest, not a security boundary
	return hex.EncodeToString(sum[:])
}
