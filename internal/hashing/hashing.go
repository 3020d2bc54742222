// Package hashing computes content digests for local files.
//
// Digests are lowercase hex SHA-1, the format remote manifests publish.
package hashing

import (
	"context"
	"crypto/sha1" // #nosec G505 - SHA-1 is the digest manifests publish; it is not used for security
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"

	"github.com/spf13/afero"

	"github.com/klauern/mirrorsync/internal/cache"
	"github.com/klauern/mirrorsync/internal/parallel"
	"github.com/klauern/mirrorsync/internal/progress"
)

// bufferSize is the fixed read size used while streaming a file.
const bufferSize = 8 * 1024

// Hasher streams files through SHA-1.
type Hasher struct {
	fs      afero.Fs
	cache   *cache.Cache
	workers int
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithFs sets the filesystem files are read from.
func WithFs(fs afero.Fs) Option {
	return func(h *Hasher) { h.fs = fs }
}

// WithCache makes the hasher reuse digests for files whose size and
// modification time are unchanged since they were cached.
func WithCache(c *cache.Cache) Option {
	return func(h *Hasher) { h.cache = c }
}

// WithWorkers overrides how many files HashMany reads at once.
func WithWorkers(n int) Option {
	return func(h *Hasher) {
		if n > 0 {
			h.workers = n
		}
	}
}

// New returns a Hasher reading the OS filesystem with one worker per CPU.
func New(opts ...Option) *Hasher {
	h := &Hasher{
		fs:      afero.NewOsFs(),
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Fs returns the filesystem the hasher reads from.
func (h *Hasher) Fs() afero.Fs {
	return h.fs
}

// Hash returns the digest of the file at path.
func (h *Hasher) Hash(path string) (string, error) {
	f, err := h.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %q for hashing: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if h.cache == nil {
		return h.digestFile(f, path)
	}

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %q: %w", path, err)
	}
	key, err := filepath.Abs(path)
	if err != nil {
		key = path
	}
	if digest, ok := h.cache.Get(key, info); ok {
		return digest, nil
	}

	digest, err := h.digestFile(f, path)
	if err != nil {
		return "", err
	}
	// Files modified while being read are not cached.
	if after, err := h.fs.Stat(path); err == nil && after.Size() == info.Size() && after.ModTime().Equal(info.ModTime()) {
		h.cache.Set(key, info, digest)
	}
	return digest, nil
}

func (h *Hasher) digestFile(r io.Reader, path string) (string, error) {
	digest, err := Digest(r)
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", path, err)
	}
	return digest, nil
}

// HashMany hashes paths concurrently, at most one file per worker, and
// returns digests in the same order as paths. The sink is incremented once
// per hashed file. The first failure abandons the remaining work.
func (h *Hasher) HashMany(ctx context.Context, paths []string, sink progress.Sink) ([]string, error) {
	return parallel.Map(ctx, len(paths), h.workers, sink, func(_ context.Context, i int) (string, error) {
		return h.Hash(paths[i])
	})
}

// Equal reports whether the files at a and b have the same content.
func (h *Hasher) Equal(a, b string) (bool, error) {
	da, err := h.Hash(a)
	if err != nil {
		return false, err
	}
	db, err := h.Hash(b)
	if err != nil {
		return false, err
	}
	return da == db, nil
}

// Digest streams r through SHA-1 using a fixed-size buffer and returns the
// hex digest.
func Digest(r io.Reader) (string, error) {
	hasher := sha1.New() // #nosec G401
	buf := make([]byte, bufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = hasher.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
