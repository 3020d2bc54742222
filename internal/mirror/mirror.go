// Package mirror makes a directory's file set match a target-to-source mapping.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/klauern/mirrorsync/internal/hashing"
	"github.com/klauern/mirrorsync/internal/logging"
	"github.com/klauern/mirrorsync/internal/model"
	"github.com/klauern/mirrorsync/internal/progress"
)

// DefaultMaxConcurrentOps bounds how many copy operations run at once.
const DefaultMaxConcurrentOps = 50

// Stats summarizes one reconciliation.
type Stats struct {
	Copied     int
	Skipped    int
	Deleted    int
	PrunedDirs int
}

// Reconciler mirrors mappings into target directories.
type Reconciler struct {
	fs     afero.Fs
	hasher *hashing.Hasher
	maxOps int
	logger *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithMaxConcurrentOps bounds the number of copy operations in flight.
func WithMaxConcurrentOps(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.maxOps = n
		}
	}
}

// New returns a Reconciler working on the hasher's filesystem. A nil h uses
// a default Hasher on the OS filesystem.
func New(h *hashing.Hasher, opts ...Option) *Reconciler {
	if h == nil {
		h = hashing.New()
	}
	r := &Reconciler{
		fs:     h.Fs(),
		hasher: h,
		maxOps: DefaultMaxConcurrentOps,
		logger: logging.Component("mirror"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile makes the files under targetDir exactly the files described by
// mapping. Each key is a path under targetDir (relative keys are taken
// relative to it) and each value a source file or directory; directories
// expand to every file they contain.
//
// Files under targetDir that the mapping does not name are deleted, empty
// directories are pruned, and every mapped file whose content differs from
// its source is copied. Paths are validated and sources resolved before
// anything is touched. The first failure aborts the call.
func (r *Reconciler) Reconcile(ctx context.Context, targetDir string, mapping model.Mapping, sink progress.Sink) (Stats, error) {
	sink = progress.OrNop(sink)
	sink.SetMessage(progress.StageMirroringFiles)
	logger := logging.ComponentFromContext(ctx, "mirror", r.logger)

	root := filepath.Clean(targetDir)
	files, err := r.flatten(root, mapping)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	if err := r.fs.MkdirAll(root, 0o755); err != nil {
		return stats, fmt.Errorf("failed to create %q: %w", root, err)
	}

	if stats.Deleted, err = r.deleteUnlisted(ctx, root, files); err != nil {
		return stats, err
	}
	if stats.PrunedDirs, err = r.pruneEmptyDirs(root); err != nil {
		return stats, err
	}

	copied, skipped, err := r.copyAll(ctx, files, sink)
	stats.Copied, stats.Skipped = copied, skipped
	if err != nil {
		return stats, err
	}

	logger.Info("mirrored directory",
		logging.Path(root),
		slog.Int("copied", stats.Copied),
		slog.Int("skipped", stats.Skipped),
		slog.Int("deleted", stats.Deleted),
		slog.Int("pruned_dirs", stats.PrunedDirs))
	return stats, nil
}

// flatten validates every target and expands directory sources into one
// target file per source file.
func (r *Reconciler) flatten(root string, mapping model.Mapping) (map[string]string, error) {
	targets := make(map[string]string, len(mapping))
	for target, source := range mapping {
		if !filepath.IsAbs(target) {
			target = filepath.Join(root, target)
		}
		target = filepath.Clean(target)
		if !isWithin(root, target) {
			return nil, &InvalidPathError{Path: target, Root: root}
		}
		targets[target] = filepath.Clean(source)
	}

	files := make(map[string]string)
	for _, target := range model.Mapping(targets).Targets() {
		source := targets[target]
		info, err := r.fs.Stat(source)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &SourceMissingError{Path: source}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %q: %w", source, err)
		}

		if !info.IsDir() {
			if target == root {
				return nil, &InvalidPathError{Path: target, Root: root}
			}
			files[target] = source
			continue
		}

		err = afero.Walk(r.fs, source, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(source, path)
			if err != nil {
				return err
			}
			files[filepath.Join(target, rel)] = path
			return nil
		})
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &SourceMissingError{Path: source}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to walk source %q: %w", source, err)
		}
	}
	return files, nil
}

// deleteUnlisted removes every file under root that is not a key of files.
func (r *Reconciler) deleteUnlisted(ctx context.Context, root string, files map[string]string) (int, error) {
	var stale []string
	err := afero.Walk(r.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if _, ok := files[path]; !ok {
			stale = append(stale, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list %q: %w", root, err)
	}

	for _, path := range stale {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := r.fs.Remove(path); err != nil {
			return 0, fmt.Errorf("failed to delete %q: %w", path, err)
		}
		r.logger.Debug("deleted unlisted file", logging.Path(path))
	}
	return len(stale), nil
}

// pruneEmptyDirs removes empty directories below root, deepest first, until
// a pass removes nothing. root itself is kept.
func (r *Reconciler) pruneEmptyDirs(root string) (int, error) {
	pruned := 0
	for {
		var dirs []string
		err := afero.Walk(r.fs, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() && path != root {
				dirs = append(dirs, path)
			}
			return nil
		})
		if err != nil {
			return pruned, fmt.Errorf("failed to list %q: %w", root, err)
		}

		// Children sort after their parents, so reverse order is post-order.
		sort.Sort(sort.Reverse(sort.StringSlice(dirs)))

		removed := 0
		for _, dir := range dirs {
			empty, err := afero.IsEmpty(r.fs, dir)
			if err != nil {
				return pruned, fmt.Errorf("failed to read %q: %w", dir, err)
			}
			if !empty {
				continue
			}
			if err := r.fs.Remove(dir); err != nil {
				return pruned, fmt.Errorf("failed to remove %q: %w", dir, err)
			}
			r.logger.Debug("pruned empty directory", logging.Path(dir))
			removed++
		}
		pruned += removed
		if removed == 0 {
			return pruned, nil
		}
	}
}

// copyAll brings every target in line with its source, at most maxOps at a
// time.
func (r *Reconciler) copyAll(ctx context.Context, files map[string]string, sink progress.Sink) (int, int, error) {
	targets := model.Mapping(files).Targets()
	sink.SetLength(uint64(len(targets)))
	defer sink.Finish()

	var copied, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxOps)

	for _, target := range targets {
		if gctx.Err() != nil {
			break
		}
		source := files[target]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			didCopy, err := r.sync(target, source)
			if err != nil {
				return err
			}
			if didCopy {
				copied.Add(1)
			} else {
				skipped.Add(1)
			}
			sink.Inc(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(copied.Load()), int(skipped.Load()), err
	}
	if err := ctx.Err(); err != nil {
		return int(copied.Load()), int(skipped.Load()), err
	}
	return int(copied.Load()), int(skipped.Load()), nil
}

// sync copies source over target unless target already has the same
// content. It reports whether a copy happened.
func (r *Reconciler) sync(target, source string) (bool, error) {
	if err := r.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return false, fmt.Errorf("failed to create parent of %q: %w", target, err)
	}

	info, err := lstat(r.fs, target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return false, fmt.Errorf("failed to stat %q: %w", target, err)
	case info.IsDir():
		if err := removeExisting(r.fs, target); err != nil {
			return false, err
		}
	case info.Mode().IsRegular():
		same, err := r.hasher.Equal(target, source)
		if errors.Is(err, fs.ErrNotExist) {
			if _, statErr := r.fs.Stat(source); errors.Is(statErr, fs.ErrNotExist) {
				return false, &SourceMissingError{Path: source}
			}
		}
		if err != nil {
			return false, fmt.Errorf("failed to compare %q: %w", target, err)
		}
		if same {
			r.logger.Debug("skipped unchanged file", logging.Path(target))
			return false, nil
		}
	default:
		if err := removeExisting(r.fs, target); err != nil {
			return false, err
		}
	}

	if err := copyFile(r.fs, source, target); err != nil {
		return false, err
	}
	return true, nil
}

// isWithin reports whether path is root or nested under it.
func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
