// Package resolver decides which check entries actually need fetching.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/klauern/mirrorsync/internal/hashing"
	"github.com/klauern/mirrorsync/internal/logging"
	"github.com/klauern/mirrorsync/internal/model"
	"github.com/klauern/mirrorsync/internal/progress"
)

// HashMissingError is returned when an entry needed a digest that the hashing
// pass did not produce. It indicates a bookkeeping bug, not a user error.
type HashMissingError struct {
	Path string
}

func (e *HashMissingError) Error() string {
	return fmt.Sprintf("hash missing for path %q", e.Path)
}

// Resolver compares local files against their expected digests.
type Resolver struct {
	hasher *hashing.Hasher
	logger *slog.Logger
}

// New returns a Resolver hashing through h. A nil h uses a default Hasher.
func New(h *hashing.Hasher) *Resolver {
	if h == nil {
		h = hashing.New()
	}
	return &Resolver{
		hasher: h,
		logger: logging.Component("resolver"),
	}
}

// Resolve returns the minimal set of downloads that brings every entry's path
// to its expected content. A path is fetched when it is not a regular file,
// or when the entry carries a digest that differs from the file's. Entries
// sharing a path collapse to one download, the last entry winning; the
// result keeps the order in which paths first appeared.
func (r *Resolver) Resolve(ctx context.Context, entries []model.CheckEntry, sink progress.Sink) ([]model.DownloadEntry, error) {
	sink = progress.OrNop(sink)
	sink.SetMessage(progress.StageCheckingFiles)
	logger := logging.ComponentFromContext(ctx, "resolver", r.logger)

	exists := make(map[string]bool, len(entries))
	var candidates []string
	queued := make(map[string]bool)
	for _, e := range entries {
		if _, seen := exists[e.Path]; !seen {
			ok, err := r.isFile(e.Path)
			if err != nil {
				return nil, err
			}
			exists[e.Path] = ok
		}
		if exists[e.Path] && e.HasExpectedHash() && !queued[e.Path] {
			queued[e.Path] = true
			candidates = append(candidates, e.Path)
		}
	}

	digests, err := r.hasher.HashMany(ctx, candidates, sink)
	if err != nil {
		return nil, fmt.Errorf("failed to hash local files: %w", err)
	}
	byPath := make(map[string]string, len(candidates))
	for i, path := range candidates {
		byPath[path] = digests[i]
	}

	var order []string
	selected := make(map[string]model.DownloadEntry)
	for _, e := range entries {
		fetch, err := needsFetch(e, exists[e.Path], byPath)
		if err != nil {
			return nil, err
		}
		if !fetch {
			continue
		}
		if _, dup := selected[e.Path]; !dup {
			order = append(order, e.Path)
		}
		selected[e.Path] = model.DownloadEntry{URL: e.URL, Path: e.Path}
	}

	result := make([]model.DownloadEntry, 0, len(order))
	for _, path := range order {
		result = append(result, selected[path])
	}

	logger.Info("resolved check entries",
		logging.Count(len(entries)),
		slog.Int("hashed", len(candidates)),
		slog.Int("stale", len(result)))
	return result, nil
}

func needsFetch(e model.CheckEntry, exists bool, digests map[string]string) (bool, error) {
	if !exists {
		return true, nil
	}
	if !e.HasExpectedHash() {
		return false, nil
	}
	digest, ok := digests[e.Path]
	if !ok {
		return false, &HashMissingError{Path: e.Path}
	}
	return !strings.EqualFold(digest, e.ExpectedHash), nil
}

// isFile reports whether path exists as a regular file.
func (r *Resolver) isFile(path string) (bool, error) {
	info, err := r.hasher.Fs().Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %q: %w", path, err)
	}
	return info.Mode().IsRegular(), nil
}
