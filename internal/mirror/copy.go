package mirror

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/afero"

	"github.com/klauern/mirrorsync/internal/logging"
)

// lstat stats path without following a final symlink when the filesystem
// supports it.
func lstat(fsys afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fsys.Stat(path)
}

// removeExisting removes a file, symlink, or directory at path.
// Returns nil if the path doesn't exist.
func removeExisting(fsys afero.Fs, path string) error {
	info, err := lstat(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %q: %w", path, err)
	}

	if info.IsDir() {
		if err := fsys.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove directory %q: %w", path, err)
		}
		logging.Debug("removed existing directory", logging.Path(path))
		return nil
	}
	if err := fsys.Remove(path); err != nil {
		return fmt.Errorf("failed to remove %q: %w", path, err)
	}
	logging.Debug("removed existing file", logging.Path(path))
	return nil
}

// copyFile copies src to dst, preserving the source permissions.
func copyFile(fsys afero.Fs, src, dst string) error {
	srcFile, err := fsys.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return &SourceMissingError{Path: src}
	}
	if err != nil {
		return fmt.Errorf("failed to open source %q: %w", src, err)
	}
	defer func() { _ = srcFile.Close() }()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source %q: %w", src, err)
	}

	dstFile, err := fsys.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination %q: %w", dst, err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("failed to copy content to %q: %w", dst, err)
	}
	if err := dstFile.Close(); err != nil {
		return fmt.Errorf("failed to close %q: %w", dst, err)
	}

	logging.Debug("copied file", logging.Path(dst))
	return nil
}
