package mirror

import (
	"fmt"
	"io/fs"
)

// InvalidPathError is returned when a mapped target is not nested under the
// directory being reconciled.
type InvalidPathError struct {
	Path string
	Root string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("path %q is not inside %q", e.Path, e.Root)
}

// SourceMissingError is returned when a mapped source does not exist.
type SourceMissingError struct {
	Path string
}

func (e *SourceMissingError) Error() string {
	return fmt.Sprintf("source %q does not exist", e.Path)
}

// Unwrap lets errors.Is(err, fs.ErrNotExist) match.
func (e *SourceMissingError) Unwrap() error {
	return fs.ErrNotExist
}
