// Package model defines the inputs and outputs of the synchronization engine.
package model

import (
	"path/filepath"
	"sort"
)

// CheckEntry describes a file that should end up containing the content at URL.
// ExpectedHash is the hex SHA-1 digest of that content, when the caller knows it.
type CheckEntry struct {
	URL          string `json:"url" yaml:"url" toml:"url"`
	ExpectedHash string `json:"sha1,omitempty" yaml:"sha1,omitempty" toml:"sha1,omitempty"`
	Path         string `json:"path" yaml:"path" toml:"path"`
}

// HasExpectedHash reports whether the entry carries a digest to compare against.
func (e CheckEntry) HasExpectedHash() bool {
	return e.ExpectedHash != ""
}

// DownloadEntry is a file confirmed to need fetching.
type DownloadEntry struct {
	URL  string `json:"url" yaml:"url" toml:"url"`
	Path string `json:"path" yaml:"path" toml:"path"`
}

// TempPath returns the sibling path the download is streamed to before the
// atomic rename onto Path.
func (e DownloadEntry) TempPath() string {
	return e.Path + TempSuffix
}

// TempSuffix is appended to a destination path to form its temporary sibling.
const TempSuffix = ".tmp"

// Mapping maps a target path to the local source path (a file or a directory)
// whose content it should mirror.
type Mapping map[string]string

// Targets returns the mapping keys in lexical order.
func (m Mapping) Targets() []string {
	targets := make([]string, 0, len(m))
	for target := range m {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}

// Clean returns a copy of the mapping with every key and value passed
// through filepath.Clean. Later keys that clean to the same path win.
func (m Mapping) Clean() Mapping {
	cleaned := make(Mapping, len(m))
	for _, target := range m.Targets() {
		cleaned[filepath.Clean(target)] = filepath.Clean(m[target])
	}
	return cleaned
}
