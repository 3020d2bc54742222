// Package manifest loads check-entry manifests and mapping files from YAML,
// TOML, or JSON.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/klauern/mirrorsync/internal/model"
	"github.com/klauern/mirrorsync/internal/util"
)

// Format is a manifest encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFor picks the format from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported manifest extension %q (want .yaml, .yml, .toml or .json)", filepath.Ext(path))
	}
}

// CheckManifest lists the files a directory should contain.
type CheckManifest struct {
	// BaseDir anchors relative entry paths. Defaults to the manifest's directory.
	BaseDir string             `yaml:"base_dir,omitempty" toml:"base_dir,omitempty" json:"base_dir,omitempty"`
	Entries []model.CheckEntry `yaml:"entries" toml:"entries" json:"entries"`
}

// MappingFile describes a directory mirror.
type MappingFile struct {
	// Target is the directory being reconciled when the caller does not name one.
	Target   string         `yaml:"target,omitempty" toml:"target,omitempty" json:"target,omitempty"`
	Mappings []MappingEntry `yaml:"mappings" toml:"mappings" json:"mappings"`
}

// MappingEntry maps one target path to its source.
type MappingEntry struct {
	Target string `yaml:"target" toml:"target" json:"target"`
	Source string `yaml:"source" toml:"source" json:"source"`
}

// LoadCheckEntries reads a check manifest and returns its entries with
// absolute paths. A non-empty baseDir overrides the manifest's base_dir.
func LoadCheckEntries(path, baseDir string) ([]model.CheckEntry, error) {
	var m CheckManifest
	if err := decodeFile(path, &m); err != nil {
		return nil, err
	}

	manifestDir := filepath.Dir(absOrSelf(path))
	switch {
	case baseDir != "":
		baseDir = absOrSelf(util.ExpandPath(baseDir, ""))
	case m.BaseDir != "":
		baseDir = util.ExpandPath(m.BaseDir, manifestDir)
	default:
		baseDir = manifestDir
	}

	entries := make([]model.CheckEntry, 0, len(m.Entries))
	for i, e := range m.Entries {
		if e.URL == "" {
			return nil, fmt.Errorf("%s: entry %d has no url", path, i)
		}
		if e.Path == "" {
			return nil, fmt.Errorf("%s: entry %d has no path", path, i)
		}
		e.Path = util.ExpandPath(e.Path, baseDir)
		e.ExpectedHash = strings.ToLower(strings.TrimSpace(e.ExpectedHash))
		entries = append(entries, e)
	}
	return entries, nil
}

// LoadMapping reads a mapping file. targetDir overrides the file's own
// target. Relative targets are joined to the target directory and relative
// sources to the mapping file's directory. It returns the mapping and the
// resolved target directory.
func LoadMapping(path, targetDir string) (model.Mapping, string, error) {
	var f MappingFile
	if err := decodeFile(path, &f); err != nil {
		return nil, "", err
	}

	fileDir := filepath.Dir(absOrSelf(path))
	if targetDir == "" {
		targetDir = f.Target
	}
	if targetDir == "" {
		return nil, "", fmt.Errorf("%s: no target directory given", path)
	}
	targetDir = util.ExpandPath(targetDir, fileDir)

	mapping := make(model.Mapping, len(f.Mappings))
	for i, m := range f.Mappings {
		if m.Target == "" || m.Source == "" {
			return nil, "", fmt.Errorf("%s: mapping %d needs both target and source", path, i)
		}
		target := util.ExpandPath(m.Target, targetDir)
		if _, dup := mapping[target]; dup {
			return nil, "", fmt.Errorf("%s: duplicate target %q", path, m.Target)
		}
		mapping[target] = util.ExpandPath(m.Source, fileDir)
	}
	return mapping, targetDir, nil
}

// ParsePairs turns TARGET=SOURCE strings into a mapping, resolving relative
// targets against targetDir and relative sources against baseDir.
func ParsePairs(pairs []string, targetDir, baseDir string) (model.Mapping, error) {
	mapping := make(model.Mapping, len(pairs))
	for _, pair := range pairs {
		target, source, ok := strings.Cut(pair, "=")
		if !ok || target == "" || source == "" {
			return nil, fmt.Errorf("invalid mapping %q, want TARGET=SOURCE", pair)
		}
		key := util.ExpandPath(target, targetDir)
		if _, dup := mapping[key]; dup {
			return nil, fmt.Errorf("duplicate target %q", target)
		}
		mapping[key] = util.ExpandPath(source, baseDir)
	}
	return mapping, nil
}

func decodeFile(path string, v any) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	// #nosec G304 - path is supplied by the user on the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := Decode(data, format, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Decode unmarshals data in the given format into v. Unknown fields are
// rejected.
func Decode(data []byte, format Format, v any) error {
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	case FormatTOML:
		md, err := toml.Decode(string(data), v)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown keys: %v", undecoded)
		}
		return nil
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func absOrSelf(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
