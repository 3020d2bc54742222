package mirror

import (
	"path/filepath"

	"github.com/klauern/mirrorsync/internal/model"
)

// MappingFromWorkDir maps each of paths, which must live under workDir, to
// the same relative location under outputDir. Relative paths are taken
// relative to workDir.
//
// It is the mapping used to publish a build's work directory into an
// output directory.
func MappingFromWorkDir(outputDir, workDir string, paths []string) (model.Mapping, error) {
	workDir = filepath.Clean(workDir)
	mapping := make(model.Mapping, len(paths))
	for _, p := range paths {
		source := p
		if !filepath.IsAbs(source) {
			source = filepath.Join(workDir, source)
		}
		source = filepath.Clean(source)

		if !isWithin(workDir, source) {
			return nil, &InvalidPathError{Path: p, Root: workDir}
		}
		rel, err := filepath.Rel(workDir, source)
		if err != nil {
			return nil, &InvalidPathError{Path: p, Root: workDir}
		}
		mapping[filepath.Join(outputDir, rel)] = source
	}
	return mapping, nil
}
