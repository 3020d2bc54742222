package util

import (
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv overrides the mirrorsync home directory when set.
const HomeEnv = "MIRRORSYNC_HOME"

// HomeDir returns the user's home directory
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

// MirrorsyncHome returns the directory holding mirrorsync's config and cache,
// ~/.mirrorsync unless MIRRORSYNC_HOME is set.
func MirrorsyncHome() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	return filepath.Join(HomeDir(), ".mirrorsync")
}

// ConfigFilePath returns the default config file location.
func ConfigFilePath() string {
	return filepath.Join(MirrorsyncHome(), "config.yaml")
}

// CachePath returns the default digest cache directory.
func CachePath() string {
	return filepath.Join(MirrorsyncHome(), "cache")
}

// ExpandPath expands a leading ~ to the home directory and resolves relative
// paths against baseDir. An empty path stays empty.
func ExpandPath(path, baseDir string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		return HomeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(HomeDir(), path[2:])
	}
	if filepath.IsAbs(path) || baseDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(baseDir, path)
}
