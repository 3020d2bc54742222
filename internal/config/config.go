// Package config provides configuration management for mirrorsync.
// It supports YAML configuration files, environment variables, and sensible defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/klauern/mirrorsync/internal/cache"
	"github.com/klauern/mirrorsync/internal/download"
	"github.com/klauern/mirrorsync/internal/mirror"
	"github.com/klauern/mirrorsync/internal/util"
)

// Config represents the complete mirrorsync configuration.
type Config struct {
	// Download tunes the adaptive download scheduler
	Download DownloadConfig `yaml:"download"`

	// Mirror configures directory reconciliation
	Mirror MirrorConfig `yaml:"mirror"`

	// Cache configures the digest cache
	Cache CacheConfig `yaml:"cache"`

	// Output configures display preferences
	Output OutputConfig `yaml:"output"`
}

// DownloadConfig holds scheduler settings.
type DownloadConfig struct {
	// InitialConcurrency is the in-flight limit a batch starts with
	InitialConcurrency int `yaml:"initial_concurrency"`
	// MinConcurrency is the floor the limit never drops below
	MinConcurrency int `yaml:"min_concurrency"`
	// MaxConcurrency is the ceiling the limit never rises above
	MaxConcurrency int `yaml:"max_concurrency"`
	// UpdateEvery is how many completed attempts pass between retunes
	UpdateEvery int `yaml:"update_every"`
	// Window is the horizon the success rate is measured over
	Window time.Duration `yaml:"window"`
	// ChunkTimeout bounds the wait for headers and for each body read
	ChunkTimeout time.Duration `yaml:"chunk_timeout"`
	// StallTimeout fails a batch when nothing succeeds for this long (0 disables)
	StallTimeout time.Duration `yaml:"stall_timeout"`
	// Shuffle randomizes download order
	Shuffle bool `yaml:"shuffle"`
	// UserAgent is sent with every request
	UserAgent string `yaml:"user_agent"`
}

// MirrorConfig holds reconciliation settings.
type MirrorConfig struct {
	// MaxConcurrentOps bounds concurrent copy operations
	MaxConcurrentOps int `yaml:"max_concurrent_ops"`
}

// CacheConfig holds digest cache settings.
type CacheConfig struct {
	// Enabled enables or disables the digest cache
	Enabled bool `yaml:"enabled"`
	// TTL is how long an unused entry survives pruning
	TTL time.Duration `yaml:"ttl"`
	// Location is the cache directory path
	Location string `yaml:"location"`
}

// OutputConfig holds display preferences.
type OutputConfig struct {
	// Progress selects the progress display (auto, bar, tui, none)
	Progress string `yaml:"progress"`
	// Color controls color output (auto, always, never)
	Color string `yaml:"color"`
}

// Progress display modes.
const (
	ProgressAuto = "auto"
	ProgressBar  = "bar"
	ProgressTUI  = "tui"
	ProgressNone = "none"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Default returns the default configuration.
func Default() *Config {
	d := download.DefaultOptions()
	return &Config{
		Download: DownloadConfig{
			InitialConcurrency: d.InitialConcurrency,
			MinConcurrency:     d.MinConcurrency,
			MaxConcurrency:     d.MaxConcurrency,
			UpdateEvery:        d.UpdateEvery,
			Window:             d.Window,
			ChunkTimeout:       d.ChunkTimeout,
			StallTimeout:       0,
			Shuffle:            true,
			UserAgent:          d.UserAgent,
		},
		Mirror: MirrorConfig{
			MaxConcurrentOps: mirror.DefaultMaxConcurrentOps,
		},
		Cache: CacheConfig{
			Enabled:  false,
			TTL:      cache.DefaultTTL,
			Location: util.CachePath(),
		},
		Output: OutputConfig{
			Progress: ProgressAuto,
			Color:    ColorAuto,
		},
	}
}

// FilePath returns the path to the config file.
func FilePath() string {
	return util.ConfigFilePath()
}

// Load loads the configuration from file, merging with defaults.
// If the config file doesn't exist, returns default configuration.
func Load() (*Config, error) {
	cfg := Default()

	configPath := FilePath()
	// #nosec G304 - configPath is constructed from trusted config directory
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvironment()
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
	}
	cfg.applyEnvironment()
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	// #nosec G304 - path is provided by caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.applyEnvironment()
	return cfg, nil
}

// Save writes the configuration to the config file.
func (c *Config) Save() error {
	return c.SaveToPath(FilePath())
}

// SaveToPath writes the configuration to a specific path.
func (c *Config) SaveToPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	// #nosec G306 - config file should be readable by user
	return os.WriteFile(path, data, 0o644)
}

// Validate reports every setting that cannot be used.
func (c *Config) Validate() error {
	var errs []error
	d := c.Download
	if d.MinConcurrency < 1 {
		errs = append(errs, fmt.Errorf("download.min_concurrency must be at least 1, got %d", d.MinConcurrency))
	}
	if d.MaxConcurrency < d.MinConcurrency {
		errs = append(errs, fmt.Errorf("download.max_concurrency (%d) is below min_concurrency (%d)", d.MaxConcurrency, d.MinConcurrency))
	}
	if d.MaxConcurrency > download.DefaultMaxConcurrency {
		errs = append(errs, fmt.Errorf("download.max_concurrency must be at most %d, got %d", download.DefaultMaxConcurrency, d.MaxConcurrency))
	}
	if d.InitialConcurrency < d.MinConcurrency || d.InitialConcurrency > d.MaxConcurrency {
		errs = append(errs, fmt.Errorf("download.initial_concurrency %d is outside [%d, %d]", d.InitialConcurrency, d.MinConcurrency, d.MaxConcurrency))
	}
	if d.UpdateEvery < 1 {
		errs = append(errs, fmt.Errorf("download.update_every must be positive, got %d", d.UpdateEvery))
	}
	if d.Window <= 0 {
		errs = append(errs, fmt.Errorf("download.window must be positive, got %s", d.Window))
	}
	if d.ChunkTimeout <= 0 {
		errs = append(errs, fmt.Errorf("download.chunk_timeout must be positive, got %s", d.ChunkTimeout))
	}
	if d.StallTimeout < 0 {
		errs = append(errs, fmt.Errorf("download.stall_timeout cannot be negative, got %s", d.StallTimeout))
	}
	if c.Mirror.MaxConcurrentOps < 1 {
		errs = append(errs, fmt.Errorf("mirror.max_concurrent_ops must be positive, got %d", c.Mirror.MaxConcurrentOps))
	}
	switch c.Output.Progress {
	case ProgressAuto, ProgressBar, ProgressTUI, ProgressNone:
	default:
		errs = append(errs, fmt.Errorf("output.progress must be one of auto, bar, tui, none; got %q", c.Output.Progress))
	}
	switch c.Output.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		errs = append(errs, fmt.Errorf("output.color must be one of auto, always, never; got %q", c.Output.Color))
	}
	return errors.Join(errs...)
}

// DownloadOptions converts the download section into scheduler options.
func (c *Config) DownloadOptions() download.Options {
	d := c.Download
	return download.Options{
		InitialConcurrency: d.InitialConcurrency,
		MinConcurrency:     d.MinConcurrency,
		MaxConcurrency:     d.MaxConcurrency,
		UpdateEvery:        d.UpdateEvery,
		Window:             d.Window,
		ChunkTimeout:       d.ChunkTimeout,
		StallTimeout:       d.StallTimeout,
		Shuffle:            d.Shuffle,
		UserAgent:          d.UserAgent,
	}
}

// CacheDir returns the digest cache directory with ~ expanded.
func (c *Config) CacheDir() string {
	return util.ExpandPath(c.Cache.Location, "")
}

// applyEnvironment applies environment variable overrides.
// Environment variables follow the pattern MIRRORSYNC_<SECTION>_<KEY>.
// Values that fail to parse are ignored.
func (c *Config) applyEnvironment() {
	// Download settings
	setInt("MIRRORSYNC_DOWNLOAD_INITIAL_CONCURRENCY", &c.Download.InitialConcurrency)
	setInt("MIRRORSYNC_DOWNLOAD_MIN_CONCURRENCY", &c.Download.MinConcurrency)
	setInt("MIRRORSYNC_DOWNLOAD_MAX_CONCURRENCY", &c.Download.MaxConcurrency)
	setInt("MIRRORSYNC_DOWNLOAD_UPDATE_EVERY", &c.Download.UpdateEvery)
	setDuration("MIRRORSYNC_DOWNLOAD_WINDOW", &c.Download.Window)
	setDuration("MIRRORSYNC_DOWNLOAD_CHUNK_TIMEOUT", &c.Download.ChunkTimeout)
	setDuration("MIRRORSYNC_DOWNLOAD_STALL_TIMEOUT", &c.Download.StallTimeout)
	if v := os.Getenv("MIRRORSYNC_DOWNLOAD_SHUFFLE"); v != "" {
		c.Download.Shuffle = parseBool(v)
	}
	if v := os.Getenv("MIRRORSYNC_DOWNLOAD_USER_AGENT"); v != "" {
		c.Download.UserAgent = v
	}

	// Mirror settings
	setInt("MIRRORSYNC_MIRROR_MAX_CONCURRENT_OPS", &c.Mirror.MaxConcurrentOps)

	// Cache settings
	if v := os.Getenv("MIRRORSYNC_CACHE_ENABLED"); v != "" {
		c.Cache.Enabled = parseBool(v)
	}
	setDuration("MIRRORSYNC_CACHE_TTL", &c.Cache.TTL)
	if v := os.Getenv("MIRRORSYNC_CACHE_LOCATION"); v != "" {
		c.Cache.Location = v
	}

	// Output settings
	if v := os.Getenv("MIRRORSYNC_OUTPUT_PROGRESS"); v != "" {
		c.Output.Progress = strings.ToLower(v)
	}
	if v := os.Getenv("MIRRORSYNC_OUTPUT_COLOR"); v != "" {
		c.Output.Color = strings.ToLower(v)
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			*dst = d
		}
	}
}

// parseBool parses a boolean from common string representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Exists returns true if a config file exists.
func Exists() bool {
	return ExistsAt(FilePath())
}

// ExistsAt returns true if a config file exists at path.
func ExistsAt(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
