package cli

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/klauern/mirrorsync/internal/cache"
	"github.com/klauern/mirrorsync/internal/config"
	"github.com/klauern/mirrorsync/internal/hashing"
	"github.com/klauern/mirrorsync/internal/logging"
	"github.com/klauern/mirrorsync/internal/progress"
	"github.com/klauern/mirrorsync/internal/ui/tui"
)

// digestCacheName is the file name (without extension) of the digest cache.
const digestCacheName = "digests"

// newSink builds the progress display for mode. The returned close function
// must be called once the engine is done reporting. interrupt is called when
// the user cancels from the TUI.
func newSink(mode string, interrupt func()) (progress.Sink, func() error, error) {
	noClose := func() error { return nil }

	switch mode {
	case config.ProgressNone:
		return progress.Nop{}, noClose, nil
	case config.ProgressBar, config.ProgressAuto, "":
		return progress.NewBar(os.Stderr), noClose, nil
	case config.ProgressTUI:
		if !progress.ShouldRender(os.Stderr) {
			logging.Debug("terminal cannot render the TUI, using the progress bar")
			return progress.NewBar(os.Stderr), noClose, nil
		}
		p := tui.NewProgress(interrupt, tea.WithOutput(os.Stderr))
		p.Start()
		return p, p.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown progress mode %q (want auto, bar, tui or none)", mode)
	}
}

// newHasher returns a hasher backed by the digest cache when it is enabled.
// The returned save function persists the cache and logs any failure.
func newHasher(cfg *config.Config) (*hashing.Hasher, func(), error) {
	if !cfg.Cache.Enabled {
		return hashing.New(), func() {}, nil
	}

	c, err := cache.New(digestCacheName, cfg.CacheDir())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open digest cache: %w", err)
	}
	if pruned := c.Prune(cfg.Cache.TTL); pruned > 0 {
		logging.Debug("pruned digest cache", logging.Count(pruned))
	}

	save := func() {
		if err := c.Save(); err != nil {
			logging.Warn("failed to save digest cache", logging.Path(c.Path()), logging.Err(err))
		}
	}
	return hashing.New(hashing.WithCache(c)), save, nil
}
