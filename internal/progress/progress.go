package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/klauern/mirrorsync/internal/logging"
	"github.com/klauern/mirrorsync/internal/ui"
)

// Bar is a Sink that renders a terminal progress bar via schollz/progressbar.
// When the writer is not a terminal, colors are off, or debug logging is on,
// the bar stays hidden and stage changes are logged at debug level instead.
type Bar struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	bar     *progressbar.ProgressBar
	stage   Stage
	unit    Unit
	length  uint64
	current uint64
}

// NewBar returns a Bar writing to w (os.Stderr when nil).
func NewBar(w io.Writer) *Bar {
	if w == nil {
		w = os.Stderr
	}
	return &Bar{w: w, enabled: ShouldRender(w)}
}

// Enabled reports whether the bar is actually drawn.
func (b *Bar) Enabled() bool {
	return b.enabled
}

// SetMessage implements Sink.
func (b *Bar) SetMessage(stage Stage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stage = stage
	if !b.enabled {
		logging.Debug(fmt.Sprintf("%s started", stage.Label()))
		return
	}
	if b.bar != nil {
		b.bar.Describe(stage.Label())
	}
}

// SetLength implements Sink. A new length starts a new bar.
func (b *Bar) SetLength(length uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.length = length
	b.current = 0
	b.rebuild()
}

// Inc implements Sink.
func (b *Bar) Inc(delta uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current += delta
	if b.bar != nil {
		_ = b.bar.Add64(int64(delta))
	}
}

// Finish implements Sink.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.enabled {
		logging.Debug(fmt.Sprintf("%s completed", b.stage.Label()), logging.Count(int(b.current)))
		return
	}
	if b.bar != nil {
		_ = b.bar.Finish()
	}
}

// SetUnit implements Sink. The bar is redrawn in the new unit, keeping its
// current position.
func (b *Bar) SetUnit(unit Unit) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.unit = unit
	b.rebuild()
}

// rebuild replaces the underlying bar. Callers hold b.mu.
func (b *Bar) rebuild() {
	if !b.enabled {
		return
	}
	if b.bar != nil {
		_ = b.bar.Clear()
	}

	w := b.w
	opts := []progressbar.Option{
		progressbar.OptionSetDescription(b.stage.Label()),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(15),
		progressbar.OptionThrottle(65 * time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(ui.IsColorEnabled()),
	}
	if b.unit.Size > 1 {
		opts = append(opts, progressbar.OptionShowBytes(true))
	} else if b.unit.Name != "" {
		opts = append(opts, progressbar.OptionSetItsString(b.unit.Name))
	}

	total := int64(b.length)
	if total == 0 {
		total = -1
	}
	b.bar = progressbar.NewOptions64(total, opts...)
	if b.current > 0 {
		_ = b.bar.Set64(int64(b.current))
	}
}

// ShouldRender reports whether a progress display should be drawn on w:
// colors must be enabled, w must be a terminal, and the default logger must
// not be at debug level (bars garble debug output).
func ShouldRender(w io.Writer) bool {
	if !ui.IsColorEnabled() {
		return false
	}

	if !ui.IsTerminal(w) {
		return false
	}

	return !logging.Default().Enabled(context.Background(), logging.LevelDebug)
}
