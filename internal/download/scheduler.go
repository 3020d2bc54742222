// Package download fetches files over HTTP under a concurrency limit that
// tunes itself from the observed success rate and latency.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/klauern/mirrorsync/internal/logging"
	"github.com/klauern/mirrorsync/internal/model"
	"github.com/klauern/mirrorsync/internal/progress"
)

const (
	// DefaultUpdateEvery is how many completed attempts pass between retunes.
	DefaultUpdateEvery = 5
	// DefaultChunkTimeout bounds the wait for response headers and for each body read.
	DefaultChunkTimeout = 4 * time.Second
	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "mirrorsync"

	// timeoutsAtMinLimit is how many retune-time failures at the minimum
	// concurrency exhaust a batch.
	timeoutsAtMinLimit = 2
	// successRateThreshold and latencyThreshold gate a concurrency increase.
	successRateThreshold = 0.9
	latencyThreshold     = 2 * time.Second

	readBufferSize = 32 * 1024
)

// Options tunes the scheduler. Zero values fall back to the defaults and
// MaxConcurrency never exceeds DefaultMaxConcurrency.
type Options struct {
	InitialConcurrency int
	MinConcurrency     int
	MaxConcurrency     int
	// UpdateEvery is the number of completed attempts between retunes.
	UpdateEvery int
	// Window is the horizon of the success-rate window.
	Window       time.Duration
	ChunkTimeout time.Duration
	// StallTimeout fails the batch when no attempt has succeeded for this
	// long. Zero disables the check.
	StallTimeout time.Duration
	// Shuffle randomizes the order entries are attempted in.
	Shuffle   bool
	UserAgent string
}

// DefaultOptions returns the stock scheduler tuning.
func DefaultOptions() Options {
	return Options{
		InitialConcurrency: DefaultInitialConcurrency,
		MinConcurrency:     DefaultMinConcurrency,
		MaxConcurrency:     DefaultMaxConcurrency,
		UpdateEvery:        DefaultUpdateEvery,
		Window:             DefaultWindow,
		ChunkTimeout:       DefaultChunkTimeout,
		UserAgent:          DefaultUserAgent,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinConcurrency < 1 {
		o.MinConcurrency = d.MinConcurrency
	}
	if o.MaxConcurrency < 1 {
		o.MaxConcurrency = d.MaxConcurrency
	}
	if o.MaxConcurrency < o.MinConcurrency {
		o.MaxConcurrency = o.MinConcurrency
	}
	o.MaxConcurrency = min(o.MaxConcurrency, DefaultMaxConcurrency)
	o.MinConcurrency = min(o.MinConcurrency, o.MaxConcurrency)
	if o.InitialConcurrency < 1 {
		o.InitialConcurrency = d.InitialConcurrency
	}
	if o.UpdateEvery < 1 {
		o.UpdateEvery = d.UpdateEvery
	}
	if o.Window <= 0 {
		o.Window = d.Window
	}
	if o.ChunkTimeout <= 0 {
		o.ChunkTimeout = d.ChunkTimeout
	}
	if o.StallTimeout < 0 {
		o.StallTimeout = 0
	}
	if o.UserAgent == "" {
		o.UserAgent = d.UserAgent
	}
	return o
}

// Scheduler downloads batches of entries. A Scheduler keeps no state between
// batches and may be reused.
type Scheduler struct {
	opts   Options
	client *http.Client
	fs     afero.Fs
	clock  clockwork.Clock
	logger *slog.Logger

	// beforeRename runs after the temp file is complete and before it
	// replaces the destination.
	beforeRename func(model.DownloadEntry) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithHTTPClient sets the client requests are issued with.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scheduler) { s.client = c }
}

// WithFs sets the filesystem downloads are written to.
func WithFs(fs afero.Fs) Option {
	return func(s *Scheduler) { s.fs = fs }
}

// WithClock sets the clock used for latency, the success window and the stall check.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// New returns a Scheduler using opts.
func New(opts Options, fns ...Option) *Scheduler {
	s := &Scheduler{
		opts:   opts.withDefaults(),
		client: &http.Client{},
		fs:     afero.NewOsFs(),
		clock:  clockwork.NewRealClock(),
		logger: logging.Component("download"),
	}
	for _, fn := range fns {
		fn(s)
	}
	return s
}

// Options returns the effective tuning.
func (s *Scheduler) Options() Options {
	return s.opts
}

type outcome int

const (
	succeeded outcome = iota
	retry
	fatal
)

type attemptResult struct {
	entry   model.DownloadEntry
	outcome outcome
	latency time.Duration
	err     error
}

// Download fetches every entry, replacing each destination atomically.
//
// Entries sharing a path collapse to one download, the last entry winning.
// The sink's length is set to the number of distinct paths and it is
// incremented once per entry that lands. Connect failures and chunk timeouts
// put the entry back on the queue; any other failure cancels the attempts
// still in flight and is returned. The batch fails with ErrConnectionTimeout when attempts keep
// timing out at the minimum concurrency.
func (s *Scheduler) Download(ctx context.Context, entries []model.DownloadEntry, sink progress.Sink) error {
	entries = mergeByPath(entries)

	sink = progress.OrNop(sink)
	sink.SetMessage(progress.StageDownloadingFiles)
	sink.SetLength(uint64(len(entries)))
	defer sink.Finish()

	if len(entries) == 0 {
		return nil
	}
	logger := logging.ComponentFromContext(ctx, "download", s.logger)

	if err := s.removeStaleTemps(entries); err != nil {
		return err
	}

	queue := entries
	if s.opts.Shuffle {
		rand.Shuffle(len(queue), func(i, j int) { queue[i], queue[j] = queue[j], queue[i] })
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limit := NewConcurrencyLimit(s.opts.InitialConcurrency, s.opts.MinConcurrency, s.opts.MaxConcurrency)
	window := NewSlidingWindow(s.opts.Window, s.clock)
	// Never more than MaxConcurrency attempts are in flight, so sends never block.
	results := make(chan attemptResult, s.opts.MaxConcurrency)
	inFlight := 0
	untilRetune := s.opts.UpdateEvery
	timeoutsAtMin := 0

	var stall <-chan time.Time
	var stallTimer clockwork.Timer
	if s.opts.StallTimeout > 0 {
		stallTimer = s.clock.NewTimer(s.opts.StallTimeout)
		defer stallTimer.Stop()
		stall = stallTimer.Chan()
	}

	spawn := func() {
		for inFlight < limit.Load() && len(queue) > 0 {
			entry := queue[0]
			queue = queue[1:]
			inFlight++
			go func() { results <- s.attempt(ctx, entry) }()
		}
	}
	// abort cancels the batch and waits for in-flight attempts to unwind, so
	// nothing writes under the target after Download returns.
	abort := func(err error) error {
		cancel()
		for ; inFlight > 0; inFlight-- {
			<-results
		}
		return err
	}

	spawn()
	for inFlight > 0 {
		var res attemptResult
		select {
		case <-ctx.Done():
			return abort(fmt.Errorf("download cancelled: %w", ctx.Err()))
		case <-stall:
			return abort(fmt.Errorf("no download succeeded within %s: %w", s.opts.StallTimeout, ErrConnectionTimeout))
		case res = <-results:
		}
		inFlight--

		var rate float64
		var avg time.Duration
		switch res.outcome {
		case succeeded:
			sink.Inc(1)
			rate, avg = window.Observe(true, res.latency)
			if stallTimer != nil {
				stallTimer.Reset(s.opts.StallTimeout)
			}
		case retry:
			logger.Debug("retrying download", logging.URL(res.entry.URL), logging.Err(res.err))
			queue = append(queue, res.entry)
			rate, avg = window.Observe(false, 0)
		default:
			return abort(res.err)
		}

		untilRetune--
		if untilRetune == 0 {
			untilRetune = s.opts.UpdateEvery
			if res.outcome == succeeded {
				if rate > successRateThreshold && avg < latencyThreshold {
					if prev, cur := limit.Increase(); cur != prev {
						timeoutsAtMin = 0
						logger.Debug("raised concurrency", logging.Concurrency(cur),
							slog.Float64("success_rate", rate), logging.Duration(avg))
					}
				}
			} else if limit.AtMin() {
				timeoutsAtMin++
				logger.Debug("attempt failed at minimum concurrency", slog.Int("timeouts_at_min", timeoutsAtMin))
				if timeoutsAtMin >= timeoutsAtMinLimit {
					return abort(fmt.Errorf("%s unreachable at concurrency %d: %w",
						res.entry.URL, limit.Load(), ErrConnectionTimeout))
				}
			} else {
				_, cur := limit.Decrease()
				logger.Debug("lowered concurrency", logging.Concurrency(cur), slog.Float64("success_rate", rate))
			}
		}

		spawn()
	}

	logger.Info("downloaded files", logging.Count(len(entries)))
	return nil
}

// attempt makes one try at entry and classifies the result.
func (s *Scheduler) attempt(ctx context.Context, entry model.DownloadEntry) attemptResult {
	start := s.clock.Now()
	err := s.fetch(ctx, entry)
	res := attemptResult{entry: entry, err: err}
	switch {
	case err == nil:
		res.outcome = succeeded
		res.latency = s.clock.Since(start)
	case ctx.Err() != nil:
		res.outcome = fatal
		res.err = fmt.Errorf("download of %s cancelled: %w", entry.URL, ctx.Err())
	case isRetryable(err):
		res.outcome = retry
	default:
		res.outcome = fatal
	}
	return res
}

// fetch streams entry.URL into the temp sibling of entry.Path and renames it
// over the destination once the body is complete. The temp file is removed
// if the rename is never reached.
func (s *Scheduler) fetch(ctx context.Context, entry model.DownloadEntry) error {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timedOut atomic.Bool
	timer := s.clock.AfterFunc(s.opts.ChunkTimeout, func() {
		timedOut.Store(true)
		cancel()
	})
	defer timer.Stop()
	// network reports a failure caused by the chunk timer as a chunk timeout.
	network := func(err error) error {
		if timedOut.Load() {
			return fmt.Errorf("GET %s: %w", entry.URL, errChunkTimeout)
		}
		return err
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, entry.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", entry.URL, err)
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return network(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: entry.URL, StatusCode: resp.StatusCode}
	}

	if err := s.fs.MkdirAll(filepath.Dir(entry.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", entry.Path, err)
	}

	tmp := entry.TempPath()
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	renamed := false
	defer func() {
		if !renamed {
			_ = s.fs.Remove(tmp)
		}
	}()

	err = s.copyBody(f, resp.Body, timer)
	timer.Stop()
	if err != nil {
		_ = f.Close()
		return network(fmt.Errorf("failed to download %s: %w", entry.URL, err))
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if _, err := s.fs.Stat(tmp); err != nil {
		return fmt.Errorf("temp file vanished: %w", err)
	}
	if s.beforeRename != nil {
		if err := s.beforeRename(entry); err != nil {
			return err
		}
	}
	if err := s.fs.RemoveAll(entry.Path); err != nil {
		return fmt.Errorf("failed to remove existing %s: %w", entry.Path, err)
	}
	if err := s.fs.Rename(tmp, entry.Path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", entry.Path, err)
	}
	renamed = true
	return nil
}

// copyBody copies body to w one read at a time. The chunk timer runs only
// while a read is pending.
func (s *Scheduler) copyBody(w io.Writer, body io.Reader, timer clockwork.Timer) error {
	buf := make([]byte, readBufferSize)
	for {
		timer.Reset(s.opts.ChunkTimeout)
		n, err := body.Read(buf)
		timer.Stop()
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// mergeByPath drops all but the last entry for each path, keeping the order
// in which paths first appeared. The result never aliases entries.
func mergeByPath(entries []model.DownloadEntry) []model.DownloadEntry {
	index := make(map[string]int, len(entries))
	merged := make([]model.DownloadEntry, 0, len(entries))
	for _, e := range entries {
		if i, ok := index[e.Path]; ok {
			merged[i] = e
			continue
		}
		index[e.Path] = len(merged)
		merged = append(merged, e)
	}
	return merged
}

// removeStaleTemps deletes temp files left behind for these entries by an
// earlier run that never reached the rename.
func (s *Scheduler) removeStaleTemps(entries []model.DownloadEntry) error {
	for _, e := range entries {
		tmp := e.TempPath()
		if _, err := s.fs.Stat(tmp); err != nil {
			continue
		}
		if err := s.fs.RemoveAll(tmp); err != nil {
			return fmt.Errorf("failed to remove stale %s: %w", tmp, err)
		}
		s.logger.Debug("removed stale temp file", logging.Path(tmp))
	}
	return nil
}
