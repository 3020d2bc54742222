package download

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultWindow is the horizon the scheduler judges recent attempts over.
const DefaultWindow = 2 * time.Second

type record struct {
	at      time.Time
	success bool
	latency time.Duration
}

// SlidingWindow is a time-bounded log of attempt outcomes. It keeps running
// totals so the success rate and average latency are O(1) to read.
type SlidingWindow struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	horizon time.Duration

	records    []record
	successes  int
	latencySum time.Duration
}

// NewSlidingWindow returns an empty window covering the trailing horizon.
func NewSlidingWindow(horizon time.Duration, clock clockwork.Clock) *SlidingWindow {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if horizon <= 0 {
		horizon = DefaultWindow
	}
	return &SlidingWindow{clock: clock, horizon: horizon}
}

// Observe records one attempt, evicts records older than the horizon and
// returns the success rate and the mean latency of successful attempts still
// in the window. Latency is ignored for failures.
func (w *SlidingWindow) Observe(success bool, latency time.Duration) (float64, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	rec := record{at: now, success: success}
	if success {
		rec.latency = latency
		w.successes++
		w.latencySum += latency
	}
	w.records = append(w.records, rec)
	w.evict(now)
	return w.stats()
}

// Stats returns the current success rate and average success latency without
// recording anything. An empty window reports a perfect rate.
func (w *SlidingWindow) Stats() (float64, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(w.clock.Now())
	return w.stats()
}

// Len returns how many records are inside the horizon.
func (w *SlidingWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(w.clock.Now())
	return len(w.records)
}

func (w *SlidingWindow) evict(now time.Time) {
	n := 0
	for n < len(w.records) && now.Sub(w.records[n].at) > w.horizon {
		if w.records[n].success {
			w.successes--
			w.latencySum -= w.records[n].latency
		}
		n++
	}
	if n > 0 {
		w.records = append(w.records[:0], w.records[n:]...)
	}
}

func (w *SlidingWindow) stats() (float64, time.Duration) {
	if len(w.records) == 0 {
		return 1.0, 0
	}
	rate := float64(w.successes) / float64(len(w.records))
	if w.successes == 0 {
		return rate, 0
	}
	return rate, w.latencySum / time.Duration(w.successes)
}
