package download

import "sync/atomic"

// Concurrency bounds used when Options leave them unset.
const (
	DefaultMinConcurrency     = 1
	DefaultMaxConcurrency     = 50
	DefaultInitialConcurrency = 4
)

// ConcurrencyLimit is a shared in-flight limit clamped to [min, max]. Reads
// and updates are lock-free.
type ConcurrencyLimit struct {
	value    atomic.Int64
	min, max int64
}

// NewConcurrencyLimit returns a limit starting at initial, clamped to [min, max].
func NewConcurrencyLimit(initial, minimum, maximum int) *ConcurrencyLimit {
	if minimum < 1 {
		minimum = 1
	}
	if maximum < minimum {
		maximum = minimum
	}
	l := &ConcurrencyLimit{min: int64(minimum), max: int64(maximum)}
	l.value.Store(l.clamp(int64(initial)))
	return l
}

// Load returns the current limit.
func (l *ConcurrencyLimit) Load() int {
	return int(l.value.Load())
}

// AtMin reports whether the limit sits on its floor.
func (l *ConcurrencyLimit) AtMin() bool {
	return l.value.Load() == l.min
}

// Increase raises the limit by one, up to max. It returns the previous and
// new values.
func (l *ConcurrencyLimit) Increase() (int, int) {
	return l.update(func(cur int64) int64 { return cur + 1 })
}

// Decrease lowers the limit by a quarter, rounded up, down to min. It
// returns the previous and new values.
func (l *ConcurrencyLimit) Decrease() (int, int) {
	return l.update(func(cur int64) int64 { return cur - (cur+3)/4 })
}

func (l *ConcurrencyLimit) update(next func(int64) int64) (int, int) {
	for {
		cur := l.value.Load()
		updated := l.clamp(next(cur))
		if l.value.CompareAndSwap(cur, updated) {
			return int(cur), int(updated)
		}
	}
}

func (l *ConcurrencyLimit) clamp(v int64) int64 {
	return max(l.min, min(l.max, v))
}
