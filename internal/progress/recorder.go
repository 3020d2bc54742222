package progress

import "sync"

// Recorder is a Sink that remembers what it was told. It is meant for tests
// and for callers that want to inspect totals after a run.
type Recorder struct {
	mu       sync.Mutex
	stages   []Stage
	length   uint64
	done     uint64
	finishes int
	unit     Unit
}

func (r *Recorder) SetMessage(stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *Recorder) SetLength(length uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.length = length
}

func (r *Recorder) Inc(delta uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done += delta
}

func (r *Recorder) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishes++
}

func (r *Recorder) SetUnit(unit Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unit = unit
}

// Snapshot is a copy of a Recorder's state.
type Snapshot struct {
	Stages   []Stage
	Length   uint64
	Done     uint64
	Finishes int
	Unit     Unit
}

// Snapshot returns the recorded state.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Stages:   append([]Stage(nil), r.stages...),
		Length:   r.length,
		Done:     r.done,
		Finishes: r.finishes,
		Unit:     r.unit,
	}
}
