// Package progress defines the narrow progress-reporting interface the
// engine talks to, plus terminal and no-op implementations of it.
package progress

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stage is a symbolic tag describing what the engine is currently doing.
// Rendering it into a human-facing string is up to the sink.
type Stage string

const (
	StageCheckingFiles    Stage = "checking files"
	StageDownloadingFiles Stage = "downloading files"
	StageHashingFiles     Stage = "hashing files"
	StageMirroringFiles   Stage = "mirroring files"
)

// Label returns the stage as a title-cased label, e.g. "Checking Files".
func (s Stage) Label() string {
	// Casers keep state, so each call gets its own.
	return cases.Title(language.English).String(string(s))
}

// Unit describes what one increment represents. Size is how many raw
// increments make up one displayed unit (1 for plain counters, 1<<20 for MB).
type Unit struct {
	Name string
	Size uint64
}

// Sink receives progress notifications. Implementations must be safe for
// concurrent use.
type Sink interface {
	SetMessage(stage Stage)
	SetLength(length uint64)
	Inc(delta uint64)
	Finish()
	SetUnit(unit Unit)
}

// Resetter is implemented by sinks that reset differently from SetLength(0).
type Resetter interface {
	Reset()
}

// Reset clears the sink's length, using its own Reset when it has one.
func Reset(s Sink) {
	if r, ok := s.(Resetter); ok {
		r.Reset()
		return
	}
	s.SetLength(0)
}

// OrNop returns s, or a no-op sink when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	return s
}

// Nop is a Sink that discards everything, for headless use.
type Nop struct{}

func (Nop) SetMessage(Stage) {}
func (Nop) SetLength(uint64) {}
func (Nop) Inc(uint64)       {}
func (Nop) Finish()          {}
func (Nop) SetUnit(Unit)     {}
