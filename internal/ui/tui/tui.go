// Package tui renders engine progress with BubbleTea.
package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/klauern/mirrorsync/internal/progress"
)

// Progress is a progress.Sink drawn by a BubbleTea program. Call Start before
// reporting and Close when done.
type Progress struct {
	program *tea.Program
	done    chan struct{}

	mu    sync.Mutex
	final ProgressModel
	err   error
}

var _ progress.Sink = (*Progress)(nil)

// NewProgress builds the program. onInterrupt runs when the user presses
// ctrl+c; opts are passed to tea.NewProgram.
func NewProgress(onInterrupt func(), opts ...tea.ProgramOption) *Progress {
	return &Progress{
		program: tea.NewProgram(NewProgressModel(onInterrupt), opts...),
		done:    make(chan struct{}),
	}
}

// Start runs the program in the background.
func (p *Progress) Start() {
	go func() {
		defer close(p.done)
		m, err := p.program.Run()
		p.mu.Lock()
		defer p.mu.Unlock()
		p.err = err
		if pm, ok := m.(ProgressModel); ok {
			p.final = pm
		}
	}()
}

// Close stops the program, waits for it to restore the terminal, and
// returns its error.
func (p *Progress) Close() error {
	p.program.Send(quitMsg{})
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Final returns the model as it was when the program stopped.
func (p *Progress) Final() ProgressModel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.final
}

// SetMessage implements progress.Sink.
func (p *Progress) SetMessage(stage progress.Stage) { p.program.Send(stageMsg(stage)) }

// SetLength implements progress.Sink.
func (p *Progress) SetLength(length uint64) { p.program.Send(lengthMsg(length)) }

// Inc implements progress.Sink.
func (p *Progress) Inc(delta uint64) { p.program.Send(incMsg(delta)) }

// Finish implements progress.Sink.
func (p *Progress) Finish() { p.program.Send(finishMsg{}) }

// SetUnit implements progress.Sink.
func (p *Progress) SetUnit(unit progress.Unit) { p.program.Send(unitMsg(unit)) }
