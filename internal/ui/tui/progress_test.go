package tui

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/klauern/mirrorsync/internal/progress"
)

func update(t *testing.T, m ProgressModel, msgs ...tea.Msg) ProgressModel {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(ProgressModel)
	}
	return m
}

func TestNewProgressModel(t *testing.T) {
	m := NewProgressModel(nil)

	if m.Init() != nil {
		t.Error("expected nil command from Init")
	}
	if m.Ratio() != 0 {
		t.Errorf("expected ratio 0, got %v", m.Ratio())
	}
	if len(m.Completed()) != 0 {
		t.Errorf("expected no completed stages, got %v", m.Completed())
	}
}

func TestProgressModel_TracksStage(t *testing.T) {
	m := update(t, NewProgressModel(nil),
		stageMsg(progress.StageDownloadingFiles),
		lengthMsg(4),
		incMsg(1),
		incMsg(2),
	)

	if m.Ratio() != 0.75 {
		t.Errorf("expected ratio 0.75, got %v", m.Ratio())
	}
	view := m.View()
	if !strings.Contains(view, "Downloading Files") {
		t.Errorf("expected stage label in view, got %q", view)
	}
	if !strings.Contains(view, "3/4 files") {
		t.Errorf("expected counts in view, got %q", view)
	}
}

func TestProgressModel_RatioIsCapped(t *testing.T) {
	m := update(t, NewProgressModel(nil), stageMsg(progress.StageCheckingFiles), lengthMsg(2), incMsg(5))

	if m.Ratio() != 1 {
		t.Errorf("expected ratio capped at 1, got %v", m.Ratio())
	}
}

func TestProgressModel_NewLengthResetsCount(t *testing.T) {
	m := update(t, NewProgressModel(nil), lengthMsg(10), incMsg(4), lengthMsg(8))

	if m.done != 0 || m.length != 8 {
		t.Errorf("expected 0/8 after new length, got %d/%d", m.done, m.length)
	}
}

func TestProgressModel_FinishRecordsStage(t *testing.T) {
	m := update(t, NewProgressModel(nil),
		stageMsg(progress.StageCheckingFiles),
		lengthMsg(2),
		incMsg(2),
		finishMsg{},
		stageMsg(progress.StageDownloadingFiles),
		lengthMsg(1),
	)

	completed := m.Completed()
	if len(completed) != 1 {
		t.Fatalf("expected 1 completed stage, got %d", len(completed))
	}
	if !strings.Contains(completed[0], "Checking Files") || !strings.Contains(completed[0], "2/2") {
		t.Errorf("unexpected completed line %q", completed[0])
	}
	if !strings.Contains(m.View(), "Downloading Files") {
		t.Error("expected the running stage after the completed one")
	}
}

func TestProgressModel_FinishWithoutStage(t *testing.T) {
	m := update(t, NewProgressModel(nil), finishMsg{})

	if len(m.Completed()) != 0 {
		t.Errorf("expected no completed stages, got %v", m.Completed())
	}
}

func TestProgressModel_Units(t *testing.T) {
	m := update(t, NewProgressModel(nil),
		stageMsg(progress.StageDownloadingFiles),
		unitMsg(progress.Unit{Name: "MB", Size: 1 << 20}),
		lengthMsg(4<<20),
		incMsg(1<<20),
	)

	if !strings.Contains(m.View(), "1/4 MB") {
		t.Errorf("expected sized counts, got %q", m.View())
	}
}

func TestProgressModel_Interrupt(t *testing.T) {
	called := 0
	m := update(t, NewProgressModel(func() { called++ }),
		stageMsg(progress.StageDownloadingFiles),
		tea.KeyMsg{Type: tea.KeyCtrlC},
	)

	if called != 1 {
		t.Errorf("expected interrupt callback once, got %d", called)
	}
	if !strings.Contains(m.View(), "cancelling") {
		t.Errorf("expected cancelling notice, got %q", m.View())
	}
}

func TestProgressModel_OtherKeysIgnored(t *testing.T) {
	called := false
	m := update(t, NewProgressModel(func() { called = true }), tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})

	if called || m.interrupted {
		t.Error("expected only ctrl+c to interrupt")
	}
}

func TestProgressModel_WindowSize(t *testing.T) {
	m := update(t, NewProgressModel(nil), tea.WindowSizeMsg{Width: 30, Height: 10})
	if m.bar.Width != 30-barPadding*2 {
		t.Errorf("expected bar width %d, got %d", 30-barPadding*2, m.bar.Width)
	}

	m = update(t, m, tea.WindowSizeMsg{Width: 200, Height: 10})
	if m.bar.Width != barMaxWidth {
		t.Errorf("expected bar width capped at %d, got %d", barMaxWidth, m.bar.Width)
	}
}

func TestProgressModel_Quit(t *testing.T) {
	m := NewProgressModel(nil)
	next, cmd := m.Update(quitMsg{})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if !next.(ProgressModel).quitting {
		t.Error("expected quitting to be set")
	}
}

func TestProgress_Lifecycle(t *testing.T) {
	var out bytes.Buffer
	p := NewProgress(nil, tea.WithInput(nil), tea.WithOutput(&out), tea.WithoutRenderer(), tea.WithoutSignalHandler())
	p.Start()

	var sink progress.Sink = p
	sink.SetMessage(progress.StageDownloadingFiles)
	sink.SetUnit(progress.Unit{Name: "files", Size: 1})
	sink.SetLength(2)
	sink.Inc(1)
	sink.Inc(1)
	sink.Finish()

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	completed := p.Final().Completed()
	if len(completed) != 1 || !strings.Contains(completed[0], "Downloading Files") {
		t.Errorf("unexpected completed stages %v", completed)
	}
}
