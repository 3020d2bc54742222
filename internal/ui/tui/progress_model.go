package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	bprogress "github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/klauern/mirrorsync/internal/progress"
)

// Messages the Progress sink feeds into the program.
type (
	stageMsg  progress.Stage
	lengthMsg uint64
	incMsg    uint64
	unitMsg   progress.Unit
	finishMsg struct{}
	quitMsg   struct{}
)

const (
	barPadding  = 2
	barMaxWidth = 60
)

var progressStyles = struct {
	Stage lipgloss.Style
	Count lipgloss.Style
	Done  lipgloss.Style
	Help  lipgloss.Style
}{
	Stage: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
	Count: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	Done:  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	Help:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
}

var interruptKey = key.NewBinding(
	key.WithKeys("ctrl+c"),
	key.WithHelp("ctrl+c", "cancel"),
)

// ProgressModel is the BubbleTea model behind the Progress sink. It shows
// one bar for the running stage and a line per finished stage.
type ProgressModel struct {
	bar         bprogress.Model
	stage       progress.Stage
	unit        progress.Unit
	length      uint64
	done        uint64
	completed   []string
	onInterrupt func()
	interrupted bool
	quitting    bool
}

// NewProgressModel returns an empty model. onInterrupt, if set, runs when
// the user presses ctrl+c.
func NewProgressModel(onInterrupt func()) ProgressModel {
	return ProgressModel{
		bar:         bprogress.New(bprogress.WithDefaultGradient(), bprogress.WithoutPercentage()),
		onInterrupt: onInterrupt,
	}
}

// Init implements tea.Model.
func (m ProgressModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-barPadding*2, barMaxWidth)

	case tea.KeyMsg:
		if key.Matches(msg, interruptKey) {
			m.interrupted = true
			if m.onInterrupt != nil {
				m.onInterrupt()
			}
		}

	case stageMsg:
		m.stage = progress.Stage(msg)

	case lengthMsg:
		m.length = uint64(msg)
		m.done = 0

	case incMsg:
		m.done += uint64(msg)

	case unitMsg:
		m.unit = progress.Unit(msg)

	case finishMsg:
		if m.stage != "" {
			m.completed = append(m.completed, fmt.Sprintf("%s %s %s",
				progressStyles.Done.Render("✓"), m.stage.Label(), progressStyles.Count.Render(m.counts())))
		}
		m.stage = ""
		m.length, m.done = 0, 0

	case quitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View implements tea.Model.
func (m ProgressModel) View() string {
	var b strings.Builder
	for _, line := range m.completed {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if m.quitting || m.stage == "" {
		return b.String()
	}

	b.WriteString(progressStyles.Stage.Render(m.stage.Label()))
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.Ratio()))
	b.WriteString(" ")
	b.WriteString(progressStyles.Count.Render(m.counts()))
	b.WriteString("\n")
	if m.interrupted {
		b.WriteString(progressStyles.Help.Render("cancelling..."))
	} else {
		b.WriteString(progressStyles.Help.Render(interruptKey.Help().Key + " " + interruptKey.Help().Desc))
	}
	b.WriteString("\n")
	return b.String()
}

// Ratio returns the completed fraction of the running stage.
func (m ProgressModel) Ratio() float64 {
	if m.length == 0 {
		return 0
	}
	return min(float64(m.done)/float64(m.length), 1)
}

// Completed returns the summary lines of finished stages.
func (m ProgressModel) Completed() []string {
	return m.completed
}

func (m ProgressModel) counts() string {
	if m.unit.Size > 1 {
		return fmt.Sprintf("%d/%d %s", m.done/m.unit.Size, m.length/m.unit.Size, m.unit.Name)
	}
	name := m.unit.Name
	if name == "" {
		name = "files"
	}
	return fmt.Sprintf("%d/%d %s", m.done, m.length, name)
}
