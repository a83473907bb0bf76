package tui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"stemdeck.click/internal/player"
)

const (
	seekStep  = 0.05
	gainStep  = 0.1
	panStep   = 0.1
	maxGain   = 4.0
	barWidth  = 24
	meterSize = 12
)

// RefreshInterval is how often the mixer view polls track state
var RefreshInterval = 50 * time.Millisecond

// Controller is the part of a playback session the mixer drives
type Controller interface {
	Tracks() []player.TrackInfo
	IsRunning() bool
	Finished() bool
	Play() error
	Pause() error
	Resume() error
	SetPosition(fraction float32) error
	SetGain(handle int, gain float32) error
	SetPan(handle int, pan float32) error
}

type tickMsg time.Time

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	valueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle     = lipgloss.NewStyle().Faint(true)
)

// Model is the mixer TUI state
type Model struct {
	ctrl  Controller
	title string

	tracks   []player.TrackInfo
	selected int
	running  bool
	finished bool
	err      error
	quitting bool

	width  int
	height int
}

// NewModel creates a mixer model over ctrl
func NewModel(ctrl Controller, title string) Model {
	m := Model{ctrl: ctrl, title: title}
	m.refresh()
	return m
}

// Init starts the refresh ticker
func (m Model) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.refresh()
		return m, tickEvery()
	}

	return m, nil
}

func (m *Model) refresh() {
	if m.ctrl == nil {
		return
	}
	m.tracks = m.ctrl.Tracks()
	m.running = m.ctrl.IsRunning()
	m.finished = m.ctrl.Finished()
	if m.selected >= len(m.tracks) {
		m.selected = max(len(m.tracks)-1, 0)
	}
}

func (m Model) current() (player.TrackInfo, bool) {
	if m.selected < 0 || m.selected >= len(m.tracks) {
		return player.TrackInfo{}, false
	}
	return m.tracks[m.selected], true
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var err error

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case " ", "space":
		switch {
		case m.running:
			err = m.ctrl.Pause()
		case m.finished:
			err = m.ctrl.Play()
		default:
			err = m.ctrl.Resume()
		}
	case "r":
		err = m.ctrl.Play()
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.tracks)-1 {
			m.selected++
		}
	case "left", "right":
		if t, ok := m.current(); ok {
			step := float32(seekStep)
			if msg.String() == "left" {
				step = -step
			}
			err = m.ctrl.SetPosition(clamp(t.Position+step, 0, 1))
		}
	case "+", "=":
		if t, ok := m.current(); ok {
			err = m.ctrl.SetGain(t.Handle, clamp(t.Gain+gainStep, 0, maxGain))
		}
	case "-", "_":
		if t, ok := m.current(); ok {
			err = m.ctrl.SetGain(t.Handle, clamp(t.Gain-gainStep, 0, maxGain))
		}
	case "[":
		if t, ok := m.current(); ok {
			err = m.ctrl.SetPan(t.Handle, clamp(t.Pan-panStep, -1, 1))
		}
	case "]":
		if t, ok := m.current(); ok {
			err = m.ctrl.SetPan(t.Handle, clamp(t.Pan+panStep, -1, 1))
		}
	default:
		return m, nil
	}

	if err != nil {
		slog.Warn("mixer control failed", "key", msg.String(), "error", err)
	}
	m.err = err
	m.refresh()
	return m, nil
}

// View renders the mixer
func (m Model) View() string {
	if m.quitting {
		return "Stopping playback...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("stemdeck"))
	if m.title != "" {
		b.WriteString(valueStyle.Render("  " + m.title))
	}
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Status: "))
	b.WriteString(valueStyle.Render(m.status()))
	b.WriteString("\n\n")

	if len(m.tracks) == 0 {
		b.WriteString(valueStyle.Render("  No tracks loaded"))
		b.WriteString("\n")
	}
	for i, t := range m.tracks {
		line := renderTrack(t)
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString(valueStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("space:Pause/Resume  ↑/↓:Select  ←/→:Seek  +/-:Gain  [/]:Pan  r:Restart  q:Quit"))
	b.WriteString("\n")

	return b.String()
}

func (m Model) status() string {
	switch {
	case m.running && !m.finished:
		return "Playing"
	case m.finished:
		return "Finished"
	default:
		return "Paused"
	}
}

func renderTrack(t player.TrackInfo) string {
	elapsed := time.Duration(float64(t.Duration) * float64(t.Position)).Round(time.Second)
	return fmt.Sprintf("%-20s [%s] %5s/%-5s gain %.1f pan %+.1f %s",
		truncate(t.Name, 20),
		renderBar(t.Position, barWidth),
		formatDuration(elapsed),
		formatDuration(t.Duration.Round(time.Second)),
		t.Gain,
		t.Pan,
		renderMeter(t.Amplitude, meterSize))
}

func renderBar(fraction float32, width int) string {
	filled := int(clamp(fraction, 0, 1) * float32(width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func renderMeter(level float32, width int) string {
	filled := int(clamp(level, 0, 1) * float32(width))
	return strings.Repeat("|", filled) + strings.Repeat(" ", width-filled)
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func clamp(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
