package main

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"kinetype/internal/ime"
	"kinetype/internal/surface"
	"kinetype/internal/vision"
)

var (
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a1a1aa"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fca5a5"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a")).
			Italic(true)
)

const hints = "ctrl+t telex  ctrl+k keyboard  ctrl+l highlight  ctrl+n noise  ctrl+p text  ctrl+o image  ctrl+w drop word  esc stop  ctrl+c quit"

type surfaceMsg surface.Event

type describedMsg struct{ err error }

type model struct {
	ctx      context.Context
	s        *surface.Surface
	events   <-chan surface.Event
	text     string
	image    string
	width    int
	rows     int
	status   string
	failed   bool
	quitting bool
}

func newModel(ctx context.Context, s *surface.Surface, text, image string) model {
	return model{
		ctx:    ctx,
		s:      s,
		events: s.Subscribe(),
		text:   text,
		image:  image,
		width:  80,
		rows:   3,
	}
}

func (m model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(ch <-chan surface.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return surfaceMsg(ev)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if m.rows = msg.Height - 4; m.rows < 1 {
			m.rows = 1
		}
		return m, nil

	case surfaceMsg:
		switch msg.Type {
		case surface.EventVisionFailed:
			m.status, m.failed = msg.Message, true
		case surface.EventPlaybackStarted:
			m.status, m.failed = "", false
		}
		return m, waitForEvent(m.events)

	case describedMsg:
		if msg.err != nil && m.status == "Analyzing image..." {
			m.status, m.failed = vision.UserMessage(msg.err), true
		}
		return m, nil

	case tea.KeyMsg:
		return m.key(msg)
	}
	return m, nil
}

func (m model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyEnter:
		m.s.HandleKey(ime.NewKeyWithCode(ime.KeyEnter, '\r'))
	case tea.KeyBackspace:
		m.s.HandleKey(ime.NewKeyWithCode(ime.KeyBackspace, '\b'))
	case tea.KeySpace:
		m.s.HandleKey(ime.NewKey(' '))
	case tea.KeyEsc:
		m.s.CancelPlayback()
	case tea.KeyCtrlT:
		m.s.SetVietnamese(!m.s.Vietnamese())
	case tea.KeyCtrlK:
		m.s.SetKeyboardEnabled(!m.s.KeyboardEnabled())
	case tea.KeyCtrlL:
		m.s.SetHighlight(m.s.Animation() != "sequential")
	case tea.KeyCtrlN:
		m.s.SetNoise(m.s.Animation() != "noise")
	case tea.KeyCtrlW:
		m.s.RemoveLastWord()
	case tea.KeyCtrlP:
		if m.text == "" {
			m.status, m.failed = "no -text given", true
			break
		}
		if _, err := m.s.TypeText(m.ctx, m.text); err != nil {
			m.status, m.failed = err.Error(), true
		}
	case tea.KeyCtrlO:
		if m.image == "" {
			m.status, m.failed = vision.UserMessage(vision.ErrNoImage), true
			break
		}
		m.status, m.failed = "Analyzing image...", false
		return m, m.describe()
	case tea.KeyRunes:
		if msg.Alt {
			break
		}
		for _, r := range msg.Runes {
			m.s.HandleKey(ime.NewKey(r))
		}
	}
	return m, nil
}

func (m model) describe() tea.Cmd {
	ctx, s, path := m.ctx, m.s, m.image
	return func() tea.Msg {
		_, err := s.DescribeFile(ctx, path)
		return describedMsg{err: err}
	}
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	p := m.s.Palette()
	base := lipgloss.NewStyle().
		Background(lipgloss.Color(p.Background)).
		Foreground(lipgloss.Color(p.Foreground))

	row := layoutRow(m.s.Snapshot(), m.width)
	var line, cursor strings.Builder
	for _, w := range row {
		line.WriteString(w.Text)
		mark := " "
		if w.Current {
			mark = "▔"
		}
		cursor.WriteString(strings.Repeat(mark, runewidth.StringWidth(w.Text)))
	}

	blank := strings.Repeat(" ", m.width)
	canvas := make([]string, 0, m.rows+1)
	pad := (m.rows - 1) / 2
	for i := 0; i < pad; i++ {
		canvas = append(canvas, blank)
	}
	canvas = append(canvas, line.String(), cursor.String())
	for len(canvas) < m.rows+1 {
		canvas = append(canvas, blank)
	}
	for i := range canvas {
		canvas[i] = base.Width(m.width).Render(canvas[i])
	}

	status := m.s.Mode().String() + " | telex " + onOff(m.s.Vietnamese()) + " | keyboard " + onOff(m.s.KeyboardEnabled())
	if a := m.s.Animation(); a != "" {
		status += " | " + a
	}
	statusLine := statusStyle.Render(status)
	if m.status != "" {
		style := statusStyle
		if m.failed {
			style = errorStyle
		}
		statusLine += statusStyle.Render(" | ") + style.Render(m.status)
	}

	return strings.Join(canvas, "\n") + "\n" + statusLine + "\n" + hintStyle.Render(hints)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
