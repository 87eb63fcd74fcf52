// Package monitor is a terminal inspector for the state broadcast. It lists
// every live object numerically and traces the altitude of one of them.
package monitor

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/drop/internal/protocol"
)

const (
	historyCapacity = 600
	maxRows         = 20
)

// FrameMsg carries one decoded broadcast.
type FrameMsg protocol.Frame

// ClosedMsg reports that the broadcast stream ended.
type ClosedMsg struct{}

type errMsg struct{ err error }

// Model is the bubbletea model of the monitor.
type Model struct {
	frames   <-chan []byte
	frame    protocol.Frame
	follow   int
	history  []float64
	received uint64
	bad      uint64
	paused   bool
	closed   bool
	lastErr  error
}

// NewModel reads broadcasts from frames. follow selects the traced object
// id; a negative value follows the first object of each frame.
func NewModel(frames <-chan []byte, follow int) Model {
	return Model{
		frames:  frames,
		follow:  follow,
		history: make([]float64, 0, historyCapacity),
	}
}

func waitFrame(frames <-chan []byte) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-frames
		if !ok {
			return ClosedMsg{}
		}
		frame, err := protocol.ParseState(msg)
		if err != nil {
			return errMsg{err}
		}
		return FrameMsg(frame)
	}
}

func (m Model) Init() tea.Cmd {
	return waitFrame(m.frames)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		case "tab", "down", "j":
			m.cycle(1)
		case "shift+tab", "up", "k":
			m.cycle(-1)
		case "c":
			m.history = m.history[:0]
		}
	case FrameMsg:
		m.received++
		if !m.paused {
			m.observe(protocol.Frame(msg))
		}
		return m, waitFrame(m.frames)
	case errMsg:
		m.bad++
		m.lastErr = msg.err
		return m, waitFrame(m.frames)
	case ClosedMsg:
		m.closed = true
	}
	return m, nil
}

func (m *Model) observe(f protocol.Frame) {
	m.frame = f
	o, ok := m.traced()
	if !ok {
		return
	}
	if len(m.history) >= historyCapacity {
		m.history = append(m.history[:0], m.history[1:]...)
	}
	m.history = append(m.history, o.Position[2])
}

func (m Model) traced() (protocol.ObjectState, bool) {
	if m.follow < 0 {
		if len(m.frame.Objects) == 0 {
			return protocol.ObjectState{}, false
		}
		return m.frame.Objects[0], true
	}
	return m.frame.Find(m.follow)
}

// cycle moves the traced object through the ids of the current frame.
func (m *Model) cycle(dir int) {
	objs := m.frame.Objects
	if len(objs) == 0 {
		return
	}
	cur := -1
	for i, o := range objs {
		if o.ID == m.follow {
			cur = i
			break
		}
	}
	next := (cur + dir + len(objs)) % len(objs)
	if cur < 0 && dir < 0 {
		next = len(objs) - 1
	}
	m.follow = objs[next].ID
	m.history = m.history[:0]
}

func (m Model) status() string {
	switch {
	case m.closed:
		return lostStyle.Render("DISCONNECTED")
	case m.paused:
		return pausedStyle.Render("PAUSED")
	default:
		return liveStyle.Render("LIVE")
	}
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(headerStyle.Render("DROP MONITOR") + "  " + m.status() + "\n")
	s.WriteString(labelStyle.Render("Time") + valueStyle.Render(fmt.Sprintf("%.3fs", m.frame.Time)) + "\n")
	s.WriteString(labelStyle.Render("Objects") + valueStyle.Render(fmt.Sprintf("%d", len(m.frame.Objects))) + "\n")
	s.WriteString(labelStyle.Render("Frames") + valueStyle.Render(fmt.Sprintf("%d", m.received)) + "\n")
	if m.bad > 0 {
		s.WriteString(labelStyle.Render("Malformed") + valueStyle.Render(fmt.Sprintf("%d (%v)", m.bad, m.lastErr)) + "\n")
	}

	tracedID := -1
	if o, ok := m.traced(); ok {
		tracedID = o.ID
	}

	var table strings.Builder
	table.WriteString(fmt.Sprintf("%4s %28s %28s %9s\n", "ID", "POSITION", "VELOCITY", "SPEED"))
	for i, o := range m.frame.Objects {
		if i == maxRows {
			table.WriteString(fmt.Sprintf("  ... %d more\n", len(m.frame.Objects)-maxRows))
			break
		}
		line := fmt.Sprintf("%4d %8.2f %8.2f %8.2f   %8.2f %8.2f %8.2f %9.3f",
			o.ID, o.Position[0], o.Position[1], o.Position[2],
			o.Velocity[0], o.Velocity[1], o.Velocity[2], o.Velocity.Len())
		if o.ID == tracedID {
			table.WriteString(selectedStyle.Render(line) + "\n")
		} else {
			table.WriteString(rowStyle.Render(line) + "\n")
		}
	}

	panels := []string{panelStyle.Render(s.String()), panelStyle.Render(table.String())}
	view := lipgloss.JoinHorizontal(lipgloss.Top, panels...)

	if len(m.history) > 1 {
		chart := asciigraph.Plot(m.history,
			asciigraph.Height(8), asciigraph.Width(60),
			asciigraph.Caption(fmt.Sprintf("altitude of object %d", tracedID)))
		view += "\n" + graphStyle.Render(chart)
	}

	view += "\n" + helpStyle.Render("SP:Pause  TAB/↑↓:Select  C:Clear trace  Q:Quit")
	return view
}
