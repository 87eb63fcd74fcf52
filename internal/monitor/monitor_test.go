package monitor

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/drop/internal/protocol"
)

func frame(t float64, ids ...int) FrameMsg {
	f := protocol.Frame{Time: t}
	for _, id := range ids {
		f.Objects = append(f.Objects, protocol.ObjectState{
			ID:       id,
			Position: mgl64.Vec3{0, 0, 100 - t - float64(id)},
		})
	}
	return FrameMsg(f)
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestFollowFirstObject(t *testing.T) {
	m := NewModel(make(chan []byte), -1)
	m = update(m, frame(0.1, 3, 5))
	m = update(m, frame(0.2, 3, 5))

	if len(m.history) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(m.history))
	}
	if m.history[1] != 100-0.2-3 {
		t.Errorf("unexpected altitude %f", m.history[1])
	}
}

func TestCycleSelection(t *testing.T) {
	m := NewModel(make(chan []byte), -1)
	m = update(m, frame(0.1, 3, 5, 8))

	m = update(m, tea.KeyMsg{Type: tea.KeyTab})
	if m.follow != 3 {
		t.Errorf("expected first id, got %d", m.follow)
	}
	m = update(m, tea.KeyMsg{Type: tea.KeyTab})
	if m.follow != 5 {
		t.Errorf("expected 5, got %d", m.follow)
	}
	m = update(m, tea.KeyMsg{Type: tea.KeyUp})
	m = update(m, tea.KeyMsg{Type: tea.KeyUp})
	if m.follow != 8 {
		t.Errorf("expected wrap to 8, got %d", m.follow)
	}
}

func TestPauseKeepsFrame(t *testing.T) {
	m := NewModel(make(chan []byte), 5)
	m = update(m, frame(0.1, 5))
	m = update(m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	m = update(m, frame(0.2, 5))

	if m.frame.Time != 0.1 || m.received != 2 {
		t.Errorf("paused model advanced: time %f, received %d", m.frame.Time, m.received)
	}
}

func TestViewShowsObjects(t *testing.T) {
	m := NewModel(make(chan []byte), -1)
	m = update(m, frame(1, 7))
	m = update(m, frame(2, 7))
	m = update(m, ClosedMsg{})

	out := m.View()
	for _, want := range []string{"DROP MONITOR", "DISCONNECTED", "altitude of object 7"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestWaitFrameDecodes(t *testing.T) {
	ch := make(chan []byte, 2)
	ch <- []byte("0.5;1 0 0 10 0 0 -1;")
	ch <- []byte("garbage")
	close(ch)

	msg := waitFrame(ch)()
	f, ok := msg.(FrameMsg)
	if !ok || f.Time != 0.5 || len(f.Objects) != 1 {
		t.Fatalf("unexpected msg %#v", msg)
	}
	if _, ok := waitFrame(ch)().(errMsg); !ok {
		t.Error("expected errMsg for malformed frame")
	}
	if _, ok := waitFrame(ch)().(ClosedMsg); !ok {
		t.Error("expected ClosedMsg after close")
	}
}
