package monitor

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tturner/canrig/internal/can/bus"
	"github.com/tturner/canrig/internal/can/codec"
	"github.com/tturner/canrig/internal/can/spec"
)

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func vbusFrame(t *testing.T, node uint32, v float64) codec.Frame {
	t.Helper()
	f, err := codec.Encode(spec.DefaultRegistry(), spec.CmdGetVbusVoltage, node, map[string]float64{"vbus_voltage": v})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestMonitorReceivesFrames(t *testing.T) {
	b := bus.NewVirtualBus()
	defer b.Close()
	sub := b.Subscribe()
	defer sub.Close()

	m := New(sub, nil, Options{Channel: "can0", Now: func() time.Time { return time.Unix(0, 0) }})
	cmd := m.Init()
	b.Inject(vbusFrame(t, 3, 24))

	msg := cmd()
	if _, ok := msg.(frameMsg); !ok {
		t.Fatalf("Init cmd returned %T, want frameMsg", msg)
	}
	_, next := m.Update(msg)
	if next == nil {
		t.Error("monitor should keep reading after a frame")
	}
	lines := m.Lines()
	if len(lines) != 1 || lines[0] != "node 3 get_vbus_voltage vbus_voltage=24" {
		t.Errorf("lines = %q", lines)
	}
	view := m.View()
	if !strings.Contains(view, "can0") || !strings.Contains(view, "vbus_voltage=24") {
		t.Errorf("view = %q", view)
	}
}

func TestMonitorClosedBus(t *testing.T) {
	b := bus.NewVirtualBus()
	sub := b.Subscribe()
	m := New(sub, nil, Options{})
	b.Close()
	msg := m.waitFrame()()
	closed, ok := msg.(closedMsg)
	if !ok || !errors.Is(closed.err, bus.ErrClosed) {
		t.Fatalf("msg = %#v, want closedMsg", msg)
	}
	if _, next := m.Update(msg); next != nil {
		t.Error("monitor should stop reading a closed bus")
	}
	if !strings.Contains(m.View(), "bus closed") {
		t.Errorf("view = %q", m.View())
	}
}

func TestMonitorKeys(t *testing.T) {
	var copied string
	m := New(nil, nil, Options{Copy: func(s string) error { copied = s; return nil }})

	_, cmd := m.Update(key("y"))
	if cmd != nil || m.status != "nothing to copy" {
		t.Errorf("copy with no frames: cmd=%v status=%q", cmd, m.status)
	}

	m.Update(frameMsg{frame: vbusFrame(t, 1, 12)})
	m.Update(frameMsg{frame: vbusFrame(t, 2, 48)})
	_, cmd = m.Update(key("y"))
	if cmd == nil {
		t.Fatal("y should return a copy command")
	}
	m.Update(cmd())
	if copied != "node 2 get_vbus_voltage vbus_voltage=48" {
		t.Errorf("copied = %q", copied)
	}
	if !strings.HasPrefix(m.status, "copied: ") {
		t.Errorf("status = %q", m.status)
	}

	m.Update(key("p"))
	m.Update(frameMsg{frame: vbusFrame(t, 3, 1)})
	if len(m.Lines()) != 2 || m.total != 3 {
		t.Errorf("paused monitor kept %d lines, total %d", len(m.Lines()), m.total)
	}
	m.Update(key("p"))

	m.Update(key("c"))
	if len(m.Lines()) != 0 {
		t.Error("c should clear the history")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c should return tea.Quit")
	}
}

func TestMonitorFiltersAndTrims(t *testing.T) {
	node := uint32(2)
	m := New(nil, nil, Options{Node: &node, History: 2})
	for i, n := range []uint32{1, 2, 2, 2} {
		m.Update(frameMsg{frame: vbusFrame(t, n, float64(i))})
	}
	lines := m.Lines()
	if len(lines) != 2 || !strings.HasSuffix(lines[1], "vbus_voltage=3") {
		t.Errorf("lines = %q", lines)
	}
	if m.total != 4 {
		t.Errorf("total = %d, want 4", m.total)
	}
}

func TestMonitorCopyFailure(t *testing.T) {
	m := New(nil, nil, Options{Copy: func(string) error { return errors.New("no display") }})
	m.Update(frameMsg{frame: vbusFrame(t, 1, 1)})
	_, cmd := m.Update(key("y"))
	m.Update(cmd())
	if m.status != "copy failed: no display" {
		t.Errorf("status = %q", m.status)
	}
}
