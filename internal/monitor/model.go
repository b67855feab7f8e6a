// Package monitor implements the live bus monitor screen.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tturner/canrig/internal/can/bus"
	"github.com/tturner/canrig/internal/can/codec"
	"github.com/tturner/canrig/internal/can/spec"
)

// DefaultHistory is how many frames the monitor keeps.
const DefaultHistory = 500

// Options configures the monitor.
type Options struct {
	Channel string
	History int
	// Node, if set, hides frames from other nodes.
	Node *uint32
	// Copy defaults to the system clipboard.
	Copy func(string) error
	Now  func() time.Time
}

type entry struct {
	at    time.Time
	frame codec.Frame
	text  string
}

type frameMsg struct {
	frame codec.Frame
	at    time.Time
}

type idleMsg struct{}

type closedMsg struct{ err error }

type copiedMsg struct {
	text string
	err  error
}

// Model is the bubbletea model of the monitor.
type Model struct {
	sub  bus.Subscription
	reg  *spec.Registry
	opts Options

	entries []entry
	total   int
	paused  bool
	closed  bool
	status  string
	width   int
	height  int
}

// New creates a monitor reading from sub.
func New(sub bus.Subscription, reg *spec.Registry, opts Options) *Model {
	if reg == nil {
		reg = spec.DefaultRegistry()
	}
	if opts.History <= 0 {
		opts.History = DefaultHistory
	}
	if opts.Copy == nil {
		opts.Copy = clipboard.WriteAll
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Model{sub: sub, reg: reg, opts: opts, width: 100, height: 24}
}

func (m *Model) Init() tea.Cmd {
	return m.waitFrame()
}

func (m *Model) waitFrame() tea.Cmd {
	sub, now := m.sub, m.opts.Now
	return func() tea.Msg {
		frame, err := sub.Next(context.Background(), time.Second)
		switch {
		case errors.Is(err, bus.ErrInactive):
			return idleMsg{}
		case err != nil:
			return closedMsg{err: err}
		}
		return frameMsg{frame: frame, at: now()}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case frameMsg:
		m.add(msg)
		return m, m.waitFrame()
	case idleMsg:
		return m, m.waitFrame()
	case closedMsg:
		m.closed = true
		m.status = "bus closed"
		if msg.err != nil && !errors.Is(msg.err, bus.ErrClosed) {
			m.status = msg.err.Error()
		}
		return m, nil
	case copiedMsg:
		if msg.err != nil {
			m.status = "copy failed: " + msg.err.Error()
		} else {
			m.status = "copied: " + msg.text
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "p", " ":
		m.paused = !m.paused
		m.status = ""
		if m.paused {
			m.status = "paused"
		}
	case "c":
		m.entries = nil
		m.status = "cleared"
	case "y":
		if len(m.entries) == 0 {
			m.status = "nothing to copy"
			return m, nil
		}
		text := m.entries[len(m.entries)-1].text
		copyFn := m.opts.Copy
		return m, func() tea.Msg {
			return copiedMsg{text: text, err: copyFn(text)}
		}
	}
	return m, nil
}

func (m *Model) add(msg frameMsg) {
	m.total++
	if m.paused {
		return
	}
	if m.opts.Node != nil && msg.frame.NodeID() != *m.opts.Node {
		return
	}
	m.entries = append(m.entries, entry{
		at:    msg.at,
		frame: msg.frame,
		text:  codec.Describe(m.reg, msg.frame),
	})
	if over := len(m.entries) - m.opts.History; over > 0 {
		m.entries = append([]entry(nil), m.entries[over:]...)
	}
}

// Lines returns the decoded text of the kept frames, oldest first.
func (m *Model) Lines() []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.text
	}
	return out
}

// Run shows the monitor for b until the user quits or ctx ends.
func Run(ctx context.Context, b bus.Bus, reg *spec.Registry, opts Options) error {
	sub := b.Subscribe()
	defer sub.Close()

	p := tea.NewProgram(New(sub, reg, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}
