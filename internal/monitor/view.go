package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Tokyo Night palette.
var (
	colorAccent  = lipgloss.Color("#7aa2f7")
	colorDim     = lipgloss.Color("#565f89")
	colorText    = lipgloss.Color("#c0caf5")
	colorWarning = lipgloss.Color("#e0af68")
	colorInfo    = lipgloss.Color("#7dcfff")
	colorBorder  = lipgloss.Color("#414868")

	titleStyle  = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(colorDim).Bold(true)
	timeStyle   = lipgloss.NewStyle().Foreground(colorDim)
	idStyle     = lipgloss.NewStyle().Foreground(colorInfo)
	textStyle   = lipgloss.NewStyle().Foreground(colorText)
	remoteStyle = lipgloss.NewStyle().Foreground(colorWarning)
	statusStyle = lipgloss.NewStyle().Foreground(colorDim)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorBorder).Padding(0, 1)
)

func (m *Model) View() string {
	var b strings.Builder

	title := "canrig monitor"
	if m.opts.Channel != "" {
		title += " · " + m.opts.Channel
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString(statusStyle.Render(fmt.Sprintf("  %d frames", m.total)))
	b.WriteString("\n")

	rows := m.height - 6
	if rows < 1 {
		rows = 1
	}
	start := len(m.entries) - rows
	if start < 0 {
		start = 0
	}

	var body strings.Builder
	body.WriteString(headerStyle.Render(fmt.Sprintf("%-12s %-5s %s", "TIME", "ID", "FRAME")))
	for _, e := range m.entries[start:] {
		body.WriteString("\n")
		body.WriteString(timeStyle.Render(e.at.Format("15:04:05.000")))
		body.WriteString(" ")
		body.WriteString(idStyle.Render(fmt.Sprintf("%03x  ", e.frame.ID)))
		style := textStyle
		if e.frame.Remote {
			style = remoteStyle
		}
		body.WriteString(style.Render(e.text))
	}
	width := m.width - 2
	if width < 20 {
		width = 20
	}
	b.WriteString(boxStyle.Width(width).Render(body.String()))
	b.WriteString("\n")

	help := "q quit · y copy last · p pause · c clear"
	if m.status != "" {
		help = m.status + " · " + help
	}
	b.WriteString(statusStyle.Render(help))
	return b.String()
}
