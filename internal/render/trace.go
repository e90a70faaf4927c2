// Package render turns an invocation trace into styled terminal output.
package render

import (
	"fmt"
	"strings"

	"worker-cli/internal/engine"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	workerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	textStyle   = lipgloss.NewStyle()
	toolStyle   = lipgloss.NewStyle().Faint(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
)

const defaultWidth = 100

// Trace renders the delegation trace as one line per event, indented by call
// depth so nested workers read as a tree.
func Trace(events []engine.TraceEvent, width int) string {
	if width <= 0 {
		width = defaultWidth
	}
	var sb strings.Builder
	for _, evt := range events {
		sb.WriteString(traceLine(evt, width))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func traceLine(evt engine.TraceEvent, width int) string {
	indent := strings.Repeat("  ", evt.Depth-1)
	budget := width - runewidth.StringWidth(indent)
	if budget < 16 {
		budget = 16
	}

	switch evt.Kind {
	case engine.TraceWorkerStart:
		return indent + workerStyle.Render("▶ "+evt.Worker)
	case engine.TraceWorkerEnd:
		if evt.Err != "" {
			return indent + errStyle.Render(clip("■ "+evt.Worker+" failed: "+evt.Err, budget))
		}
		return indent + workerStyle.Render("■ "+evt.Worker)
	case engine.TraceModelText:
		return indent + textStyle.Render(clip("• "+firstLine(evt.Text), budget))
	case engine.TraceToolCall:
		return indent + toolStyle.Render(clip(fmt.Sprintf("→ %s (%s)", evt.Tool, evt.CallID), budget))
	case engine.TraceToolResult:
		if evt.Err != "" {
			return indent + errStyle.Render(clip(fmt.Sprintf("✗ %s: %s", evt.Tool, firstLine(evt.Err)), budget))
		}
		return indent + okStyle.Render(fmt.Sprintf("✓ %s", evt.Tool))
	default:
		return indent + toolStyle.Render(clip(string(evt.Kind), budget))
	}
}

// Output renders the final worker output with a faint header.
func Output(res engine.Result) string {
	header := toolStyle.Render(fmt.Sprintf("── output of %s ──", res.Worker))
	return header + "\n" + res.Output + "\n"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}

// clip truncates by display width, so wide runes do not overflow the column.
func clip(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
