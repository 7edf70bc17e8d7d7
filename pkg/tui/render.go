package tui

import (
	"fmt"
	"strings"

	"charm.land/glamour/v2"

	"github.com/tabchat/tabchat/pkg/chat"
	"github.com/tabchat/tabchat/pkg/tabs"
)

func newRenderer(width int) *glamour.TermRenderer {
	r, _ := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(min(width, 120)),
	)
	return r
}

// renderTranscript flattens a tab's messages into viewport content. Finalized
// assistant text goes through the markdown renderer; text still streaming is
// shown raw so partial markup doesn't flicker.
func renderTranscript(tab tabs.Tab, renderer *glamour.TermRenderer) string {
	var b strings.Builder

	for _, msg := range tab.Messages {
		switch msg.Kind {
		case chat.KindUser:
			b.WriteString(userStyle.Render("> "+msg.Content) + "\n\n")

		case chat.KindAssistant:
			content := msg.Content
			if !msg.Streaming && renderer != nil {
				if rendered, err := renderer.Render(content); err == nil {
					content = rendered
				}
			}
			b.WriteString(content)
			if msg.Streaming {
				b.WriteString("▋")
			}
			if msg.Interrupted {
				b.WriteString(systemStyle.Render(" [interrupted]"))
			}
			b.WriteString("\n\n")

		case chat.KindToolUse:
			b.WriteString(toolStyle.Render(renderTool(msg)) + "\n\n")

		case chat.KindToolResult:
			b.WriteString(toolStyle.Render("⇒ "+firstLine(msg.Content)) + "\n\n")

		case chat.KindSystem:
			b.WriteString(systemStyle.Render(msg.Content) + "\n\n")
		}
	}

	return b.String()
}

func renderTool(msg chat.Message) string {
	var marker string
	switch msg.ToolStatus {
	case chat.ToolRunning:
		marker = "⚙"
	case chat.ToolComplete:
		marker = "✓"
	case chat.ToolError:
		marker = "✗"
	}

	line := fmt.Sprintf("%s %s(%s)", marker, msg.ToolName, truncateWithEllipsis(msg.ToolInput, 40))
	if msg.ToolResult != "" {
		line += " ⇒ " + truncateWithEllipsis(firstLine(msg.ToolResult), 50)
	}
	return line
}

// renderStatus is the one-line footer: connectivity, queue state, and the
// running usage aggregates.
func renderStatus(tab tabs.Tab) string {
	var parts []string

	if !tab.Connected {
		parts = append(parts, disconnectedStyle.Render("reconnecting…"))
	}
	if tab.Streaming {
		parts = append(parts, "generating…")
	}
	if tab.Queued {
		parts = append(parts, "1 queued")
	}

	u := tab.Usage
	if u.TotalCostUSD > 0 || u.TokensIn > 0 || u.TokensOut > 0 {
		parts = append(parts, fmt.Sprintf("$%.4f · %d in / %d out · ctx %d",
			u.TotalCostUSD, u.TokensIn, u.TokensOut, u.ContextUsed))
	}
	if tab.Profile != "" {
		parts = append(parts, tab.Profile)
	}

	if len(parts) == 0 {
		return statusStyle.Render("ready")
	}
	return statusStyle.Render(strings.Join(parts, "  │  "))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncateWithEllipsis(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return "…"
	}
	return s[:n-1] + "…"
}
