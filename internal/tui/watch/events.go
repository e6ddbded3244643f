package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/lanes/internal/events"
	"github.com/mattjoyce/lanes/internal/queue"
)

const maxEventLog = 50

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		eventsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case queue.HubTaskDone:
		typeStyle = theme.StatusOK
		if strings.Contains(string(e.Data), `"error"`) {
			typeStyle = theme.StatusFailed
		}
	case queue.HubTaskDiscard:
		typeStyle = theme.StatusDiscarded
	case queue.HubQueueIdle:
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-14s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, extractEventDesc(e))
}

// extractEventDesc summarizes a hub event on one line.
func extractEventDesc(e events.Event) string {
	var rec queue.TaskRecord
	if err := json.Unmarshal(e.Data, &rec); err != nil || rec.Queue == "" {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	parts := []string{queueKey(rec.Owner, rec.Queue)}
	if rec.TaskID > 0 {
		parts = append(parts, fmt.Sprintf("#%d", rec.TaskID))
	}
	if rec.Attempts > 1 {
		parts = append(parts, fmt.Sprintf("x%d", rec.Attempts))
	}
	switch {
	case rec.Reason != "":
		parts = append(parts, rec.Reason)
	case rec.Error != "":
		parts = append(parts, truncate(rec.Error, 40))
	}
	return strings.Join(parts, " ")
}
