package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks daemon health from /healthz polling.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	Queues        int
	Pending       int
	Connected     bool
	LastCheck     time.Time
}

func renderHeader(health HealthState, ticker Ticker, pulse Pulse, theme Theme, width int) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("HEALTHY")
	if !health.Connected {
		statusText = theme.StatusFailed.Render("CONNECTING")
	} else if health.Status != "ok" && health.Status != "" {
		statusText = theme.StatusFailed.Render("DEGRADED")
	}

	uptime := formatDuration(time.Duration(health.UptimeSeconds) * time.Second)

	lastEvent := "never"
	if !pulse.LastEvent().IsZero() {
		lastEvent = fmt.Sprintf("%s ago", time.Since(pulse.LastEvent()).Round(time.Second))
	}

	titleText := fmt.Sprintf(" LANES WATCH %s", theme.Highlight.Render(ticker.Current()))
	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	pad := max(1, innerWidth-lipgloss.Width(titleText)-lipgloss.Width(clock)-4)
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s  up %s  Queues: %d  Pending: %d",
		statusText, uptime, health.Queues, health.Pending)

	activityLine := fmt.Sprintf(" Last event: %s %s  %s",
		lastEvent, pulse.Render(theme), theme.Dim.Render(fmt.Sprintf("%d events", pulse.Total())))

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, activityLine)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
