package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/lanes/internal/events"
	"github.com/mattjoyce/lanes/internal/queue"
)

// QueueState is one dispatcher row: the last polled stats plus what the
// event stream has said about it since.
type QueueState struct {
	Stats      queue.Stats
	LastStatus queue.Status
	LastReason string
	LastError  string
	LastSettle time.Time
}

func queueKey(owner, id string) string {
	return owner + "/" + id
}

// applySnapshot replaces the polled stats and drops dispatchers that are gone.
func applySnapshot(queues map[string]*QueueState, snapshot []queue.Stats) {
	seen := make(map[string]bool, len(snapshot))
	for _, st := range snapshot {
		key := queueKey(st.Owner, st.Queue)
		seen[key] = true
		q, ok := queues[key]
		if !ok {
			q = &QueueState{}
			queues[key] = q
		}
		q.Stats = st
	}
	for key := range queues {
		if !seen[key] {
			delete(queues, key)
		}
	}
}

// updateQueueState folds a hub event into the matching row. Events for
// dispatchers not yet polled create a placeholder row.
func updateQueueState(queues map[string]*QueueState, e events.Event) {
	switch e.Type {
	case queue.HubTaskDone, queue.HubTaskDiscard:
		var rec queue.TaskRecord
		if err := json.Unmarshal(e.Data, &rec); err != nil || rec.Queue == "" {
			return
		}
		q := getOrCreateQueue(queues, rec.Owner, rec.Queue)
		q.LastStatus = rec.Status
		q.LastReason = rec.Reason
		q.LastError = rec.Error
		q.LastSettle = rec.SettledAt
		if e.Type == queue.HubTaskDone {
			q.Stats.Executed++
			if rec.Error != "" {
				q.Stats.Failed++
			} else {
				q.Stats.Succeeded++
			}
		} else {
			q.Stats.Discarded++
		}
		if q.Stats.Pending > 0 {
			q.Stats.Pending--
		}
	case queue.HubQueueIdle:
		data := map[string]string{}
		if err := json.Unmarshal(e.Data, &data); err != nil || data["queue"] == "" {
			return
		}
		q := getOrCreateQueue(queues, data["owner"], data["queue"])
		q.Stats.Idle = true
		q.Stats.Pending = 0
	}
}

func getOrCreateQueue(queues map[string]*QueueState, owner, id string) *QueueState {
	key := queueKey(owner, id)
	q, ok := queues[key]
	if !ok {
		q = &QueueState{Stats: queue.Stats{Owner: owner, Queue: id}}
		queues[key] = q
	}
	return q
}

func sortedQueueKeys(queues map[string]*QueueState) []string {
	keys := make([]string, 0, len(queues))
	for k := range queues {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func renderQueues(queues map[string]*QueueState, selected int, theme Theme, width int) string {
	innerWidth := width - 4

	if len(queues) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("QUEUES"),
			theme.Dim.Render("  No dispatchers yet"),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	header := theme.Header.Render(fmt.Sprintf("  %-28s %-16s %-8s %6s %6s %6s  %s",
		"QUEUE", "BUFFER", "STATE", "DONE", "FAIL", "DROP", "LAST"))

	lines := []string{header}
	for i, key := range sortedQueueKeys(queues) {
		line := formatQueueLine(key, queues[key], theme)
		if i == selected {
			line = theme.Selected.Render(">") + line[1:]
		}
		lines = append(lines, line)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("QUEUES"),
		strings.Join(lines, "\n"),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatQueueLine(key string, q *QueueState, theme Theme) string {
	st := q.Stats

	state := theme.StatusQueued.Render(fmt.Sprintf("%-8s", "idle"))
	switch {
	case !st.Running:
		state = theme.Dim.Render(fmt.Sprintf("%-8s", "stopped"))
	case !st.Idle:
		state = theme.StatusRunning.Render(fmt.Sprintf("%-8s", "busy"))
	}

	last := theme.Dim.Render("-")
	switch {
	case q.LastStatus == queue.StatusDiscarded:
		last = theme.StatusDiscarded.Render("discarded " + q.LastReason)
	case q.LastError != "":
		last = theme.StatusFailed.Render(truncate(q.LastError, 30))
	case q.LastStatus != "":
		last = theme.StatusOK.Render(string(q.LastStatus))
	}
	if !q.LastSettle.IsZero() {
		last += theme.Dim.Render(" " + q.LastSettle.Local().Format("15:04:05"))
	}

	return fmt.Sprintf("  %-28s %s %s %6d %6d %6d  %s",
		truncate(key, 28),
		renderBuffer(st.Pending, st.Capacity, theme),
		state,
		st.Succeeded, st.Failed, st.Discarded,
		last,
	)
}

// renderBuffer draws pending/capacity as a fixed-width bar.
func renderBuffer(pending, capacity int, theme Theme) string {
	const cells = 8
	filled := 0
	if capacity > 0 {
		filled = min(cells, (pending*cells+capacity-1)/capacity)
	}
	bar := theme.Bar.Render(strings.Repeat("■", filled)) + theme.TickerInactive.Render(strings.Repeat("□", cells-filled))
	return fmt.Sprintf("%s %-7s", bar, fmt.Sprintf("%d/%d", pending, capacity))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
