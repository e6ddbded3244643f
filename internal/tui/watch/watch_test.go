package watch

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lanes/internal/events"
	"github.com/mattjoyce/lanes/internal/queue"
)

func hubEvent(t *testing.T, typ string, data any) events.Event {
	t.Helper()
	b, err := json.Marshal(data)
	require.NoError(t, err)
	return events.Event{ID: 1, Type: typ, At: time.Now(), Data: b}
}

func TestApplySnapshotReplacesRows(t *testing.T) {
	queues := map[string]*QueueState{}
	applySnapshot(queues, []queue.Stats{
		{Owner: "mailer", Queue: "send", Pending: 2},
		{Owner: "hooks", Queue: "post"},
	})
	require.Len(t, queues, 2)
	assert.Equal(t, 2, queues["mailer/send"].Stats.Pending)

	queues["mailer/send"].LastStatus = queue.StatusDone
	applySnapshot(queues, []queue.Stats{{Owner: "mailer", Queue: "send", Pending: 1}})
	require.Len(t, queues, 1)
	assert.Equal(t, 1, queues["mailer/send"].Stats.Pending)
	assert.Equal(t, queue.StatusDone, queues["mailer/send"].LastStatus, "event state survives a poll")
}

func TestUpdateQueueState(t *testing.T) {
	queues := map[string]*QueueState{}
	applySnapshot(queues, []queue.Stats{{Owner: "mailer", Queue: "send", Pending: 2, Running: true}})

	updateQueueState(queues, hubEvent(t, queue.HubTaskDone, queue.TaskRecord{
		Owner: "mailer", Queue: "send", TaskID: 1, Status: queue.StatusDone,
	}))
	updateQueueState(queues, hubEvent(t, queue.HubTaskDone, queue.TaskRecord{
		Owner: "mailer", Queue: "send", TaskID: 2, Status: queue.StatusDone, Error: "exit status 1",
	}))

	q := queues["mailer/send"]
	assert.EqualValues(t, 1, q.Stats.Succeeded)
	assert.EqualValues(t, 1, q.Stats.Failed)
	assert.Equal(t, 0, q.Stats.Pending)
	assert.Equal(t, "exit status 1", q.LastError)

	updateQueueState(queues, hubEvent(t, queue.HubTaskDiscard, queue.TaskRecord{
		Owner: "hooks", Queue: "post", Status: queue.StatusDiscarded, Reason: string(queue.ReasonOverflow),
	}))
	require.Contains(t, queues, "hooks/post")
	assert.EqualValues(t, 1, queues["hooks/post"].Stats.Discarded)
	assert.Equal(t, "overflow", queues["hooks/post"].LastReason)

	updateQueueState(queues, hubEvent(t, queue.HubQueueIdle, map[string]string{"owner": "mailer", "queue": "send"}))
	assert.True(t, q.Stats.Idle)

	updateQueueState(queues, events.Event{Type: queue.HubTaskDone, Data: []byte("garbage")})
	assert.Len(t, queues, 2)
}

func TestExtractEventDesc(t *testing.T) {
	desc := extractEventDesc(hubEvent(t, queue.HubTaskDone, queue.TaskRecord{
		Owner: "mailer", Queue: "send", TaskID: 7, Attempts: 3, Error: "boom",
	}))
	assert.Equal(t, "mailer/send #7 x3 boom", desc)

	desc = extractEventDesc(hubEvent(t, queue.HubTaskDiscard, queue.TaskRecord{
		Owner: "mailer", Queue: "send", TaskID: 8, Attempts: 1, Reason: "expired",
	}))
	assert.Equal(t, "mailer/send #8 expired", desc)

	assert.Equal(t, "{}", extractEventDesc(events.Event{Data: []byte("{}")}))
}

func TestPulseDecay(t *testing.T) {
	var p Pulse
	now := time.Now()
	p.OnEvent(now)
	assert.Equal(t, pulseDots, p.dots)
	p.Decay(now.Add(5 * time.Second))
	assert.Equal(t, pulseDots-2, p.dots)
	p.Decay(now.Add(time.Minute))
	assert.Equal(t, 0, p.dots)
	assert.Equal(t, 1, p.Total())
}

func TestModelUpdate(t *testing.T) {
	m := New("http://unused", "key")

	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	mm := next.(Model)
	next, _ = mm.Update(queuesMsg{Queues: []queue.Stats{
		{Owner: "a", Queue: "x", Capacity: 4, Running: true, Idle: true},
		{Owner: "b", Queue: "x", Capacity: 4, Running: true},
	}})
	mm = next.(Model)
	assert.Len(t, mm.queues, 2)

	next, _ = mm.Update(tea.KeyMsg{Type: tea.KeyDown})
	mm = next.(Model)
	assert.Equal(t, 1, mm.selected)
	next, _ = mm.Update(tea.KeyMsg{Type: tea.KeyDown})
	mm = next.(Model)
	assert.Equal(t, 1, mm.selected)

	ev := hubEvent(t, queue.HubTaskDone, queue.TaskRecord{Owner: "a", Queue: "x", TaskID: 1, Status: queue.StatusDone})
	ev.ID = 42
	next, _ = mm.Update(eventMsg(ev))
	mm = next.(Model)
	assert.EqualValues(t, 42, mm.lastID)
	assert.Len(t, mm.eventLog, 1)
	assert.True(t, mm.health.Connected)

	next, _ = mm.Update(queuesMsg{Err: errors.New("connection refused")})
	mm = next.(Model)
	assert.Equal(t, "connection refused", mm.lastError)
	assert.Len(t, mm.queues, 2)

	view := mm.View()
	assert.Contains(t, view, "LANES WATCH")
	assert.Contains(t, view, "a/x")
	assert.Contains(t, view, "connection refused")
}

func TestFetchQueues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"queues": []queue.Stats{{Owner: "mailer", Queue: "send", Pending: 3}},
			"keys":   []string{"send"},
		})
	}))
	defer srv.Close()

	msg, ok := fetchQueues(srv.URL, "key").(queuesMsg)
	require.True(t, ok)
	require.NoError(t, msg.Err)
	require.Len(t, msg.Queues, 1)
	assert.Equal(t, 3, msg.Queues[0].Pending)

	msg = fetchQueues(srv.URL, "wrong").(queuesMsg)
	assert.Error(t, msg.Err)
}
