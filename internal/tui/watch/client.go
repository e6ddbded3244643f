package watch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/lanes/internal/events"
	"github.com/mattjoyce/lanes/internal/queue"
)

// --- Message types ---

type eventMsg events.Event

type healthMsg struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Queues        int    `json:"queues"`
	Pending       int    `json:"pending"`
}

type queuesMsg struct {
	Queues []queue.Stats `json:"queues"`
	Keys   []string      `json:"keys"`
	Err    error         `json:"-"`
}

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{}
type reconnectMsg struct{}

// --- Commands ---

// subscribeToEvents connects to the SSE /events endpoint and feeds events
// into ch. It returns sseDisconnectedMsg when the connection drops.
// lastID is sent as Last-Event-ID so a reconnect replays what was missed.
func subscribeToEvents(apiURL, apiKey string, lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequest(http.MethodGet, apiURL+"/events", nil)
		if err != nil {
			return errMsg(err)
		}
		req.Header.Set("Authorization", "Bearer "+apiKey)
		if lastID > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return sseDisconnectedMsg{}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("events: %s", resp.Status))
		}

		scanner := bufio.NewScanner(resp.Body)
		var current events.Event
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if len(current.Data) > 0 {
					current.At = time.Now()
					ch <- current
				}
				current = events.Event{}
			case strings.HasPrefix(line, "id: "):
				if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
					current.ID = id
				}
			case strings.HasPrefix(line, "event: "):
				current.Type = line[7:]
			case strings.HasPrefix(line, "data: "):
				current.Data = []byte(line[6:])
			}
		}

		return sseDisconnectedMsg{}
	}
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

// fetchHealth queries the /healthz endpoint.
func fetchHealth(apiURL, apiKey string) tea.Msg {
	var h healthMsg
	if err := getJSON(apiURL+"/healthz", apiKey, &h); err != nil {
		return errMsg(err)
	}
	return h
}

// fetchQueues queries the /queues endpoint. Failures come back inside the
// message so the poll loop keeps running.
func fetchQueues(apiURL, apiKey string) tea.Msg {
	var q queuesMsg
	if err := getJSON(apiURL+"/queues", apiKey, &q); err != nil {
		return queuesMsg{Err: err}
	}
	return q
}

func getJSON(url, apiKey string, out any) error {
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
