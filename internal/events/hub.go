package events

import (
	"encoding/json"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const subscriberBuffer = 256

// Scope names the queue an event belongs to. Process-wide events leave it
// empty.
type Scope struct {
	Owner string
	Queue string
}

// Event is a published notification. Data holds the JSON encoded payload.
type Event struct {
	ID    int64     `json:"id"`
	Type  string    `json:"type"`
	Owner string    `json:"owner,omitempty"`
	Queue string    `json:"queue,omitempty"`
	At    time.Time `json:"at"`
	Data  []byte    `json:"data"`
}

// Filter selects events. Empty fields match anything.
type Filter struct {
	Owner string
	Queue string
	Types []string
}

// Match reports whether ev passes f.
func (f Filter) Match(ev Event) bool {
	if f.Owner != "" && ev.Owner != f.Owner {
		return false
	}
	if f.Queue != "" && ev.Queue != f.Queue {
		return false
	}
	return len(f.Types) == 0 || slices.Contains(f.Types, ev.Type)
}

type subscriber struct {
	ch      chan Event
	filter  Filter
	dropped atomic.Int64
}

// Hub fans dispatcher, scheduler and task events out to subscribers and
// keeps the most recent ones in a ring for Last-Event-ID replay.
type Hub struct {
	nextID  atomic.Int64
	dropped atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]*subscriber
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]*subscriber),
	}
}

// Publish records an event of eventType for scope. data is JSON encoded;
// an unencodable payload is published as {}.
func (h *Hub) Publish(scope Scope, eventType string, data any) {
	payload := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	// IDs are assigned under mu so the ring and every subscriber see them in order.
	ev := Event{
		ID:    h.nextID.Add(1),
		Type:  eventType,
		Owner: scope.Owner,
		Queue: scope.Queue,
		At:    time.Now().UTC(),
		Data:  payload,
	}
	h.pushLocked(ev)
	for _, sub := range h.subs {
		if !sub.filter.Match(ev) {
			continue
		}
		// A full subscriber loses the event rather than stalling a dispatcher.
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
			h.dropped.Add(1)
		}
	}
}

// Subscribe returns a buffered channel of future events matching f and a
// cancel func that closes it. The cancel func reports how many matching
// events were dropped because the channel was full.
func (h *Hub) Subscribe(f Filter) (<-chan Event, func() int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	sub := &subscriber{ch: make(chan Event, subscriberBuffer), filter: f}
	h.subs[id] = sub

	cancel := func() int64 {
		h.mu.Lock()
		if s, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(s.ch)
		}
		h.mu.Unlock()
		return sub.dropped.Load()
	}
	return sub.ch, cancel
}

// Dropped is the total number of events lost to full subscribers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// SnapshotSince returns buffered events with ID > lastID that match f,
// oldest first.
func (h *Hub) SnapshotSince(lastID int64, f Filter) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if ev.ID > lastID && f.Match(ev) {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) pushLocked(ev Event) {
	if h.size < len(h.ring) {
		h.ring[(h.start+h.size)%len(h.ring)] = ev
		h.size++
		return
	}
	h.ring[h.start] = ev
	h.start = (h.start + 1) % len(h.ring)
}
