package api

import (
	"github.com/mattjoyce/lanes/internal/queue"
	"github.com/mattjoyce/lanes/internal/tasklog"
)

// PushRequest is the JSON body for POST /queues/{owner}/{queue}/tasks
type PushRequest struct {
	Args []any `json:"args"`
}

// PushResponse is returned once the task has been admitted (or dropped by
// the overflow policy, in which case Status is "discarded").
type PushResponse struct {
	TaskID int64        `json:"task_id,omitempty"`
	Ref    string       `json:"ref,omitempty"`
	Status queue.Status `json:"status"`
	Owner  string       `json:"owner"`
	Queue  string       `json:"queue"`
}

// QueueListResponse is returned by GET /queues.
type QueueListResponse struct {
	Queues []queue.Stats `json:"queues"`
	Keys   []string      `json:"keys"`
}

// ClearResponse is returned by POST /queues/{owner}/{queue}/clear.
type ClearResponse struct {
	Cleared int `json:"cleared"`
}

// HistoryResponse is returned by GET /queues/{owner}/{queue}/history.
type HistoryResponse struct {
	Entries []tasklog.Entry `json:"entries"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Queues        int    `json:"queues"`
	Pending       int    `json:"pending"`
	// DroppedEvents counts hub events lost to slow subscribers.
	DroppedEvents int64  `json:"dropped_events"`
}
