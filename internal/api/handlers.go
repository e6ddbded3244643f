package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/lanes/internal/registry"
	"github.com/mattjoyce/lanes/internal/tasklog"
)

// maxPushBody bounds the JSON body of a push request.
const maxPushBody = 1 << 20

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snapshot := s.queues.Snapshot()
	pending := 0
	for _, st := range snapshot {
		pending += st.Pending
	}
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Queues:        len(snapshot),
		Pending:       pending,
	}
	if s.events != nil {
		resp.DroppedEvents = s.events.Dropped()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.queues.Keys()))
}

// handleListQueues handles GET /queues.
func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, QueueListResponse{
		Queues: s.queues.Snapshot(),
		Keys:   s.queues.Keys(),
	})
}

// handleGetQueue handles GET /queues/{owner}/{queue}.
func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	owner, id := chi.URLParam(r, "owner"), chi.URLParam(r, "queue")
	st, err := s.queues.Stats(owner, id)
	if err != nil {
		s.writeQueueError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// handlePush handles POST /queues/{owner}/{queue}/tasks.
// The dispatcher for (owner, queue) is created on first push.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	owner, id := chi.URLParam(r, "owner"), chi.URLParam(r, "queue")

	var req PushRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxPushBody))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	task, err := s.queues.Push(owner, id, req.Args)
	if err != nil {
		s.writeQueueError(w, err)
		return
	}

	s.logger.Info("task pushed", "owner", owner, "queue", id, "task_id", task.ID, "ref", task.Ref)
	respondJSON(w, http.StatusAccepted, PushResponse{
		TaskID: task.ID,
		Ref:    task.Ref,
		Status: task.Status(),
		Owner:  owner,
		Queue:  id,
	})
}

// handleClear handles POST /queues/{owner}/{queue}/clear.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	owner, id := chi.URLParam(r, "owner"), chi.URLParam(r, "queue")
	n, err := s.queues.Clear(owner, id)
	if err != nil {
		s.writeQueueError(w, err)
		return
	}
	s.logger.Info("queue cleared", "owner", owner, "queue", id, "cleared", n)
	respondJSON(w, http.StatusOK, ClearResponse{Cleared: n})
}

// handleHistory handles GET /queues/{owner}/{queue}/history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotImplemented, "history is disabled")
		return
	}

	limit := tasklog.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	owner, id := chi.URLParam(r, "owner"), chi.URLParam(r, "queue")
	entries, err := s.history.List(r.Context(), owner, id, limit)
	if err != nil {
		s.logger.Error("failed to list history", "owner", owner, "queue", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if entries == nil {
		entries = []tasklog.Entry{}
	}
	respondJSON(w, http.StatusOK, HistoryResponse{Entries: entries})
}

// writeQueueError maps registry errors to HTTP statuses.
func (s *Server) writeQueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, registry.ErrUnbound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrClosed):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("queue request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// respondJSON writes a JSON response with the given status code
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
