package tasklog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/lanes/internal/events"
	"github.com/mattjoyce/lanes/internal/log"
	"github.com/mattjoyce/lanes/internal/queue"
)

const defaultPruneEvery = time.Hour

// Recorder persists task.done and task.discard events from a Hub. It
// subscribes on construction so nothing published afterwards is missed
// while Run is starting.
type Recorder struct {
	store       *Store
	retention   time.Duration
	pruneEvery  time.Duration
	events      <-chan events.Event
	unsubscribe func() int64
	logger      *slog.Logger
}

// NewRecorder subscribes to hub. Entries older than retention are pruned
// periodically; zero retention keeps everything.
func NewRecorder(store *Store, hub *events.Hub, retention time.Duration) *Recorder {
	ch, cancel := hub.Subscribe(events.Filter{Types: []string{queue.HubTaskDone, queue.HubTaskDiscard}})
	return &Recorder{
		store:       store,
		retention:   retention,
		pruneEvery:  defaultPruneEvery,
		events:      ch,
		unsubscribe: cancel,
		logger:      log.WithComponent("tasklog"),
	}
}

// Run records events until ctx is done or the subscription is closed.
func (r *Recorder) Run(ctx context.Context) error {
	defer func() {
		if n := r.unsubscribe(); n > 0 {
			r.logger.Warn("task events dropped before they could be recorded", "dropped", n)
		}
	}()

	var prune <-chan time.Time
	if r.retention > 0 {
		r.prune(ctx)
		ticker := time.NewTicker(r.pruneEvery)
		defer ticker.Stop()
		prune = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			r.drain()
			return nil
		case <-prune:
			r.prune(ctx)
		case ev, ok := <-r.events:
			if !ok {
				return nil
			}
			if err := r.Record(ctx, ev); err != nil {
				r.logger.Error("failed to record task", "event_id", ev.ID, "error", err)
			}
		}
	}
}

// Record stores ev when it describes a settled task. Other events are
// ignored, so Record can also be fed an unfiltered stream.
func (r *Recorder) Record(ctx context.Context, ev events.Event) error {
	if ev.Type != queue.HubTaskDone && ev.Type != queue.HubTaskDiscard {
		return nil
	}
	var rec queue.TaskRecord
	if err := json.Unmarshal(ev.Data, &rec); err != nil {
		return fmt.Errorf("decode %s: %w", ev.Type, err)
	}
	return r.store.Insert(ctx, rec)
}

// drain records whatever is already buffered once the run context ends.
func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev, ok := <-r.events:
			if !ok {
				return
			}
			if err := r.Record(ctx, ev); err != nil {
				r.logger.Error("failed to record task", "event_id", ev.ID, "error", err)
			}
		default:
			return
		}
	}
}

func (r *Recorder) prune(ctx context.Context) {
	n, err := r.store.Prune(ctx, time.Now().Add(-r.retention))
	if err != nil {
		r.logger.Error("failed to prune task log", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("pruned task log", "deleted", n, "retention", r.retention)
	}
}
