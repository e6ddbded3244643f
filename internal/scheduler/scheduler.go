package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/mattjoyce/lanes/internal/config"
	"github.com/mattjoyce/lanes/internal/events"
	"github.com/mattjoyce/lanes/internal/registry"
)

// Hub event types published by the scheduler.
const (
	HubPushed  = "scheduler.pushed"
	HubSkipped = "scheduler.skipped"
)

// Scheduler pushes tasks onto queues that carry a schedule.
type Scheduler struct {
	cfg    *config.Config
	queues QueueService
	events *events.Hub
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New creates a new Scheduler instance.
func New(cfg *config.Config, q QueueService, hub *events.Hub, logger *slog.Logger) *Scheduler {
	if hub == nil {
		hub = events.NewHub(128)
	}
	return &Scheduler{
		cfg:    cfg,
		queues: q,
		events: hub,
		logger: logger.With("component", "scheduler"),
	}
}

// Scheduled returns the names of queues with a schedule, sorted.
func (s *Scheduler) Scheduled() []string {
	var names []string
	for _, name := range s.cfg.QueueNames() {
		if s.cfg.Queues[name].Schedule != nil {
			names = append(names, name)
		}
	}
	return names
}

// Run starts one loop per scheduled queue and blocks until ctx is done and
// every loop has returned.
func (s *Scheduler) Run(ctx context.Context) error {
	names := s.Scheduled()
	s.logger.Info("Starting scheduler", "queues", len(names))

	for _, name := range names {
		s.wg.Add(1)
		go s.loop(ctx, name, s.cfg.Queues[name])
	}

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
	return nil
}

// loop ticks immediately, then once per jittered interval.
func (s *Scheduler) loop(ctx context.Context, name string, q config.QueueConfig) {
	defer s.wg.Done()

	owner := q.OwnerOrDefault(name)
	for {
		s.tick(owner, name, q.Schedule)

		timer := time.NewTimer(calculateJitteredInterval(q.Schedule.Every, q.Schedule.Jitter))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// tick performs a single scheduling pass for one queue.
func (s *Scheduler) tick(owner, name string, sc *config.ScheduleConfig) {
	allowed, reason, err := s.canPush(owner, name, sc)
	if err != nil {
		s.logger.Error("Failed schedule checks", "owner", owner, "queue", name, "error", err)
		return
	}
	if !allowed {
		s.events.Publish(events.Scope{Owner: owner, Queue: name}, HubSkipped, map[string]any{
			"owner":  owner,
			"queue":  name,
			"reason": reason,
		})
		s.logger.Info("Skipped scheduled push", "owner", owner, "queue", name, "reason", reason)
		return
	}

	if err := s.push(owner, name, sc); err != nil {
		s.logger.Error("Failed to push scheduled task", "owner", owner, "queue", name, "error", err)
	}
}

func (s *Scheduler) push(owner, name string, sc *config.ScheduleConfig) error {
	args := append([]any(nil), sc.Args...)
	task, err := s.queues.Push(owner, name, args)
	if err != nil {
		return fmt.Errorf("push scheduled task for %s/%s: %w", owner, name, err)
	}
	s.events.Publish(events.Scope{Owner: owner, Queue: name}, HubPushed, map[string]any{
		"owner":   owner,
		"queue":   name,
		"task_id": task.ID,
		"ref":     task.Ref,
	})
	s.logger.Info("Pushed scheduled task", "owner", owner, "queue", name, "task_id", task.ID)
	return nil
}

// canPush guards against piling scheduled tasks onto a queue that has not
// caught up yet.
func (s *Scheduler) canPush(owner, name string, sc *config.ScheduleConfig) (bool, string, error) {
	st, err := s.queues.Stats(owner, name)
	if errors.Is(err, registry.ErrNotFound) {
		return true, "", nil
	}
	if err != nil {
		return false, "", err
	}

	maxOutstanding := sc.MaxOutstanding
	if maxOutstanding <= 0 {
		maxOutstanding = 1
	}
	if st.Pending >= maxOutstanding {
		return false, "outstanding", nil
	}
	return true, "", nil
}

// calculateJitteredInterval adds a random jitter to the base interval.
func calculateJitteredInterval(baseInterval time.Duration, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return baseInterval
	}
	return baseInterval + time.Duration(rand.Int63n(jitter.Nanoseconds()))
}
