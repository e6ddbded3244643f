package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/lanes/internal/events"
	"github.com/mattjoyce/lanes/internal/log"
	"github.com/mattjoyce/lanes/internal/signal"
)

// Operation is the serialized unit of work. ctx is the dispatcher's run
// context; it is not cancelled when an attempt times out.
type Operation func(ctx context.Context, args ...any) (any, error)

// Dispatcher event names accepted by On and Once.
const (
	EventExecuting = "executing"
	EventDone      = "done"
	EventDiscard   = "discard"
	EventRetry     = "retry"
	EventRequeue   = "requeue"
	EventTimeout   = "timeout"
	EventIdle      = "idle"
)

// Hub event types published for every dispatcher sharing a Hub.
const (
	HubTaskDone    = "task.done"
	HubTaskDiscard = "task.discard"
	HubQueueIdle   = "queue.idle"
)

// DiscardReason says why a task left the buffer without executing.
type DiscardReason string

const (
	ReasonOverflow  DiscardReason = "overflow"
	ReasonExpired   DiscardReason = "expired"
	ReasonCancelled DiscardReason = "cancelled"
	ReasonExhausted DiscardReason = "exhausted"
	ReasonCleared   DiscardReason = "cleared"
	ReasonStopped   DiscardReason = "stopped"
)

// DiscardEvent is the payload of EventDiscard.
type DiscardEvent struct {
	Task   *Task
	Reason DiscardReason
}

// DoneEvent is the payload of EventDone.
type DoneEvent struct {
	Task   *Task
	Result any
	Err    error
}

// Config wires a Dispatcher. Hub and Logger are optional.
type Config struct {
	Owner     any
	ID        string
	Operation Operation
	Options   Options
	Hub       *events.Hub
	Logger    *slog.Logger
}

// Dispatcher serializes calls to one Operation through a bounded buffer.
// Push may be called from any goroutine; a single consumer goroutine started
// by Start executes tasks one at a time.
type Dispatcher struct {
	owner     any
	ownerName string
	id        string
	op        Operation
	opts      atomic.Pointer[Options]
	hub       *events.Hub
	emitter   *events.Emitter
	logger    *slog.Logger
	wake      *signal.Signal

	mu     sync.Mutex
	buffer []*Task
	hasNew bool
	busy   bool
	idle   bool
	idleCh chan struct{}

	runMu    sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}
	running  atomic.Bool

	stats counters
}

// New builds a stopped Dispatcher. Call Start to begin consuming.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Operation == nil {
		return nil, ErrNoOperation
	}
	opts := cfg.Options.normalized()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	name := OwnerName(cfg.Owner)
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithQueue(name, cfg.ID)
	}

	idleCh := make(chan struct{})
	close(idleCh)

	d := &Dispatcher{
		owner:     cfg.Owner,
		ownerName: name,
		id:        cfg.ID,
		op:        cfg.Operation,
		hub:       cfg.Hub,
		emitter:   events.NewEmitter(logger),
		logger:    logger,
		wake:      signal.New(),
		idle:      true,
		idleCh:    idleCh,
	}
	d.opts.Store(&opts)
	return d, nil
}

func (d *Dispatcher) Owner() any { return d.owner }

func (d *Dispatcher) ID() string { return d.id }

// Options returns a copy of the active policy.
func (d *Dispatcher) Options() Options { return *d.opts.Load() }

// Apply swaps the active policy. It takes effect from the next push or
// loop cycle; buffered tasks are kept as they are.
func (d *Dispatcher) Apply(o Options) error {
	o = o.normalized()
	if err := o.Validate(); err != nil {
		return err
	}
	d.opts.Store(&o)
	return nil
}

// Update applies opts on top of the active policy (a shallow merge).
func (d *Dispatcher) Update(opts ...Option) error {
	for {
		cur := d.opts.Load()
		next := *cur
		next.apply(opts...)
		next = next.normalized()
		if err := next.Validate(); err != nil {
			return err
		}
		if d.opts.CompareAndSwap(cur, &next) {
			return nil
		}
	}
}

// On registers fn for a dispatcher event (see the Event constants). Listeners
// run on the goroutine that triggered the event and must be safe for
// concurrent use.
func (d *Dispatcher) On(event string, fn events.Listener) (off func()) {
	return d.emitter.On(event, fn)
}

// Once registers fn for the next occurrence of event.
func (d *Dispatcher) Once(event string, fn events.Listener) (off func()) {
	return d.emitter.Once(event, fn)
}

// Off removes every listener for event.
func (d *Dispatcher) Off(event string) { d.emitter.Off(event) }

// Len is the number of buffered tasks.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffer)
}

// Idle reports whether the buffer is empty and nothing is executing.
func (d *Dispatcher) Idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idle
}

// Running reports whether the consumer goroutine is active.
func (d *Dispatcher) Running() bool { return d.running.Load() }

// Push enqueues an invocation with args. It returns the Task handle when
// Objectify is set and nil otherwise. Admission never fails loudly: a task
// dropped by the overflow policy is reported through EventDiscard.
func (d *Dispatcher) Push(args ...any) *Task {
	opts := d.opts.Load()
	t := newTask(args, time.Now())
	d.stats.pushed.Add(1)
	d.admit(t, opts)
	if !opts.Objectify {
		return nil
	}
	return t
}

type dropped struct {
	task   *Task
	reason DiscardReason
}

func (d *Dispatcher) admit(t *Task, opts *Options) bool {
	var drops []dropped

	d.mu.Lock()
	if len(d.buffer) >= opts.Length && opts.MaxQueueTime > 0 {
		now := time.Now()
		kept := make([]*Task, 0, len(d.buffer))
		for _, b := range d.buffer {
			if b.QueuedFor(now) > opts.MaxQueueTime {
				drops = append(drops, dropped{b, ReasonExpired})
				continue
			}
			kept = append(kept, b)
		}
		d.buffer = kept
	}

	accepted := true
	if len(d.buffer) >= opts.Length {
		switch {
		case opts.Overflow == OverflowOverlap && len(d.buffer) > 0:
			last := len(d.buffer) - 1
			drops = append(drops, dropped{d.buffer[last], ReasonOverflow})
			d.buffer[last] = t
		case opts.Overflow == OverflowSlide && len(d.buffer) > 0:
			drops = append(drops, dropped{d.buffer[0], ReasonOverflow})
			d.buffer[0] = nil
			d.buffer = append(d.buffer[1:], t)
		default:
			accepted = false
			drops = append(drops, dropped{t, ReasonOverflow})
		}
	} else {
		d.buffer = append(d.buffer, t)
	}
	if accepted {
		d.hasNew = true
		d.clearIdleLocked()
	}
	d.mu.Unlock()

	for _, x := range drops {
		d.discard(x.task, x.reason)
	}
	if accepted {
		d.logger.Debug("task admitted", "task_id", t.ID, "run_count", t.RunCount())
		d.wake.Notify()
	}
	return accepted
}

// Start launches the consumer goroutine. It is a no-op when already running.
// The loop stops when ctx is done or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.loopDone = make(chan struct{})
	d.running.Store(true)
	go d.run(ctx, d.loopDone)
}

// Stop ends the consumer goroutine and waits for it to exit. Buffered tasks
// stay in place and run again after the next Start; use Clear to drop them.
func (d *Dispatcher) Stop() {
	d.runMu.Lock()
	cancel, done := d.cancel, d.loopDone
	d.cancel = nil
	d.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Clear discards every buffered task.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	pending := d.buffer
	d.buffer = nil
	d.hasNew = false
	// Pushes notify after releasing mu, so a wake-up dropped here belongs
	// to a task that was just cleared.
	d.wake.Reset()
	d.mu.Unlock()

	for _, t := range pending {
		d.discard(t, ReasonCleared)
	}
	d.markIdleIfDrained()
}

// WaitForIdle returns immediately when the dispatcher is idle and otherwise
// blocks until the next transition to idle.
func (d *Dispatcher) WaitForIdle(ctx context.Context) error {
	d.mu.Lock()
	ch := d.idleCh
	d.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run(ctx context.Context, done chan struct{}) {
	d.logger.Debug("dispatch loop started")
	defer func() {
		d.running.Store(false)
		d.logger.Debug("dispatch loop stopped")
		close(done)
	}()

	for {
		t, err := d.pop(ctx)
		if err != nil {
			return
		}
		d.process(ctx, t)
		d.finish()
		if ctx.Err() != nil {
			return
		}
	}
}

// pop blocks until the buffer is non-empty, reorders it if new tasks arrived
// and a Priority is set, and removes the head.
func (d *Dispatcher) pop(ctx context.Context) (*Task, error) {
	for {
		d.mu.Lock()
		if len(d.buffer) > 0 {
			if p := d.opts.Load().Priority; p != nil && d.hasNew {
				d.reorderLocked(p)
			}
			d.hasNew = false
			t := d.buffer[0]
			d.buffer[0] = nil
			d.buffer = d.buffer[1:]
			d.busy = true
			d.mu.Unlock()
			return t, nil
		}
		d.mu.Unlock()

		if err := d.wake.Wait(ctx); err != nil {
			return nil, err
		}
	}
}

func (d *Dispatcher) reorderLocked(p Priority) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("priority reorder panicked, keeping FIFO order", "panic", r)
		}
	}()
	current := make([]*Task, len(d.buffer))
	copy(current, d.buffer)
	next := p.reorder(d.owner, current)
	if len(next) != len(d.buffer) {
		d.logger.Warn("priority reorder changed the buffer size, keeping FIFO order",
			"before", len(d.buffer), "after", len(next))
		return
	}
	d.buffer = next
}

func (d *Dispatcher) skipReason(t *Task, opts *Options) DiscardReason {
	switch {
	case t.RunCount() > opts.RetryCount:
		return ReasonExhausted
	case t.Status() == StatusCancelled:
		return ReasonCancelled
	case opts.MaxQueueTime > 0 && t.QueuedFor(time.Now()) > opts.MaxQueueTime:
		return ReasonExpired
	}
	return ""
}

func (d *Dispatcher) process(ctx context.Context, t *Task) {
	opts := d.opts.Load()
	if reason := d.skipReason(t, opts); reason != "" {
		d.discard(t, reason)
		return
	}

	first := true
	for {
		attempt, ok := t.begin()
		if !ok {
			d.discard(t, ReasonCancelled)
			return
		}
		if first {
			first = false
			t.notify(TaskExecuting, nil, nil)
			d.emitter.Emit(EventExecuting, t)
		}

		result, err := d.execute(ctx, t, opts)
		if err == nil {
			d.complete(t, result, nil)
			return
		}
		if ctx.Err() != nil {
			d.discard(t, ReasonStopped)
			return
		}

		switch opts.Failure {
		case FailureRetry:
			if attempt <= opts.RetryCount {
				d.stats.retried.Add(1)
				d.logger.Debug("retrying task", "task_id", t.ID, "attempt", attempt, "error", err)
				d.emitter.Emit(EventRetry, t)
				if !sleep(ctx, opts.RetryInterval) {
					d.discard(t, ReasonStopped)
					return
				}
				continue
			}
		case FailureRequeue:
			if attempt <= opts.RetryCount {
				d.stats.requeued.Add(1)
				d.logger.Debug("requeueing task", "task_id", t.ID, "attempt", attempt, "error", err)
				t.requeue()
				d.emitter.Emit(EventRequeue, t)
				d.admit(t, opts)
				return
			}
		}
		d.complete(t, nil, err)
		return
	}
}

type outcome struct {
	result any
	err    error
}

// execute runs one attempt, raced against opts.Timeout. A timed out
// operation keeps running in its own goroutine.
func (d *Dispatcher) execute(ctx context.Context, t *Task, opts *Options) (any, error) {
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("operation panicked", "task_id", t.ID, "panic", r)
				ch <- outcome{err: fmt.Errorf("%w: %v", ErrPanic, r)}
			}
		}()
		res, err := d.op(ctx, t.Args...)
		ch <- outcome{result: res, err: err}
	}()

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case out := <-ch:
		return out.result, out.err
	case <-timeout:
		d.stats.timedOut.Add(1)
		d.emitter.Emit(EventTimeout, t)
		if opts.Default != nil {
			return opts.Default, nil
		}
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) complete(t *Task, result any, err error) {
	if !t.settle(StatusDone, result, err) {
		return
	}
	d.stats.executed.Add(1)
	if err != nil {
		d.stats.failed.Add(1)
		d.logger.Debug("task failed", "task_id", t.ID, "attempts", t.RunCount(), "error", err)
	} else {
		d.stats.succeeded.Add(1)
	}
	t.notify(TaskDone, result, err)
	d.emitter.Emit(EventDone, DoneEvent{Task: t, Result: result, Err: err})
	d.publish(HubTaskDone, t, "", result, err)
}

func (d *Dispatcher) discard(t *Task, reason DiscardReason) {
	status, cause := StatusDiscarded, ErrDiscarded
	if reason == ReasonCancelled {
		status, cause = StatusCancelled, ErrCancelled
	}
	if !t.settle(status, nil, cause) {
		return
	}
	d.stats.discarded.Add(1)
	d.logger.Debug("task discarded", "task_id", t.ID, "reason", reason)
	t.notify(TaskDiscarded, nil, cause)
	d.emitter.Emit(EventDiscard, DiscardEvent{Task: t, Reason: reason})
	d.publish(HubTaskDiscard, t, reason, nil, cause)
}

// finish ends the current cycle and fires EventIdle on the transition to an
// empty buffer.
func (d *Dispatcher) finish() {
	d.mu.Lock()
	d.busy = false
	d.mu.Unlock()
	d.markIdleIfDrained()
}

func (d *Dispatcher) markIdleIfDrained() {
	d.mu.Lock()
	if d.idle || d.busy || len(d.buffer) > 0 {
		d.mu.Unlock()
		return
	}
	d.idle = true
	close(d.idleCh)
	d.mu.Unlock()

	d.emitter.Emit(EventIdle, nil)
	if d.hub != nil {
		d.hub.Publish(d.scope(), HubQueueIdle, map[string]string{"owner": d.ownerName, "queue": d.id})
	}
}

func (d *Dispatcher) clearIdleLocked() {
	if d.idle {
		d.idle = false
		d.idleCh = make(chan struct{})
	}
}

// TaskRecord is the JSON payload published to the Hub for settled tasks.
type TaskRecord struct {
	Owner      string    `json:"owner"`
	Queue      string    `json:"queue"`
	TaskID     int64     `json:"task_id"`
	Ref        string    `json:"ref"`
	Status     Status    `json:"status"`
	Attempts   int       `json:"attempts"`
	Reason     string    `json:"reason,omitempty"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	SettledAt  time.Time `json:"settled_at"`
}

const maxResultBytes = 4 * 1024

func (d *Dispatcher) publish(eventType string, t *Task, reason DiscardReason, result any, err error) {
	if d.hub == nil {
		return
	}
	rec := TaskRecord{
		Owner:      d.ownerName,
		Queue:      d.id,
		TaskID:     t.ID,
		Ref:        t.Ref,
		Status:     t.Status(),
		Attempts:   t.RunCount(),
		Reason:     string(reason),
		EnqueuedAt: t.EnqueuedAt.UTC(),
		SettledAt:  time.Now().UTC(),
	}
	if result != nil {
		rec.Result = truncate(fmt.Sprint(result), maxResultBytes)
	}
	if err != nil && !errors.Is(err, ErrDiscarded) {
		rec.Error = err.Error()
	}
	d.hub.Publish(d.scope(), eventType, rec)
}

func (d *Dispatcher) scope() events.Scope {
	return events.Scope{Owner: d.ownerName, Queue: d.id}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
