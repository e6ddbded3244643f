package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/lanes/internal/events"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusQueuing   Status = "queuing"
	StatusExecuting Status = "executing"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
	StatusDiscarded Status = "discarded"
)

// Settled reports whether s is terminal.
func (s Status) Settled() bool {
	return s == StatusDone || s == StatusCancelled || s == StatusDiscarded
}

var lastTaskID atomic.Int64

// TaskEventKind names a per-task notification.
type TaskEventKind string

const (
	TaskExecuting TaskEventKind = "executing"
	TaskDone      TaskEventKind = "done"
	TaskDiscarded TaskEventKind = "discard"
)

// TaskEvent is delivered to listeners registered with Task.On.
type TaskEvent struct {
	Kind   TaskEventKind
	Task   *Task
	Result any
	Err    error
}

// TaskListener receives task notifications on the dispatcher goroutine.
type TaskListener func(TaskEvent)

const taskTopic = "task"

// Task is one enqueued invocation.
type Task struct {
	ID         int64
	Ref        string
	Args       []any
	EnqueuedAt time.Time

	mu       sync.Mutex
	status   Status
	runCount int
	result   any
	err      error
	done     chan struct{}

	listeners *events.Emitter
}

func newTask(args []any, now time.Time) *Task {
	return &Task{
		ID:         lastTaskID.Add(1),
		Ref:        uuid.NewString(),
		Args:       args,
		EnqueuedAt: now,
		status:     StatusQueuing,
		done:       make(chan struct{}),
		listeners:  events.NewEmitter(nil),
	}
}

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// RunCount is the number of attempts started so far.
func (t *Task) RunCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runCount
}

// Done is closed once the task is settled (done, cancelled or discarded).
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task settles or ctx is done, then returns Returns.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.Returns()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Returns yields the result and the error of the final attempt. Before the
// task settles it returns ErrNotCompleted.
func (t *Task) Returns() (any, error) {
	select {
	case <-t.done:
	default:
		return nil, ErrNotCompleted
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// Cancel marks a queuing task as cancelled so the dispatcher drops it
// without executing. It returns false once the task has been dequeued.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusQueuing {
		return false
	}
	t.status = StatusCancelled
	return true
}

// QueuedFor is how long the task has waited since it was pushed.
func (t *Task) QueuedFor(now time.Time) time.Duration {
	return now.Sub(t.EnqueuedAt)
}

// On registers fn for every notification of this task.
func (t *Task) On(fn TaskListener) (off func()) {
	return t.listeners.On(taskTopic, func(p any) { fn(p.(TaskEvent)) })
}

// Once registers fn for the next notification of this task.
func (t *Task) Once(fn TaskListener) (off func()) {
	return t.listeners.Once(taskTopic, func(p any) { fn(p.(TaskEvent)) })
}

// begin moves a queuing task to executing and counts the attempt. It fails
// when the task was cancelled or settled in the meantime.
func (t *Task) begin() (attempt int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusQueuing && t.status != StatusExecuting {
		return t.runCount, false
	}
	t.status = StatusExecuting
	t.runCount++
	return t.runCount, true
}

// requeue returns an executing task to the queuing state.
func (t *Task) requeue() {
	t.mu.Lock()
	if t.status == StatusExecuting {
		t.status = StatusQueuing
	}
	t.mu.Unlock()
}

// settle records the final disposition exactly once.
func (t *Task) settle(status Status, result any, err error) bool {
	t.mu.Lock()
	select {
	case <-t.done:
		t.mu.Unlock()
		return false
	default:
	}
	t.status = status
	t.result = result
	t.err = err
	close(t.done)
	t.mu.Unlock()
	return true
}

func (t *Task) notify(kind TaskEventKind, result any, err error) {
	if t.listeners.Count(taskTopic) == 0 {
		return
	}
	t.listeners.Emit(taskTopic, TaskEvent{Kind: kind, Task: t, Result: result, Err: err})
}
