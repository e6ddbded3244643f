package queue

import "errors"

var (
	// ErrTimeout is the result of an attempt whose timer elapsed before the
	// operation returned and no Default was configured.
	ErrTimeout = errors.New("TIMEOUT")

	// ErrNotCompleted is returned by Task.Returns while the task is still
	// queuing or executing.
	ErrNotCompleted = errors.New("task not completed")

	// ErrDiscarded settles tasks dropped by overflow, expiry, Clear or an
	// exhausted requeue budget. It is never returned to the pusher directly.
	ErrDiscarded = errors.New("task discarded")

	// ErrCancelled settles tasks removed by Task.Cancel.
	ErrCancelled = errors.New("task cancelled")

	// ErrPanic wraps a panic recovered from an operation.
	ErrPanic = errors.New("operation panicked")

	// ErrInvalidOptions is wrapped by Options.Validate failures.
	ErrInvalidOptions = errors.New("invalid queue options")

	// ErrNoOperation is returned when a dispatcher is built without an operation.
	ErrNoOperation = errors.New("queue operation is nil")
)
