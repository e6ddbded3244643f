// Package queue implements the per-(owner, queue) task dispatcher.
//
// A Dispatcher owns a bounded buffer of Tasks and one consumer goroutine that
// executes them strictly one at a time against a single Operation. Pushes are
// admitted according to the Overflow policy, reordered by an optional
// Priority, expired after MaxQueueTime, raced against Timeout, and retried or
// requeued according to the Failure policy.
//
// Overflow policy when the buffer is full:
//   - discard: the incoming task is dropped
//   - overlap: the tail task is replaced by the incoming one
//   - slide: the head task is dropped and the incoming one appended
//
// Failure policy when an attempt returns an error:
//   - ignore: settle with the error (1 attempt)
//   - retry: wait RetryInterval and retry in place (RetryCount+1 attempts)
//   - requeue: push the task back onto the buffer (RetryCount+1 attempts across passes)
//
// Discards are reported through the "discard" event, never returned to the
// pusher. Task handles (Objectify) settle exactly once and expose the final
// result through Wait and Returns.
package queue
