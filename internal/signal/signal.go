// Package signal provides a re-armable wake-up primitive for a single
// consumer goroutine.
//
// Notify never blocks and coalesces: any number of Notify calls between two
// Wait calls release exactly one Wait. After Wait returns the signal is armed
// again.
package signal

import "context"

// Signal is a single-slot notification. The zero value is not usable; call New.
type Signal struct {
	ch chan struct{}
}

// New returns an armed Signal.
func New() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Notify releases the current or next Wait.
func (s *Signal) Notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until Notify is called or ctx is done.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset drops a pending notification without waiting.
func (s *Signal) Reset() {
	select {
	case <-s.ch:
	default:
	}
}
