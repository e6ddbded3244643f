package registry

import (
	"errors"
	"fmt"

	"github.com/mattjoyce/lanes/internal/queue"
)

// ErrNotFound is returned for (owner, queue) pairs with no dispatcher.
var ErrNotFound = errors.New("queue not found")

// Service exposes a Registry and its Table by owner name, the way the HTTP
// API addresses queues. Owners are plain strings here.
type Service struct {
	Registry *Registry
	Table    *Table
}

func (s Service) Snapshot() []queue.Stats { return s.Registry.Snapshot() }

func (s Service) Keys() []string { return s.Table.Keys() }

// Stats returns the stats of an existing dispatcher.
func (s Service) Stats(owner, id string) (queue.Stats, error) {
	d, ok := s.Registry.Lookup(owner, id)
	if !ok {
		return queue.Stats{}, fmt.Errorf("%w: %s/%s", ErrNotFound, owner, id)
	}
	return d.Stats(), nil
}

// Push enqueues args on the bound queue id for owner, creating the
// dispatcher on first use.
func (s Service) Push(owner, id string, args []any) (*queue.Task, error) {
	return s.Table.Push(owner, id, args...)
}

// Clear discards the buffered tasks of an existing dispatcher and reports
// how many there were.
func (s Service) Clear(owner, id string) (int, error) {
	d, ok := s.Registry.Lookup(owner, id)
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", ErrNotFound, owner, id)
	}
	n := d.Len()
	d.Clear()
	return n, nil
}
