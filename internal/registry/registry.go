// Package registry maps (owner, queue id) pairs to running dispatchers.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/mattjoyce/lanes/internal/events"
	"github.com/mattjoyce/lanes/internal/log"
	"github.com/mattjoyce/lanes/internal/queue"
)

var (
	// ErrNoRegistry is returned when a method is called on a nil *Registry.
	ErrNoRegistry = errors.New("registry is nil")

	// ErrNoOperation is returned when a queue is created without an operation.
	ErrNoOperation = queue.ErrNoOperation

	// ErrClosed is returned by GetOrCreate after Close.
	ErrClosed = errors.New("registry is closed")

	// ErrOwner is returned for owners that cannot be used as map keys.
	ErrOwner = errors.New("owner is not comparable")
)

// Registry holds at most one Dispatcher per (owner, id). Dispatchers are
// started on creation and live until Remove or Close.
type Registry struct {
	ctx    context.Context
	cancel context.CancelFunc
	hub    *events.Hub
	logger *slog.Logger

	mu     sync.Mutex
	queues map[any]map[string]*queue.Dispatcher
	closed bool
}

// New returns a Registry whose dispatchers run until ctx is done or Close
// is called. hub may be nil.
func New(ctx context.Context, hub *events.Hub) *Registry {
	ctx, cancel := context.WithCancel(ctx)
	return &Registry{
		ctx:    ctx,
		cancel: cancel,
		hub:    hub,
		logger: log.WithComponent("registry"),
		queues: make(map[any]map[string]*queue.Dispatcher),
	}
}

// GetOrCreate returns the dispatcher for (owner, id). An existing dispatcher
// gets opts merged onto its active options. A missing one is built from
// DefaultOptions plus opts, started and registered; op is required then.
// owner must be comparable.
func (r *Registry) GetOrCreate(owner any, id string, op queue.Operation, opts ...queue.Option) (*queue.Dispatcher, error) {
	if r == nil {
		return nil, ErrNoRegistry
	}
	if owner != nil && !reflect.TypeOf(owner).Comparable() {
		return nil, fmt.Errorf("%w: %T", ErrOwner, owner)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	if d, ok := r.queues[owner][id]; ok {
		if len(opts) > 0 {
			if err := d.Update(opts...); err != nil {
				return nil, fmt.Errorf("update queue %s/%s: %w", queue.OwnerName(owner), id, err)
			}
		}
		return d, nil
	}

	if op == nil {
		return nil, ErrNoOperation
	}
	d, err := queue.New(queue.Config{
		Owner:     owner,
		ID:        id,
		Operation: op,
		Options:   queue.NewOptions(opts...),
		Hub:       r.hub,
	})
	if err != nil {
		return nil, fmt.Errorf("create queue %s/%s: %w", queue.OwnerName(owner), id, err)
	}
	d.Start(r.ctx)

	byID, ok := r.queues[owner]
	if !ok {
		byID = make(map[string]*queue.Dispatcher)
		r.queues[owner] = byID
	}
	byID[id] = d
	r.logger.Info("queue created", "owner", queue.OwnerName(owner), "queue", id)
	return d, nil
}

// Get returns the dispatcher for (owner, id) if one exists.
func (r *Registry) Get(owner any, id string) (*queue.Dispatcher, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.queues[owner][id]
	return d, ok
}

// Lookup finds a dispatcher by the rendered owner name, as used by the API.
func (r *Registry) Lookup(ownerName, id string) (*queue.Dispatcher, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, byID := range r.queues {
		if d, ok := byID[id]; ok && queue.OwnerName(d.Owner()) == ownerName {
			return d, true
		}
	}
	return nil, false
}

// Remove stops and clears the dispatcher for (owner, id) and forgets it.
func (r *Registry) Remove(owner any, id string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	d, ok := r.queues[owner][id]
	if ok {
		delete(r.queues[owner], id)
		if len(r.queues[owner]) == 0 {
			delete(r.queues, owner)
		}
	}
	r.mu.Unlock()

	if ok {
		d.Stop()
		d.Clear()
	}
	return ok
}

// Close stops every dispatcher and discards their buffered tasks.
func (r *Registry) Close() error {
	if r == nil {
		return ErrNoRegistry
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	var all []*queue.Dispatcher
	for _, byID := range r.queues {
		for _, d := range byID {
			all = append(all, d)
		}
	}
	r.queues = make(map[any]map[string]*queue.Dispatcher)
	r.mu.Unlock()

	r.cancel()
	for _, d := range all {
		d.Stop()
		d.Clear()
	}
	r.logger.Info("registry closed", "queues", len(all))
	return nil
}

// WaitForIdle blocks until every registered dispatcher is idle.
func (r *Registry) WaitForIdle(ctx context.Context) error {
	for _, d := range r.dispatchers() {
		if err := d.WaitForIdle(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns Stats for every dispatcher ordered by owner then queue.
func (r *Registry) Snapshot() []queue.Stats {
	all := r.dispatchers()
	out := make([]queue.Stats, 0, len(all))
	for _, d := range all {
		out = append(out, d.Stats())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].Queue < out[j].Queue
	})
	return out
}

func (r *Registry) dispatchers() []*queue.Dispatcher {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*queue.Dispatcher
	for _, byID := range r.queues {
		for _, d := range byID {
			all = append(all, d)
		}
	}
	return all
}
