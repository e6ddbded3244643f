package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mattjoyce/lanes/internal/queue"
)

// ErrUnbound is returned by Table.Resolve for keys that were never bound.
var ErrUnbound = errors.New("queue key is not bound")

type binding struct {
	op   queue.Operation
	opts []queue.Option
}

// Table is the explicit list of queued operations, filled at startup. Each
// key names an operation plus its options; Resolve turns (owner, key) into
// that owner's dispatcher.
type Table struct {
	reg *Registry

	mu       sync.RWMutex
	bindings map[string]binding
}

func NewTable(reg *Registry) *Table {
	return &Table{reg: reg, bindings: make(map[string]binding)}
}

// Bind registers op under key. Binding a key twice replaces the earlier entry
// for dispatchers created afterwards; existing dispatchers pick up the new
// options on their next Resolve.
func (t *Table) Bind(key string, op queue.Operation, opts ...queue.Option) error {
	if op == nil {
		return fmt.Errorf("bind %q: %w", key, ErrNoOperation)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bindings[key] = binding{op: op, opts: opts}
	return nil
}

// Resolve returns the dispatcher for (owner, key), creating it on first use.
func (t *Table) Resolve(owner any, key string) (*queue.Dispatcher, error) {
	if t == nil || t.reg == nil {
		return nil, ErrNoRegistry
	}
	t.mu.RLock()
	b, ok := t.bindings[key]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnbound, key)
	}
	return t.reg.GetOrCreate(owner, key, b.op, b.opts...)
}

// Push resolves (owner, key) and enqueues args on it.
func (t *Table) Push(owner any, key string, args ...any) (*queue.Task, error) {
	d, err := t.Resolve(owner, key)
	if err != nil {
		return nil, err
	}
	return d.Push(args...), nil
}

// Keys lists the bound keys in sorted order.
func (t *Table) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.bindings))
	for k := range t.bindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
