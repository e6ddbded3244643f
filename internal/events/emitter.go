package events

import (
	"log/slog"
	"sync"
)

// Listener receives the payload passed to Emit.
type Listener func(payload any)

type listener struct {
	id   int
	fn   Listener
	once bool
}

// Emitter dispatches named events to in-process listeners. Listeners run
// synchronously on the emitting goroutine, in registration order.
type Emitter struct {
	mu        sync.Mutex
	listeners map[string][]listener
	nextID    int
	logger    *slog.Logger
}

// NewEmitter returns an Emitter. A nil logger discards listener panics silently.
func NewEmitter(logger *slog.Logger) *Emitter {
	return &Emitter{
		listeners: make(map[string][]listener),
		logger:    logger,
	}
}

// On registers fn for every emission of name. The returned func removes it.
func (e *Emitter) On(name string, fn Listener) (off func()) {
	return e.add(name, fn, false)
}

// Once registers fn for the next emission of name only.
func (e *Emitter) Once(name string, fn Listener) (off func()) {
	return e.add(name, fn, true)
}

// Off removes every listener registered for name.
func (e *Emitter) Off(name string) {
	e.mu.Lock()
	delete(e.listeners, name)
	e.mu.Unlock()
}

// Count reports how many listeners are registered for name.
func (e *Emitter) Count(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[name])
}

// Emit calls the listeners registered for name with payload.
func (e *Emitter) Emit(name string, payload any) {
	e.mu.Lock()
	ls := e.listeners[name]
	if len(ls) == 0 {
		e.mu.Unlock()
		return
	}
	fire := make([]listener, len(ls))
	copy(fire, ls)
	kept := ls[:0]
	for _, l := range ls {
		if !l.once {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		delete(e.listeners, name)
	} else {
		e.listeners[name] = kept
	}
	e.mu.Unlock()

	for _, l := range fire {
		e.call(name, l.fn, payload)
	}
}

func (e *Emitter) call(name string, fn Listener, payload any) {
	defer func() {
		if r := recover(); r != nil && e.logger != nil {
			e.logger.Error("event listener panicked", "event", name, "panic", r)
		}
	}()
	fn(payload)
}

func (e *Emitter) add(name string, fn Listener, once bool) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners[name] = append(e.listeners[name], listener{id: id, fn: fn, once: once})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		ls := e.listeners[name]
		for i, l := range ls {
			if l.id == id {
				e.listeners[name] = append(ls[:i:i], ls[i+1:]...)
				break
			}
		}
		if len(e.listeners[name]) == 0 {
			delete(e.listeners, name)
		}
	}
}
