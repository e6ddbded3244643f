package queue

import (
	"fmt"
	"reflect"
	"sync/atomic"
)

type counters struct {
	pushed    atomic.Int64
	executed  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	discarded atomic.Int64
	requeued  atomic.Int64
	retried   atomic.Int64
	timedOut  atomic.Int64
}

// Stats is a point-in-time view of a dispatcher.
type Stats struct {
	Owner     string `json:"owner"`
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Capacity  int    `json:"capacity"`
	Overflow  string `json:"overflow"`
	Failure   string `json:"failure"`
	Priority  string `json:"priority,omitempty"`
	Idle      bool   `json:"idle"`
	Running   bool   `json:"running"`
	Pushed    int64  `json:"pushed"`
	Executed  int64  `json:"executed"`
	Succeeded int64  `json:"succeeded"`
	Failed    int64  `json:"failed"`
	Discarded int64  `json:"discarded"`
	Requeued  int64  `json:"requeued"`
	Retried   int64  `json:"retried"`
	TimedOut  int64  `json:"timed_out"`
}

// Stats snapshots the dispatcher counters and buffer state.
func (d *Dispatcher) Stats() Stats {
	opts := d.opts.Load()
	d.mu.Lock()
	pending, idle := len(d.buffer), d.idle
	d.mu.Unlock()

	s := Stats{
		Owner:     d.ownerName,
		Queue:     d.ID(),
		Pending:   pending,
		Capacity:  opts.Length,
		Overflow:  string(opts.Overflow),
		Failure:   string(opts.Failure),
		Idle:      idle,
		Running:   d.Running(),
		Pushed:    d.stats.pushed.Load(),
		Executed:  d.stats.executed.Load(),
		Succeeded: d.stats.succeeded.Load(),
		Failed:    d.stats.failed.Load(),
		Discarded: d.stats.discarded.Load(),
		Requeued:  d.stats.requeued.Load(),
		Retried:   d.stats.retried.Load(),
		TimedOut:  d.stats.timedOut.Load(),
	}
	switch p := opts.Priority.(type) {
	case SortKey:
		s.Priority = p.String()
	case Comparator:
		s.Priority = "func"
	}
	return s
}

// OwnerName renders an owner key for logs and the API. Strings and
// fmt.Stringers are used as is; other pointers print as type@address.
func OwnerName(owner any) string {
	switch o := owner.(type) {
	case nil:
		return ""
	case string:
		return o
	case fmt.Stringer:
		return o.String()
	}
	if v := reflect.ValueOf(owner); v.Kind() == reflect.Pointer {
		return fmt.Sprintf("%T@%p", owner, owner)
	}
	return fmt.Sprint(owner)
}
