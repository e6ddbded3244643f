package queue

import (
	"cmp"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"
)

// Priority reorders the buffered tasks before the head is popped. It is
// either a Comparator or a SortKey.
type Priority interface {
	reorder(owner any, tasks []*Task) []*Task
}

// Comparator receives the dispatcher owner and the buffered tasks and
// returns them in execution order. It must return a permutation of tasks and
// must not call back into the dispatcher.
type Comparator func(owner any, tasks []*Task) []*Task

func (c Comparator) reorder(owner any, tasks []*Task) []*Task {
	return c(owner, tasks)
}

// SortKey orders tasks by their first argument. When that argument is a map
// or struct, Field names the value to compare; otherwise the argument itself
// is compared.
type SortKey struct {
	Field      string
	Descending bool
}

// ParseSortKey reads "field" (ascending) or "-field" (descending).
func ParseSortKey(s string) SortKey {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return SortKey{Field: s[1:], Descending: true}
	}
	return SortKey{Field: s}
}

func (k SortKey) String() string {
	if k.Descending {
		return "-" + k.Field
	}
	return k.Field
}

func (k SortKey) reorder(_ any, tasks []*Task) []*Task {
	slices.SortStableFunc(tasks, func(a, b *Task) int {
		c := compareValues(k.value(a), k.value(b))
		if k.Descending {
			return -c
		}
		return c
	})
	return tasks
}

func (k SortKey) value(t *Task) any {
	if len(t.Args) == 0 {
		return nil
	}
	arg := t.Args[0]
	if m, ok := arg.(map[string]any); ok {
		return m[k.Field]
	}
	v := reflect.ValueOf(arg)
	for v.Kind() == reflect.Pointer && !v.IsNil() {
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Struct:
		f := v.FieldByName(k.Field)
		if !f.IsValid() || !f.CanInterface() {
			return nil
		}
		return f.Interface()
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return arg
		}
		f := v.MapIndex(reflect.ValueOf(k.Field).Convert(v.Type().Key()))
		if !f.IsValid() {
			return nil
		}
		return f.Interface()
	}
	return arg
}

// compareValues orders nil first, then numbers, strings, times and bools by
// value. Mixed or unknown kinds fall back to their printed form.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if na, ok := number(a); ok {
		if nb, ok := number(b); ok {
			return cmp.Compare(na, nb)
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return cmp.Compare(sa, sb)
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			default:
				return 1
			}
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	// Payloads decoded with UseNumber carry numbers as json.Number.
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
