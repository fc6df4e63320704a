// Package blackboard provides the shared key/value store of a behavior tree.
//
// Writes that change a value notify the observers registered for that key,
// synchronously and in registration order. A Blackboard is not safe for
// concurrent use: it belongs to exactly one tree, which is driven by a single
// caller.
package blackboard

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// ErrKeyNotFound is returned by reads of a key that has not been set.
var ErrKeyNotFound = errors.New("blackboard: key not found")

// Op describes the kind of change delivered to an observer.
type Op int

const (
	OpAdd Op = iota
	OpChange
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpChange:
		return "change"
	case OpRemove:
		return "remove"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Notification is delivered to observers of Key. Value is nil for OpRemove.
type Notification struct {
	Key   string
	Op    Op
	Value any
}

// Observer receives change notifications. Implementations must be
// comparable (typically a pointer), since Unsubscribe matches by equality.
type Observer interface {
	BlackboardChanged(n Notification)
}

// Stats counts observer registrations over the lifetime of a Blackboard.
// Only calls that changed the registry are counted.
type Stats struct {
	Subscribes    int
	Unsubscribes  int
	Notifications int
}

type subscription struct {
	observer Observer
	removed  bool
}

// Blackboard is a mapping from string keys to tagged values.
// The zero value is not usable, use New.
type Blackboard struct {
	data      map[string]Value
	observers map[string][]*subscription
	stats     Stats
	logger    *slog.Logger
}

// Option configures a Blackboard.
type Option func(*Blackboard)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Blackboard) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates an empty Blackboard.
func New(opts ...Option) *Blackboard {
	b := &Blackboard{
		data:      make(map[string]Value),
		observers: make(map[string][]*subscription),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Get returns the value stored for key, or an error wrapping ErrKeyNotFound.
func (b *Blackboard) Get(key string) (any, error) {
	v, ok := b.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return v.raw, nil
}

// Value returns the tagged value stored for key.
func (b *Blackboard) Value(key string) (Value, bool) {
	v, ok := b.data[key]
	return v, ok
}

// Number returns the numeric value of key.
func (b *Blackboard) Number(key string) (float64, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	n, ok := v.Number()
	if !ok {
		return 0, fmt.Errorf("blackboard: key %q holds a %s, not a number", key, v.kind)
	}
	return n, nil
}

// Bool returns the boolean value of key.
func (b *Blackboard) Bool(key string) (bool, error) {
	v, ok := b.data[key]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	x, ok := v.raw.(bool)
	if !ok {
		return false, fmt.Errorf("blackboard: key %q holds a %s, not a bool", key, v.kind)
	}
	return x, nil
}

// String returns the string value of key.
func (b *Blackboard) String(key string) (string, error) {
	v, ok := b.data[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	x, ok := v.raw.(string)
	if !ok {
		return "", fmt.Errorf("blackboard: key %q holds a %s, not a string", key, v.kind)
	}
	return x, nil
}

// Has reports whether key is set.
func (b *Blackboard) Has(key string) bool {
	_, ok := b.data[key]
	return ok
}

// Set stores value under key, always overwriting. Observers of key are
// notified only if the key was added or its value changed.
func (b *Blackboard) Set(key string, value any) {
	next := NewValue(value)
	prev, existed := b.data[key]
	b.data[key] = next
	if existed && prev.Equal(next) {
		return
	}
	op := OpAdd
	if existed {
		op = OpChange
	}
	b.notify(Notification{Key: key, Op: op, Value: value})
}

// Unset removes key, notifying its observers if it was set.
func (b *Blackboard) Unset(key string) {
	if _, ok := b.data[key]; !ok {
		return
	}
	delete(b.data, key)
	b.notify(Notification{Key: key, Op: OpRemove})
}

// Keys returns the set keys in sorted order.
func (b *Blackboard) Keys() []string {
	return slices.Sorted(maps.Keys(b.data))
}

// Len returns the number of set keys.
func (b *Blackboard) Len() int { return len(b.data) }

// Snapshot returns a shallow copy of the stored values.
func (b *Blackboard) Snapshot() map[string]any {
	out := make(map[string]any, len(b.data))
	for k, v := range b.data {
		out[k] = v.raw
	}
	return out
}

// Subscribe registers o for changes of key. Subscribing an already
// registered observer is a no-op.
func (b *Blackboard) Subscribe(key string, o Observer) {
	if o == nil || b.find(key, o) >= 0 {
		return
	}
	b.observers[key] = append(b.observers[key], &subscription{observer: o})
	b.stats.Subscribes++
	b.logger.Debug("[Blackboard] subscribe", "key", key, "observers", b.NumObservers())
}

// Unsubscribe removes o from key. Removing an unknown observer is a no-op.
func (b *Blackboard) Unsubscribe(key string, o Observer) {
	i := b.find(key, o)
	if i < 0 {
		return
	}
	subs := b.observers[key]
	subs[i].removed = true
	// copy, so an in-flight notification keeps iterating its own snapshot
	rest := slices.Concat(subs[:i], subs[i+1:])
	if len(rest) == 0 {
		delete(b.observers, key)
	} else {
		b.observers[key] = rest
	}
	b.stats.Unsubscribes++
	b.logger.Debug("[Blackboard] unsubscribe", "key", key, "observers", b.NumObservers())
}

// IsSubscribed reports whether o is registered for key.
func (b *Blackboard) IsSubscribed(key string, o Observer) bool {
	return b.find(key, o) >= 0
}

// Watch subscribes fn to key, returning a function that unsubscribes it.
// The returned function may be called any number of times.
func (b *Blackboard) Watch(key string, fn func(Notification)) (cancel func()) {
	w := &funcObserver{fn: fn}
	b.Subscribe(key, w)
	return func() { b.Unsubscribe(key, w) }
}

// NumObservers returns the number of registered observers across all keys.
func (b *Blackboard) NumObservers() int {
	var n int
	for _, subs := range b.observers {
		n += len(subs)
	}
	return n
}

// Stats returns the registration counters.
func (b *Blackboard) Stats() Stats { return b.stats }

func (b *Blackboard) find(key string, o Observer) int {
	for i, s := range b.observers[key] {
		if s.observer == o {
			return i
		}
	}
	return -1
}

func (b *Blackboard) notify(n Notification) {
	subs := b.observers[n.Key]
	for _, s := range subs {
		if s.removed {
			continue
		}
		b.stats.Notifications++
		s.observer.BlackboardChanged(n)
	}
}

type funcObserver struct {
	fn func(Notification)
}

func (f *funcObserver) BlackboardChanged(n Notification) { f.fn(n) }
