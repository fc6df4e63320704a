// Package clock implements the scheduling primitive shared by every node of
// one behavior tree: delayed callbacks (timers) and per-tick update
// subscriptions.
//
// Time is the clock's own monotonic tick count, never wall time, so a tree is
// fully deterministic under any host frame rate. A Clock is not safe for
// concurrent use.
package clock

import (
	"container/heap"
	"slices"
)

// Handle identifies a scheduled timer. Handles are never reused, the zero
// Handle is never issued.
type Handle uint64

// DefaultPoolSize bounds the number of idle timer records kept for reuse.
const DefaultPoolSize = 64

type timer struct {
	handle    Handle
	deadline  uint64
	delay     uint64
	seq       uint64
	recurring bool
	cancelled bool
	callback  func()
	index     int
}

type updater struct {
	owner    any
	callback func()
	removed  bool
}

// Clock is a tick-driven scheduler. The zero value is not usable, use New.
type Clock struct {
	now      uint64
	nextID   Handle
	seq      uint64
	queue    timerQueue
	active   map[Handle]*timer
	firing   *timer
	pool     []*timer
	poolSize int
	updaters []*updater
	owners   map[any]*updater
}

// Option configures a Clock.
type Option func(*Clock)

// WithPoolSize sets the maximum number of idle timer records retained.
func WithPoolSize(n int) Option {
	return func(c *Clock) {
		if n >= 0 {
			c.poolSize = n
		}
	}
}

// New creates a Clock at tick zero.
func New(opts ...Option) *Clock {
	c := &Clock{
		active:   make(map[Handle]*timer),
		owners:   make(map[any]*updater),
		poolSize: DefaultPoolSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the number of completed ticks.
func (c *Clock) Now() uint64 { return c.now }

// ScheduleTimer arranges for callback to run once delay ticks have elapsed.
// A delay below one is treated as one, so a timer scheduled from inside a
// callback never fires during the tick that scheduled it. Recurring timers
// re-arm with the same delay after each firing.
func (c *Clock) ScheduleTimer(delay int, recurring bool, callback func()) Handle {
	if delay < 1 {
		delay = 1
	}
	c.nextID++
	t := c.acquire()
	t.handle = c.nextID
	t.delay = uint64(delay)
	t.recurring = recurring
	t.callback = callback
	c.arm(t)
	return t.handle
}

// CancelTimer removes a pending timer. Unknown, fired and already cancelled
// handles are ignored. Cancelling a recurring timer from inside its own
// callback prevents it from re-arming.
func (c *Clock) CancelTimer(h Handle) {
	if t, ok := c.active[h]; ok {
		heap.Remove(&c.queue, t.index)
		delete(c.active, h)
		c.release(t)
		return
	}
	if c.firing != nil && c.firing.handle == h {
		c.firing.cancelled = true
	}
}

// HasTimer reports whether h is pending.
func (c *Clock) HasTimer(h Handle) bool {
	_, ok := c.active[h]
	return ok
}

// Subscribe registers callback to run once per Tick, after due timers.
// Owner must be comparable and identifies the subscription; subscribing an
// existing owner replaces its callback but keeps its position.
func (c *Clock) Subscribe(owner any, callback func()) {
	if u, ok := c.owners[owner]; ok {
		u.callback = callback
		return
	}
	u := &updater{owner: owner, callback: callback}
	c.owners[owner] = u
	c.updaters = append(c.updaters, u)
}

// Unsubscribe removes the update subscription of owner, if any.
func (c *Clock) Unsubscribe(owner any) {
	u, ok := c.owners[owner]
	if !ok {
		return
	}
	u.removed = true
	delete(c.owners, owner)
	c.updaters = slices.DeleteFunc(slices.Clone(c.updaters), func(x *updater) bool { return x == u })
}

// IsSubscribed reports whether owner has an update subscription.
func (c *Clock) IsSubscribed(owner any) bool {
	_, ok := c.owners[owner]
	return ok
}

// Tick advances the clock by one, fires every due timer in deadline then
// scheduling order, then runs update subscribers in subscription order.
// Callback panics are not recovered.
func (c *Clock) Tick() {
	c.now++
	for len(c.queue) > 0 && c.queue[0].deadline <= c.now {
		t := heap.Pop(&c.queue).(*timer)
		delete(c.active, t.handle)
		c.fire(t)
	}
	for _, u := range c.updaters {
		if !u.removed {
			u.callback()
		}
	}
}

// Advance calls Tick n times.
func (c *Clock) Advance(n int) {
	for range n {
		c.Tick()
	}
}

// NumTimers returns the number of pending timers.
func (c *Clock) NumTimers() int { return len(c.active) }

// NumUpdateObservers returns the number of update subscriptions.
func (c *Clock) NumUpdateObservers() int { return len(c.updaters) }

// DebugPoolSize returns the number of idle timer records available for reuse.
func (c *Clock) DebugPoolSize() int { return len(c.pool) }

func (c *Clock) fire(t *timer) {
	c.run(t)
	if t.recurring && !t.cancelled {
		c.arm(t)
		return
	}
	c.release(t)
}

func (c *Clock) run(t *timer) {
	prev := c.firing
	c.firing = t
	defer func() { c.firing = prev }()
	t.callback()
}

func (c *Clock) arm(t *timer) {
	c.seq++
	t.seq = c.seq
	t.deadline = c.now + t.delay
	c.active[t.handle] = t
	heap.Push(&c.queue, t)
}

func (c *Clock) acquire() *timer {
	if n := len(c.pool); n > 0 {
		t := c.pool[n-1]
		c.pool = c.pool[:n-1]
		return t
	}
	return new(timer)
}

func (c *Clock) release(t *timer) {
	*t = timer{index: -1}
	if len(c.pool) < c.poolSize {
		c.pool = append(c.pool, t)
	}
}

type timerQueue []*timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].deadline != q[j].deadline {
		return q[i].deadline < q[j].deadline
	}
	return q[i].seq < q[j].seq
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	t := x.(*timer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
