package tree

import (
	"errors"
	"fmt"
	"math"

	"github.com/joeycumines/behave/internal/blackboard"
)

// Result is the outcome reported by a task.
type Result int

const (
	// ResultNone is reported before the task first runs.
	ResultNone Result = iota
	ResultSuccess
	ResultFailed
	// ResultBlocked means the task waits for an external event.
	ResultBlocked
	// ResultProgress means the task is making progress over several ticks.
	ResultProgress
)

func (r Result) String() string {
	switch r {
	case ResultNone:
		return "NONE"
	case ResultSuccess:
		return "SUCCESS"
	case ResultFailed:
		return "FAILED"
	case ResultBlocked:
		return "BLOCKED"
	case ResultProgress:
		return "PROGRESS"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Request tells a multi-frame function why it is being called.
type Request int

const (
	RequestStart Request = iota
	RequestUpdate
	RequestCancel
)

func (r Request) String() string {
	switch r {
	case RequestStart:
		return "start"
	case RequestUpdate:
		return "update"
	case RequestCancel:
		return "cancel"
	default:
		return fmt.Sprintf("Request(%d)", int(r))
	}
}

// errTaskPanicked is wrapped around recovered task panics.
var errTaskPanicked = errors.New("task panicked")

// errInvalidWait is returned for a wait length that is not a usable number of
// ticks.
var errInvalidWait = errors.New("invalid wait ticks")

// Task is a leaf node performing work. Work either completes inside Start or
// suspends as BLOCKED or PROGRESS pending a clock callback.
type Task struct {
	node
	outcome Result
	err     error
	run     func(t *Task)
	cancel  func(t *Task)
}

func newTask(name string, run func(t *Task)) *Task {
	t := &Task{run: run}
	t.init(t, KindTask, name)
	return t
}

// TaskResult returns the most recent result reported by the task.
func (t *Task) TaskResult() Result { return t.outcome }

// Err returns the error that failed the most recent run, if any.
func (t *Task) Err() error { return t.err }

func (t *Task) onStart() {
	t.err = nil
	t.outcome = ResultNone
	t.run(t)
}

func (t *Task) onCancel() {
	t.outcome = ResultFailed
	if t.cancel != nil {
		t.cancel(t)
	}
}

// complete stops the task with result. Calls after a cancel are ignored.
func (t *Task) complete(result bool) {
	if !t.IsActive() {
		return
	}
	if result {
		t.outcome = ResultSuccess
	} else {
		t.outcome = ResultFailed
	}
	t.stopped(result)
}

func (t *Task) fail(err error) {
	if !t.IsActive() {
		return
	}
	t.err = err
	t.root.logger.Error("[BT] task failed", "node", t.String(), "id", t.id, "error", err)
	t.complete(false)
}

// call runs fn, converting a panic into an error.
func (t *Task) call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errTaskPanicked, r)
		}
	}()
	return fn()
}

// NewAction creates a task that calls fn and succeeds.
func NewAction(fn func(bb *blackboard.Blackboard)) *Task {
	return newTask("Action", func(t *Task) {
		if err := t.call(func() error { fn(t.bb()); return nil }); err != nil {
			t.fail(err)
			return
		}
		t.complete(true)
	})
}

// NewCheck creates a task that succeeds if fn returns true.
func NewCheck(fn func(bb *blackboard.Blackboard) bool) *Task {
	return newTask("Check", func(t *Task) {
		var ok bool
		if err := t.call(func() error { ok = fn(t.bb()); return nil }); err != nil {
			t.fail(err)
			return
		}
		t.complete(ok)
	})
}

// NewRun creates a task that succeeds if fn returns nil.
func NewRun(fn func(bb *blackboard.Blackboard) error) *Task {
	return newTask("Run", func(t *Task) {
		if err := t.call(func() error { return fn(t.bb()) }); err != nil {
			t.fail(err)
			return
		}
		t.complete(true)
	})
}

// MultiFrameFunc is called with RequestStart, then with RequestUpdate once
// per tick while it reports ResultBlocked or ResultProgress, and with
// RequestCancel if the task is cancelled meanwhile. The result of a cancel
// request is ignored.
type MultiFrameFunc func(bb *blackboard.Blackboard, req Request) Result

// NewMultiFrame creates a task driven by fn across several ticks.
func NewMultiFrame(fn MultiFrameFunc) *Task {
	t := newTask("MultiFrame", nil)
	var step func(req Request)
	step = func(req Request) {
		var r Result
		if err := t.call(func() error { r = fn(t.bb(), req); return nil }); err != nil {
			t.stopUpdates()
			t.fail(err)
			return
		}
		if !t.IsActive() {
			return
		}
		switch r {
		case ResultSuccess, ResultFailed:
			t.stopUpdates()
			t.complete(r == ResultSuccess)
		case ResultBlocked, ResultProgress:
			t.outcome = r
			if !t.updating {
				t.onUpdate(func() { step(RequestUpdate) })
			}
		default:
			t.stopUpdates()
			t.fail(fmt.Errorf("invalid result %s", r))
		}
	}
	t.run = func(*Task) { step(RequestStart) }
	t.cancel = func(t *Task) {
		if err := t.call(func() error { fn(t.bb(), RequestCancel); return nil }); err != nil {
			t.root.logger.Error("[BT] task cancel failed", "node", t.String(), "id", t.id, "error", err)
		}
	}
	return t
}

// NewWait creates a task that succeeds after ticks ticks.
func NewWait(ticks int) *Task {
	return NewWaitFunc(func(*blackboard.Blackboard) int { return ticks })
}

// NewWaitFunc creates a task that succeeds after the number of ticks
// returned by fn when the task starts.
func NewWaitFunc(fn func(bb *blackboard.Blackboard) int) *Task {
	t := newTask("Wait", nil)
	t.run = func(t *Task) {
		var ticks int
		if err := t.call(func() error { ticks = fn(t.bb()); return nil }); err != nil {
			t.fail(err)
			return
		}
		if !t.IsActive() {
			return
		}
		t.outcome = ResultBlocked
		t.after(ticks, false, func() { t.complete(true) })
	}
	return t
}

// NewWaitBlackboardKey creates a task that succeeds after the number of
// ticks stored under key. It fails if key does not hold a number.
func NewWaitBlackboardKey(key string) *Task {
	t := newTask("WaitBlackboardKey", nil)
	t.run = func(t *Task) {
		n, err := t.bb().Number(key)
		if err != nil {
			t.fail(err)
			return
		}
		if math.IsNaN(n) || math.Abs(n) > math.MaxInt32 {
			t.fail(fmt.Errorf("%w: %q holds %v", errInvalidWait, key, n))
			return
		}
		t.outcome = ResultBlocked
		t.after(int(n), false, func() { t.complete(true) })
	}
	return t
}

// NewWaitUntilStopped creates a task that stays blocked until it is
// cancelled.
func NewWaitUntilStopped() *Task {
	t := newTask("WaitUntilStopped", nil)
	t.run = func(t *Task) { t.outcome = ResultBlocked }
	return t
}
