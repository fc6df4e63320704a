package tree

import (
	"errors"
	"fmt"

	"github.com/joeycumines/behave/internal/blackboard"
)

// errCallbackPanicked is wrapped around recovered decorator callback panics.
var errCallbackPanicked = errors.New("callback panicked")

// Decorator is a container with exactly one child.
type Decorator interface {
	Container
	Child() Node
}

type decoratorHooks interface {
	hooks
	Decorator
	onChildStopped(result bool)
}

type decorator struct {
	node
	child    Node
	dh       decoratorHooks
	aborting bool
}

func (d *decorator) initDecorator(impl decoratorHooks, name string, child Node) {
	d.init(impl, KindDecorator, name)
	d.dh = impl
	attach(impl, child)
	d.child = child
}

func (d *decorator) Child() Node      { return d.child }
func (d *decorator) Children() []Node { return []Node{d.child} }

func (d *decorator) onStart() { d.startChild(d.child) }

func (d *decorator) onCancel() {
	if d.child.IsActive() {
		d.child.Cancel()
	}
}

func (d *decorator) onChildStopped(result bool) { d.stopped(result) }

func (d *decorator) childStopped(_ Node, result bool) {
	if d.cancelling {
		d.stopped(false)
		return
	}
	if d.aborting {
		d.aborting = false
		d.stopped(false)
		return
	}
	d.dh.onChildStopped(result)
}

// call runs a user callback. A panic fails the decorator and reports false.
func (d *decorator) call(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.fail(fmt.Errorf("%w: %v", errCallbackPanicked, r))
			ok = false
		}
	}()
	fn()
	return true
}

// fail releases the decorator's timers and updates, cancels the child and
// stops with a false result.
func (d *decorator) fail(err error) {
	if !d.IsActive() {
		return
	}
	d.root.logger.Error("[BT] decorator failed", "node", d.String(), "id", d.id, "error", err)
	d.clearTimers()
	d.stopUpdates()
	if d.child.IsActive() {
		d.aborting = true
		d.child.Cancel()
		return
	}
	d.stopped(false)
}

// parentCompositeStopped is forwarded down the decorator chain, so observing
// decorators nested under plain ones still release their subscriptions.
func (d *decorator) parentCompositeStopped(c Composite) {
	d.child.base().impl.parentCompositeStopped(c)
}

// Inverter inverts the result of its child.
type Inverter struct{ decorator }

// NewInverter creates an Inverter.
func NewInverter(child Node) *Inverter {
	d := new(Inverter)
	d.initDecorator(d, "Inverter", child)
	return d
}

func (d *Inverter) onChildStopped(result bool) { d.stopped(!result) }

// Succeeder succeeds once its child stops, whatever the child's result.
type Succeeder struct{ decorator }

// NewSucceeder creates a Succeeder.
func NewSucceeder(child Node) *Succeeder {
	d := new(Succeeder)
	d.initDecorator(d, "Succeeder", child)
	return d
}

func (d *Succeeder) onChildStopped(bool) { d.stopped(true) }

// Failer fails once its child stops, whatever the child's result.
type Failer struct{ decorator }

// NewFailer creates a Failer.
func NewFailer(child Node) *Failer {
	d := new(Failer)
	d.initDecorator(d, "Failer", child)
	return d
}

func (d *Failer) onChildStopped(bool) { d.stopped(false) }

// Repeater runs its child until it has succeeded count times, failing as
// soon as the child fails. A negative count repeats forever. Restarts are
// deferred to the next tick.
type Repeater struct {
	decorator
	count int
	done  int
}

// NewRepeater creates a Repeater running child count times, or forever if
// count is negative.
func NewRepeater(count int, child Node) *Repeater {
	d := &Repeater{count: count}
	d.initDecorator(d, "Repeater", child)
	return d
}

func (d *Repeater) onStart() {
	d.done = 0
	if d.count == 0 {
		d.stopped(true)
		return
	}
	d.startChild(d.child)
}

func (d *Repeater) onChildStopped(result bool) {
	if !result {
		d.stopped(false)
		return
	}
	d.done++
	if d.count >= 0 && d.done >= d.count {
		d.stopped(true)
		return
	}
	d.after(1, false, func() {
		if d.IsActive() && !d.child.IsActive() {
			d.startChild(d.child)
		}
	})
}

// Cooldown lets its child run at most once per cooldown period.
//
// The period starts when the child starts, or when it stops if
// startAfterChild is set. A child failure ends the period early if
// resetOnFailure is set. Starting during the period fails immediately if
// failOnCooldown is set, otherwise the decorator waits for the period to end
// and then runs the child.
type Cooldown struct {
	decorator
	ticks           int
	startAfterChild bool
	resetOnFailure  bool
	failOnCooldown  bool
	ready           bool
}

// NewCooldown creates a Cooldown with a period of ticks. See Cooldown for the
// flags.
func NewCooldown(ticks int, startAfterChild, resetOnFailure, failOnCooldown bool, child Node) *Cooldown {
	d := &Cooldown{
		ticks:           ticks,
		startAfterChild: startAfterChild,
		resetOnFailure:  resetOnFailure,
		failOnCooldown:  failOnCooldown,
		ready:           true,
	}
	d.initDecorator(d, "Cooldown", child)
	return d
}

// Ready reports whether the cooldown period has elapsed.
func (d *Cooldown) Ready() bool { return d.ready }

func (d *Cooldown) onStart() {
	switch {
	case d.ready:
		d.ready = false
		if !d.startAfterChild {
			d.schedule()
		}
		d.startChild(d.child)
	case d.failOnCooldown:
		d.stopped(false)
	}
}

func (d *Cooldown) onCancel() {
	d.ready = true
	d.decorator.onCancel()
}

func (d *Cooldown) onChildStopped(result bool) {
	if d.resetOnFailure && !result {
		d.ready = true
		d.clearTimers()
	} else if d.startAfterChild {
		d.schedule()
	}
	d.stopped(result)
}

func (d *Cooldown) schedule() {
	d.clearTimers()
	d.after(d.ticks, false, d.elapsed)
}

func (d *Cooldown) elapsed() {
	if d.IsActive() && !d.child.IsActive() {
		// waiting out the period: run now and start the next one
		if !d.startAfterChild {
			d.schedule()
		}
		d.startChild(d.child)
		return
	}
	d.ready = true
}

// TimeMax fails if its child runs for more than limit ticks. The child is
// cancelled at the limit, unless waitForChild is set, in which case the
// decorator waits for it and then fails.
type TimeMax struct {
	decorator
	limit        int
	waitForChild bool
	reached      bool
}

// NewTimeMax creates a TimeMax limiting child to limit ticks.
func NewTimeMax(limit int, waitForChild bool, child Node) *TimeMax {
	d := &TimeMax{limit: limit, waitForChild: waitForChild}
	d.initDecorator(d, "TimeMax", child)
	return d
}

func (d *TimeMax) onStart() {
	d.reached = false
	d.after(d.limit, false, d.limitReached)
	d.startChild(d.child)
}

func (d *TimeMax) onChildStopped(result bool) {
	d.clearTimers()
	d.stopped(result && !d.reached)
}

func (d *TimeMax) limitReached() {
	d.reached = true
	if !d.waitForChild && d.child.IsActive() {
		// not a cancel of d itself: the child's stop reaches onChildStopped
		d.child.Cancel()
	}
}

// TimeMin keeps its child's result from propagating before limit ticks have
// elapsed. Failures propagate immediately unless waitOnFailure is set.
type TimeMin struct {
	decorator
	limit         int
	waitOnFailure bool
	reached       bool
	childDone     bool
	childResult   bool
}

// NewTimeMin creates a TimeMin holding the result of child until limit
// ticks have passed.
func NewTimeMin(limit int, waitOnFailure bool, child Node) *TimeMin {
	d := &TimeMin{limit: limit, waitOnFailure: waitOnFailure}
	d.initDecorator(d, "TimeMin", child)
	return d
}

func (d *TimeMin) onStart() {
	d.reached, d.childDone, d.childResult = false, false, false
	d.after(d.limit, false, d.limitReached)
	d.startChild(d.child)
}

func (d *TimeMin) onChildStopped(result bool) {
	d.childDone, d.childResult = true, result
	if d.reached || (!result && !d.waitOnFailure) {
		d.clearTimers()
		d.stopped(result)
	}
}

func (d *TimeMin) limitReached() {
	d.reached = true
	if d.childDone {
		d.stopped(d.childResult)
	}
}

// Random starts its child with the given probability, failing otherwise.
type Random struct {
	decorator
	probability float64
}

// NewRandom creates a Random that runs child with the given probability.
func NewRandom(probability float64, child Node) *Random {
	d := &Random{probability: probability}
	d.initDecorator(d, "Random", child)
	return d
}

func (d *Random) onStart() {
	if d.root.rand.Float64() < d.probability {
		d.startChild(d.child)
		return
	}
	d.stopped(false)
}

// Service calls fn while its child runs: once on start, then every interval
// ticks, or on every tick if interval is below one.
type Service struct {
	decorator
	interval int
	fn       func(bb *blackboard.Blackboard)
}

// NewService creates a Service calling fn every interval ticks.
func NewService(interval int, fn func(bb *blackboard.Blackboard), child Node) *Service {
	d := &Service{interval: interval, fn: fn}
	d.initDecorator(d, "Service", child)
	return d
}

func (d *Service) onStart() {
	call := func() { d.call(func() { d.fn(d.bb()) }) }
	if d.interval < 1 {
		d.onUpdate(call)
	} else {
		d.after(d.interval, true, call)
	}
	call()
	if d.IsActive() {
		d.startChild(d.child)
	}
}

func (d *Service) onChildStopped(result bool) {
	d.clearTimers()
	d.stopUpdates()
	d.stopped(result)
}

// WaitForCondition delays starting its child until condition holds,
// checking every interval ticks.
type WaitForCondition struct {
	decorator
	interval  int
	condition func(bb *blackboard.Blackboard) bool
}

// NewWaitForCondition creates a WaitForCondition polling every interval ticks.
func NewWaitForCondition(interval int, condition func(bb *blackboard.Blackboard) bool, child Node) *WaitForCondition {
	d := &WaitForCondition{interval: interval, condition: condition}
	d.initDecorator(d, "WaitForCondition", child)
	return d
}

func (d *WaitForCondition) onStart() {
	if d.holds() {
		d.startChild(d.child)
		return
	}
	if !d.IsActive() {
		return
	}
	d.after(d.interval, true, func() {
		if d.holds() {
			d.clearTimers()
			d.startChild(d.child)
		}
	})
}

func (d *WaitForCondition) holds() bool {
	var ok bool
	return d.call(func() { ok = d.condition(d.bb()) }) && ok
}

// Observer calls onStart before its child starts and onStop with the child's
// result after it stops. Either may be nil.
type Observer struct {
	decorator
	start func()
	stop  func(result bool)
}

// NewObserver creates an Observer.
func NewObserver(onStart func(), onStop func(result bool), child Node) *Observer {
	d := &Observer{start: onStart, stop: onStop}
	d.initDecorator(d, "Observer", child)
	return d
}

func (d *Observer) onStart() {
	if d.start != nil {
		d.call(d.start)
	}
	if d.IsActive() {
		d.startChild(d.child)
	}
}

func (d *Observer) onChildStopped(result bool) {
	if d.stop != nil && !d.call(func() { d.stop(result) }) {
		return
	}
	d.stopped(result)
}
