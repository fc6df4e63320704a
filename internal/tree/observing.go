package tree

import (
	"fmt"
	"slices"

	"github.com/joeycumines/behave/internal/blackboard"
	"github.com/joeycumines/behave/internal/clock"
)

// Aborts is the abort policy of an observing decorator.
type Aborts int

const (
	// AbortsNone never aborts.
	AbortsNone Aborts = 0
	// AbortsSelf cancels the guarded branch when the condition stops holding.
	AbortsSelf Aborts = 1 << 0
	// AbortsLowerPriority cancels an active lower priority branch of the
	// owning composite when the condition starts holding, restarting
	// evaluation at the guarded branch.
	AbortsLowerPriority Aborts = 1 << 1
	// AbortsBoth combines AbortsSelf and AbortsLowerPriority.
	AbortsBoth = AbortsSelf | AbortsLowerPriority
)

func (a Aborts) Self() bool          { return a&AbortsSelf != 0 }
func (a Aborts) LowerPriority() bool { return a&AbortsLowerPriority != 0 }

func (a Aborts) String() string {
	switch a {
	case AbortsNone:
		return "none"
	case AbortsSelf:
		return "self"
	case AbortsLowerPriority:
		return "lower-priority"
	case AbortsBoth:
		return "both"
	default:
		return fmt.Sprintf("Aborts(%d)", int(a))
	}
}

// Trigger decides which changes of the watched data are acted upon.
type Trigger int

const (
	// TriggerOnResultChange acts only when the condition's truth value flips.
	TriggerOnResultChange Trigger = iota
	// TriggerOnValueChange acts on every change of a watched key. An active
	// branch whose condition still holds is restarted.
	TriggerOnValueChange
)

func (t Trigger) String() string {
	switch t {
	case TriggerOnResultChange:
		return "result-change"
	case TriggerOnValueChange:
		return "value-change"
	default:
		return fmt.Sprintf("Trigger(%d)", int(t))
	}
}

// ObservingDecorator is a decorator that watches data and can abort branches
// of its owning composite when the data changes.
type ObservingDecorator interface {
	Decorator
	// Aborts is the requested policy.
	Aborts() Aborts
	// EffectiveAborts is the policy left after UpdateAbortsType.
	EffectiveAborts() Aborts
	Trigger() Trigger
	// Keys lists the watched blackboard keys, nil for polled conditions.
	Keys() []string
	// Observing reports whether the decorator currently holds a subscription.
	Observing() bool
	// UpdateAbortsType computes the effective policy for a decorator found on
	// branch of owner. Composites call it once, after wiring their children.
	UpdateAbortsType(owner Composite, branch Node, last bool)

	unobserve()
}

// ObservingOption configures an observing decorator.
type ObservingOption func(*observing)

// WithTrigger sets the Trigger, TriggerOnResultChange by default.
func WithTrigger(t Trigger) ObservingOption {
	return func(o *observing) { o.trigger = t }
}

type observingHooks interface {
	decoratorHooks
	ObservingDecorator
	condition() bool
	observe()
	stopObserving()
}

type observing struct {
	decorator
	oh        observingHooks
	aborts    Aborts
	effective Aborts
	trigger   Trigger
	owner     Composite
	branch    Node
	observed  bool
	met       bool
	restart   bool
}

func (o *observing) initObserving(impl observingHooks, name string, aborts Aborts, child Node, opts []ObservingOption) {
	o.initDecorator(impl, name, child)
	o.oh = impl
	o.aborts = aborts
	o.effective = aborts & AbortsSelf
	for _, opt := range opts {
		opt(o)
	}
}

func (o *observing) Aborts() Aborts          { return o.aborts }
func (o *observing) EffectiveAborts() Aborts { return o.effective }
func (o *observing) Trigger() Trigger        { return o.trigger }
func (o *observing) Observing() bool         { return o.observed }
func (o *observing) Keys() []string          { return nil }

func (o *observing) UpdateAbortsType(owner Composite, branch Node, last bool) {
	eff := o.aborts
	if !owner.CanAbortSelf() {
		eff &^= AbortsSelf
	}
	if !owner.CanAbortLowerPriority() || last {
		eff &^= AbortsLowerPriority
	}
	o.owner, o.branch, o.effective = owner, branch, eff
}

func (o *observing) onStart() {
	if o.effective != AbortsNone && !o.observed {
		o.observed = true
		o.oh.observe()
	}
	o.met = o.oh.condition()
	if !o.met {
		o.stopped(false)
		return
	}
	o.startChild(o.child)
}

func (o *observing) beforeStop() {
	if !o.effective.LowerPriority() {
		o.unobserve()
	}
}

func (o *observing) parentCompositeStopped(c Composite) {
	o.unobserve()
	o.decorator.parentCompositeStopped(c)
}

func (o *observing) onChildStopped(result bool) {
	if o.restarting() {
		return
	}
	o.stopped(result)
}

func (o *observing) unobserve() {
	if !o.observed {
		return
	}
	o.observed = false
	o.oh.stopObserving()
}

// restarting starts the child again if its stop was caused by a restart
// without an owning composite.
func (o *observing) restarting() bool {
	if !o.restart {
		return false
	}
	o.restart = false
	o.startChild(o.child)
	return true
}

// evaluate re-checks the condition after a change of the watched data.
// valueChanged is true when a watched blackboard key changed, false for polls.
func (o *observing) evaluate(valueChanged bool) {
	if !o.observed || o.root == nil {
		return
	}
	met := o.oh.condition()
	flipped := met != o.met
	o.met = met
	if !flipped && !(valueChanged && o.trigger == TriggerOnValueChange) {
		return
	}
	active := o.IsActive()
	switch {
	case active && !met && o.effective.Self():
		o.root.logger.Debug("[BT] condition no longer met", "node", o.String(), "id", o.id)
		if o.owner != nil {
			o.owner.AbortTreeNode(o.branch)
		} else {
			o.child.Cancel()
		}
	case active && met && o.effective.Self():
		// value changed under TriggerOnValueChange
		o.root.logger.Debug("[BT] condition value changed, restarting", "node", o.String(), "id", o.id)
		if o.owner != nil {
			o.owner.restartTreeNode(o.branch)
		} else if o.child.IsActive() {
			o.restart = true
			o.child.Cancel()
		}
	case !active && met && o.effective.LowerPriority():
		o.root.logger.Debug("[BT] condition met, aborting lower priority", "node", o.String(), "id", o.id)
		o.owner.AbortTreeNode(o.branch)
	}
}

// BlackboardCondition guards its child with a comparison of one blackboard
// key against a fixed value.
type BlackboardCondition struct {
	observing
	key     string
	op      Operator
	value   any
	watcher *conditionWatcher
}

// conditionWatcher adapts an observing decorator to blackboard.Observer
// without exposing the callback on the decorator itself.
type conditionWatcher struct{ o *observing }

func (w *conditionWatcher) BlackboardChanged(blackboard.Notification) { w.o.evaluate(true) }

// NewBlackboardCondition creates a decorator guarding child with op applied
// to key and value.
func NewBlackboardCondition(key string, op Operator, value any, aborts Aborts, child Node, opts ...ObservingOption) *BlackboardCondition {
	d := &BlackboardCondition{key: key, op: op, value: value}
	d.watcher = &conditionWatcher{o: &d.observing}
	d.initObserving(d, "BlackboardCondition", aborts, child, opts)
	return d
}

func (d *BlackboardCondition) Keys() []string     { return []string{d.key} }
func (d *BlackboardCondition) Operator() Operator { return d.op }
func (d *BlackboardCondition) Value() any         { return d.value }
func (d *BlackboardCondition) condition() bool    { return d.op.Evaluate(d.bb(), d.key, d.value) }
func (d *BlackboardCondition) observe()           { d.bb().Subscribe(d.key, d.watcher) }
func (d *BlackboardCondition) stopObserving()     { d.bb().Unsubscribe(d.key, d.watcher) }

// BlackboardQuery guards its child with an arbitrary predicate over the
// blackboard, re-evaluated whenever one of keys changes.
type BlackboardQuery struct {
	observing
	keys    []string
	query   func(bb *blackboard.Blackboard) bool
	watcher *conditionWatcher
}

// NewBlackboardQuery creates a decorator guarding child with query,
// re-evaluated whenever one of keys changes.
func NewBlackboardQuery(keys []string, query func(bb *blackboard.Blackboard) bool, aborts Aborts, child Node, opts ...ObservingOption) *BlackboardQuery {
	d := &BlackboardQuery{keys: slices.Clone(keys), query: query}
	d.watcher = &conditionWatcher{o: &d.observing}
	d.initObserving(d, "BlackboardQuery", aborts, child, opts)
	return d
}

func (d *BlackboardQuery) Keys() []string { return slices.Clone(d.keys) }

func (d *BlackboardQuery) condition() bool {
	return d.guard(func() bool { return d.query(d.bb()) })
}

func (d *BlackboardQuery) observe() {
	for _, k := range d.keys {
		d.bb().Subscribe(k, d.watcher)
	}
}

func (d *BlackboardQuery) stopObserving() {
	for _, k := range d.keys {
		d.bb().Unsubscribe(k, d.watcher)
	}
}

// Condition guards its child with a predicate polled every interval ticks
// while observing.
type Condition struct {
	observing
	interval int
	fn       func(bb *blackboard.Blackboard) bool
	poll     clock.Handle
}

// NewCondition creates a decorator guarding child with fn, polled every
// interval ticks.
func NewCondition(interval int, fn func(bb *blackboard.Blackboard) bool, aborts Aborts, child Node, opts ...ObservingOption) *Condition {
	d := &Condition{interval: interval, fn: fn}
	d.initObserving(d, "Condition", aborts, child, opts)
	return d
}

func (d *Condition) condition() bool {
	return d.guard(func() bool { return d.fn(d.bb()) })
}

// the poll timer outlives activity for lower priority aborts, so it is not
// an owned timer
func (d *Condition) observe() {
	d.poll = d.clk().ScheduleTimer(d.interval, true, func() { d.evaluate(false) })
}

func (d *Condition) stopObserving() {
	d.clk().CancelTimer(d.poll)
	d.poll = 0
}

// guard evaluates a user predicate, treating a panic as false.
func (o *observing) guard(fn func() bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.root.logger.Error("[BT] condition panicked", "node", o.String(), "id", o.id, "panic", r)
			ok = false
		}
	}()
	return fn()
}
