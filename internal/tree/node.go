package tree

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/joeycumines/behave/internal/blackboard"
	"github.com/joeycumines/behave/internal/clock"
)

var (
	// ErrInvalidTransition is returned when a control operation is attempted
	// from a state that forbids it, e.g. starting an active node.
	ErrInvalidTransition = errors.New("behave: invalid transition")
	// ErrNotAttached is returned when starting a node that is not part of a Root.
	ErrNotAttached = errors.New("behave: node is not attached to a root")
	// ErrClosed is returned when starting a Root that has been closed.
	ErrClosed = errors.New("behave: root is closed")
	// ErrConstructionInvariantViolated marks a malformed tree definition.
	ErrConstructionInvariantViolated = errors.New("behave: construction invariant violated")
)

// ConstructionError describes a malformed tree. Constructors panic with it,
// Build and NewRoot return it.
type ConstructionError struct {
	Node   string
	Reason string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConstructionInvariantViolated, e.Node, e.Reason)
}

func (e *ConstructionError) Unwrap() error { return ErrConstructionInvariantViolated }

// State is the lifecycle state of a node.
type State int

const (
	StateInactive State = iota
	StateActive
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "INACTIVE"
	case StateActive:
		return "ACTIVE"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Kind discriminates the closed set of node variants.
type Kind int

const (
	KindComposite Kind = iota
	KindDecorator
	KindTask
	KindRoot
)

func (k Kind) String() string {
	switch k {
	case KindComposite:
		return "composite"
	case KindDecorator:
		return "decorator"
	case KindTask:
		return "task"
	case KindRoot:
		return "root"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Node is implemented by every element of a tree. The set of implementations
// is closed: all of them live in this package.
type Node interface {
	// ID is the pre-order position of the node within its Root, assigned
	// when the Root is built. It is -1 until then.
	ID() int
	// Name is the variant name, e.g. "Selector".
	Name() string
	Label() string
	SetLabel(label string)
	Kind() Kind
	CurrentState() State
	// LastResult is the result of the most recent stop; false after a cancel.
	LastResult() bool
	IsActive() bool
	Parent() Container
	Root() *Root
	// Children returns the children of a container, nil for tasks.
	Children() []Node
	// Start activates the node. It fails with ErrInvalidTransition while the
	// node is active and with ErrNotAttached before the tree is built.
	Start() error
	// Cancel synchronously stops the node and every active descendant,
	// leaving the subtree inactive. It is a no-op unless the node is active.
	Cancel()

	base() *node
}

// Container is a node that owns children.
type Container interface {
	Node
	childStopped(child Node, result bool)
}

// hooks are the per-variant parts of the node state machine.
type hooks interface {
	Node
	onStart()
	onCancel()
	beforeStop()
	parentCompositeStopped(c Composite)
}

type node struct {
	impl       hooks
	name       string
	label      string
	kind       Kind
	id         int
	state      State
	result     bool
	cancelling bool
	parent     Container
	root       *Root
	timers     map[clock.Handle]struct{}
	updating   bool
}

func (n *node) init(impl hooks, kind Kind, name string) {
	n.impl = impl
	n.kind = kind
	n.name = name
	n.id = -1
}

func (n *node) base() *node                      { return n }
func (n *node) ID() int                          { return n.id }
func (n *node) Name() string                     { return n.name }
func (n *node) Label() string                    { return n.label }
func (n *node) SetLabel(label string)            { n.label = label }
func (n *node) Kind() Kind                       { return n.kind }
func (n *node) CurrentState() State              { return n.state }
func (n *node) LastResult() bool                 { return n.result }
func (n *node) IsActive() bool                   { return n.state == StateActive }
func (n *node) Parent() Container                { return n.parent }
func (n *node) Root() *Root                      { return n.root }
func (n *node) Children() []Node                 { return nil }
func (n *node) onCancel()                        {}
func (n *node) beforeStop()                      {}
func (n *node) parentCompositeStopped(Composite) {}

func (n *node) String() string {
	if n.label != "" {
		return n.name + "(" + n.label + ")"
	}
	return n.name
}

// Start is legal from every state except StateActive, so a node that
// succeeded, failed or was cancelled can run again.
func (n *node) Start() error {
	if n.state == StateActive {
		return fmt.Errorf("%w: start %s while %s", ErrInvalidTransition, n, n.state)
	}
	if n.root == nil {
		return fmt.Errorf("%w: %s", ErrNotAttached, n)
	}
	n.state = StateActive
	n.cancelling = false
	n.root.logger.Debug("[BT] start", "node", n.String(), "id", n.id)
	n.impl.onStart()
	return nil
}

// Cancel stops the node and its active descendants.
func (n *node) Cancel() {
	if n.state != StateActive || n.cancelling {
		return
	}
	n.cancelling = true
	n.root.logger.Debug("[BT] cancel", "node", n.String(), "id", n.id)
	n.clearTimers()
	n.stopUpdates()
	n.impl.onCancel()
	if n.state == StateActive {
		n.stopped(false)
	}
}

// stopped completes the node. A node stopped while cancelling ends inactive
// with a false result, otherwise it ends succeeded or failed. The parent is
// notified in both cases. Calls on an inactive node are ignored.
func (n *node) stopped(result bool) {
	if n.state != StateActive {
		return
	}
	n.impl.beforeStop()
	switch {
	case n.cancelling:
		n.state, n.result = StateInactive, false
	case result:
		n.state, n.result = StateSucceeded, true
	default:
		n.state, n.result = StateFailed, false
	}
	n.cancelling = false
	n.root.logger.Debug("[BT] stop", "node", n.String(), "id", n.id, "state", n.state.String())
	if n.parent != nil {
		n.parent.childStopped(n.impl, n.result)
	}
}

func (n *node) bb() *blackboard.Blackboard { return n.root.bb }

func (n *node) clk() *clock.Clock { return n.root.clock }

// after schedules a timer owned by the node. Owned timers are cancelled when
// the node is cancelled and when the Root is closed.
func (n *node) after(delay int, recurring bool, fn func()) clock.Handle {
	if n.timers == nil {
		n.timers = make(map[clock.Handle]struct{})
	}
	var h clock.Handle
	h = n.clk().ScheduleTimer(delay, recurring, func() {
		if !recurring {
			delete(n.timers, h)
		}
		fn()
	})
	n.timers[h] = struct{}{}
	return h
}

func (n *node) stopTimer(h clock.Handle) {
	if _, ok := n.timers[h]; !ok {
		return
	}
	delete(n.timers, h)
	n.clk().CancelTimer(h)
}

func (n *node) clearTimers() {
	for _, h := range slices.Sorted(maps.Keys(n.timers)) {
		n.stopTimer(h)
	}
}

// onUpdate subscribes fn to every clock tick, keyed by the node.
func (n *node) onUpdate(fn func()) {
	n.updating = true
	n.clk().Subscribe(n.impl, fn)
}

func (n *node) stopUpdates() {
	if !n.updating {
		return
	}
	n.updating = false
	n.clk().Unsubscribe(n.impl)
}

// startChild starts a child on behalf of a container. The only possible error
// is a programming error in this package, so it is logged rather than returned.
func (n *node) startChild(child Node) {
	if err := child.Start(); err != nil {
		n.root.logger.Error("[BT] failed to start child", "node", n.String(), "child", child.Name(), "error", err)
	}
}

// attach wires child to parent, panicking if the child is unusable.
func attach(parent Container, child Node) {
	if child == nil {
		panic(&ConstructionError{Node: parent.Name(), Reason: "nil child"})
	}
	b := child.base()
	if b.parent != nil {
		panic(&ConstructionError{Node: parent.Name(), Reason: fmt.Sprintf("child %s already has a parent", b)})
	}
	b.parent = parent
}
