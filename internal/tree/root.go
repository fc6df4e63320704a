package tree

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/joeycumines/behave/internal/blackboard"
	"github.com/joeycumines/behave/internal/clock"
)

// Root drives one tree. It owns the tree's Blackboard and Clock, which are
// never shared with another Root, and the single top level child.
//
// A Root and everything reachable from it must be driven by one caller at a
// time: Start, Cancel, Tick, Close, Blackboard writes and introspection all
// run on the caller's goroutine without locking.
type Root struct {
	node
	child  Node
	bb     *blackboard.Blackboard
	clock  *clock.Clock
	logger *slog.Logger
	rand   *rand.Rand
	repeat bool
	closed bool
	nodes  []Node
	uuid   uuid.UUID
}

// Option configures a Root.
type Option func(*Root)

// WithBlackboard sets the blackboard, a new one by default.
func WithBlackboard(bb *blackboard.Blackboard) Option {
	return func(r *Root) { r.bb = bb }
}

// WithClock sets the clock, a new one by default.
func WithClock(c *clock.Clock) Option {
	return func(r *Root) { r.clock = c }
}

// WithLogger sets the logger, slog.Default() by default.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Root) { r.logger = logger }
}

// WithRepeat controls whether the child is started again, one tick after it
// stops. Enabled by default.
func WithRepeat(repeat bool) Option {
	return func(r *Root) { r.repeat = repeat }
}

// WithRand sets the random source used by random composites and decorators.
func WithRand(rnd *rand.Rand) Option {
	return func(r *Root) { r.rand = rnd }
}

// WithSeed seeds a deterministic random source.
func WithSeed(seed uint64) Option {
	return func(r *Root) { r.rand = rand.New(rand.NewPCG(seed, seed)) }
}

// NewRoot wires child into a new tree. It fails with a *ConstructionError if
// child is nil or already has a parent.
func NewRoot(child Node, opts ...Option) (*Root, error) {
	r := &Root{repeat: true, uuid: uuid.New()}
	r.init(r, KindRoot, "Root")
	if child == nil {
		return nil, &ConstructionError{Node: r.name, Reason: "nil child"}
	}
	if child.Parent() != nil || child.Root() != nil {
		return nil, &ConstructionError{Node: r.name, Reason: fmt.Sprintf("child %s already has a parent", child.Name())}
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.bb == nil {
		r.bb = blackboard.New()
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("tree", r.uuid.String())
	if r.rand == nil {
		r.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	r.child = child
	child.base().parent = r
	r.wire(r)
	r.logger.Debug("[BT] tree built", "nodes", len(r.nodes))
	return r, nil
}

// Build calls fn and wires the returned node into a new Root, converting the
// construction panics of composites and decorators into errors.
func Build(fn func() Node, opts ...Option) (root *Root, err error) {
	defer func() {
		if r := recover(); r != nil {
			ce, ok := r.(*ConstructionError)
			if !ok {
				panic(r)
			}
			root, err = nil, ce
		}
	}()
	return NewRoot(fn(), opts...)
}

// Labeled sets the label of n and returns it.
func Labeled[N Node](n N, label string) N {
	n.SetLabel(label)
	return n
}

// wire assigns the root and the pre-order id of every node.
func (r *Root) wire(n Node) {
	b := n.base()
	b.root = r
	b.id = len(r.nodes)
	r.nodes = append(r.nodes, n)
	switch n.Kind() {
	case KindRoot, KindComposite, KindDecorator:
		for _, c := range n.Children() {
			r.wire(c)
		}
	case KindTask:
	default:
		panic(fmt.Sprintf("behave: unknown node kind %v", n.Kind()))
	}
}

func (r *Root) Children() []Node { return []Node{r.child} }

// Child returns the top level node.
func (r *Root) Child() Node { return r.child }

// Blackboard returns the tree's blackboard.
func (r *Root) Blackboard() *blackboard.Blackboard { return r.bb }

// Clock returns the tree's clock.
func (r *Root) Clock() *clock.Clock { return r.clock }

// Logger returns the tree's logger.
func (r *Root) Logger() *slog.Logger { return r.logger }

// InstanceID identifies this Root in logs and snapshots.
func (r *Root) InstanceID() uuid.UUID { return r.uuid }

// Repeat reports whether the child restarts after stopping.
func (r *Root) Repeat() bool { return r.repeat }

// Closed reports whether Close has been called.
func (r *Root) Closed() bool { return r.closed }

// Nodes returns every node of the tree, the Root first, in id order.
func (r *Root) Nodes() []Node { return append([]Node(nil), r.nodes...) }

// Node returns the node with the given id.
func (r *Root) Node(id int) (Node, bool) {
	if id < 0 || id >= len(r.nodes) {
		return nil, false
	}
	return r.nodes[id], true
}

// Start starts the tree. It fails with ErrClosed after Close and with
// ErrInvalidTransition while the tree is running.
func (r *Root) Start() error {
	if r.closed {
		return ErrClosed
	}
	return r.node.Start()
}

// Tick advances the tree's clock by one tick. It does nothing after Close.
func (r *Root) Tick() {
	if r.closed {
		return
	}
	r.clock.Tick()
}

func (r *Root) onStart() { r.startChild(r.child) }

func (r *Root) onCancel() {
	if r.child.IsActive() {
		r.child.Cancel()
	}
}

func (r *Root) childStopped(_ Node, result bool) {
	if r.cancelling || !r.repeat {
		r.stopped(result)
		return
	}
	r.after(1, false, func() {
		if r.IsActive() && !r.child.IsActive() {
			r.startChild(r.child)
		}
	})
}

// Close cancels the tree and releases every subscription and timer held by
// its nodes. A closed Root cannot be started again.
func (r *Root) Close() {
	if r.closed {
		return
	}
	r.Cancel()
	for _, n := range r.nodes {
		b := n.base()
		b.clearTimers()
		b.stopUpdates()
		if n.Kind() == KindDecorator {
			if o, ok := n.(ObservingDecorator); ok {
				o.unobserve()
			}
		}
	}
	r.closed = true
	r.logger.Debug("[BT] tree closed", "timers", r.clock.NumTimers(), "observers", r.bb.NumObservers())
}
