package tree

// Composite is a container evaluating several children in priority order,
// exactly one of them active at a time.
type Composite interface {
	Container
	// CanAbortSelf reports whether an observing decorator may cancel the
	// active branch it guards.
	CanAbortSelf() bool
	// CanAbortLowerPriority reports whether an observing decorator on a
	// higher priority branch may cancel the active branch and restart
	// evaluation at its own position.
	CanAbortLowerPriority() bool
	// AbortTreeNode handles an abort request raised on behalf of child, which
	// must be one of the composite's children.
	AbortTreeNode(child Node)
	// ActiveChild returns the active child, or nil.
	ActiveChild() Node

	restartTreeNode(child Node)
}

type compositeHooks interface {
	hooks
	Composite
}

type compositePolicy int

const (
	// selectPolicy succeeds on the first succeeding child.
	selectPolicy compositePolicy = iota
	// sequencePolicy fails on the first failing child.
	sequencePolicy
)

type composite struct {
	node
	children   []Node
	order      []int
	cursor     int
	pending    int
	policy     compositePolicy
	shuffle    bool
	abortLower bool
}

func (c *composite) initComposite(impl compositeHooks, name string, policy compositePolicy, shuffle bool, children []Node) {
	c.init(impl, KindComposite, name)
	c.policy = policy
	c.shuffle = shuffle
	c.abortLower = !shuffle
	c.cursor = -1
	c.pending = -1
	if len(children) == 0 {
		panic(&ConstructionError{Node: name, Reason: "a composite requires at least one child"})
	}
	c.children = children
	c.order = make([]int, len(children))
	for i, child := range children {
		attach(impl, child)
		c.order[i] = i
	}
	for i, child := range children {
		for _, o := range observingChain(child) {
			o.UpdateAbortsType(impl, child, i == len(children)-1)
		}
	}
}

func (c *composite) Children() []Node            { return c.children }
func (c *composite) CanAbortSelf() bool          { return true }
func (c *composite) CanAbortLowerPriority() bool { return c.abortLower }

func (c *composite) ActiveChild() Node {
	if c.cursor < 0 || c.cursor >= len(c.order) {
		return nil
	}
	if child := c.children[c.order[c.cursor]]; child.IsActive() {
		return child
	}
	return nil
}

func (c *composite) onStart() {
	if c.shuffle {
		c.root.rand.Shuffle(len(c.order), func(i, j int) {
			c.order[i], c.order[j] = c.order[j], c.order[i]
		})
	}
	c.cursor = -1
	c.pending = -1
	c.next()
}

func (c *composite) onCancel() {
	if child := c.ActiveChild(); child != nil {
		child.Cancel()
	}
}

func (c *composite) beforeStop() {
	for _, child := range c.children {
		child.base().impl.parentCompositeStopped(c.impl.(Composite))
	}
}

func (c *composite) next() {
	c.cursor++
	if c.cursor >= len(c.order) {
		c.stopped(c.policy == sequencePolicy)
		return
	}
	c.startChild(c.children[c.order[c.cursor]])
}

func (c *composite) childStopped(child Node, result bool) {
	if c.cancelling {
		c.stopped(false)
		return
	}
	if c.pending >= 0 {
		c.cursor = c.pending - 1
		c.pending = -1
		c.next()
		return
	}
	switch c.policy {
	case selectPolicy:
		if result {
			c.stopped(true)
			return
		}
	case sequencePolicy:
		if !result {
			c.stopped(false)
			return
		}
	}
	c.next()
}

func (c *composite) position(child Node) int {
	for pos, i := range c.order {
		if c.children[i] == child {
			return pos
		}
	}
	return -1
}

// AbortTreeNode cancels the active branch when child outranks it, restarting
// evaluation at child, or cancels child's own active branch, letting the
// composite continue with its normal policy.
func (c *composite) AbortTreeNode(child Node) {
	if c.state != StateActive {
		return
	}
	pos := c.position(child)
	active := c.ActiveChild()
	if pos < 0 || active == nil {
		return
	}
	switch {
	case c.cursor > pos && c.CanAbortLowerPriority():
		c.root.logger.Debug("[BT] abort lower priority", "node", c.String(), "from", c.cursor, "to", pos)
		c.pending = pos
		active.Cancel()
	case c.cursor == pos && c.CanAbortSelf():
		c.root.logger.Debug("[BT] abort self", "node", c.String(), "branch", pos)
		active.Cancel()
	}
}

// restartTreeNode cancels child's active branch and starts it again.
func (c *composite) restartTreeNode(child Node) {
	if c.state != StateActive {
		return
	}
	pos := c.position(child)
	active := c.ActiveChild()
	if pos < 0 || active == nil || c.cursor != pos || !c.CanAbortSelf() {
		return
	}
	c.pending = pos
	active.Cancel()
}

// Selector runs its children in order until one succeeds. It fails when
// every child has failed.
type Selector struct{ composite }

// NewSelector creates a Selector. It panics with a *ConstructionError when
// given no children, a nil child, or a child that already has a parent.
func NewSelector(children ...Node) *Selector {
	s := new(Selector)
	s.initComposite(s, "Selector", selectPolicy, false, children)
	return s
}

// Sequence runs its children in order until one fails. It succeeds when
// every child has succeeded.
type Sequence struct{ composite }

// NewSequence creates a Sequence, see NewSelector for the panics.
func NewSequence(children ...Node) *Sequence {
	s := new(Sequence)
	s.initComposite(s, "Sequence", sequencePolicy, false, children)
	return s
}

// RandomSelector is a Selector that visits its children in a random order,
// drawn from the Root's random source each time it starts. Lower priority
// aborts are not supported.
type RandomSelector struct{ composite }

// NewRandomSelector creates a selector that visits its children in a fresh
// random order on every start.
func NewRandomSelector(children ...Node) *RandomSelector {
	s := new(RandomSelector)
	s.initComposite(s, "RandomSelector", selectPolicy, true, children)
	return s
}

// RandomSequence is a Sequence that visits its children in a random order.
type RandomSequence struct{ composite }

// NewRandomSequence creates a sequence that visits its children in a fresh
// random order on every start.
func NewRandomSequence(children ...Node) *RandomSequence {
	s := new(RandomSequence)
	s.initComposite(s, "RandomSequence", sequencePolicy, true, children)
	return s
}

// observingChain returns the observing decorators reachable from n through
// decorators only, outermost first.
func observingChain(n Node) []ObservingDecorator {
	var out []ObservingDecorator
	for n != nil && n.Kind() == KindDecorator {
		d := n.(Decorator)
		if o, ok := d.(ObservingDecorator); ok {
			out = append(out, o)
		}
		n = d.Child()
	}
	return out
}
