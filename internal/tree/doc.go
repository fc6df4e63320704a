/*
Package tree implements an event-driven behavior tree: composites, decorators
and tasks wired under a Root that owns the tree's Blackboard and Clock.

# Lifecycle

Every node moves INACTIVE -> ACTIVE -> SUCCEEDED | FAILED. Cancelling an
active node moves it back to INACTIVE with a false result, after cancelling
every active descendant depth first. A node that is not active may be
started again.

	root, err := tree.NewRoot(tree.NewSelector(
		tree.NewBlackboardCondition("enemy", tree.IsSet, nil, tree.AbortsLowerPriority,
			attack,
		),
		patrol,
	))
	if err != nil {
		return err
	}
	defer root.Close()
	if err := root.Start(); err != nil {
		return err
	}
	for range frames {
		root.Tick()
	}

Nothing runs in the background. The tree only advances inside Root.Start,
Root.Cancel, Root.Tick and Blackboard writes, all of which must come from one
caller at a time.

# Priority aborts

Children of a composite are evaluated in construction order, which is also
their priority. An observing decorator (BlackboardCondition, BlackboardQuery,
Condition) watches data while its policy requires it and, when its condition
flips, asks its owning composite to abort:

  - AbortsSelf: the guarded branch is active and the condition no longer
    holds. The branch is cancelled and the composite continues as if it had
    failed.
  - AbortsLowerPriority: the condition now holds and a lower priority branch
    is active. That branch is cancelled and evaluation restarts at the
    decorator's branch, before the triggering Set returns.

The effective policy is narrowed once at construction by UpdateAbortsType,
according to the composite's CanAbortSelf and CanAbortLowerPriority flags and
the decorator's position.

# Construction

Composite and decorator constructors panic with a *ConstructionError for a
malformed tree, e.g. a composite without children. Build recovers those
panics for callers loading trees from data.

# Introspection

Node exposes ID, Name, Label, Kind, CurrentState, LastResult and Children for
debuggers; Root.Nodes and Root.Node index the tree by ID. None of these are
needed to drive the tree.
*/
package tree
