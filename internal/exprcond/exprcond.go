// Package exprcond compiles expr-lang expressions over blackboard keys into
// observing decorators and check tasks.
//
// Every identifier an expression reads is a blackboard key, so
//
//	hp < 20 && enemy != nil
//
// observes "hp" and "enemy". Unset keys evaluate as nil.
package exprcond

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"
	"github.com/joeycumines/behave/internal/blackboard"
	"github.com/joeycumines/behave/internal/tree"
)

var (
	// ErrEmpty is returned when compiling an empty expression.
	ErrEmpty = errors.New("empty expression")
	// ErrNotBoolean is returned when an expression yields a non-boolean.
	ErrNotBoolean = errors.New("expression result is not a boolean")
)

// Option configures Compile.
type Option func(*options)

type options struct {
	cache  *Cache
	logger *slog.Logger
}

// WithCache compiles through c instead of the shared cache. A nil cache
// disables caching.
func WithCache(c *Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithLogger sets the logger used to report evaluation errors.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Expression is a compiled boolean expression. It is immutable and may be
// shared between trees.
type Expression struct {
	src     string
	program *vm.Program
	keys    []string
	logger  *slog.Logger
}

// Compile compiles src, reusing a cached program when available.
func Compile(src string, opts ...Option) (*Expression, error) {
	o := options{cache: shared, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if src == "" {
		return nil, ErrEmpty
	}
	if o.cache != nil {
		if e, ok := o.cache.get(src); ok {
			return &Expression{src: src, program: e.program, keys: e.keys, logger: o.logger}, nil
		}
	}
	refs := new(keyCollector)
	program, err := expr.Compile(src,
		expr.Env(map[string]any{}),
		expr.AsBool(),
		expr.AllowUndefinedVariables(),
		expr.Patch(refs),
	)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	e := &cacheEntry{src: src, program: program, keys: refs.result()}
	if o.cache != nil {
		o.cache.put(e)
	}
	return &Expression{src: src, program: e.program, keys: e.keys, logger: o.logger}, nil
}

// MustCompile is like Compile but panics with a *tree.ConstructionError, so
// it can be used inside tree.Build.
func MustCompile(src string, opts ...Option) *Expression {
	e, err := Compile(src, opts...)
	if err != nil {
		panic(&tree.ConstructionError{Node: "Expression", Reason: err.Error()})
	}
	return e
}

func (e *Expression) String() string { return e.src }

// Keys returns the blackboard keys read by the expression, sorted.
func (e *Expression) Keys() []string { return slices.Clone(e.keys) }

// Eval runs the expression against bb.
func (e *Expression) Eval(bb *blackboard.Blackboard) (bool, error) {
	env := make(map[string]any, len(e.keys))
	for _, k := range e.keys {
		if v, err := bb.Get(k); err == nil {
			env[k] = v
		}
	}
	out, err := expr.Run(e.program, env)
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", e.src, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("eval %q: %w: %T", e.src, ErrNotBoolean, out)
	}
	return b, nil
}

// Match is Eval with errors logged and reported as false.
func (e *Expression) Match(bb *blackboard.Blackboard) bool {
	ok, err := e.Eval(bb)
	if err != nil {
		e.logger.Warn("[BT] expression evaluation failed", "expression", e.src, "error", err)
		return false
	}
	return ok
}

// Condition returns an observing decorator guarding child with the
// expression, watching every key it reads.
func (e *Expression) Condition(aborts tree.Aborts, child tree.Node, opts ...tree.ObservingOption) *tree.BlackboardQuery {
	return tree.Labeled(tree.NewBlackboardQuery(e.keys, e.Match, aborts, child, opts...), e.src)
}

// Check returns a task succeeding when the expression holds.
func (e *Expression) Check() *tree.Task {
	return tree.Labeled(tree.NewCheck(e.Match), e.src)
}

// keyCollector gathers the free identifiers of an expression, leaving out
// called functions and let bindings.
type keyCollector struct {
	idents map[string]struct{}
	skip   map[string]struct{}
}

func (c *keyCollector) Visit(node *ast.Node) {
	if c.idents == nil {
		c.idents = make(map[string]struct{})
		c.skip = make(map[string]struct{})
	}
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.idents[n.Value] = struct{}{}
	case *ast.CallNode:
		if id, ok := n.Callee.(*ast.IdentifierNode); ok {
			c.skip[id.Value] = struct{}{}
		}
	case *ast.VariableDeclaratorNode:
		c.skip[n.Name] = struct{}{}
	}
}

func (c *keyCollector) result() []string {
	keys := make([]string, 0, len(c.idents))
	for k := range c.idents {
		if _, ok := c.skip[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}
