// Package jsleaf builds tree tasks and conditions from JavaScript functions
// evaluated by goja.
//
// A task function is called as fn(bb, request), request being "start",
// "update" or "cancel", and returns true, false, "success", "failed",
// "blocked" or "progress". Returning nothing counts as success. A condition
// function is called as fn(bb) and its result is converted to a boolean.
//
// An Engine owns one goja runtime and, like the trees using it, must be
// driven from one goroutine at a time.
package jsleaf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dop251/goja"
	"github.com/joeycumines/behave/internal/blackboard"
	"github.com/joeycumines/behave/internal/tree"
)

var (
	// ErrNotFunction is returned when a global is missing or not callable.
	ErrNotFunction = errors.New("not a function")
	// ErrUnknownResult is returned for a task result that maps to no Result.
	ErrUnknownResult = errors.New("unknown task result")
)

// Engine evaluates scripts and hands out tree nodes backed by their
// functions.
type Engine struct {
	vm      *goja.Runtime
	logger  *slog.Logger
	exposed map[*blackboard.Blackboard]goja.Value
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for script errors and console output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an engine with a fresh runtime. Scripts see a console object
// whose log, warn and error methods write to the engine's logger.
func New(opts ...Option) *Engine {
	e := &Engine{
		vm:      goja.New(),
		logger:  slog.Default(),
		exposed: make(map[*blackboard.Blackboard]goja.Value),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	console := e.vm.NewObject()
	_ = console.Set("log", e.console(slog.LevelInfo))
	_ = console.Set("warn", e.console(slog.LevelWarn))
	_ = console.Set("error", e.console(slog.LevelError))
	_ = e.vm.Set("console", console)
	return e
}

// Runtime returns the underlying runtime, e.g. to install extra globals.
func (e *Engine) Runtime() *goja.Runtime { return e.vm }

// Load runs src, typically to define the functions later passed to Task and
// Condition.
func (e *Engine) Load(name, src string) error {
	if _, err := e.vm.RunScript(name, src); err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	return nil
}

// Func returns the global function called name.
func (e *Engine) Func(name string) (goja.Callable, error) {
	fn, ok := goja.AssertFunction(e.vm.Get(name))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFunction, name)
	}
	return fn, nil
}

// Task returns a multi-frame task driven by the global function name.
// Script exceptions and unknown results fail the task.
func (e *Engine) Task(name string) (*tree.Task, error) {
	fn, err := e.Func(name)
	if err != nil {
		return nil, err
	}
	t := tree.NewMultiFrame(func(bb *blackboard.Blackboard, req tree.Request) tree.Result {
		v, err := fn(goja.Undefined(), e.expose(bb), e.vm.ToValue(req.String()))
		if err != nil {
			e.logger.Error("[JS] task threw", "function", name, "request", req.String(), "error", err)
			return tree.ResultFailed
		}
		if req == tree.RequestCancel {
			return tree.ResultFailed
		}
		r, err := toResult(v)
		if err != nil {
			e.logger.Error("[JS] task returned an invalid result", "function", name, "error", err)
			return tree.ResultFailed
		}
		return r
	})
	return tree.Labeled(t, name), nil
}

// Predicate returns the global function name as a blackboard predicate.
// Exceptions are logged and evaluate as false.
func (e *Engine) Predicate(name string) (func(bb *blackboard.Blackboard) bool, error) {
	fn, err := e.Func(name)
	if err != nil {
		return nil, err
	}
	return func(bb *blackboard.Blackboard) bool {
		v, err := fn(goja.Undefined(), e.expose(bb))
		if err != nil {
			e.logger.Warn("[JS] condition threw", "function", name, "error", err)
			return false
		}
		return v.ToBoolean()
	}, nil
}

// Condition returns an observing decorator guarding child with the global
// function name, re-evaluated whenever one of keys changes.
func (e *Engine) Condition(name string, keys []string, aborts tree.Aborts, child tree.Node, opts ...tree.ObservingOption) (*tree.BlackboardQuery, error) {
	pred, err := e.Predicate(name)
	if err != nil {
		return nil, err
	}
	return tree.Labeled(tree.NewBlackboardQuery(keys, pred, aborts, child, opts...), name), nil
}

// Check returns a task succeeding when the global function name returns a
// truthy value.
func (e *Engine) Check(name string) (*tree.Task, error) {
	pred, err := e.Predicate(name)
	if err != nil {
		return nil, err
	}
	return tree.Labeled(tree.NewCheck(pred), name), nil
}

// expose returns the script view of bb, built once per blackboard.
func (e *Engine) expose(bb *blackboard.Blackboard) goja.Value {
	if v, ok := e.exposed[bb]; ok {
		return v
	}
	obj := e.vm.NewObject()
	_ = obj.Set("get", func(key string) goja.Value {
		v, err := bb.Get(key)
		if err != nil {
			return goja.Undefined()
		}
		return e.vm.ToValue(v)
	})
	_ = obj.Set("set", func(key string, v goja.Value) {
		if v == nil || goja.IsUndefined(v) {
			bb.Unset(key)
			return
		}
		bb.Set(key, v.Export())
	})
	_ = obj.Set("unset", bb.Unset)
	_ = obj.Set("has", bb.Has)
	_ = obj.Set("keys", bb.Keys)
	v := e.vm.ToValue(obj)
	e.exposed[bb] = v
	return v
}

func (e *Engine) console(level slog.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		e.logger.Log(context.Background(), level, "[JS] console", "args", strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func toResult(v goja.Value) (tree.Result, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return tree.ResultSuccess, nil
	}
	switch x := v.Export().(type) {
	case bool:
		if x {
			return tree.ResultSuccess, nil
		}
		return tree.ResultFailed, nil
	case string:
		switch strings.ToLower(x) {
		case "success":
			return tree.ResultSuccess, nil
		case "failed", "failure":
			return tree.ResultFailed, nil
		case "blocked":
			return tree.ResultBlocked, nil
		case "progress", "running":
			return tree.ResultProgress, nil
		}
	}
	return tree.ResultNone, fmt.Errorf("%w: %s", ErrUnknownResult, v.String())
}
