package jsleaf

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/joeycumines/behave/internal/blackboard"
	"github.com/joeycumines/behave/internal/tree"
	"github.com/stretchr/testify/require"
)

const script = `
function patrol(bb, req) {
	if (req === "start") {
		bb.set("steps", 0);
		return "progress";
	}
	if (req === "cancel") {
		bb.set("cancelled", true);
		return;
	}
	var n = bb.get("steps") + 1;
	bb.set("steps", n);
	return n >= 3 ? "success" : "progress";
}
function healthy(bb) { return bb.get("hp") > 50; }
function greet(bb) { console.log("hello", bb.keys().length); }
function boom() { throw new Error("boom"); }
function odd() { return 42; }
var notfn = 1;
`

func newEngine(t *testing.T, logger *slog.Logger) *Engine {
	t.Helper()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := New(WithLogger(logger))
	require.NoError(t, e.Load("script.js", script))
	return e
}

func newRoot(t *testing.T, child tree.Node) *tree.Root {
	t.Helper()
	root, err := tree.NewRoot(child, tree.WithRepeat(false), tree.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(root.Close)
	return root
}

func TestEngine_Func(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	_, err := e.Func("patrol")
	require.NoError(t, err)
	_, err = e.Func("notfn")
	require.ErrorIs(t, err, ErrNotFunction)
	_, err = e.Task("missing")
	require.ErrorIs(t, err, ErrNotFunction)
	require.Error(t, e.Load("bad.js", "function ("))
}

func TestEngine_Task(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	task, err := e.Task("patrol")
	require.NoError(t, err)
	require.Equal(t, "patrol", task.Label())

	root := newRoot(t, task)
	require.NoError(t, root.Start())
	require.Equal(t, tree.ResultProgress, task.TaskResult())

	root.Clock().Advance(2)
	require.True(t, task.IsActive())
	steps, err := root.Blackboard().Number("steps")
	require.NoError(t, err)
	require.EqualValues(t, 2, steps)

	root.Tick()
	require.Equal(t, tree.StateSucceeded, task.CurrentState())
	require.Zero(t, root.Clock().NumUpdateObservers())
}

func TestEngine_TaskCancel(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	task, err := e.Task("patrol")
	require.NoError(t, err)
	root := newRoot(t, task)
	require.NoError(t, root.Start())

	root.Cancel()
	ok, err := root.Blackboard().Bool("cancelled")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, tree.StateInactive, task.CurrentState())
}

func TestEngine_TaskFailures(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	for _, name := range []string{"boom", "odd"} {
		task, err := e.Task(name)
		require.NoError(t, err)
		root := newRoot(t, task)
		require.NoError(t, root.Start())
		require.Equal(t, tree.StateFailed, task.CurrentState(), name)
	}
}

func TestEngine_Condition(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	guarded := tree.NewWaitUntilStopped()
	fallback := tree.NewWaitUntilStopped()
	cond, err := e.Condition("healthy", []string{"hp"}, tree.AbortsBoth, guarded)
	require.NoError(t, err)

	root := newRoot(t, tree.NewSelector(cond, fallback))
	require.NoError(t, root.Start())
	require.True(t, fallback.IsActive())

	root.Blackboard().Set("hp", 80)
	require.True(t, guarded.IsActive())

	root.Blackboard().Set("hp", 10)
	require.True(t, fallback.IsActive())
	require.Equal(t, tree.StateInactive, guarded.CurrentState())
}

func TestEngine_Check(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	bb := blackboard.New()
	bb.Set("hp", 90)

	check, err := e.Check("healthy")
	require.NoError(t, err)
	root, err := tree.NewRoot(check, tree.WithBlackboard(bb), tree.WithRepeat(false))
	require.NoError(t, err)
	t.Cleanup(root.Close)
	require.NoError(t, root.Start())
	require.Equal(t, tree.StateSucceeded, check.CurrentState())

	pred, err := e.Predicate("boom")
	require.NoError(t, err)
	require.False(t, pred(bb))
}

func TestEngine_Console(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	e := newEngine(t, slog.New(slog.NewTextHandler(&buf, nil)))
	bb := blackboard.New()
	bb.Set("a", 1)

	pred, err := e.Predicate("greet")
	require.NoError(t, err)
	require.False(t, pred(bb))
	require.Contains(t, buf.String(), `msg="[JS] console"`)
	require.Contains(t, buf.String(), `args="hello 1"`)
}

func TestToResult(t *testing.T) {
	t.Parallel()

	e := New()
	for _, tc := range []struct {
		in   any
		want tree.Result
	}{
		{nil, tree.ResultSuccess},
		{true, tree.ResultSuccess},
		{false, tree.ResultFailed},
		{"SUCCESS", tree.ResultSuccess},
		{"failure", tree.ResultFailed},
		{"blocked", tree.ResultBlocked},
		{"running", tree.ResultProgress},
	} {
		got, err := toResult(e.Runtime().ToValue(tc.in))
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	_, err := toResult(e.Runtime().ToValue("sideways"))
	require.ErrorIs(t, err, ErrUnknownResult)
}
