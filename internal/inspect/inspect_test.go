package inspect

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joeycumines/behave/internal/blackboard"
	"github.com/joeycumines/behave/internal/hostloop"
	"github.com/joeycumines/behave/internal/tree"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"
)

type point struct{ X, Y int }

func newTree(t *testing.T) (*tree.Root, *tree.BlackboardCondition, *tree.Task) {
	t.Helper()
	patrol := tree.Labeled(tree.NewWaitUntilStopped(), "patrol the perimeter")
	cond := tree.NewBlackboardCondition("enemy", tree.IsSet, nil, tree.AbortsLowerPriority,
		tree.NewAction(func(*blackboard.Blackboard) {}),
	)
	root, err := tree.NewRoot(tree.NewSelector(cond, patrol),
		tree.WithRepeat(false),
		tree.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	t.Cleanup(root.Close)
	return root, cond, patrol
}

func TestCapture(t *testing.T) {
	t.Parallel()

	root, _, _ := newTree(t)
	root.Blackboard().Set("hp", 10)
	root.Blackboard().Set("pos", &point{1, 2})
	require.NoError(t, root.Start())
	root.Clock().Advance(2)

	s := Capture(root)
	require.Equal(t, root.InstanceID().String(), s.Instance)
	require.EqualValues(t, 2, s.Tick)
	require.Len(t, s.Nodes, 5)
	require.Equal(t, []int{0, 1, 4}, s.Active())
	require.Equal(t, []string{"hp", "pos"}, s.Keys())
	require.Equal(t, "&{1 2}", s.Blackboard["pos"])

	cond := s.Nodes[2]
	require.Equal(t, "BlackboardCondition", cond.Name)
	require.Equal(t, 1, cond.Parent)
	require.Equal(t, 2, cond.Depth)
	require.Equal(t, "FAILED", cond.State)
	require.Equal(t, "lower-priority", cond.Aborts)
	require.True(t, cond.Observing)
	require.Equal(t, []string{"enemy"}, cond.Keys)

	patrol := s.Nodes[4]
	require.Equal(t, "patrol the perimeter", patrol.Label)
	require.Equal(t, "BLOCKED", patrol.TaskResult)
	require.Equal(t, -1, s.Nodes[0].Parent)

	require.Equal(t, 1, s.Stats.BlackboardObservers)
	require.Equal(t, 2, s.Stats.BlackboardKeys)
	require.Zero(t, s.Stats.Timers)
}

func TestSnapshot_JSON(t *testing.T) {
	t.Parallel()

	root, _, _ := newTree(t)
	require.NoError(t, root.Start())
	data, err := Capture(root).JSON()
	require.NoError(t, err)

	var decoded struct {
		Nodes []struct {
			ID    int    `json:"id"`
			State string `json:"state"`
		} `json:"nodes"`
		Stats map[string]int `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Nodes, 5)
	require.Equal(t, "ACTIVE", decoded.Nodes[0].State)
	require.Equal(t, 1, decoded.Stats["blackboardObservers"])
}

func TestRender(t *testing.T) {
	t.Parallel()

	root, _, _ := newTree(t)
	require.NoError(t, root.Start())
	out := Render(Capture(root))

	require.NotContains(t, out, "\x1b[")
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 7)
	require.Contains(t, lines[0], "tick 0")
	require.Contains(t, lines[1], "observers 1")
	require.Equal(t, "▶ Root (#0)", lines[2])
	require.Equal(t, "    ✘ BlackboardCondition (#2; aborts lower-priority, observing enemy)", lines[4])
	require.Equal(t, "    ▶ WaitUntilStopped patrol the perimeter (#4; blocked)", lines[6])
}

func TestRender_Colors(t *testing.T) {
	t.Parallel()

	root, _, _ := newTree(t)
	require.NoError(t, root.Start())

	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.ANSI256)
	out := NewRenderer(NewStyles(r)).Render(Capture(root))
	require.Contains(t, out, "\x1b[")
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "short", truncate("short", 10, "…"))
	require.Equal(t, "abcd…", truncate("abcdefgh", 5, "…"))
	require.Equal(t, "日本…", truncate("日本語です", 5, "…"))
	require.Equal(t, "...", truncate("abcdef", 2, "..."))
	require.Equal(t, "abcdef", truncate("abcdef", 0, "…"))
}

func TestScrollbar(t *testing.T) {
	t.Parallel()

	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.Ascii)
	sb := newScrollbar(r)
	sb.thumbChar, sb.trackChar = "#", "|"
	require.Equal(t, []string{"#", "#", "#"}, sb.rows(2, 3, 0))
	require.Equal(t, []string{"#", "|", "|", "|"}, sb.rows(16, 4, 0))
	require.Equal(t, []string{"|", "|", "|", "#"}, sb.rows(16, 4, 12))
	require.Equal(t, []string{"|", "|", "|", "#"}, sb.rows(16, 4, 99))
	require.Nil(t, sb.rows(10, 0, 0))
}

func TestModel(t *testing.T) {
	t.Parallel()

	root, _, patrol := newTree(t)
	d := hostloop.NewDriver(root)
	m := NewModel(d, WithPaused(true), WithLipglossRenderer(lipgloss.NewRenderer(io.Discard)))

	require.NotNil(t, m.Init())
	require.Equal(t, "INACTIVE", m.Snapshot().Nodes[0].State)

	key := func(s string) tea.Msg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

	m.Update(key("s"))
	require.True(t, patrol.IsActive())
	require.Equal(t, "ACTIVE", m.Snapshot().Nodes[0].State)

	m.Update(tickMsg{})
	require.Zero(t, m.Snapshot().Tick, "paused")
	m.Update(key("n"))
	require.EqualValues(t, 1, m.Snapshot().Tick)

	m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	require.False(t, m.Paused())
	_, cmd := m.Update(tickMsg{})
	require.NotNil(t, cmd)
	require.EqualValues(t, 2, m.Snapshot().Tick)

	m.Update(tea.WindowSizeMsg{Width: 80, Height: 5})
	for range 4 {
		m.Update(key("j"))
	}
	require.Equal(t, 3, m.Offset(), "clamped to nodes minus body height")
	view := m.View()
	require.Contains(t, view, "q quit")
	require.Len(t, strings.Split(view, "\n"), 5)

	m.Update(key("c"))
	require.Equal(t, tree.StateInactive, patrol.CurrentState())
	require.Contains(t, m.View(), "cancelled")

	_, cmd = m.Update(key("q"))
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_CancelSelected(t *testing.T) {
	t.Parallel()

	root, cond, patrol := newTree(t)
	m := NewModel(hostloop.NewDriver(root), WithPaused(true), WithLipglossRenderer(lipgloss.NewRenderer(io.Discard)))
	m.Init()
	key := func(s string) tea.Msg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

	m.Update(key("s"))
	require.True(t, patrol.IsActive())

	m.Update(key("j"))
	m.Update(key("j"))
	require.Equal(t, cond.ID(), m.Cursor())
	m.Update(key("c"))
	require.True(t, patrol.IsActive())
	require.Contains(t, m.View(), "#2 is not active")

	m.Update(key("G"))
	require.Equal(t, patrol.ID(), m.Cursor())
	m.Update(key("c"))
	require.Equal(t, tree.StateInactive, patrol.CurrentState())
	require.Equal(t, tree.StateFailed, root.CurrentState(), "selector ran out of children")

	view := m.View()
	require.Contains(t, view, "cancelled #4")
	var selected string
	for _, line := range strings.Split(view, "\n") {
		if strings.Contains(line, "patrol") {
			selected = line
		}
	}
	require.True(t, strings.HasPrefix(selected, ">"), selected)

	m.Update(key("j"))
	require.Equal(t, 4, m.Cursor(), "clamped to the last node")
}

func TestModel_Speed(t *testing.T) {
	t.Parallel()

	root, _, _ := newTree(t)
	key := func(s string) tea.Msg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }
	m := NewModel(hostloop.NewDriver(root), WithInterval(100*time.Millisecond), WithLipglossRenderer(lipgloss.NewRenderer(io.Discard)))
	m.Init()

	m.Update(key("+"))
	require.Equal(t, 50*time.Millisecond, m.Interval())
	require.InDelta(t, 2.0, m.Speed(), 1e-9)
	require.Contains(t, m.View(), "[speed 2x]")

	m.Update(key("-"))
	m.Update(key("-"))
	require.Equal(t, 200*time.Millisecond, m.Interval())
	require.InDelta(t, 0.5, m.Speed(), 1e-9)

	m.Update(key("0"))
	require.Equal(t, 100*time.Millisecond, m.Interval())
	require.NotContains(t, m.View(), "[speed")

	for range 20 {
		m.Update(key("+"))
	}
	require.Equal(t, MinInterval, m.Interval())
	for range 20 {
		m.Update(key("-"))
	}
	require.Equal(t, MaxInterval, m.Interval())
}
