package inspect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joeycumines/behave/internal/tree"
)

// DefaultInterval is the wall-clock duration of one tick in Watch.
const DefaultInterval = 100 * time.Millisecond

// Bounds of the tick interval reachable with the speed keys.
const (
	MinInterval = time.Millisecond
	MaxInterval = 10 * time.Second
)

// Target is a tree that can be driven from the watcher's goroutine.
// hostloop.Driver implements it.
type Target interface {
	Do(fn func(root *tree.Root))
	Start() error
	Cancel()
	Tick() bool
}

// WatchOption configures a Model.
type WatchOption func(*Model)

// WithInterval sets the duration of one tick at normal speed.
func WithInterval(d time.Duration) WatchOption {
	return func(m *Model) { m.base, m.interval = d, d }
}

// WithLipglossRenderer styles output for r instead of the default renderer.
func WithLipglossRenderer(r *lipgloss.Renderer) WatchOption {
	return func(m *Model) {
		m.render = NewRenderer(NewStyles(r))
		m.bar = newScrollbar(r)
	}
}

// WithPaused starts the watcher paused.
func WithPaused(paused bool) WatchOption {
	return func(m *Model) { m.paused = paused }
}

// Model is the bubbletea model behind Watch. It ticks its target on a timer
// and renders a snapshot after every change. One node line is selected; c
// cancels the selected node.
type Model struct {
	target   Target
	base     time.Duration
	interval time.Duration
	render   *Renderer
	bar      scrollbar
	snap     Snapshot
	paused   bool
	cursor   int
	offset   int
	width    int
	height   int
	status   string
}

type tickMsg time.Time

// NewModel creates a watcher model for target.
func NewModel(target Target, opts ...WatchOption) *Model {
	m := &Model{
		target:   target,
		base:     DefaultInterval,
		interval: DefaultInterval,
		render:   NewRenderer(NewStyles(nil)),
		bar:      newScrollbar(nil),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns the most recent capture.
func (m *Model) Snapshot() Snapshot { return m.snap }

// Paused reports whether automatic ticking is suspended.
func (m *Model) Paused() bool { return m.paused }

// Offset returns the index of the first visible node line.
func (m *Model) Offset() int { return m.offset }

// Cursor returns the index of the selected node line.
func (m *Model) Cursor() int { return m.cursor }

// Interval returns the current duration of one tick.
func (m *Model) Interval() time.Duration { return m.interval }

// Speed is the current tick rate relative to the configured interval.
func (m *Model) Speed() float64 { return float64(m.base) / float64(m.interval) }

func (m *Model) Init() tea.Cmd {
	m.refresh()
	return m.tick()
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) refresh() {
	m.target.Do(func(root *tree.Root) { m.snap = Capture(root) })
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if !m.paused {
			m.target.Tick()
		}
		m.refresh()
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case " ", "p":
			m.paused = !m.paused
		case "n":
			if m.paused {
				m.target.Tick()
				m.refresh()
			}
		case "s":
			m.status = "started"
			if err := m.target.Start(); err != nil {
				m.status = err.Error()
			}
			m.refresh()
		case "c":
			m.cancelSelected()
			m.refresh()
		case "+", "=":
			m.interval = max(m.interval/2, MinInterval)
		case "-", "_":
			m.interval = min(m.interval*2, MaxInterval)
		case "0":
			m.interval = m.base
		case "up", "k":
			m.cursor--
		case "down", "j":
			m.cursor++
		case "pgup":
			m.cursor -= m.bodyHeight()
		case "pgdown":
			m.cursor += m.bodyHeight()
		case "home", "g":
			m.cursor = 0
		case "end", "G":
			m.cursor = len(m.snap.Nodes) - 1
		}
	}
	m.follow()
	return m, nil
}

// cancelSelected cancels the selected node if it is active. The Root is
// cancelled through the target itself.
func (m *Model) cancelSelected() {
	if m.cursor == 0 {
		m.target.Cancel()
		m.status = "cancelled"
		return
	}
	if m.cursor >= len(m.snap.Nodes) {
		return
	}
	id := m.snap.Nodes[m.cursor].ID
	var cancelled bool
	m.target.Do(func(root *tree.Root) {
		if n, ok := root.Node(id); ok && n.IsActive() {
			n.Cancel()
			cancelled = true
		}
	})
	if cancelled {
		m.status = fmt.Sprintf("cancelled #%d", id)
	} else {
		m.status = fmt.Sprintf("#%d is not active", id)
	}
}

// follow clamps the cursor and scrolls so that it stays visible.
func (m *Model) follow() {
	m.cursor = max(min(m.cursor, len(m.snap.Nodes)-1), 0)
	height := m.bodyHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	} else if m.cursor >= m.offset+height {
		m.offset = m.cursor - height + 1
	}
	m.clampOffset()
}

// bodyHeight is the number of node lines that fit, or all of them when the
// window size is unknown.
func (m *Model) bodyHeight() int {
	if m.height <= 0 {
		return len(m.snap.Nodes)
	}
	return max(m.height-3, 1)
}

func (m *Model) clampOffset() {
	m.offset = min(m.offset, len(m.snap.Nodes)-m.bodyHeight())
	m.offset = max(m.offset, 0)
}

func (m *Model) View() string {
	header := m.render.Header(m.snap)
	if m.paused {
		header += " " + m.render.Styles.Failed.Render("[paused]")
	}
	if m.interval != m.base {
		header += " " + m.render.Styles.Detail.Render(fmt.Sprintf("[speed %gx]", m.Speed()))
	}

	lines := m.render.Lines(m.snap)
	for i := range lines {
		if i == m.cursor {
			lines[i] = m.render.Styles.Header.Render(">") + " " + lines[i]
		} else {
			lines[i] = "  " + lines[i]
		}
	}
	height := m.bodyHeight()
	end := min(m.offset+height, len(lines))
	body := strings.Join(lines[min(m.offset, end):end], "\n")
	if len(lines) > height {
		body = lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.NewStyle().Width(max(m.width-2, 0)).Render(body),
			" ",
			m.bar.view(len(lines), height, m.offset),
		)
	}

	footer := "space pause · n step · +/- speed · s start · c cancel selected · ↑/↓ select · q quit"
	if m.status != "" {
		footer += "  " + m.status
	}

	return strings.Join([]string{
		header,
		m.render.StatsLine(m.snap.Stats),
		body,
		m.render.Styles.Detail.Render(footer),
	}, "\n")
}

// Watch runs an interactive watcher on in and out until the user quits or ctx
// is done.
func Watch(ctx context.Context, target Target, in io.Reader, out io.Writer, opts ...WatchOption) error {
	p := tea.NewProgram(NewModel(target, opts...),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
