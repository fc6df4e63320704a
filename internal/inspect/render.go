package inspect

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/joeycumines/behave/internal/tree"
	"github.com/muesli/termenv"
	"github.com/rivo/uniseg"
)

// DefaultLabelWidth bounds rendered labels, in terminal cells.
const DefaultLabelWidth = 32

// Styles holds the styles used to render a snapshot.
type Styles struct {
	Header    lipgloss.Style
	Inactive  lipgloss.Style
	Active    lipgloss.Style
	Succeeded lipgloss.Style
	Failed    lipgloss.Style
	Label     lipgloss.Style
	Detail    lipgloss.Style
}

// NewStyles builds the default styles on r, or on the default renderer if r
// is nil.
func NewStyles(r *lipgloss.Renderer) Styles {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	return Styles{
		Header:    r.NewStyle().Bold(true),
		Inactive:  r.NewStyle().Faint(true),
		Active:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		Succeeded: r.NewStyle().Foreground(lipgloss.Color("39")),
		Failed:    r.NewStyle().Foreground(lipgloss.Color("203")),
		Label:     r.NewStyle().Italic(true),
		Detail:    r.NewStyle().Foreground(lipgloss.Color("244")),
	}
}

// PlainStyles renders without any escape sequences.
func PlainStyles() Styles {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.Ascii)
	return NewStyles(r)
}

func (st Styles) state(s string) lipgloss.Style {
	switch s {
	case tree.StateActive.String():
		return st.Active
	case tree.StateSucceeded.String():
		return st.Succeeded
	case tree.StateFailed.String():
		return st.Failed
	default:
		return st.Inactive
	}
}

// Renderer turns snapshots into text.
type Renderer struct {
	Styles     Styles
	LabelWidth int
}

// NewRenderer returns a renderer with the default label width.
func NewRenderer(styles Styles) *Renderer {
	return &Renderer{Styles: styles, LabelWidth: DefaultLabelWidth}
}

// Render is NewRenderer(PlainStyles()).Render(s).
func Render(s Snapshot) string { return NewRenderer(PlainStyles()).Render(s) }

// Render renders the header, the stats line and the tree.
func (r *Renderer) Render(s Snapshot) string {
	var b strings.Builder
	b.WriteString(r.Header(s))
	b.WriteByte('\n')
	b.WriteString(r.StatsLine(s.Stats))
	b.WriteByte('\n')
	for _, line := range r.Lines(s) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Header describes the tree instance.
func (r *Renderer) Header(s Snapshot) string {
	h := fmt.Sprintf("tree %s  tick %d", s.Instance, s.Tick)
	if s.Closed {
		h += "  closed"
	}
	return r.Styles.Header.Render(h)
}

// StatsLine formats the resource counters.
func (r *Renderer) StatsLine(st Stats) string {
	return r.Styles.Detail.Render(fmt.Sprintf(
		"timers %d (pool %d)  updates %d  keys %d  observers %d",
		st.Timers, st.TimerPool, st.UpdateObservers, st.BlackboardKeys, st.BlackboardObservers,
	))
}

// Lines renders one line per node, indented by depth.
func (r *Renderer) Lines(s Snapshot) []string {
	lines := make([]string, len(s.Nodes))
	for i, n := range s.Nodes {
		var b strings.Builder
		b.WriteString(strings.Repeat("  ", n.Depth))
		b.WriteString(r.Styles.state(n.State).Render(fmt.Sprintf("%s %s", glyph(n), n.Name)))
		if n.Label != "" {
			b.WriteByte(' ')
			b.WriteString(r.Styles.Label.Render(truncate(n.Label, r.LabelWidth, "…")))
		}
		var details []string
		details = append(details, fmt.Sprintf("#%d", n.ID))
		if n.TaskResult != "" && n.TaskResult != tree.ResultNone.String() {
			details = append(details, strings.ToLower(n.TaskResult))
		}
		if n.Aborts != "" {
			d := "aborts " + n.Aborts
			if n.Observing {
				d += ", observing " + strings.Join(n.Keys, ",")
			}
			details = append(details, d)
		}
		b.WriteByte(' ')
		b.WriteString(r.Styles.Detail.Render("(" + strings.Join(details, "; ") + ")"))
		lines[i] = b.String()
	}
	return lines
}

func glyph(n NodeInfo) string {
	switch n.State {
	case tree.StateActive.String():
		return "▶"
	case tree.StateSucceeded.String():
		return "✔"
	case tree.StateFailed.String():
		return "✘"
	default:
		return "·"
	}
}

// truncate shortens s to at most width cells, appending tail when it cuts.
// Grapheme clusters are never split.
func truncate(s string, width int, tail string) string {
	if width <= 0 || uniseg.StringWidth(s) <= width {
		return s
	}
	target := width - uniseg.StringWidth(tail)
	if target < 0 {
		return tail
	}
	var (
		b       strings.Builder
		used    int
		cluster string
		w       int
		state   = -1
	)
	for rest := s; rest != ""; {
		cluster, rest, w, state = uniseg.FirstGraphemeClusterInString(rest, state)
		if used+w > target {
			break
		}
		used += w
		b.WriteString(cluster)
	}
	b.WriteString(tail)
	return b.String()
}
