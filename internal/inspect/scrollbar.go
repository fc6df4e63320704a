package inspect

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// scrollbar renders a vertical bar for a window of height rows over total
// rows, starting at offset.
type scrollbar struct {
	thumb, track         lipgloss.Style
	thumbChar, trackChar string
}

func newScrollbar(r *lipgloss.Renderer) scrollbar {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	return scrollbar{
		thumb:     r.NewStyle().Background(lipgloss.Color("57")),
		track:     r.NewStyle().Foreground(lipgloss.Color("240")),
		thumbChar: "┃",
		trackChar: "│",
	}
}

// rows returns exactly height cells, top to bottom.
func (sb scrollbar) rows(total, height, offset int) []string {
	if height <= 0 {
		return nil
	}
	top, size := 0, height
	if total > height {
		maxOffset := total - height
		offset = min(max(offset, 0), maxOffset)
		size = min(max(height*height/total, 1), height)
		if maxTop := height - size; maxTop > 0 {
			top = offset * maxTop / maxOffset
		}
	}
	out := make([]string, height)
	for i := range out {
		if top <= i && i < top+size {
			out[i] = sb.thumb.Render(sb.thumbChar)
		} else {
			out[i] = sb.track.Render(sb.trackChar)
		}
	}
	return out
}

func (sb scrollbar) view(total, height, offset int) string {
	return strings.Join(sb.rows(total, height, offset), "\n")
}
