package command

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// isTerminal reports whether w is a terminal.
func isTerminal(w any) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// colorProfile resolves the color setting for out: never and always are
// absolute, auto colors terminals only, honouring NO_COLOR and friends.
func colorProfile(setting string, out io.Writer) termenv.Profile {
	switch setting {
	case "never":
		return termenv.Ascii
	case "always":
		return termenv.ANSI256
	}
	if !isTerminal(out) {
		return termenv.Ascii
	}
	if f, ok := out.(*os.File); ok {
		return termenv.NewOutput(f).EnvColorProfile()
	}
	return termenv.EnvColorProfile()
}

// lipglossRenderer returns a renderer for out using the color setting.
func lipglossRenderer(setting string, out io.Writer) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(out)
	r.SetColorProfile(colorProfile(setting, out))
	return r
}
