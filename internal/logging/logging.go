// Package logging builds the slog loggers used by the behave commands:
// text to a terminal stream, or JSON to a size-rotated file.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/joeycumines/behave/internal/config"
)

// ParseLevel maps debug, info, warn and error to slog levels. The empty
// string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}

// Logger is a configured logger plus the file it owns, if any.
type Logger struct {
	*slog.Logger
	file *RotatingFile
}

// File returns the log file, or nil when logging to a stream.
func (l *Logger) File() *RotatingFile { return l.file }

// Close releases the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// New builds a logger from settings. With settings.File set, records are
// written as JSON to a rotating file; otherwise as text to stream. verbose
// lowers the level to debug.
func New(settings config.LogSettings, verbose bool, stream io.Writer) (*Logger, error) {
	level, err := ParseLevel(settings.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = min(level, slog.LevelDebug)
	}
	opts := &slog.HandlerOptions{Level: level}

	if settings.File == "" {
		return &Logger{Logger: slog.New(slog.NewTextHandler(stream, opts))}, nil
	}
	f, err := OpenRotatingFile(settings.File, settings.MaxSizeMB, settings.MaxFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", settings.File, err)
	}
	return &Logger{Logger: slog.New(slog.NewJSONHandler(f, opts)), file: f}, nil
}

// Entry is one record held by a Buffer.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   []slog.Attr
}

// String formats the entry as "LEVEL message key=value ...".
func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Level.String())
	b.WriteByte(' ')
	b.WriteString(e.Message)
	for _, a := range e.Attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	return b.String()
}

// Buffer is an slog.Handler retaining the most recent records in memory,
// for use while the terminal is owned by a full-screen program.
type Buffer struct {
	state *bufferState
	level slog.Leveler
	attrs []slog.Attr
	group string
}

type bufferState struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

// NewBuffer keeps up to size records at or above level.
func NewBuffer(size int, level slog.Leveler) *Buffer {
	if size < 1 {
		size = 1
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &Buffer{state: &bufferState{max: size}, level: level}
}

func (h *Buffer) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Buffer) Handle(_ context.Context, r slog.Record) error {
	attrs := slices.Clone(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.qualify(a))
		return true
	})
	s := h.state
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == s.max {
		s.entries = slices.Delete(s.entries, 0, 1)
	}
	s.entries = append(s.entries, Entry{Time: r.Time, Level: r.Level, Message: r.Message, Attrs: attrs})
	return nil
}

func (h *Buffer) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *h
	out.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		out.attrs = append(out.attrs, h.qualify(a))
	}
	return &out
}

func (h *Buffer) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	out := *h
	if out.group != "" {
		out.group += "."
	}
	out.group += name
	return &out
}

func (h *Buffer) qualify(a slog.Attr) slog.Attr {
	if h.group != "" {
		a.Key = h.group + "." + a.Key
	}
	return a
}

// Entries returns a copy of the retained records, oldest first.
func (h *Buffer) Entries() []Entry {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return slices.Clone(h.state.entries)
}

// WriteTo writes every retained record on its own line.
func (h *Buffer) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, e := range h.Entries() {
		n, err := fmt.Fprintln(w, e.String())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
