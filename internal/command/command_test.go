package command

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joeycumines/behave/internal/config"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"
)

func newRegistry(cfg *config.Config, configPath string) *Registry {
	r := NewRegistry()
	r.Register(
		NewHelpCommand(r),
		NewVersionCommand("1.2.3"),
		NewConfigCommand(cfg, configPath),
		NewRunCommand(cfg),
		NewWatchCommand(cfg, strings.NewReader("")),
	)
	return r
}

func run(t *testing.T, r *Registry, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := r.Run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestRegistry_Help(t *testing.T) {
	t.Parallel()

	r := newRegistry(config.NewConfig(), "")
	require.Equal(t, []string{"config", "help", "run", "version", "watch"}, r.List())

	for _, args := range [][]string{nil, {"-h"}, {"help"}} {
		out, _, err := run(t, r, args...)
		require.NoError(t, err)
		require.Contains(t, out, "Usage: behave <command>")
		require.Contains(t, out, "run      Run the demo tree and print its final state")
	}

	out, _, err := run(t, r, "help", "run")
	require.NoError(t, err)
	require.Contains(t, out, "Usage: behave run [-ticks N]")
	require.Contains(t, out, "-ticks int")
	require.Contains(t, out, "-log-level string")

	_, stderr, err := run(t, r, "help", "fly")
	require.ErrorIs(t, err, ErrUnknownCommand)
	require.Contains(t, stderr, "Unknown command: fly")
}

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()

	_, stderr, err := run(t, newRegistry(config.NewConfig(), ""), "fly")
	require.ErrorIs(t, err, ErrUnknownCommand)
	require.Contains(t, stderr, "behave help")
}

func TestVersion(t *testing.T) {
	t.Parallel()

	r := newRegistry(config.NewConfig(), "")
	out, _, err := run(t, r, "version")
	require.NoError(t, err)
	require.Equal(t, "behave version 1.2.3\n", out)

	_, _, err = run(t, r, "version", "extra")
	require.Error(t, err)
}

func TestConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config")
	cfg := config.NewConfig()
	cfg.SetSectionOption("run", "tick.count", "12")
	r := newRegistry(cfg, path)

	out, _, err := run(t, r, "config", "-schema")
	require.NoError(t, err)
	require.Contains(t, out, "[watch] Options:")

	out, _, err = run(t, r, "config", "tick.interval")
	require.NoError(t, err)
	require.Equal(t, "tick.interval: 100ms\n", out)

	out, _, err = run(t, r, "config", "-section", "run", "tick.count")
	require.NoError(t, err)
	require.Equal(t, "tick.count: 12\n", out)

	_, _, err = run(t, r, "config", "nope")
	require.Error(t, err)

	out, _, err = run(t, r, "config", "tick.interval", "5ms")
	require.NoError(t, err)
	require.Equal(t, "Set configuration: tick.interval = 5ms\n", out)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "tick.interval 5ms\n", string(data))

	_, stderr, err := run(t, r, "config", "tick.interval", "soon")
	require.Error(t, err)
	require.Contains(t, stderr, "expected duration")

	out, _, err = run(t, r, "config")
	require.NoError(t, err)
	require.Contains(t, out, "tick.interval    5ms")

	out, _, err = run(t, r, "config", "validate")
	require.NoError(t, err)
	require.Equal(t, "Configuration is valid.\n", out)

	cfg.SetGlobalOption("bogus", "1")
	out, _, err = run(t, r, "config", "validate")
	require.Error(t, err)
	require.Contains(t, out, `unknown global option: "bogus"`)
}

func TestRun_JSON(t *testing.T) {
	t.Parallel()

	r := newRegistry(config.NewConfig(), "")
	out, _, err := run(t, r, "run", "-ticks", "5", "-interval", "1ms", "-seed", "3", "-json", "-log-level", "error")
	require.NoError(t, err)

	var snap struct {
		Instance   string         `json:"instance"`
		Tick       uint64         `json:"tick"`
		Blackboard map[string]any `json:"blackboard"`
		Nodes      []struct {
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	require.EqualValues(t, 5, snap.Tick)
	require.NotEmpty(t, snap.Instance)
	require.Equal(t, "Root", snap.Nodes[0].Name)
	require.Equal(t, "ACTIVE", snap.Nodes[0].State)
	require.Contains(t, snap.Blackboard, "hp")
}

func TestRun_Once(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.SetGlobalOption("log.level", "error")
	r := newRegistry(cfg, "")
	out, stderr, err := run(t, r, "run", "-once", "-interval", "1ms", "-color", "never")
	require.NoError(t, err)
	require.NotContains(t, stderr, "Running until interrupted")
	require.NotContains(t, out, "\x1b[")
	require.True(t, strings.HasPrefix(out, "tree "), out)
	require.Contains(t, out, "Root")
}

func TestRun_LogFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "behave.log")
	r := newRegistry(config.NewConfig(), "")
	_, stderr, err := run(t, r, "run", "-ticks", "2", "-interval", "1ms", "-log-file", path, "-json")
	require.NoError(t, err)
	require.Empty(t, stderr)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"[BT] tree ready"`)
	require.Contains(t, string(data), `"msg":"[BT] run finished"`)
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	r := newRegistry(config.NewConfig(), "")
	for _, args := range [][]string{
		{"run", "-interval", "0s"},
		{"run", "-ticks", "-1", "-interval", "1ms"},
		{"run", "-color", "rainbow"},
		{"run", "-script", filepath.Join(t.TempDir(), "missing.js"), "-ticks", "1", "-log-level", "error"},
		{"run", "extra"},
		{"run", "-no-such-flag"},
		{"watch", "extra"},
		{"watch", "-interval", "-1s"},
	} {
		_, _, err := run(t, r, args...)
		require.Error(t, err, args)
	}
}

func TestRun_Script(t *testing.T) {
	t.Parallel()

	script := filepath.Join(t.TempDir(), "agent.js")
	require.NoError(t, os.WriteFile(script, []byte(`
		function patrol(bb, req) { bb.set("scripted", true); return "progress"; }
		function attack(bb, req) { bb.set("scripted", true); return "progress"; }
	`), 0o644))

	cfg := config.NewConfig()
	cfg.SetGlobalOption("tree.script", script)
	cfg.SetGlobalOption("log.level", "error")
	cfg.SetGlobalOption("tick.interval", "1ms")
	cfg.SetSectionOption("run", "tick.count", "1")
	cfg.SetSectionOption("run", "json", "true")

	out, _, err := run(t, newRegistry(cfg, ""), "run", "-seed", "1")
	require.NoError(t, err)
	require.Contains(t, out, `"scripted": true`)
}

func TestColorProfile(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.Equal(t, termenv.Ascii, colorProfile("never", &buf))
	require.Equal(t, termenv.ANSI256, colorProfile("always", &buf))
	require.Equal(t, termenv.Ascii, colorProfile("auto", &buf))
	require.False(t, isTerminal(&buf))
}
