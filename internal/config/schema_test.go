package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchema_Register(t *testing.T) {
	t.Parallel()

	s := NewSchema()
	s.Register(
		ConfigOption{Key: "a", Type: TypeInt, Default: "1"},
		ConfigOption{Key: "b", Section: "run"},
		ConfigOption{Key: "a", Type: TypeInt, Default: "2"},
	)
	require.Equal(t, "2", s.Lookup("", "a").Default)
	require.Len(t, s.Options(""), 1)
	require.Nil(t, s.Lookup("", "b"))
	require.NotNil(t, s.Lookup("run", "b"))
	require.Equal(t, []string{"run"}, s.Sections())
}

func TestSchema_Resolve(t *testing.T) {
	s := DefaultSchema()
	c := NewConfig()

	require.Equal(t, "info", s.Resolve(c, "", "log.level"))
	require.Equal(t, "info", s.Resolve(nil, "run", "log.level"))
	require.Empty(t, s.Resolve(c, "", "nope"))

	c.SetGlobalOption("log.level", "warn")
	c.SetSectionOption("watch", "log.level", "debug")
	require.Equal(t, "warn", s.Resolve(c, "run", "log.level"))
	require.Equal(t, "debug", s.Resolve(c, "watch", "log.level"))

	t.Setenv("BEHAVE_LOG_LEVEL", "error")
	require.Equal(t, "error", s.Resolve(c, "watch", "log.level"))
}

func TestSchema_ResolveTyped(t *testing.T) {
	t.Parallel()

	s := DefaultSchema()
	c := NewConfig()
	c.SetGlobalOption("tick.count", "x")
	c.SetGlobalOption("tick.interval", "1s")
	c.SetGlobalOption("tree.repeat", "no")

	_, err := s.ResolveInt(c, "", "tick.count")
	require.ErrorContains(t, err, `"tick.count"`)

	d, err := s.ResolveDuration(c, "", "tick.interval")
	require.NoError(t, err)
	require.Equal(t, time.Second, d)

	b, err := s.ResolveBool(c, "", "tree.repeat")
	require.NoError(t, err)
	require.False(t, b)

	b, err = s.ResolveBool(c, "", "tree.script")
	require.NoError(t, err)
	require.False(t, b)
}

func TestSchema_Settings(t *testing.T) {
	t.Parallel()

	c, err := LoadFromReader(strings.NewReader(sample))
	require.NoError(t, err)

	s := DefaultSchema()
	run, err := s.Settings(c, "run")
	require.NoError(t, err)
	require.Equal(t, Settings{
		Verbose:       true,
		Color:         "auto",
		TickInterval:  50 * time.Millisecond,
		TickCount:     20,
		PoolSize:      64,
		Repeat:        true,
		ExprCacheSize: 1000,
		JSON:          true,
		Log:           LogSettings{Level: "info", MaxSizeMB: 10, MaxFiles: 5},
	}, run)

	watch, err := s.Settings(c, "watch")
	require.NoError(t, err)
	require.True(t, watch.Paused)
	require.False(t, watch.JSON)
	require.Zero(t, watch.TickCount)

	c.SetGlobalOption("color", "sometimes")
	_, err = s.Settings(c, "")
	require.ErrorContains(t, err, "color")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		opt   ConfigOption
		value string
		ok    bool
	}{
		{ConfigOption{Type: TypeString}, "anything", true},
		{ConfigOption{Type: TypeBool}, "yes", true},
		{ConfigOption{Type: TypeBool}, "y", false},
		{ConfigOption{Type: TypeInt}, "-3", true},
		{ConfigOption{Type: TypeInt, Min: 1}, "0", false},
		{ConfigOption{Type: TypeInt}, "1.5", false},
		{ConfigOption{Type: TypeDuration}, "250ms", true},
		{ConfigOption{Type: TypeDuration}, "-1s", false},
		{ConfigOption{Type: TypeDuration}, "10", false},
		{ConfigOption{Type: TypeEnum, Choices: []string{"a", "b"}}, "B", true},
		{ConfigOption{Type: TypeEnum, Choices: []string{"a", "b"}}, "c", false},
		{ConfigOption{Type: "complex"}, "1", false},
	} {
		err := tc.opt.validate(tc.value)
		if tc.ok {
			require.NoError(t, err, "%s %q", tc.opt.Type, tc.value)
		} else {
			require.Error(t, err, "%s %q", tc.opt.Type, tc.value)
		}
	}
}

func TestFormatHelp(t *testing.T) {
	t.Parallel()

	help := DefaultSchema().FormatHelp()
	require.True(t, strings.HasPrefix(help, "Global Options:\n"))
	require.Contains(t, help, "tick.interval")
	require.Contains(t, help, "type: duration, default: 100ms")
	require.Contains(t, help, "one of: debug|info|warn|error, default: info, env: BEHAVE_LOG_LEVEL")
	require.Contains(t, help, "\n[run] Options:\n")
	require.Less(t, strings.Index(help, "[run]"), strings.Index(help, "[watch]"))

	require.Empty(t, NewSchema().FormatHelp())
}
