package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetKeyInFile(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name       string
		initial    string
		key, value string
		want       string
	}{
		{"empty file", "", "color", "never", "color never\n"},
		{"append", "verbose true\n", "color", "never", "verbose true\ncolor never\n"},
		{"replace", "# c\ncolor auto\nverbose true\n", "color", "always", "# c\ncolor always\nverbose true\n"},
		{"before section", "verbose true\n\n[run]\njson true\n", "tree.seed", "3", "verbose true\n\ntree.seed 3\n[run]\njson true\n"},
		{"section untouched", "[run]\njson true\n", "json", "false", "json false\n[run]\njson true\n"},
		{"bare key", "color auto\n", "verbose", "", "color auto\nverbose\n"},
		{"spaces in value", "", "tree.script", "/tmp/my tree.js", "tree.script /tmp/my tree.js\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "nested", "config")
			if tc.initial != "" {
				require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
				require.NoError(t, os.WriteFile(path, []byte(tc.initial), 0o644))
			}
			require.NoError(t, SetKeyInFile(path, tc.key, tc.value))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			require.Equal(t, tc.want, string(data))

			entries, err := os.ReadDir(filepath.Dir(path))
			require.NoError(t, err)
			require.Len(t, entries, 1, "temporary file left behind")
		})
	}
}

func TestSetKeyInFile_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, SetKeyInFile(path, "tick.interval", "20ms"))
	require.NoError(t, SetKeyInFile(path, "tick.interval", "30ms"))
	require.NoError(t, SetKeyInFile(path, "tree.repeat", "false"))

	c, err := LoadFromPath(path)
	require.NoError(t, err)
	require.False(t, c.HasWarnings())
	require.Equal(t, map[string]string{"tick.interval": "30ms", "tree.repeat": "false"}, c.Global)
}
