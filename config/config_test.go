package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, DefaultMaxConcurrentRegions, cfg.Bridge.MaxConcurrentRegions)
	require.Equal(t, DefaultMaxOpenDocuments, cfg.Bridge.MaxOpenDocuments)
}

func TestLoad_MergesOverOnDiskValues(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tendril.toml")
	contents := `
grammar_search_paths = ["/opt/grammars"]

[bridge]
max_concurrent_regions = 4

[languages.lua]
grammar = "bundled"
[languages.lua.token_types]
function = "function"

[language_servers.lua]
command = "lua-language-server"

[language_servers._]
command = "echo"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"/opt/grammars"}, cfg.GrammarSearchPaths)
	require.Equal(t, 4, cfg.Bridge.MaxConcurrentRegions)
	require.Equal(t, DefaultMaxOpenDocuments, cfg.Bridge.MaxOpenDocuments, "unset bridge fields keep their default")
	require.Equal(t, "function", cfg.Languages["lua"].TokenTypes["function"])

	sc, ok := cfg.ServerFor("lua")
	require.True(t, ok)
	require.Equal(t, "lua-language-server", sc.Command)

	wildcard, ok := cfg.ServerFor("yaml")
	require.True(t, ok)
	require.Equal(t, "echo", wildcard.Command)

	_, ok = Default().ServerFor("rust")
	require.False(t, ok)
}

func TestUserConfigPath_XDGOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/xdg")
	path, err := UserConfigPath()
	require.NoError(t, err)
	require.Equal(t, "/custom/xdg/tendril/tendril.toml", path)
}

func TestUserConfigPath_FallsBackToHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/tester")
	path, err := UserConfigPath()
	require.NoError(t, err)
	require.Equal(t, "/home/tester/.config/tendril/tendril.toml", path)
}
