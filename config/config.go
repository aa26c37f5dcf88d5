// Package config loads the bridge's workspace configuration: grammar
// search paths, per-language query/capture settings, the downstream
// language-server map, and bridge-wide tuning knobs, from a TOML file
// resolved via the XDG base directory convention.
//
// Grounded on the teacher's user-config-directory resolution
// (the pack's keystorm config package defaultUserConfigDir), adapted
// from its layered map-based loader to a direct struct decode via
// BurntSushi/toml, since the bridge's configuration schema is fixed
// and known at compile time rather than dynamically layered.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// LanguageConfig configures one language: where its grammar comes from
// (bundled/dynamic) and how its highlight captures map to LSP semantic
// token types/modifiers.
type LanguageConfig struct {
	Grammar       string            `toml:"grammar"`        // "bundled" or a .so path
	TokenTypes    map[string]string `toml:"token_types"`    // capture name -> semantic token type
	TokenModifier map[string]string `toml:"token_modifiers"` // modifier suffix -> bit name
}

// ServerConfig configures one downstream language server, keyed by
// language in the Config.LanguageServers map. The special key "_"
// supplies defaults applied to every language without its own entry.
type ServerConfig struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Env     []string `toml:"env"`
}

// BridgeConfig tunes cross-cutting bridge behavior.
type BridgeConfig struct {
	MaxConcurrentRegions    int `toml:"max_concurrent_regions"`
	MaxOpenDocuments        int `toml:"max_open_documents"`
	HandshakeTimeoutSeconds int `toml:"handshake_timeout_seconds"`
}

// Config is the bridge's full workspace configuration.
type Config struct {
	GrammarSearchPaths []string                  `toml:"grammar_search_paths"`
	Languages          map[string]LanguageConfig `toml:"languages"`
	LanguageServers    map[string]ServerConfig   `toml:"language_servers"`
	Bridge             BridgeConfig              `toml:"bridge"`
}

// Each default applies to any [bridge] field the config file leaves
// unset or at zero or below, including the handshake timeout.
const (
	DefaultMaxConcurrentRegions    = 10
	DefaultMaxOpenDocuments        = 500
	DefaultHandshakeTimeoutSeconds = 5
)

// Default returns a Config with every tunable at its documented
// default and no configured languages or servers — the baseline a
// caller starts from before merging a loaded file on top.
func Default() Config {
	return Config{
		Languages:       map[string]LanguageConfig{},
		LanguageServers: map[string]ServerConfig{},
		Bridge: BridgeConfig{
			MaxConcurrentRegions:    DefaultMaxConcurrentRegions,
			MaxOpenDocuments:        DefaultMaxOpenDocuments,
			HandshakeTimeoutSeconds: DefaultHandshakeTimeoutSeconds,
		},
	}
}

// Load reads and decodes the TOML file at path, merging it onto
// Default(). A missing file is not an error: Load returns the defaults
// unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	var onDisk Config
	if _, err := toml.Decode(string(data), &onDisk); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	merge(&cfg, onDisk)
	return cfg, nil
}

// merge overlays onDisk's explicitly-set fields onto cfg, treating a
// zero value for Bridge's int fields as "not set" rather than "set to
// zero" — a 0-capacity bridge section would otherwise wedge the whole
// pipeline, which is never what an empty TOML table means.
func merge(cfg *Config, onDisk Config) {
	if len(onDisk.GrammarSearchPaths) > 0 {
		cfg.GrammarSearchPaths = onDisk.GrammarSearchPaths
	}
	for lang, lc := range onDisk.Languages {
		cfg.Languages[lang] = lc
	}
	for name, sc := range onDisk.LanguageServers {
		cfg.LanguageServers[name] = sc
	}
	if onDisk.Bridge.MaxConcurrentRegions > 0 {
		cfg.Bridge.MaxConcurrentRegions = onDisk.Bridge.MaxConcurrentRegions
	}
	if onDisk.Bridge.MaxOpenDocuments > 0 {
		cfg.Bridge.MaxOpenDocuments = onDisk.Bridge.MaxOpenDocuments
	}
	if onDisk.Bridge.HandshakeTimeoutSeconds > 0 {
		cfg.Bridge.HandshakeTimeoutSeconds = onDisk.Bridge.HandshakeTimeoutSeconds
	}
}

// ServerFor resolves the ServerConfig that should back language,
// falling back to the "_" wildcard entry if language has no specific
// entry, and (false) if neither exists.
func (c Config) ServerFor(language string) (ServerConfig, bool) {
	if sc, ok := c.LanguageServers[language]; ok {
		return sc, true
	}
	if sc, ok := c.LanguageServers["_"]; ok {
		return sc, true
	}
	return ServerConfig{}, false
}

// UserConfigPath returns the path the bridge reads its configuration
// from by XDG convention: $XDG_CONFIG_HOME/tendril/tendril.toml,
// falling back to ~/.config/tendril/tendril.toml when XDG_CONFIG_HOME
// is unset.
func UserConfigPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tendril", "tendril.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "tendril", "tendril.toml"), nil
}
