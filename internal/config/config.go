// Package config loads the host configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config is the host configuration, read from loreleaf.toml.
type Config struct {
	// PluginDirs are the directories searched for plugins, in order.
	PluginDirs []string `toml:"plugin_dirs"`

	// DataDir is where plugin settings documents are stored.
	DataDir string `toml:"data_dir"`

	// WatchPlugins enables filesystem watching of plugin directories
	// for automatic reload.
	WatchPlugins bool `toml:"watch_plugins"`

	// Disabled lists plugin names that are discovered but never
	// loaded.
	Disabled []string `toml:"disabled"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	cfg := Config{WatchPlugins: false}

	if home, err := os.UserHomeDir(); err == nil {
		cfg.PluginDirs = append(cfg.PluginDirs,
			filepath.Join(home, ".config", "loreleaf", "plugins"),
			filepath.Join(home, ".local", "share", "loreleaf", "plugins"),
		)
		cfg.DataDir = filepath.Join(home, ".local", "share", "loreleaf", "plugin-data")
	}
	if cwd, err := os.Getwd(); err == nil {
		cfg.PluginDirs = append(cfg.PluginDirs, filepath.Join(cwd, ".loreleaf", "plugins"))
	}
	return cfg
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "loreleaf.toml"
	}
	return filepath.Join(home, ".config", "loreleaf", "loreleaf.toml")
}

// Load reads the config file at path, filling unset fields from
// Default. A missing file is not an error; the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	var fileCfg Config
	if err := toml.Unmarshal(raw, &fileCfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if len(fileCfg.PluginDirs) > 0 {
		cfg.PluginDirs = fileCfg.PluginDirs
	}
	if fileCfg.DataDir != "" {
		cfg.DataDir = fileCfg.DataDir
	}
	cfg.WatchPlugins = fileCfg.WatchPlugins
	if len(fileCfg.Disabled) > 0 {
		cfg.Disabled = fileCfg.Disabled
	}
	return cfg, nil
}

// IsDisabled reports whether a plugin name is on the disabled list.
func (c Config) IsDisabled(name string) bool {
	for _, d := range c.Disabled {
		if d == name {
			return true
		}
	}
	return false
}
