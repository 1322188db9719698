package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Manifest describes a plugin's identity, entry point, and
// contributions, read from plugin.json in the plugin directory.
type Manifest struct {
	// Identity
	Name          string `json:"name"`          // Unique identifier (e.g. "daily-notes")
	Version       string `json:"version"`       // Semver (e.g. "1.2.0")
	DisplayName   string `json:"displayName"`   // Human-readable name
	Description   string `json:"description"`   // Short description
	Author        string `json:"author"`        // Author name or org
	MinAppVersion string `json:"minAppVersion"` // Minimum Loreleaf version

	// Entry point
	Main string `json:"main"` // Relative path to main Lua file (default: "init.lua")

	// Contributions
	Commands []CommandContribution `json:"commands"`
	Views    []ViewContribution    `json:"views"`

	// Default settings merged under stored data on first load.
	SettingsDefaults map[string]any `json:"settingsDefaults"`

	// Internal: path to the plugin directory
	path string
}

// CommandContribution declares a command the plugin provides.
type CommandContribution struct {
	ID    string `json:"id"`    // Command ID (e.g. "daily-notes.open")
	Title string `json:"title"` // Display title
}

// ViewContribution declares a view type the plugin provides.
type ViewContribution struct {
	Type       string   `json:"type"`       // View type (e.g. "calendar")
	Extensions []string `json:"extensions"` // File extensions opened by this view
}

// Validation errors.
var (
	ErrMissingName      = errors.New("manifest: name is required")
	ErrInvalidName      = errors.New("manifest: name must be alphanumeric with hyphens")
	ErrInvalidVersion   = errors.New("manifest: version must be valid semver")
	ErrInvalidMain      = errors.New("manifest: main must be a .lua file")
	ErrMissingCommandID = errors.New("manifest: command id is required")
	ErrMissingViewType  = errors.New("manifest: view type is required")
)

// namePattern validates plugin names.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$|^[a-z]$`)

// semverPattern validates version strings (simplified semver).
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// LoadManifest loads and validates a plugin manifest from a file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	m.path = filepath.Dir(path)
	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifestFromDir loads the plugin.json manifest in dir.
func LoadManifestFromDir(dir string) (*Manifest, error) {
	return LoadManifest(filepath.Join(dir, "plugin.json"))
}

// applyDefaults sets default values for optional fields.
func (m *Manifest) applyDefaults() {
	if m.Main == "" {
		m.Main = "init.lua"
	}
	if m.Version == "" {
		m.Version = "0.0.0"
	}
}

// Validate checks that the manifest is valid.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return ErrMissingName
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("%w: %s", ErrInvalidName, m.Name)
	}

	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("%w: %s", ErrInvalidVersion, m.Version)
	}

	if m.Main != "" && filepath.Ext(m.Main) != ".lua" {
		return fmt.Errorf("%w: %s", ErrInvalidMain, m.Main)
	}

	for i, cmd := range m.Commands {
		if cmd.ID == "" {
			return fmt.Errorf("%w at index %d", ErrMissingCommandID, i)
		}
	}

	for i, v := range m.Views {
		if v.Type == "" {
			return fmt.Errorf("%w at index %d", ErrMissingViewType, i)
		}
	}

	return nil
}

// Path returns the path to the plugin directory.
func (m *Manifest) Path() string {
	return m.path
}

// MainPath returns the full path to the main Lua file.
func (m *Manifest) MainPath() string {
	return filepath.Join(m.path, m.Main)
}

// String returns a string representation of the manifest.
func (m *Manifest) String() string {
	display := m.DisplayName
	if display == "" {
		display = m.Name
	}
	return fmt.Sprintf("%s v%s", display, m.Version)
}

// Clone creates a deep copy of the manifest.
func (m *Manifest) Clone() *Manifest {
	clone := *m

	if m.Commands != nil {
		clone.Commands = make([]CommandContribution, len(m.Commands))
		copy(clone.Commands, m.Commands)
	}
	if m.Views != nil {
		clone.Views = make([]ViewContribution, len(m.Views))
		for i, v := range m.Views {
			clone.Views[i] = v
			if v.Extensions != nil {
				clone.Views[i].Extensions = append([]string{}, v.Extensions...)
			}
		}
	}
	if m.SettingsDefaults != nil {
		clone.SettingsDefaults = make(map[string]any, len(m.SettingsDefaults))
		for k, v := range m.SettingsDefaults {
			clone.SettingsDefaults[k] = v
		}
	}
	return &clone
}
