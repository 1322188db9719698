package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Loader discovers plugins on the filesystem. A plugin is a directory
// containing a plugin.json manifest next to its Lua entry point.
type Loader struct {
	// Search paths for plugins (checked in order)
	paths []string

	// Discovered plugins cache
	discovered map[string]*Info
}

// Info contains discovery information about a plugin.
type Info struct {
	Name     string
	Path     string
	Manifest *Manifest
	Err      error // non-nil when the manifest failed to parse
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPaths sets the plugin search paths.
func WithPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.paths = paths
	}
}

// NewLoader creates a new plugin loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		discovered: make(map[string]*Info),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Paths returns the configured search paths.
func (l *Loader) Paths() []string {
	return l.paths
}

// AddPath adds a search path.
func (l *Loader) AddPath(path string) {
	l.paths = append(l.paths, path)
}

// Discover finds all plugins in the search paths, sorted by name.
// Directories whose manifest fails to parse are reported with Err set
// so the host can show them as broken rather than invisible.
func (l *Loader) Discover() ([]*Info, error) {
	l.discovered = make(map[string]*Info)

	for _, basePath := range l.paths {
		entries, err := os.ReadDir(basePath)
		if err != nil {
			continue // missing search path is not an error
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(basePath, entry.Name())
			if _, err := os.Stat(filepath.Join(dir, "plugin.json")); err != nil {
				continue
			}

			info := &Info{Name: entry.Name(), Path: dir}
			manifest, err := LoadManifestFromDir(dir)
			if err != nil {
				info.Err = err
			} else {
				info.Name = manifest.Name
				info.Manifest = manifest
			}

			// First search path wins on name collisions.
			if _, seen := l.discovered[info.Name]; !seen {
				l.discovered[info.Name] = info
			}
		}
	}

	infos := make([]*Info, 0, len(l.discovered))
	for _, info := range l.discovered {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Refresh re-runs discovery and returns the fresh list.
func (l *Loader) Refresh() ([]*Info, error) {
	return l.Discover()
}

// Find returns discovery info for a plugin by name, running discovery
// first if it has not happened yet.
func (l *Loader) Find(name string) (*Info, error) {
	if len(l.discovered) == 0 {
		if _, err := l.Discover(); err != nil {
			return nil, err
		}
	}

	info, ok := l.discovered[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	if info.Err != nil {
		return nil, fmt.Errorf("plugin %q manifest: %w", name, info.Err)
	}
	return info, nil
}
