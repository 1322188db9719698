// Package storage persists per-plugin settings as JSON documents.
//
// The store degrades instead of failing: reading a document that does
// not exist or cannot be parsed yields an empty map, and problems are
// logged rather than propagated into lifecycle code.
package storage

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Store reads and writes plugin data documents under a base directory.
// Each plugin gets one document at <dir>/<id>/data.json.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a store rooted at dir. A nil logger falls back to
// slog.Default.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// path returns the document location for a plugin ID.
func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id, "data.json")
}

// Load returns the stored data for a plugin. A missing or unreadable
// document yields an empty map; the failure is logged, never returned.
func (s *Store) Load(id string) map[string]any {
	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("plugin data unreadable, starting empty",
				"plugin", id, "error", err)
		}
		return map[string]any{}
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		s.logger.Warn("plugin data corrupt, starting empty",
			"plugin", id, "error", err)
		return map[string]any{}
	}
	if data == nil {
		data = map[string]any{}
	}
	return data
}

// Save writes the plugin's data document, creating the containing
// directory first. Failures are logged and reported as a plain bool so
// callers can surface them without aborting lifecycle transitions.
func (s *Store) Save(id string, data map[string]any) bool {
	if data == nil {
		data = map[string]any{}
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		s.logger.Warn("plugin data not serializable", "plugin", id, "error", err)
		return false
	}

	path := s.path(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.logger.Warn("plugin data dir not writable", "plugin", id, "error", err)
		return false
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		s.logger.Warn("plugin data write failed", "plugin", id, "error", err)
		return false
	}
	return true
}

// Get reads a single dotted path out of the plugin's raw document
// without decoding the whole map. The bool reports presence.
func (s *Store) Get(id, path string) (any, bool) {
	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, false
	}
	result := gjson.GetBytes(raw, path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

// Set updates a single dotted path in the plugin's document, creating
// the document if needed. Returns false on any failure (logged).
func (s *Store) Set(id, path string, value any) bool {
	docPath := s.path(id)

	raw, err := os.ReadFile(docPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("plugin data unreadable", "plugin", id, "error", err)
			return false
		}
		raw = []byte("{}")
	}

	updated, err := sjson.SetBytes(raw, path, value)
	if err != nil {
		s.logger.Warn("plugin data update failed",
			"plugin", id, "path", path, "error", err)
		return false
	}

	if err := os.MkdirAll(filepath.Dir(docPath), 0o755); err != nil {
		s.logger.Warn("plugin data dir not writable", "plugin", id, "error", err)
		return false
	}
	if err := os.WriteFile(docPath, updated, 0o644); err != nil {
		s.logger.Warn("plugin data write failed", "plugin", id, "error", err)
		return false
	}
	return true
}

// Delete removes a plugin's document. Missing documents are fine.
func (s *Store) Delete(id string) {
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("plugin data delete failed", "plugin", id, "error", err)
	}
}
