package plugin

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes plugin directories and reports which plugin changed
// on disk, debounced so editor save bursts produce one notification.
type Watcher struct {
	watcher  *fsnotify.Watcher
	roots    []string
	onChange func(pluginName string)
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer

	closeOnce sync.Once
	done      chan struct{}
}

// NewWatcher watches the given plugin root directories. onChange is
// called from a background goroutine with the plugin directory name
// whenever files below it change.
func NewWatcher(roots []string, onChange func(pluginName string), logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		watcher:  fsw,
		roots:    roots,
		onChange: onChange,
		debounce: 250 * time.Millisecond,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}

	// fsnotify does not recurse, so each plugin directory is watched
	// alongside its root; directories that appear later are picked up
	// from Create events in the loop.
	for _, root := range roots {
		if err := fsw.Add(root); err != nil {
			w.logger.Warn("plugin dir not watchable", "dir", root, "error", err)
			continue
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				w.watchDir(filepath.Join(root, entry.Name()))
			}
		}
	}

	go w.loop()
	return w, nil
}

// watchDir adds one plugin directory to the watch list.
func (w *Watcher) watchDir(dir string) {
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn("plugin dir not watchable", "dir", dir, "error", err)
	}
}

// Close stops the watcher and cancels pending notifications.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()

		w.mu.Lock()
		for _, timer := range w.pending {
			timer.Stop()
		}
		w.pending = make(map[string]*time.Timer)
		w.mu.Unlock()
	})
	return err
}

// loop translates raw filesystem events into debounced plugin names.
func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					w.watchDir(ev.Name)
				}
			}
			if name := w.pluginFor(ev.Name); name != "" {
				w.schedule(name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("plugin watcher error", "error", err)
		}
	}
}

// pluginFor maps a changed path to the plugin directory name under one
// of the watched roots, or "" when the path is outside all roots.
func (w *Watcher) pluginFor(path string) string {
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
		return parts[0]
	}
	return ""
}

// schedule arms (or re-arms) the debounce timer for a plugin.
func (w *Watcher) schedule(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[name]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[name] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, name)
		w.mu.Unlock()

		select {
		case <-w.done:
		default:
			w.onChange(name)
		}
	})
}
