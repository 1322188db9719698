package lua

import (
	"errors"
	"fmt"
	"os"

	"github.com/loreleaf/loreleaf/internal/lifecycle"
	"github.com/loreleaf/loreleaf/internal/plugin"
)

// Factory returns a plugin.Factory that hosts each discovered plugin
// in its own Lua interpreter. The script's global onload/onunload
// functions become the lifecycle hooks of the plugin's node.
func Factory(opts ...RuntimeOption) plugin.Factory {
	return func(info *plugin.Info, services plugin.Services) (*plugin.Plugin, error) {
		if info == nil || info.Manifest == nil {
			return nil, plugin.ErrNilManifest
		}

		host := &scriptHost{
			mainPath: info.Manifest.MainPath(),
			opts:     opts,
		}
		p, err := plugin.New(info.Manifest, services, lifecycle.WithHooks(host))
		if err != nil {
			return nil, err
		}
		host.plugin = p
		return p, nil
	}
}

// scriptHost adapts one Lua script to the lifecycle hook interfaces.
type scriptHost struct {
	plugin   *plugin.Plugin
	runtime  *Runtime
	mainPath string
	opts     []RuntimeOption
}

// Initialize starts the interpreter, installs the host API, runs the
// entry script, and calls its onload function. Registrations made by
// the script attach to the already-loaded node and are released by the
// same unload pass that stops the interpreter.
func (h *scriptHost) Initialize() error {
	if _, err := os.Stat(h.mainPath); err != nil {
		return fmt.Errorf("%w: %s", plugin.ErrNoEntryPoint, h.mainPath)
	}

	h.runtime = NewRuntime(h.opts...)
	installAPI(h.runtime, h.plugin)

	if err := h.runtime.DoFile(h.mainPath); err != nil {
		h.runtime.Close()
		return fmt.Errorf("run %s: %w", h.mainPath, err)
	}
	if err := h.runtime.CallGlobal("onload"); err != nil {
		return fmt.Errorf("onload: %w", err)
	}
	return nil
}

// Teardown calls the script's onunload and stops the interpreter. It
// runs after the node has already detached every host registration, so
// onunload sees a plugin with no remaining host footprint.
func (h *scriptHost) Teardown() {
	if h.runtime == nil {
		return
	}
	if err := h.runtime.CallGlobal("onunload"); err != nil && !errors.Is(err, ErrRuntimeClosed) {
		h.plugin.Services().Log().Warn("onunload failed",
			"plugin", h.plugin.Name(), "error", err)
	}
	h.runtime.Close()
	h.runtime = nil
}
