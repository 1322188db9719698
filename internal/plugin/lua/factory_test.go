package lua

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/loreleaf/loreleaf/internal/command"
	"github.com/loreleaf/loreleaf/internal/event"
	"github.com/loreleaf/loreleaf/internal/plugin"
	"github.com/loreleaf/loreleaf/internal/schedule"
	"github.com/loreleaf/loreleaf/internal/storage"
	"github.com/loreleaf/loreleaf/internal/view"
)

// scriptPlugin writes a plugin directory with the given init.lua and
// returns its discovery info.
func scriptPlugin(t *testing.T, name, code string) *plugin.Info {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"name": "` + name + `", "version": "1.0.0"}`
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "init.lua"), []byte(code), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := plugin.LoadManifestFromDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return &plugin.Info{Name: name, Path: dir, Manifest: m}
}

func luaServices(t *testing.T) plugin.Services {
	t.Helper()
	sched := schedule.New()
	t.Cleanup(sched.Shutdown)
	return plugin.Services{
		Commands:  command.NewRegistry(),
		Events:    event.NewBus(),
		Views:     view.NewRegistry(),
		Scheduler: sched,
		Data:      storage.NewStore(t.TempDir(), nil),
	}
}

func TestScriptLifecycle(t *testing.T) {
	svc := luaServices(t)
	info := scriptPlugin(t, "greeter", `
		loaded = false
		function onload()
			loaded = true
			loreleaf.commands.register{
				id = "greeter.hello",
				title = "Say Hello",
				handler = function(args)
					loreleaf.events.emit("greeter.said", args and args.name or "world")
				end,
			}
		end
		function onunload()
			loreleaf.storage.save({ farewell = true })
		end
	`)

	p, err := Factory()(info, svc)
	if err != nil {
		t.Fatalf("Factory() error = %v", err)
	}
	if err := p.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !svc.Commands.Has("greeter.hello") {
		t.Fatal("script command not registered")
	}

	// Execute the script command from the host and observe the event
	// the script emits back.
	var heard any
	svc.Events.Subscribe("greeter.said", func(_ string, payload any) {
		heard = payload
	})
	if err := svc.Commands.Execute("greeter.hello", map[string]any{"name": "vault"}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if heard != "vault" {
		t.Errorf("event payload = %v, want vault", heard)
	}

	if err := p.Unload(); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}

	if svc.Commands.Has("greeter.hello") {
		t.Error("script command still registered after unload")
	}
	// onunload ran while the interpreter was still alive.
	if data := svc.Data.Load("greeter"); data["farewell"] != true {
		t.Errorf("onunload save not visible: %v", data)
	}
}

func TestScriptCommandExecutesCommand(t *testing.T) {
	// A script command that executes another command it registered
	// re-enters the interpreter; this must not deadlock.
	svc := luaServices(t)
	info := scriptPlugin(t, "chain", `
		hits = 0
		function onload()
			loreleaf.commands.register{
				id = "chain.inner",
				title = "Inner",
				handler = function() hits = hits + 1 end,
			}
			loreleaf.commands.register{
				id = "chain.outer",
				title = "Outer",
				handler = function()
					loreleaf.commands.execute("chain.inner")
				end,
			}
		end
	`)

	p, err := Factory()(info, svc)
	if err != nil {
		t.Fatalf("Factory() error = %v", err)
	}
	if err := p.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer p.Unload()

	if err := svc.Commands.Execute("chain.outer", nil); err != nil {
		t.Fatalf("Execute(chain.outer) error = %v", err)
	}
}

func TestScriptEventSubscription(t *testing.T) {
	svc := luaServices(t)
	info := scriptPlugin(t, "listener", `
		function onload()
			loreleaf.events.on("vault.change", function(topic, payload)
				loreleaf.events.emit("listener.echo", payload)
			end)
		end
	`)

	p, err := Factory()(info, svc)
	if err != nil {
		t.Fatalf("Factory() error = %v", err)
	}
	if err := p.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var echoed any
	svc.Events.Subscribe("listener.echo", func(_ string, payload any) {
		echoed = payload
	})

	svc.Events.Publish("vault.change", "note.md")
	if echoed != "note.md" {
		t.Errorf("echoed = %v, want note.md", echoed)
	}

	if err := p.Unload(); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}
	echoed = nil
	svc.Events.Publish("vault.change", "other.md")
	if echoed != nil {
		t.Error("script handler still subscribed after unload")
	}
}

func TestEventDeliverySerializedWithIntervalTicks(t *testing.T) {
	// Bus deliveries and scheduler ticks reach the interpreter from
	// different goroutines; every entry must serialize on the runtime
	// lock or they corrupt the shared state.
	svc := luaServices(t)
	info := scriptPlugin(t, "pulse", `
		pokes = 0
		ticks = 0
		function onload()
			loreleaf.events.on("poke", function()
				pokes = pokes + 1
				loreleaf.storage.save({ pokes = pokes, ticks = ticks })
			end)
			loreleaf.intervals.every(1, function()
				ticks = ticks + 1
			end)
		end
	`)

	p, err := Factory()(info, svc)
	if err != nil {
		t.Fatalf("Factory() error = %v", err)
	}
	if err := p.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				svc.Events.Publish("poke", nil)
			}
		}()
	}
	wg.Wait()

	if err := p.Unload(); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}
	if got := svc.Data.Load("pulse")["pokes"]; got != float64(100) {
		t.Errorf("pokes = %v, want 100", got)
	}
}

func TestScriptViews(t *testing.T) {
	svc := luaServices(t)
	info := scriptPlugin(t, "calendar", `
		function onload()
			loreleaf.views.register("calendar", "Calendar")
			loreleaf.views.map_extensions({"ics"}, "calendar")
		end
	`)

	p, err := Factory()(info, svc)
	if err != nil {
		t.Fatalf("Factory() error = %v", err)
	}
	if err := p.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	v, err := svc.Views.Create("calendar")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if v.DisplayText() != "Calendar" {
		t.Errorf("DisplayText() = %q, want Calendar", v.DisplayText())
	}
	if vt, ok := svc.Views.TypeForExtension("ics"); !ok || vt != "calendar" {
		t.Errorf("TypeForExtension(ics) = %q, %v", vt, ok)
	}

	if err := p.Unload(); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}
	if svc.Views.Has("calendar") {
		t.Error("view type still registered after unload")
	}
}

func TestScriptLoadFailureSurfaces(t *testing.T) {
	svc := luaServices(t)
	info := scriptPlugin(t, "broken", `this is not lua`)

	p, err := Factory()(info, svc)
	if err != nil {
		t.Fatalf("Factory() error = %v", err)
	}
	if err := p.Load(); err == nil {
		t.Fatal("Load() of broken script error = nil, want parse error")
	}
}

func TestMissingEntryPoint(t *testing.T) {
	svc := luaServices(t)
	info := scriptPlugin(t, "hollow", ``)
	if err := os.Remove(filepath.Join(info.Path, "init.lua")); err != nil {
		t.Fatal(err)
	}

	p, err := Factory()(info, svc)
	if err != nil {
		t.Fatalf("Factory() error = %v", err)
	}
	if err := p.Load(); !errors.Is(err, plugin.ErrNoEntryPoint) {
		t.Errorf("Load() error = %v, want ErrNoEntryPoint", err)
	}
}

func TestScriptStoragePaths(t *testing.T) {
	svc := luaServices(t)
	info := scriptPlugin(t, "pathy", `
		function onload()
			loreleaf.storage.set("editor.fontSize", 14)
			local size = loreleaf.storage.get("editor.fontSize")
			if size ~= 14 then
				error("get returned " .. tostring(size))
			end
			if loreleaf.storage.get("editor.missing") ~= nil then
				error("missing path is not nil")
			end
		end
	`)

	p, err := Factory()(info, svc)
	if err != nil {
		t.Fatalf("Factory() error = %v", err)
	}
	if err := p.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer p.Unload()

	// The script's write landed in the host document.
	if v, ok := svc.Data.Get("pathy", "editor.fontSize"); !ok || v != float64(14) {
		t.Errorf("Get(editor.fontSize) = %v, %v; want 14, true", v, ok)
	}
}

func TestScriptStorageDefaults(t *testing.T) {
	svc := luaServices(t)
	info := scriptPlugin(t, "settings", `
		function onload()
			local data = loreleaf.storage.load()
			data.visits = (data.visits or 0) + 1
			loreleaf.storage.save(data)
		end
	`)

	factory := Factory()
	for i := 0; i < 2; i++ {
		p, err := factory(info, svc)
		if err != nil {
			t.Fatalf("Factory() error = %v", err)
		}
		if err := p.Load(); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if err := p.Unload(); err != nil {
			t.Fatalf("Unload() error = %v", err)
		}
	}

	if data := svc.Data.Load("settings"); data["visits"] != float64(2) {
		t.Errorf("visits = %v, want 2", data["visits"])
	}
}
