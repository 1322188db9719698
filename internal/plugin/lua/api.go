package lua

import (
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/loreleaf/loreleaf/internal/command"
	"github.com/loreleaf/loreleaf/internal/lifecycle"
	"github.com/loreleaf/loreleaf/internal/plugin"
	"github.com/loreleaf/loreleaf/internal/view"
)

// installAPI builds the `loreleaf` global table the script programs
// against. Every registration routes through the plugin facade, so the
// node's unload pass is the single cleanup path for script-made state.
func installAPI(r *Runtime, p *plugin.Plugin) {
	L := r.State()

	root := L.NewTable()
	L.SetField(root, "commands", commandsModule(r, p))
	L.SetField(root, "events", eventsModule(r, p))
	L.SetField(root, "storage", storageModule(r, p))
	L.SetField(root, "intervals", intervalsModule(r, p))
	L.SetField(root, "views", viewsModule(r, p))
	L.SetGlobal("loreleaf", root)
}

// commandsModule exposes command registration and execution.
//
//	loreleaf.commands.register{ id = "x.y", title = "Do Y", handler = fn }
//	loreleaf.commands.execute("x.y", { key = "value" })
func commandsModule(r *Runtime, p *plugin.Plugin) *lua.LTable {
	L := r.State()
	mod := L.NewTable()

	L.SetField(mod, "register", L.NewFunction(func(L *lua.LState) int {
		opts := L.CheckTable(1)
		id := lua.LVAsString(L.GetField(opts, "id"))
		title := lua.LVAsString(L.GetField(opts, "title"))
		handler, ok := L.GetField(opts, "handler").(*lua.LFunction)
		if id == "" || !ok {
			L.RaiseError("commands.register requires id and handler")
			return 0
		}

		err := p.AddCommand(&command.Command{
			ID:    id,
			Title: title,
			Handler: func(args map[string]any) error {
				return r.call(handler, func(L *lua.LState) []lua.LValue {
					if args == nil {
						return []lua.LValue{lua.LNil}
					}
					return []lua.LValue{toLua(L, args)}
				})
			},
		})
		if err != nil {
			L.RaiseError("commands.register: %v", err)
		}
		return 0
	}))

	L.SetField(mod, "execute", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		var args map[string]any
		if t, ok := L.Get(2).(*lua.LTable); ok {
			if m, ok := fromLua(t).(map[string]any); ok {
				args = m
			}
		}
		if err := p.Services().Commands.Execute(id, args); err != nil {
			L.RaiseError("commands.execute: %v", err)
		}
		return 0
	}))

	return mod
}

// eventsModule exposes the host event bus.
//
//	loreleaf.events.on("vault.change", function(topic, payload) ... end)
//	loreleaf.events.emit("my-plugin.ready", { version = 2 })
func eventsModule(r *Runtime, p *plugin.Plugin) *lua.LTable {
	L := r.State()
	mod := L.NewTable()

	L.SetField(mod, "on", L.NewFunction(func(L *lua.LState) int {
		topic := L.CheckString(1)
		handler := L.CheckFunction(2)

		_, err := p.RegisterEvent(topic, func(topic string, payload any) {
			r.call(handler, func(L *lua.LState) []lua.LValue {
				return []lua.LValue{lua.LString(topic), toLua(L, payload)}
			})
		})
		if err != nil {
			L.RaiseError("events.on: %v", err)
		}
		return 0
	}))

	L.SetField(mod, "emit", L.NewFunction(func(L *lua.LState) int {
		topic := L.CheckString(1)
		var payload any
		if v := L.Get(2); v != lua.LNil {
			payload = fromLua(v)
		}
		p.Services().Events.Publish(topic, payload)
		return 0
	}))

	return mod
}

// storageModule exposes the plugin's settings document, whole (load
// and save) or one dotted path at a time (get and set).
//
//	local data = loreleaf.storage.load()
//	loreleaf.storage.save(data)
//	local size = loreleaf.storage.get("editor.fontSize")
//	loreleaf.storage.set("editor.fontSize", 14)
func storageModule(r *Runtime, p *plugin.Plugin) *lua.LTable {
	L := r.State()
	mod := L.NewTable()

	L.SetField(mod, "load", L.NewFunction(func(L *lua.LState) int {
		L.Push(toLua(L, p.LoadData()))
		return 1
	}))

	L.SetField(mod, "save", L.NewFunction(func(L *lua.LState) int {
		t := L.CheckTable(1)
		data, ok := fromLua(t).(map[string]any)
		if !ok {
			L.RaiseError("storage.save expects a table with string keys")
			return 0
		}
		p.SaveData(data)
		return 0
	}))

	L.SetField(mod, "get", L.NewFunction(func(L *lua.LState) int {
		path := L.CheckString(1)
		v, ok := p.Services().Data.Get(p.Name(), path)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(toLua(L, v))
		return 1
	}))

	L.SetField(mod, "set", L.NewFunction(func(L *lua.LState) int {
		path := L.CheckString(1)
		value := fromLua(L.Get(2))
		if !p.Services().Data.Set(p.Name(), path, value) {
			L.RaiseError("storage.set: %s not written", path)
		}
		return 0
	}))

	return mod
}

// intervalsModule exposes recurring tasks.
//
//	loreleaf.intervals.every(60000, function() ... end)
func intervalsModule(r *Runtime, p *plugin.Plugin) *lua.LTable {
	L := r.State()
	mod := L.NewTable()

	L.SetField(mod, "every", L.NewFunction(func(L *lua.LState) int {
		ms := L.CheckInt(1)
		fn := L.CheckFunction(2)
		if ms <= 0 {
			L.RaiseError("intervals.every requires a positive period")
			return 0
		}

		p.Repeat(time.Duration(ms)*time.Millisecond, func() {
			if err := r.call(fn, nil); err != nil {
				p.Services().Log().Warn("interval callback failed",
					"plugin", p.Name(), "error", err)
			}
		})
		return 0
	}))

	return mod
}

// viewsModule exposes view type registration.
//
//	loreleaf.views.register("calendar", "Calendar")
//	loreleaf.views.map_extensions({ "ics" }, "calendar")
func viewsModule(r *Runtime, p *plugin.Plugin) *lua.LTable {
	L := r.State()
	mod := L.NewTable()

	L.SetField(mod, "register", L.NewFunction(func(L *lua.LState) int {
		viewType := L.CheckString(1)
		display := L.OptString(2, viewType)

		err := p.RegisterView(viewType, func() view.View {
			return &scriptView{
				Node:     lifecycle.New(),
				viewType: viewType,
				display:  display,
			}
		})
		if err != nil {
			L.RaiseError("views.register: %v", err)
		}
		return 0
	}))

	L.SetField(mod, "map_extensions", L.NewFunction(func(L *lua.LState) int {
		extsTable := L.CheckTable(1)
		viewType := L.CheckString(2)

		var exts []string
		extsTable.ForEach(func(_, v lua.LValue) {
			exts = append(exts, v.String())
		})

		if err := p.RegisterExtensions(exts, viewType); err != nil {
			L.RaiseError("views.map_extensions: %v", err)
		}
		return 0
	}))

	return mod
}

// scriptView is the view instance produced for Lua-registered view
// types. Rendering stays host-side; the script only names the type.
type scriptView struct {
	*lifecycle.Node
	viewType string
	display  string
}

func (v *scriptView) ViewType() string    { return v.viewType }
func (v *scriptView) DisplayText() string { return v.display }
