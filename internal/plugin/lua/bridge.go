package lua

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// toLua converts a Go value into its Lua representation. Maps and
// slices become tables; anything else falls back to its string form.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		t := L.NewTable()
		for i, item := range val {
			t.RawSetInt(i+1, toLua(L, item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, item := range val {
			t.RawSetString(k, toLua(L, item))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// fromLua converts a Lua value into a plain Go value suitable for JSON
// persistence. Tables with contiguous 1..n integer keys become slices;
// all other tables become string-keyed maps. Cycles are broken with
// nil. Functions and userdata do not survive the trip.
func fromLua(lv lua.LValue) any {
	return fromLuaSeen(lv, make(map[*lua.LTable]bool))
}

func fromLuaSeen(lv lua.LValue, seen map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if seen[v] {
			return nil
		}
		seen[v] = true
		return tableFromLua(v, seen)
	default:
		return nil
	}
}

func tableFromLua(t *lua.LTable, seen map[*lua.LTable]bool) any {
	// A table is a sequence when its keys are exactly 1..n.
	length := t.Len()
	count := 0
	sequence := true
	t.ForEach(func(k, _ lua.LValue) {
		count++
		n, ok := k.(lua.LNumber)
		if !ok || float64(n) != float64(int(n)) || int(n) < 1 || int(n) > length {
			sequence = false
		}
	})

	if sequence && count == length && length > 0 {
		arr := make([]any, length)
		for i := 1; i <= length; i++ {
			arr[i-1] = fromLuaSeen(t.RawGetInt(i), seen)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = fromLuaSeen(v, seen)
	})
	return m
}
