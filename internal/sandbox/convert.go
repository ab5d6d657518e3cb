package sandbox

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// toLua converts a plain Go value into its Lua representation. Only the JSON
// value domain is supported; anything else is a programmer error on the
// caller's side.
func toLua(L *lua.LState, value any) (lua.LValue, error) {
	switch v := value.(type) {
	case nil:
		return lua.LNil, nil
	case bool:
		return lua.LBool(v), nil
	case string:
		return lua.LString(v), nil
	case float64:
		return lua.LNumber(v), nil
	case float32:
		return lua.LNumber(v), nil
	case int:
		return lua.LNumber(v), nil
	case int64:
		return lua.LNumber(v), nil
	case []any:
		tbl := L.NewTable()
		for i, item := range v {
			lv, err := toLua(L, item)
			if err != nil {
				return nil, err
			}
			tbl.RawSetInt(i+1, lv)
		}
		return tbl, nil
	case []string:
		tbl := L.NewTable()
		for i, item := range v {
			tbl.RawSetInt(i+1, lua.LString(item))
		}
		return tbl, nil
	case map[string]any:
		tbl := L.NewTable()
		for key, item := range v {
			lv, err := toLua(L, item)
			if err != nil {
				return nil, err
			}
			tbl.RawSetString(key, lv)
		}
		return tbl, nil
	default:
		return nil, fmt.Errorf("unsupported value of type %T", value)
	}
}

// fromLua converts a Lua value back into plain Go values. Tables with a
// contiguous integer prefix become slices, empty tables become empty slices,
// everything else becomes a string keyed map. Functions, userdata, and
// mixed-key tables are rejected.
func fromLua(value lua.LValue) (any, error) {
	switch v := value.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(v), nil
	case lua.LString:
		return string(v), nil
	case lua.LNumber:
		return float64(v), nil
	case *lua.LTable:
		return tableToGo(v)
	default:
		return nil, fmt.Errorf("unsupported return value of type %s", value.Type())
	}
}

func tableToGo(tbl *lua.LTable) (any, error) {
	n := tbl.MaxN()
	if n > 0 {
		items := make([]any, 0, n)
		var convErr error
		tbl.ForEach(func(key, val lua.LValue) {
			if convErr != nil {
				return
			}
			if _, ok := key.(lua.LNumber); !ok {
				convErr = fmt.Errorf("table mixes array and map keys")
			}
		})
		if convErr != nil {
			return nil, convErr
		}
		for i := 1; i <= n; i++ {
			item, err := fromLua(tbl.RawGetInt(i))
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	}

	result := map[string]any{}
	var convErr error
	tbl.ForEach(func(key, val lua.LValue) {
		if convErr != nil {
			return
		}
		name, ok := key.(lua.LString)
		if !ok {
			convErr = fmt.Errorf("table key %s is not a string", key.String())
			return
		}
		item, err := fromLua(val)
		if err != nil {
			convErr = err
			return
		}
		result[string(name)] = item
	})
	if convErr != nil {
		return nil, convErr
	}
	// `{}` is both the empty list and the empty object in Lua. Scripts return
	// lists (blocking keys) far more often than empty objects, so the empty
	// table converts to a slice; map consumers accept the empty slice instead.
	if len(result) == 0 {
		return []any{}, nil
	}
	return result, nil
}
