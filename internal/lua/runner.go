// Package lua runs user-supplied Lua scripts as tool implementations.
package lua

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// Run executes the script at scriptPath and calls its global run(args)
// function with args converted to a Lua table. The function must return a
// string, or nil and an error message. A fresh interpreter is used per call
// and is abandoned when ctx is done.
func Run(ctx context.Context, scriptPath string, args map[string]any) (string, error) {
	lState := lua.NewState()
	defer lState.Close()
	lState.SetContext(ctx)

	// Scripts may read credentials from the environment.
	lState.PreloadModule("os", osModuleLoader)

	absPath, err := filepath.Abs(scriptPath)
	if err != nil {
		return "", fmt.Errorf("script path: %w", err)
	}
	if err := lState.DoFile(absPath); err != nil {
		return "", fmt.Errorf("load script: %w", err)
	}

	fn := lState.GetGlobal("run")
	if fn.Type() == lua.LTNil {
		return "", fmt.Errorf("script must define global function run(args)")
	}
	if fn.Type() != lua.LTFunction {
		return "", fmt.Errorf("run must be a function, got %s", fn.Type().String())
	}

	lState.Push(fn)
	lState.Push(toLua(lState, args))
	if err := lState.PCall(1, 2, nil); err != nil {
		return "", fmt.Errorf("run(): %w", err)
	}

	ret, errVal := lState.Get(-2), lState.Get(-1)
	lState.Pop(2)

	if errVal.Type() != lua.LTNil {
		return "", fmt.Errorf("run(): %s", errVal.String())
	}
	switch ret.Type() {
	case lua.LTString, lua.LTNumber:
		return ret.String(), nil
	default:
		return "", fmt.Errorf("run() must return a string, got %s", ret.Type().String())
	}
}

// toLua converts decoded JSON values into Lua values. Objects become
// tables with string keys, arrays become 1-indexed tables.
func toLua(lState *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case float64:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		tbl := lState.NewTable()
		for _, item := range val {
			tbl.Append(toLua(lState, item))
		}
		return tbl
	case map[string]any:
		tbl := lState.NewTable()
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lState.SetField(tbl, k, toLua(lState, val[k]))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(val))
	}
}

// osModuleLoader provides a minimal os module: getenv and time.
func osModuleLoader(lState *lua.LState) int {
	mod := lState.NewTable()
	lState.SetField(mod, "getenv", lState.NewFunction(func(ls *lua.LState) int {
		key := ls.CheckString(1)
		ls.Push(lua.LString(os.Getenv(key)))
		return 1
	}))
	lState.SetField(mod, "time", lState.NewFunction(func(ls *lua.LState) int {
		ls.Push(lua.LNumber(time.Now().Unix()))
		return 1
	}))
	lState.Push(mod)
	return 1
}
