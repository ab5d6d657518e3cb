// Package sandbox executes user-authored transform scripts in a
// capability-restricted Lua interpreter. Each call gets a fresh state with no
// os/io/network access and a bounded execution time; script failures surface
// as typed domain.ScriptError values and never escape as panics.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
)

// Ensure Engine implements the execution port.
var _ driven.ScriptEngine = (*Engine)(nil)

const defaultTimeout = 2 * time.Second

// Engine is the Lua-backed script engine.
type Engine struct {
	timeout time.Duration
}

// New creates an engine. A non-positive timeout falls back to the default.
func New(timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Engine{timeout: timeout}
}

// Compile wraps the user source into the loadable chunk and verifies it
// parses and compiles. The wrapped chunk evaluates to a single function; the
// script body reads its arguments via `local content = ...`.
func (e *Engine) Compile(source string) (domain.ScriptModule, error) {
	compiled := wrapSource(source)
	chunk, err := parse.Parse(strings.NewReader(compiled), "script")
	if err != nil {
		return domain.ScriptModule{}, fmt.Errorf("compile script: %w", err)
	}
	if _, err := lua.Compile(chunk, "script"); err != nil {
		return domain.ScriptModule{}, fmt.Errorf("compile script: %w", err)
	}
	return domain.ScriptModule{Source: source, Compiled: compiled}, nil
}

func wrapSource(source string) string {
	return "return function(...)\n" + source + "\nend\n"
}

// Execute runs the module once with the given arguments. The module's
// compiled form is loaded into a fresh restricted state; missing compiled
// forms are compiled on the fly so persisted modules stay usable after a
// source-only edit.
func (e *Engine) Execute(ctx context.Context, module domain.ScriptModule, args ...any) (any, error) {
	if module.Compiled == "" {
		compiled, err := e.Compile(module.Source)
		if err != nil {
			return nil, &domain.ScriptError{
				Kind:    domain.ScriptErrorRuntimeException,
				Message: err.Error(),
				Cause:   err,
			}
		}
		module = compiled
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	openRestrictedLibs(L)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	L.SetContext(ctx)

	fn, err := L.LoadString(module.Compiled)
	if err != nil {
		return nil, scriptFailure(ctx, err)
	}
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		return nil, scriptFailure(ctx, err)
	}

	entry, ok := L.Get(-1).(*lua.LFunction)
	if !ok {
		return nil, &domain.ScriptError{
			Kind:    domain.ScriptErrorNonConformingReturnValue,
			Message: "script must evaluate to a function",
		}
	}
	L.Pop(1)

	L.Push(entry)
	for i, arg := range args {
		lv, err := toLua(L, arg)
		if err != nil {
			return nil, &domain.ScriptError{
				Kind:    domain.ScriptErrorRuntimeException,
				Message: fmt.Sprintf("argument %d: %v", i, err),
				Cause:   err,
			}
		}
		L.Push(lv)
	}
	if err := L.PCall(len(args), 1, nil); err != nil {
		return nil, scriptFailure(ctx, err)
	}

	value, err := fromLua(L.Get(-1))
	if err != nil {
		return nil, &domain.ScriptError{
			Kind:    domain.ScriptErrorNonConformingReturnValue,
			Message: err.Error(),
			Cause:   err,
		}
	}
	return value, nil
}

// scriptFailure classifies an interpreter error as timeout or runtime.
func scriptFailure(ctx context.Context, err error) *domain.ScriptError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domain.ScriptError{
			Kind:    domain.ScriptErrorTimeout,
			Message: "script exceeded its time budget",
			Cause:   err,
		}
	}
	msg := err.Error()
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		msg = apiErr.Object.String()
	}
	return &domain.ScriptError{
		Kind:    domain.ScriptErrorRuntimeException,
		Message: msg,
		Cause:   err,
	}
}

// openRestrictedLibs opens base, table, string, and math, then strips the
// globals that would grant ambient capabilities or nondeterminism. os, io,
// debug, and channel libs are never opened.
func openRestrictedLibs(L *lua.LState) {
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "print", "collectgarbage"} {
		L.SetGlobal(name, lua.LNil)
	}

	// Blocking-key equality drives irrevocable dedup decisions, so the
	// interpreter offers no randomness at all.
	if math, ok := L.GetGlobal(lua.MathLibName).(*lua.LTable); ok {
		math.RawSetString("random", lua.LNil)
		math.RawSetString("randomseed", lua.LNil)
	}
}
