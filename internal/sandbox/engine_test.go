package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

func compile(t *testing.T, source string) domain.ScriptModule {
	t.Helper()
	module, err := New(0).Compile(source)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return module
}

func TestEngine_Execute(t *testing.T) {
	engine := New(0)
	module := compile(t, `
local content = ...
return { title = string.upper(content.title), count = #content.tags }
`)

	result, err := engine.Execute(context.Background(), module, map[string]any{
		"title": "hello",
		"tags":  []any{"a", "b"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	obj := result.(map[string]any)
	if obj["title"] != "HELLO" {
		t.Errorf("expected HELLO, got %v", obj["title"])
	}
	if obj["count"] != float64(2) {
		t.Errorf("expected 2, got %v", obj["count"])
	}
}

func TestEngine_Compile_SyntaxError(t *testing.T) {
	if _, err := New(0).Compile(`return {`); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestEngine_Compile_PreservesSource(t *testing.T) {
	source := `return { ["0||Title"] = "x" }`
	module := compile(t, source)
	if module.Source != source {
		t.Errorf("source changed: %q", module.Source)
	}
	if module.Compiled == module.Source {
		t.Error("compiled form should be the wrapped chunk, not the raw source")
	}
}

func TestEngine_Execute_EmptyTableIsEmptyList(t *testing.T) {
	engine := New(0)
	module := compile(t, `return {}`)

	result, err := engine.Execute(context.Background(), module)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items, ok := result.([]any)
	if !ok {
		t.Fatalf("expected a slice, got %T", result)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %v", items)
	}
}

func TestEngine_Execute_RuntimeException(t *testing.T) {
	engine := New(0)
	module := compile(t, `error("boom")`)

	_, err := engine.Execute(context.Background(), module)
	var scriptErr *domain.ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("expected ScriptError, got %v", err)
	}
	if scriptErr.Kind != domain.ScriptErrorRuntimeException {
		t.Errorf("expected runtime exception, got %s", scriptErr.Kind)
	}
	if !strings.Contains(scriptErr.Message, "boom") {
		t.Errorf("expected cause in message, got %q", scriptErr.Message)
	}
}

func TestEngine_Execute_Timeout(t *testing.T) {
	engine := New(50 * time.Millisecond)
	module := compile(t, `while true do end`)

	_, err := engine.Execute(context.Background(), module)
	var scriptErr *domain.ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("expected ScriptError, got %v", err)
	}
	if scriptErr.Kind != domain.ScriptErrorTimeout {
		t.Errorf("expected timeout, got %s", scriptErr.Kind)
	}
}

func TestEngine_Execute_NonConformingReturn(t *testing.T) {
	engine := New(0)
	module := compile(t, `return function() end`)

	_, err := engine.Execute(context.Background(), module)
	var scriptErr *domain.ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("expected ScriptError, got %v", err)
	}
	if scriptErr.Kind != domain.ScriptErrorNonConformingReturnValue {
		t.Errorf("expected non-conforming return, got %s", scriptErr.Kind)
	}
}

func TestEngine_Execute_NoAmbientCapabilities(t *testing.T) {
	engine := New(0)
	for _, source := range []string{
		`return os.time()`,
		`return io.open("/etc/passwd")`,
		`return loadstring("return 1")()`,
		`return require("socket")`,
		`return math.random()`,
	} {
		module := compile(t, source)
		_, err := engine.Execute(context.Background(), module)
		var scriptErr *domain.ScriptError
		if !errors.As(err, &scriptErr) || scriptErr.Kind != domain.ScriptErrorRuntimeException {
			t.Errorf("expected runtime exception for %q, got %v", source, err)
		}
	}
}

func TestEngine_Execute_Deterministic(t *testing.T) {
	engine := New(0)
	module := compile(t, `
local content = ...
local keys = {}
for word in string.gmatch(content.title, "%a+") do
	keys[#keys+1] = string.lower(word)
end
table.sort(keys)
return keys
`)

	input := map[string]any{"title": "The Quick Brown Fox"}
	first, err := engine.Execute(context.Background(), module, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := engine.Execute(context.Background(), module, input)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		a := first.([]any)
		b := again.([]any)
		if len(a) != len(b) {
			t.Fatal("non-deterministic length")
		}
		for n := range a {
			if a[n] != b[n] {
				t.Fatalf("non-deterministic output at %d: %v != %v", n, a[n], b[n])
			}
		}
	}
}

func TestEngine_Execute_CompilesMissingCompiledForm(t *testing.T) {
	engine := New(0)
	module := domain.ScriptModule{Source: `return 42`}
	result, err := engine.Execute(context.Background(), module)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != float64(42) {
		t.Errorf("expected 42, got %v", result)
	}
}
