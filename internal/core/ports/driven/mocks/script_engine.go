package mocks

import (
	"context"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

// MockScriptEngine is a mock implementation of ScriptEngine for testing
type MockScriptEngine struct {
	CompileFn func(source string) (domain.ScriptModule, error)
	ExecuteFn func(ctx context.Context, module domain.ScriptModule, args ...any) (any, error)
}

func NewMockScriptEngine() *MockScriptEngine {
	return &MockScriptEngine{}
}

func (m *MockScriptEngine) Compile(source string) (domain.ScriptModule, error) {
	if m.CompileFn != nil {
		return m.CompileFn(source)
	}
	return domain.ScriptModule{Source: source, Compiled: source}, nil
}

func (m *MockScriptEngine) Execute(ctx context.Context, module domain.ScriptModule, args ...any) (any, error) {
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, module, args...)
	}
	return nil, nil
}
