package mocks

import (
	"context"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
)

// MockConnector is a mock implementation of Connector for testing
type MockConnector struct {
	TypeFn                      func() string
	AuthenticationStrategyFn    func() driven.AuthenticationStrategy
	SettingsSchemaFn            func() *domain.Schema
	RemoteDocumentSchemaFn      func() *domain.Schema
	AuthorizationRequestURLFn   func(settings map[string]any, state, codeChallenge, redirectURI string) (string, error)
	ExchangeAuthorizationCodeFn func(ctx context.Context, code, codeVerifier, redirectURI string) (*domain.AuthState, error)
	RefreshAuthFn               func(ctx context.Context, auth *domain.AuthState) (*domain.AuthState, error)
	SyncDownFn                  func(ctx context.Context, settings map[string]any, auth *domain.AuthState, syncPoint string) (*domain.RemoteChanges, string, error)
	SupportsUpSyncFn            func() bool
}

func NewMockConnector() *MockConnector {
	return &MockConnector{}
}

func (m *MockConnector) Type() string {
	if m.TypeFn != nil {
		return m.TypeFn()
	}
	return "mock"
}

func (m *MockConnector) AuthenticationStrategy() driven.AuthenticationStrategy {
	if m.AuthenticationStrategyFn != nil {
		return m.AuthenticationStrategyFn()
	}
	return driven.AuthStrategyNone
}

func (m *MockConnector) SettingsSchema() *domain.Schema {
	if m.SettingsSchemaFn != nil {
		return m.SettingsSchemaFn()
	}
	return nil
}

func (m *MockConnector) RemoteDocumentSchema() *domain.Schema {
	if m.RemoteDocumentSchemaFn != nil {
		return m.RemoteDocumentSchemaFn()
	}
	return nil
}

func (m *MockConnector) AuthorizationRequestURL(settings map[string]any, state, codeChallenge, redirectURI string) (string, error) {
	if m.AuthorizationRequestURLFn != nil {
		return m.AuthorizationRequestURLFn(settings, state, codeChallenge, redirectURI)
	}
	return "https://example.com/authorize?state=" + state, nil
}

func (m *MockConnector) ExchangeAuthorizationCode(ctx context.Context, code, codeVerifier, redirectURI string) (*domain.AuthState, error) {
	if m.ExchangeAuthorizationCodeFn != nil {
		return m.ExchangeAuthorizationCodeFn(ctx, code, codeVerifier, redirectURI)
	}
	return &domain.AuthState{AccessToken: "mock-token"}, nil
}

func (m *MockConnector) RefreshAuth(ctx context.Context, auth *domain.AuthState) (*domain.AuthState, error) {
	if m.RefreshAuthFn != nil {
		return m.RefreshAuthFn(ctx, auth)
	}
	return auth, nil
}

func (m *MockConnector) SyncDown(ctx context.Context, settings map[string]any, auth *domain.AuthState, syncPoint string) (*domain.RemoteChanges, string, error) {
	if m.SyncDownFn != nil {
		return m.SyncDownFn(ctx, settings, auth, syncPoint)
	}
	return &domain.RemoteChanges{}, syncPoint, nil
}

func (m *MockConnector) SupportsUpSync() bool {
	if m.SupportsUpSyncFn != nil {
		return m.SupportsUpSyncFn()
	}
	return false
}

// MockConnectorRegistry is a mock implementation of ConnectorRegistry for testing
type MockConnectorRegistry struct {
	connectors map[string]driven.Connector
}

func NewMockConnectorRegistry(connectors ...driven.Connector) *MockConnectorRegistry {
	reg := &MockConnectorRegistry{connectors: map[string]driven.Connector{}}
	for _, c := range connectors {
		reg.Register(c)
	}
	return reg
}

func (m *MockConnectorRegistry) Register(connector driven.Connector) {
	m.connectors[connector.Type()] = connector
}

func (m *MockConnectorRegistry) Get(connectorType string) (driven.Connector, error) {
	connector, ok := m.connectors[connectorType]
	if !ok {
		return nil, domain.ErrConnectorNotFound
	}
	return connector, nil
}

func (m *MockConnectorRegistry) Types() []string {
	types := make([]string, 0, len(m.connectors))
	for name := range m.connectors {
		types = append(types, name)
	}
	return types
}
