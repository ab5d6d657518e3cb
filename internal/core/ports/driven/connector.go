package driven

import (
	"context"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

// AuthenticationStrategy names how a connector authenticates.
type AuthenticationStrategy string

const (
	// AuthStrategyOAuthPKCE is the authorization-code flow with a PKCE
	// challenge; the code verifier is held locally and keyed by the state
	// nonce until the exchange completes.
	AuthStrategyOAuthPKCE AuthenticationStrategy = "oauth_pkce"

	// AuthStrategyNone is for connectors that need no credentials.
	AuthStrategyNone AuthenticationStrategy = "none"
)

// Connector pulls documents from an external source. Connectors declare the
// schema of the records they deliver; the collection's fromRemoteDocument
// converter maps those records into the collection schema.
type Connector interface {
	// Type returns the connector name used in remote bindings.
	Type() string

	AuthenticationStrategy() AuthenticationStrategy

	// SettingsSchema describes the per-binding settings shape.
	SettingsSchema() *domain.Schema

	// RemoteDocumentSchema describes the records SyncDown delivers. Incoming
	// records are validated against it before conversion.
	RemoteDocumentSchema() *domain.Schema

	// AuthorizationRequestURL builds the authorization URL carrying the
	// state parameter and the S256 code challenge.
	AuthorizationRequestURL(settings map[string]any, state, codeChallenge, redirectURI string) (string, error)

	// ExchangeAuthorizationCode trades the authorization code plus the
	// locally held verifier for an access/refresh token pair.
	ExchangeAuthorizationCode(ctx context.Context, code, codeVerifier, redirectURI string) (*domain.AuthState, error)

	// RefreshAuth obtains a fresh access token using the refresh token.
	RefreshAuth(ctx context.Context, auth *domain.AuthState) (*domain.AuthState, error)

	// SyncDown fetches the change delta since the given sync point.
	// Returns the changes and the next sync point.
	SyncDown(ctx context.Context, settings map[string]any, auth *domain.AuthState, syncPoint string) (*domain.RemoteChanges, string, error)

	// SupportsUpSync reports whether local changes can be pushed back.
	SupportsUpSync() bool
}

// ConnectorRegistry resolves connectors by type name.
type ConnectorRegistry interface {
	Register(connector Connector)
	Get(connectorType string) (Connector, error)
	Types() []string
}
