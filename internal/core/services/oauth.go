package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driving"
)

// authStateTTL bounds how long an authorization round trip may take before
// the nonce expires.
const authStateTTL = 15 * time.Minute

// expirySkew refreshes credentials slightly before their actual expiry.
const expirySkew = 30 * time.Second

// Ensure connectorAuthService implements ConnectorAuthService
var _ driving.ConnectorAuthService = (*connectorAuthService)(nil)

// connectorAuthService drives the PKCE authorization flow for a collection's
// remote binding. The verifier never leaves the local store; only the S256
// challenge goes over the wire.
type connectorAuthService struct {
	tx          driven.TxManager
	connectors  driven.ConnectorRegistry
	redirectURI string
	logger      *slog.Logger
}

// ConnectorAuthServiceConfig holds dependencies for the auth service.
type ConnectorAuthServiceConfig struct {
	Tx          driven.TxManager
	Connectors  driven.ConnectorRegistry
	RedirectURI string
	Logger      *slog.Logger
}

// NewConnectorAuthService creates a new ConnectorAuthService.
func NewConnectorAuthService(cfg ConnectorAuthServiceConfig) driving.ConnectorAuthService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &connectorAuthService{
		tx:          cfg.Tx,
		connectors:  cfg.Connectors,
		redirectURI: cfg.RedirectURI,
		logger:      logger,
	}
}

// BeginAuthorization issues the authorization URL with a fresh code
// challenge and stores the verifier keyed by a single-use nonce.
func (s *connectorAuthService) BeginAuthorization(ctx context.Context, collectionID string) (*driving.AuthorizeResponse, error) {
	verifier := oauth2.GenerateVerifier()
	challenge := oauth2.S256ChallengeFromVerifier(verifier)
	nonce := domain.NewID()

	var response *driving.AuthorizeResponse
	err := driven.RunWithRetry(ctx, s.tx, txAttempts, func(repo driven.Repository) error {
		collection, err := repo.Collections().Get(ctx, collectionID)
		if err != nil {
			return err
		}
		if collection.Remote == nil {
			return domain.ErrNoRemoteBinding
		}

		connector, err := s.connectors.Get(collection.Remote.Connector)
		if err != nil {
			return err
		}

		authURL, err := connector.AuthorizationRequestURL(collection.Remote.Settings, nonce, challenge, s.redirectURI)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		state := &driven.AuthorizationState{
			Nonce:        nonce,
			Connector:    collection.Remote.Connector,
			CollectionID: collectionID,
			CodeVerifier: verifier,
			RedirectURI:  s.redirectURI,
			CreatedAt:    now,
			ExpiresAt:    now.Add(authStateTTL),
		}
		if err := repo.AuthorizationStates().Save(ctx, state); err != nil {
			return err
		}

		response = &driving.AuthorizeResponse{AuthorizationURL: authURL, State: nonce}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("authorization started", "collection_id", collectionID)
	return response, nil
}

// CompleteAuthorization exchanges the callback code for tokens and stores
// them on the binding. The nonce is consumed either way.
func (s *connectorAuthService) CompleteAuthorization(ctx context.Context, state, code string) error {
	var (
		authState *driven.AuthorizationState
		connector driven.Connector
	)
	err := s.tx.RunInSerializableTransaction(ctx, func(repo driven.Repository) error {
		stored, err := repo.AuthorizationStates().Get(ctx, state)
		if err != nil {
			return err
		}
		if time.Now().UTC().After(stored.ExpiresAt) {
			_ = repo.AuthorizationStates().Delete(ctx, state)
			return domain.ErrAuthorizationStateNotFound
		}
		authState = stored
		connector, err = s.connectors.Get(stored.Connector)
		return err
	})
	if err != nil {
		return err
	}

	auth, err := connector.ExchangeAuthorizationCode(ctx, code, authState.CodeVerifier, authState.RedirectURI)
	if err != nil {
		// The code is burnt; consume the nonce so the flow restarts cleanly.
		_ = s.tx.RunInSerializableTransaction(ctx, func(repo driven.Repository) error {
			return repo.AuthorizationStates().Delete(ctx, authState.Nonce)
		})
		return err
	}

	err = driven.RunWithRetry(ctx, s.tx, txAttempts, func(repo driven.Repository) error {
		collection, err := repo.Collections().Get(ctx, authState.CollectionID)
		if err != nil {
			return err
		}
		if collection.Remote == nil {
			return domain.ErrNoRemoteBinding
		}
		updated := *collection
		binding := *collection.Remote
		binding.Auth = auth
		updated.Remote = &binding
		if err := repo.Collections().Save(ctx, &updated); err != nil {
			return err
		}
		return repo.AuthorizationStates().Delete(ctx, authState.Nonce)
	})
	if err != nil {
		return err
	}

	s.logger.Info("authorization completed", "collection_id", authState.CollectionID)
	return nil
}

// authExpired reports whether the credentials need refreshing. When the
// connector did not report an expiry, the access token is introspected as an
// unverified JWT; opaque tokens without expiry are assumed valid.
func authExpired(auth *domain.AuthState, now time.Time) bool {
	expiresAt := auth.ExpiresAt
	if expiresAt.IsZero() {
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(auth.AccessToken, claims); err != nil {
			return false
		}
		exp, err := claims.GetExpirationTime()
		if err != nil || exp == nil {
			return false
		}
		expiresAt = exp.Time
	}
	return !now.Add(expirySkew).Before(expiresAt)
}
