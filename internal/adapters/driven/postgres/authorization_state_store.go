package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.AuthorizationStateStore = (*authorizationStateStore)(nil)

// authorizationStateStore implements driven.AuthorizationStateStore using
// PostgreSQL. The PKCE code verifier is stored encrypted.
type authorizationStateStore struct {
	r *repository
}

// Save creates or updates an in-flight authorization request
func (s *authorizationStateStore) Save(ctx context.Context, state *driven.AuthorizationState) error {
	verifier, err := s.r.enc.EncryptString(state.CodeVerifier)
	if err != nil {
		return fmt.Errorf("encrypt code verifier: %w", err)
	}

	query := `
		INSERT INTO authorization_states (nonce, connector, collection_id, code_verifier, redirect_uri, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (nonce) DO UPDATE SET
			connector = EXCLUDED.connector,
			collection_id = EXCLUDED.collection_id,
			code_verifier = EXCLUDED.code_verifier,
			redirect_uri = EXCLUDED.redirect_uri,
			expires_at = EXCLUDED.expires_at
	`

	_, err = s.r.tx.ExecContext(ctx, query,
		state.Nonce,
		state.Connector,
		state.CollectionID,
		verifier,
		state.RedirectURI,
		state.CreatedAt,
		state.ExpiresAt,
	)
	return err
}

// Get retrieves an in-flight authorization request by nonce
func (s *authorizationStateStore) Get(ctx context.Context, nonce string) (*driven.AuthorizationState, error) {
	query := `
		SELECT nonce, connector, collection_id, code_verifier, redirect_uri, created_at, expires_at
		FROM authorization_states
		WHERE nonce = $1
	`

	var state driven.AuthorizationState
	var verifier []byte
	err := s.r.tx.QueryRowContext(ctx, query, nonce).Scan(
		&state.Nonce,
		&state.Connector,
		&state.CollectionID,
		&verifier,
		&state.RedirectURI,
		&state.CreatedAt,
		&state.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrAuthorizationStateNotFound
	}
	if err != nil {
		return nil, err
	}

	state.CodeVerifier, err = s.r.enc.DecryptString(verifier)
	if err != nil {
		return nil, fmt.Errorf("decrypt code verifier: %w", err)
	}
	return &state, nil
}

// Delete deletes an in-flight authorization request
func (s *authorizationStateStore) Delete(ctx context.Context, nonce string) error {
	result, err := s.r.tx.ExecContext(ctx,
		`DELETE FROM authorization_states WHERE nonce = $1`, nonce)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrAuthorizationStateNotFound
	}
	return nil
}
