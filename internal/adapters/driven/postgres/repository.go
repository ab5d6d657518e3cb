package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
)

// serializationFailure is the SQLSTATE Postgres raises when a serializable
// transaction loses against a concurrent commit.
const serializationFailure = "40001"

// Verify interface compliance
var _ driven.TxManager = (*TxManager)(nil)

// TxManager runs usecase functions inside SERIALIZABLE transactions. Commit
// conflicts surface as domain.ErrTxConflict so callers can retry through
// driven.RunWithRetry.
type TxManager struct {
	db  *DB
	enc *SecretEncryptor
}

// NewTxManager creates a transaction manager. The encryptor protects
// connector credentials and PKCE verifiers at rest.
func NewTxManager(db *DB, enc *SecretEncryptor) (*TxManager, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if enc == nil {
		return nil, errors.New("secret encryptor is required")
	}
	return &TxManager{db: db, enc: enc}, nil
}

// RunInSerializableTransaction executes fn against a transactional repository
// facade. A nil return commits, any error rolls back and is returned
// unchanged (except serialization failures, which map to domain.ErrTxConflict).
func (m *TxManager) RunInSerializableTransaction(ctx context.Context, fn func(driven.Repository) error) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	repo := &repository{ctx: ctx, tx: tx, enc: m.enc}

	if err := fn(repo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("tx failed: %w, rollback failed: %v", err, rbErr)
		}
		return mapConflict(err)
	}

	if err := tx.Commit(); err != nil {
		return mapConflict(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// mapConflict translates Postgres serialization failures into the domain's
// retryable conflict error.
func mapConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == serializationFailure {
		return fmt.Errorf("%w: %v", domain.ErrTxConflict, err)
	}
	return err
}

// Ensure repository implements driven.Repository
var _ driven.Repository = (*repository)(nil)

// repository is the per-transaction facade. All stores share the one
// transaction; savepoints are plain SQL savepoints.
type repository struct {
	ctx context.Context
	tx  *sql.Tx
	enc *SecretEncryptor

	savepointSeq int
	savepoints   []string
}

func (r *repository) Collections() driven.CollectionStore { return &collectionStore{r} }
func (r *repository) CollectionVersions() driven.CollectionVersionStore {
	return &collectionVersionStore{r}
}
func (r *repository) Documents() driven.DocumentStore               { return &documentStore{r} }
func (r *repository) DocumentVersions() driven.DocumentVersionStore { return &documentVersionStore{r} }
func (r *repository) Chunks() driven.ChunkStore                     { return &chunkStore{r} }
func (r *repository) Files() driven.FileStore                       { return &fileStore{r} }
func (r *repository) Jobs() driven.JobStore                         { return &jobStore{r} }
func (r *repository) SyncStates() driven.SyncStateStore             { return &syncStateStore{r} }
func (r *repository) AuthorizationStates() driven.AuthorizationStateStore {
	return &authorizationStateStore{r}
}

// CreateSavepoint checkpoints the current transaction state.
func (r *repository) CreateSavepoint() (string, error) {
	r.savepointSeq++
	id := fmt.Sprintf("sp_%d", r.savepointSeq)
	if _, err := r.tx.ExecContext(r.ctx, "SAVEPOINT "+id); err != nil {
		return "", fmt.Errorf("create savepoint: %w", err)
	}
	r.savepoints = append(r.savepoints, id)
	return id, nil
}

// RollbackToSavepoint restores the checkpointed state. The savepoint itself
// stays valid; savepoints created after it are discarded.
func (r *repository) RollbackToSavepoint(id string) error {
	idx := -1
	for i, sp := range r.savepoints {
		if sp == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.ErrSavepointNotFound
	}
	if _, err := r.tx.ExecContext(r.ctx, "ROLLBACK TO SAVEPOINT "+id); err != nil {
		return fmt.Errorf("rollback to savepoint: %w", err)
	}
	r.savepoints = r.savepoints[:idx+1]
	return nil
}
