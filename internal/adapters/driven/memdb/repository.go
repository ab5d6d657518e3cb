// Package memdb implements the transactional repository on hashicorp/go-memdb.
//
// Every transaction works on a snapshot of the whole database. Commits
// perform a compare-and-swap on a monotonic stamp: if another transaction
// committed since the snapshot was taken, the commit is rejected with
// domain.ErrTxConflict and the caller retries. Savepoints are nested
// snapshots of the transaction's own database.
package memdb

import (
	"context"
	"fmt"
	"sync"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
)

// Ensure DB implements the transaction manager port.
var _ driven.TxManager = (*DB)(nil)

// DB is the embedded store root.
type DB struct {
	mu    sync.Mutex
	root  *memdb.MemDB
	stamp uint64
}

// New creates an empty store.
func New() (*DB, error) {
	root, err := memdb.NewMemDB(dbSchema())
	if err != nil {
		return nil, fmt.Errorf("create memdb: %w", err)
	}
	return &DB{root: root}, nil
}

// Stamp returns the current snapshot version stamp.
func (d *DB) Stamp() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stamp
}

// RunInSerializableTransaction executes fn against a snapshot of the store.
// A nil return commits via compare-and-swap on the version stamp; any error
// rolls back and is returned unchanged.
func (d *DB) RunInSerializableTransaction(ctx context.Context, fn func(driven.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	snapshot := d.root.Snapshot()
	observed := d.stamp
	d.mu.Unlock()

	repo := newRepository(ctx, snapshot)
	if err := fn(repo); err != nil {
		repo.txn.Abort()
		return err
	}
	repo.txn.Commit()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stamp != observed {
		return domain.ErrTxConflict
	}
	d.root = repo.db
	d.stamp++
	return nil
}

// savepoint is a pristine copy of the transaction database at checkpoint
// time. The copy is re-snapshotted on rollback so the same savepoint can be
// rolled back to more than once.
type savepoint struct {
	id string
	db *memdb.MemDB
}

// repository is the per-transaction facade. All stores share the current
// write txn, which is swapped when savepoints commit or roll back.
type repository struct {
	ctx        context.Context
	db         *memdb.MemDB
	txn        *memdb.Txn
	savepoints []savepoint
}

var _ driven.Repository = (*repository)(nil)

func newRepository(ctx context.Context, db *memdb.MemDB) *repository {
	return &repository{ctx: ctx, db: db, txn: db.Txn(true)}
}

func (r *repository) Collections() driven.CollectionStore                 { return &collectionStore{r} }
func (r *repository) CollectionVersions() driven.CollectionVersionStore   { return &collectionVersionStore{r} }
func (r *repository) Documents() driven.DocumentStore                     { return &documentStore{r} }
func (r *repository) DocumentVersions() driven.DocumentVersionStore       { return &documentVersionStore{r} }
func (r *repository) Chunks() driven.ChunkStore                           { return &chunkStore{r} }
func (r *repository) Files() driven.FileStore                             { return &fileStore{r} }
func (r *repository) Jobs() driven.JobStore                               { return &jobStore{r} }
func (r *repository) SyncStates() driven.SyncStateStore                   { return &syncStateStore{r} }
func (r *repository) AuthorizationStates() driven.AuthorizationStateStore { return &authStateStore{r} }

// CreateSavepoint commits the pending writes into the transaction database,
// keeps a pristine snapshot of it, and opens a fresh write txn.
func (r *repository) CreateSavepoint() (string, error) {
	r.txn.Commit()
	sp := savepoint{id: domain.NewID(), db: r.db.Snapshot()}
	r.savepoints = append(r.savepoints, sp)
	r.txn = r.db.Txn(true)
	return sp.id, nil
}

// RollbackToSavepoint restores the transaction database to the checkpointed
// state. Savepoints created after the given one are discarded; the given one
// stays valid.
func (r *repository) RollbackToSavepoint(id string) error {
	for i, sp := range r.savepoints {
		if sp.id != id {
			continue
		}
		r.txn.Abort()
		r.db = sp.db.Snapshot()
		r.txn = r.db.Txn(true)
		r.savepoints = r.savepoints[:i+1]
		return nil
	}
	return domain.ErrSavepointNotFound
}
