package domain

import "time"

// SyncStatus is the per-direction outcome of the most recent sync run.
type SyncStatus string

const (
	SyncStatusNeverSynced       SyncStatus = "never_synced"
	SyncStatusLastSyncSucceeded SyncStatus = "last_sync_succeeded"
	SyncStatusLastSyncFailed    SyncStatus = "last_sync_failed"
)

// SyncDirectionState is the recorded state of one sync direction.
type SyncDirectionState struct {
	Status        SyncStatus `json:"status"`
	LastError     string     `json:"last_error,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`

	// Cursor is the connector sync point to resume from. A failed run leaves
	// the cursor unchanged so retries are safe.
	Cursor string `json:"cursor,omitempty"`
}

// SyncState tracks a bound collection's sync progress per direction.
type SyncState struct {
	CollectionID string             `json:"collection_id"`
	Down         SyncDirectionState `json:"down"`
	Up           SyncDirectionState `json:"up"`
}

// NewSyncState returns the initial state for a freshly bound collection.
func NewSyncState(collectionID string) *SyncState {
	return &SyncState{
		CollectionID: collectionID,
		Down:         SyncDirectionState{Status: SyncStatusNeverSynced},
		Up:           SyncDirectionState{Status: SyncStatusNeverSynced},
	}
}

// RemoteDocument is one record as delivered by a connector.
type RemoteDocument struct {
	ID        string `json:"id"`
	VersionID string `json:"version_id"`
	Content   any    `json:"content"`
}

// RemoteChanges is a connector's delta since a sync point.
type RemoteChanges struct {
	AddedOrModified []RemoteDocument `json:"added_or_modified"`
	Deleted         []string         `json:"deleted"`
}

// SyncStats counts the effects of one down-sync run.
type SyncStats struct {
	DocumentsCreated int `json:"documents_created"`
	VersionsAppended int `json:"versions_appended"`
	DocumentsDeleted int `json:"documents_deleted"`
	Unchanged        int `json:"unchanged"`
	Errors           int `json:"errors"`
}

// SyncResult is the outcome of one down-sync run.
type SyncResult struct {
	CollectionID string    `json:"collection_id"`
	Success      bool      `json:"success"`
	Stats        SyncStats `json:"stats"`
	Cursor       string    `json:"cursor,omitempty"`
	Error        string    `json:"error,omitempty"`
}
