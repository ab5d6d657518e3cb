package memdb

import memdb "github.com/hashicorp/go-memdb"

// Table names.
const (
	tableCollections        = "collections"
	tableCollectionVersions = "collection_versions"
	tableDocuments          = "documents"
	tableDocumentVersions   = "document_versions"
	tableChunks             = "chunks"
	tableFiles              = "files"
	tableJobs               = "jobs"
	tableSyncStates         = "sync_states"
	tableAuthStates         = "auth_states"
)

// dbSchema wires the secondary lookups the repository contract requires:
// by parent id, by remote id, and blocking-key overlap. "Latest per parent"
// is a flag column filtered on the parent index.
func dbSchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableCollections: {
				Name: tableCollections,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
				},
			},
			tableCollectionVersions: {
				Name: tableCollectionVersions,
				Indexes: map[string]*memdb.IndexSchema{
					"id":         {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"collection": {Name: "collection", Indexer: &memdb.StringFieldIndex{Field: "CollectionID"}},
				},
			},
			tableDocuments: {
				Name: tableDocuments,
				Indexes: map[string]*memdb.IndexSchema{
					"id":         {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"collection": {Name: "collection", Indexer: &memdb.StringFieldIndex{Field: "CollectionID"}},
					"remote": {
						Name:         "remote",
						AllowMissing: true,
						Unique:       true,
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "CollectionID"},
							&memdb.StringFieldIndex{Field: "RemoteID"},
						}},
					},
				},
			},
			tableDocumentVersions: {
				Name: tableDocumentVersions,
				Indexes: map[string]*memdb.IndexSchema{
					"id":         {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"document":   {Name: "document", Indexer: &memdb.StringFieldIndex{Field: "DocumentID"}},
					"collection": {Name: "collection", Indexer: &memdb.StringFieldIndex{Field: "CollectionID"}},
					"blocking": {
						Name:         "blocking",
						AllowMissing: true,
						Indexer:      &memdb.StringSliceFieldIndex{Field: "ContentBlockingKeys"},
					},
				},
			},
			tableChunks: {
				Name: tableChunks,
				Indexes: map[string]*memdb.IndexSchema{
					"id":       {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"document": {Name: "document", Indexer: &memdb.StringFieldIndex{Field: "DocumentID"}},
				},
			},
			tableFiles: {
				Name: tableFiles,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
				},
			},
			tableJobs: {
				Name: tableJobs,
				Indexes: map[string]*memdb.IndexSchema{
					"id":     {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"status": {Name: "status", Indexer: &memdb.StringFieldIndex{Field: "Status"}},
				},
			},
			tableSyncStates: {
				Name: tableSyncStates,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "CollectionID"}},
				},
			},
			tableAuthStates: {
				Name: tableAuthStates,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Nonce"}},
				},
			},
		},
	}
}
