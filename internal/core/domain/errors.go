package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors - used across all layers
var (
	// ErrCollectionNotFound indicates the collection does not exist
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionVersionNotFound indicates the collection version does not exist
	ErrCollectionVersionNotFound = errors.New("collection version not found")

	// ErrDocumentNotFound indicates the document does not exist
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDocumentVersionNotFound indicates the document version does not exist
	ErrDocumentVersionNotFound = errors.New("document version not found")

	// ErrFileNotFound indicates the file does not exist
	ErrFileNotFound = errors.New("file not found")

	// ErrJobNotFound indicates the background job does not exist
	ErrJobNotFound = errors.New("job not found")

	// ErrVersionIDNotMatching indicates the expected previous version id is stale
	ErrVersionIDNotMatching = errors.New("version id not matching")

	// ErrTxConflict indicates another transaction committed first; retry
	ErrTxConflict = errors.New("transaction conflict")

	// ErrSavepointNotFound indicates the savepoint id is unknown in this transaction
	ErrSavepointNotFound = errors.New("savepoint not found")

	// ErrNoRemoteBinding indicates the collection has no connector binding
	ErrNoRemoteBinding = errors.New("collection has no remote binding")

	// ErrRemoteCollection indicates the operation is not allowed on connector-bound collections
	ErrRemoteCollection = errors.New("not allowed on a remote collection")

	// ErrConnectorNotFound indicates the connector type is not registered
	ErrConnectorNotFound = errors.New("connector not found")

	// ErrConnectorDoesNotSupportUpSyncing indicates up-sync was requested on a pull-only connector
	ErrConnectorDoesNotSupportUpSyncing = errors.New("connector does not support up-syncing")

	// ErrAuthorizationStateNotFound indicates the nonce does not match an in-flight authorization
	ErrAuthorizationStateNotFound = errors.New("authorization state not found")

	// ErrNotAuthenticated indicates the remote binding has no usable credentials
	ErrNotAuthenticated = errors.New("connector is not authenticated")
)

// ContentNotValidError carries the full list of validation issues so callers
// can surface every problem at once.
type ContentNotValidError struct {
	Issues []ValidationIssue
}

func (e *ContentNotValidError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("content not valid: %s", e.Issues[0])
	}
	return fmt.Sprintf("content not valid: %d issues, first: %s", len(e.Issues), e.Issues[0])
}

// ReferencedDocumentsNotFoundError lists DocumentRef targets that do not exist.
type ReferencedDocumentsNotFoundError struct {
	References []DocumentRefTarget
}

func (e *ReferencedDocumentsNotFoundError) Error() string {
	ids := make([]string, len(e.References))
	for i, r := range e.References {
		ids[i] = r.DocumentID
	}
	return fmt.Sprintf("referenced documents not found: %s", strings.Join(ids, ", "))
}

// FilesNotFoundError lists file ids referenced by content that do not exist.
type FilesNotFoundError struct {
	FileIDs []string
}

func (e *FilesNotFoundError) Error() string {
	return fmt.Sprintf("files not found: %s", strings.Join(e.FileIDs, ", "))
}

// DuplicateDocumentDetectedError is returned when derived blocking keys of a
// new document intersect another document's keys within the same collection.
type DuplicateDocumentDetectedError struct {
	DuplicateDocument *Document
	ConflictingKeys   []string
}

func (e *DuplicateDocumentDetectedError) Error() string {
	return fmt.Sprintf("duplicate document detected: %s (keys: %s)",
		e.DuplicateDocument.ID, strings.Join(e.ConflictingKeys, ", "))
}

// ScriptErrorKind is the machine-readable failure class of a sandbox call.
type ScriptErrorKind string

const (
	ScriptErrorRuntimeException         ScriptErrorKind = "runtime_exception"
	ScriptErrorTimeout                  ScriptErrorKind = "timeout"
	ScriptErrorNonConformingReturnValue ScriptErrorKind = "non_conforming_return_value"
)

// ScriptError is the typed failure of a sandboxed script execution.
// Script-level failures never escape the sandbox as panics; they surface here.
type ScriptError struct {
	Kind    ScriptErrorKind
	Message string
	Cause   error
}

func (e *ScriptError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("executing script failed (%s): %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("executing script failed (%s)", e.Kind)
}

func (e *ScriptError) Unwrap() error { return e.Cause }

// SyncItemError records a single failed item within a down-sync batch.
type SyncItemError struct {
	RemoteID string `json:"remote_id"`
	Message  string `json:"message"`
}

// SyncingChangesFailedError aggregates the per-item failures of a sync batch.
// The whole batch is rolled back when this is returned.
type SyncingChangesFailedError struct {
	ItemErrors []SyncItemError
}

func (e *SyncingChangesFailedError) Error() string {
	return fmt.Sprintf("syncing changes failed: %d item(s)", len(e.ItemErrors))
}

// UnexpectedError wraps truly unanticipated failures (infra faults, programmer
// errors). It must never mask a recoverable domain condition.
type UnexpectedError struct {
	Cause error
}

func (e *UnexpectedError) Error() string { return fmt.Sprintf("unexpected error: %v", e.Cause) }

func (e *UnexpectedError) Unwrap() error { return e.Cause }
