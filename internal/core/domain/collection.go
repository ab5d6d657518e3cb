package domain

import "time"

// CollectionSettings are the user-facing collection attributes. They can be
// replaced wholesale without creating a new collection version.
type CollectionSettings struct {
	Name     string `json:"name"`
	Icon     string `json:"icon,omitempty"`
	Category string `json:"category,omitempty"`
}

// AuthState holds the credentials obtained from a connector's token exchange.
type AuthState struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RemoteBinding attaches a collection to an external connector. Documents of
// a bound collection are sourced by down-sync rather than direct creation.
type RemoteBinding struct {
	Connector string            `json:"connector"`
	Settings  map[string]any    `json:"settings,omitempty"` // validated against the connector's settings schema
	Auth      *AuthState        `json:"auth,omitempty"`
}

// Collection groups documents sharing a schema lineage.
type Collection struct {
	ID        string             `json:"id"`
	Settings  CollectionSettings `json:"settings"`
	Remote    *RemoteBinding     `json:"remote,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// RemoteConverters holds the sandboxed converters for connector-sourced
// content.
type RemoteConverters struct {
	FromRemoteDocument ScriptModule `json:"from_remote_document"`
}

// DerivationSettings configure the content-derivation pipeline of one
// collection version. SummaryGetter is required; the rest are optional.
type DerivationSettings struct {
	SummaryGetter      ScriptModule      `json:"summary_getter"`
	BlockingKeysGetter *ScriptModule     `json:"blocking_keys_getter,omitempty"`
	DefaultLayout      string            `json:"default_layout,omitempty"`
	RemoteConverters   *RemoteConverters `json:"remote_converters,omitempty"`
}

// CollectionVersion is one link of a collection's schema chain. Exactly one
// version per collection has no successor; that one is "latest" and is
// resolved through an index, not by walking the chain.
type CollectionVersion struct {
	ID                string             `json:"id"`
	CollectionID      string             `json:"collection_id"`
	PreviousVersionID string             `json:"previous_version_id,omitempty"`
	Schema            *Schema            `json:"schema"`
	Derivation        DerivationSettings `json:"derivation"`

	// MigrationScript transforms old content into the new schema's shape. It
	// is only used for non-remote collections evolving their schema.
	MigrationScript *ScriptModule `json:"migration_script,omitempty"`

	// Latest marks the version with no successor. Maintained by the
	// repository on every insert.
	Latest bool `json:"latest"`

	CreatedAt time.Time `json:"created_at"`
}
