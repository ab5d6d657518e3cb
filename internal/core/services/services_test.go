package services

import (
	"testing"
	"time"

	storage "github.com/custodia-labs/docbase-core/internal/adapters/driven/memdb"
	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
	"github.com/custodia-labs/docbase-core/internal/sandbox"
)

// The service tests run against the embedded store and the real script
// engine so the whole write pipeline is exercised end to end.

func newTestStore(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.New()
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return db
}

func newTestEngine() driven.ScriptEngine {
	return sandbox.New(2 * time.Second)
}

// bookSchema covers every reference-bearing leaf kind.
func bookSchema() *domain.Schema {
	return &domain.Schema{
		RootType: "Book",
		Types: map[string]*domain.TypeDefinition{
			"Book": {
				Kind: domain.TypeKindStruct,
				Properties: map[string]domain.Property{
					"title": {Type: &domain.TypeDefinition{Kind: domain.TypeKindString}},
					"isbn":  {Type: &domain.TypeDefinition{Kind: domain.TypeKindString}, Nullable: true},
					"body": {
						Type:     &domain.TypeDefinition{Kind: domain.TypeKindString, Format: domain.StringFormatMarkdown},
						Nullable: true,
					},
					"related":    {Type: &domain.TypeDefinition{Kind: domain.TypeKindDocumentRef}, Nullable: true},
					"attachment": {Type: &domain.TypeDefinition{Kind: domain.TypeKindFile}, Nullable: true},
				},
				PropertyOrder: []string{"title", "isbn", "body", "related", "attachment"},
			},
		},
	}
}

const summaryGetterSource = `local content = ...
return { ["0|sa|Title"] = content.title }
`

const blockingKeysGetterSource = `local content = ...
if content.isbn == nil then
	return {}
end
return { "isbn:" .. content.isbn }
`

func bookDerivation() domain.DerivationSettings {
	return domain.DerivationSettings{
		SummaryGetter:      domain.ScriptModule{Source: summaryGetterSource},
		BlockingKeysGetter: &domain.ScriptModule{Source: blockingKeysGetterSource},
	}
}

func bookContent(title, isbn string) map[string]any {
	content := map[string]any{"title": title}
	if isbn != "" {
		content["isbn"] = isbn
	}
	return content
}
