package schema

import (
	"strings"
	"testing"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

func TestGenerateAnnotations(t *testing.T) {
	s := &domain.Schema{
		RootType: "Book",
		Types: map[string]*domain.TypeDefinition{
			"Book": {
				Kind: domain.TypeKindStruct,
				Properties: map[string]domain.Property{
					"title":  {Type: &domain.TypeDefinition{Kind: domain.TypeKindString}},
					"status": {Type: &domain.TypeDefinition{Kind: domain.TypeKindTypeRef, Ref: "Status"}},
					"author": {Type: &domain.TypeDefinition{Kind: domain.TypeKindDocumentRef, TargetCollectionID: "authors"}, Nullable: true},
					"pages":  {Type: &domain.TypeDefinition{Kind: domain.TypeKindNumber}},
				},
				PropertyOrder: []string{"title", "author", "pages", "status"},
			},
			"Status": {Kind: domain.TypeKindEnum, Members: map[string]string{"Reading": "reading", "Done": "done"}},
		},
	}

	out, err := GenerateAnnotations(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"---@class Book",
		"---@field title string",
		"---@field author DocumentRef|nil",
		"---@field pages number",
		"---@field status Status",
		`---@alias Status "done"|"reading"`,
		"---@alias Content Book",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// Display order is honoured within the class block.
	if strings.Index(out, "---@field title") > strings.Index(out, "---@field pages") {
		t.Error("property order not honoured")
	}
}

func TestGenerateAnnotations_BadSchema(t *testing.T) {
	s := &domain.Schema{RootType: "Missing", Types: map[string]*domain.TypeDefinition{}}
	if _, err := GenerateAnnotations(s); err == nil {
		t.Fatal("expected error for unresolved root")
	}
}
