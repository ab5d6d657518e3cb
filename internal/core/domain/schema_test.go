package domain

import (
	"errors"
	"testing"
)

func testSchema() *Schema {
	return &Schema{
		RootType: "Root",
		Types: map[string]*TypeDefinition{
			"Root": {
				Kind: TypeKindStruct,
				Properties: map[string]Property{
					"title": {Type: &TypeDefinition{Kind: TypeKindString}},
					"tags":  {Type: &TypeDefinition{Kind: TypeKindList, Items: &TypeDefinition{Kind: TypeKindTypeRef, Ref: "Tag"}}, Nullable: true},
				},
				PropertyOrder: []string{"title", "tags"},
			},
			"Tag": {Kind: TypeKindString},
		},
	}
}

func TestSchema_Check(t *testing.T) {
	if err := testSchema().Check(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSchema_Check_MissingRoot(t *testing.T) {
	s := testSchema()
	s.RootType = "Nope"
	if err := s.Check(); !errors.Is(err, ErrUnresolvedType) {
		t.Errorf("expected ErrUnresolvedType, got %v", err)
	}
}

func TestSchema_Check_DanglingRef(t *testing.T) {
	s := testSchema()
	s.Types["Root"].Properties["tags"].Type.Items.Ref = "Missing"
	if err := s.Check(); !errors.Is(err, ErrUnresolvedType) {
		t.Errorf("expected ErrUnresolvedType, got %v", err)
	}
}

func TestSchema_Check_RecursiveShape(t *testing.T) {
	s := &Schema{
		RootType: "Node",
		Types: map[string]*TypeDefinition{
			"Node": {
				Kind: TypeKindStruct,
				Properties: map[string]Property{
					"value":    {Type: &TypeDefinition{Kind: TypeKindString}},
					"children": {Type: &TypeDefinition{Kind: TypeKindList, Items: &TypeDefinition{Kind: TypeKindTypeRef, Ref: "Node"}}, Nullable: true},
				},
				PropertyOrder: []string{"value", "children"},
			},
		},
	}
	if err := s.Check(); err != nil {
		t.Fatalf("recursive shape should be valid: %v", err)
	}
}

func TestSchema_Resolve_RefCycle(t *testing.T) {
	s := &Schema{
		RootType: "A",
		Types: map[string]*TypeDefinition{
			"A": {Kind: TypeKindTypeRef, Ref: "B"},
			"B": {Kind: TypeKindTypeRef, Ref: "A"},
		},
	}
	if _, err := s.Root(); !errors.Is(err, ErrUnresolvedType) {
		t.Errorf("expected ErrUnresolvedType for ref cycle, got %v", err)
	}
}

func TestValidationIssue_String(t *testing.T) {
	issue := ValidationIssue{
		Message: "expected string",
		Path: []PathSegment{
			{Key: "tags"},
			{Index: 2, List: true},
		},
	}
	if got := issue.String(); got != "tags[2]: expected string" {
		t.Errorf("unexpected rendering: %q", got)
	}
}
