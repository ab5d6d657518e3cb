package domain

import (
	"errors"
	"fmt"
)

// TypeKind discriminates TypeDefinition variants.
type TypeKind string

const (
	TypeKindStruct        TypeKind = "struct"
	TypeKindList          TypeKind = "list"
	TypeKindEnum          TypeKind = "enum"
	TypeKindDocumentRef   TypeKind = "document_ref"
	TypeKindFile          TypeKind = "file"
	TypeKindString        TypeKind = "string"
	TypeKindNumber        TypeKind = "number"
	TypeKindBoolean       TypeKind = "boolean"
	TypeKindStringLiteral TypeKind = "string_literal"
	TypeKindJsonObject    TypeKind = "json_object"
	TypeKindTypeRef       TypeKind = "type_ref"
)

// String format tags for leaf values.
const (
	StringFormatDate     = "date"
	StringFormatInstant  = "instant"
	StringFormatMarkdown = "rich-text-markdown"
)

// Property is a named member of a Struct type.
type Property struct {
	Type     *TypeDefinition `json:"type"`
	Nullable bool            `json:"nullable,omitempty"`
}

// TypeDefinition is the structural type algebra. Kind selects the variant;
// only the fields of the active variant are meaningful.
type TypeDefinition struct {
	Kind TypeKind `json:"kind"`

	// Struct
	Properties    map[string]Property `json:"properties,omitempty"`
	PropertyOrder []string            `json:"property_order,omitempty"` // explicit display order

	// List
	Items *TypeDefinition `json:"items,omitempty"`

	// Enum: member name -> string literal
	Members map[string]string `json:"members,omitempty"`

	// DocumentRef. TargetCollectionID may be a proto-id placeholder until the
	// linker resolved it (see services.Linker).
	TargetCollectionID string `json:"target_collection_id,omitempty"`

	// File
	Accept []string `json:"accept,omitempty"`

	// String / JsonObject format tag
	Format string `json:"format,omitempty"`

	// StringLiteral
	Value string `json:"value,omitempty"`

	// TypeRef: name of another type in the schema
	Ref string `json:"ref,omitempty"`
}

// Schema maps type names to definitions, with one designated root type.
type Schema struct {
	Types    map[string]*TypeDefinition `json:"types"`
	RootType string                     `json:"root_type"`
}

// ErrUnresolvedType indicates a TypeRef or the root type does not resolve.
var ErrUnresolvedType = errors.New("unresolved type")

// Root returns the resolved root type definition.
func (s *Schema) Root() (*TypeDefinition, error) {
	def, ok := s.Types[s.RootType]
	if !ok {
		return nil, fmt.Errorf("%w: root type %q", ErrUnresolvedType, s.RootType)
	}
	return s.Resolve(def)
}

// Resolve follows TypeRef indirections until a concrete definition is reached.
// Cycles through TypeRefs alone (a ref chain that never reaches a concrete
// type) are reported as unresolved.
func (s *Schema) Resolve(def *TypeDefinition) (*TypeDefinition, error) {
	seen := map[string]bool{}
	for def.Kind == TypeKindTypeRef {
		if seen[def.Ref] {
			return nil, fmt.Errorf("%w: type ref cycle at %q", ErrUnresolvedType, def.Ref)
		}
		seen[def.Ref] = true
		next, ok := s.Types[def.Ref]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnresolvedType, def.Ref)
		}
		def = next
	}
	return def, nil
}

// Check verifies the schema invariants: the root type resolves and every
// TypeRef anywhere in the schema resolves to an existing type. Recursive
// shapes (a struct referring to itself through a TypeRef) are valid.
func (s *Schema) Check() error {
	if _, err := s.Root(); err != nil {
		return err
	}
	for name, def := range s.Types {
		if err := s.checkRefs(def); err != nil {
			return fmt.Errorf("type %q: %w", name, err)
		}
	}
	return nil
}

func (s *Schema) checkRefs(def *TypeDefinition) error {
	if def == nil {
		return errors.New("nil type definition")
	}
	switch def.Kind {
	case TypeKindTypeRef:
		if _, ok := s.Types[def.Ref]; !ok {
			return fmt.Errorf("%w: %q", ErrUnresolvedType, def.Ref)
		}
	case TypeKindStruct:
		for name, prop := range def.Properties {
			if err := s.checkRefs(prop.Type); err != nil {
				return fmt.Errorf("property %q: %w", name, err)
			}
		}
	case TypeKindList:
		if err := s.checkRefs(def.Items); err != nil {
			return fmt.Errorf("items: %w", err)
		}
	}
	return nil
}

// PathSegment is one step of a content path: a property key or a list index.
type PathSegment struct {
	Key   string `json:"key,omitempty"`
	Index int    `json:"index"`
	List  bool   `json:"list,omitempty"`
}

func (p PathSegment) String() string {
	if p.List {
		return fmt.Sprintf("[%d]", p.Index)
	}
	return p.Key
}

// ValidationIssue is a single structural problem found by the validator.
type ValidationIssue struct {
	Message string        `json:"message"`
	Path    []PathSegment `json:"path"`
}

func (i ValidationIssue) String() string {
	if len(i.Path) == 0 {
		return i.Message
	}
	path := ""
	for n, seg := range i.Path {
		if n > 0 && !seg.List {
			path += "."
		}
		path += seg.String()
	}
	return fmt.Sprintf("%s: %s", path, i.Message)
}
