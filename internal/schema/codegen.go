package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

// GenerateAnnotations projects a schema into an EmmyLua annotation block
// describing the content shape scripts receive. The projection is pure and
// deterministic: the same schema always yields the same text. It carries no
// runtime behavior; the sandbox and downstream editors consume it as
// documentation for script authors.
func GenerateAnnotations(s *domain.Schema) (string, error) {
	if err := s.Check(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("---@class DocumentRef\n")
	b.WriteString("---@field documentId string\n")
	b.WriteString("---@field collectionId string|nil\n\n")
	b.WriteString("---@class FileRef\n")
	b.WriteString("---@field fileId string\n\n")

	names := make([]string, 0, len(s.Types))
	for name := range s.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := s.Types[name]
		if def.Kind == domain.TypeKindStruct {
			writeStructClass(&b, s, name, def)
			continue
		}
		fmt.Fprintf(&b, "---@alias %s %s\n\n", name, luaType(s, def))
	}

	fmt.Fprintf(&b, "---@alias Content %s\n", s.RootType)
	return b.String(), nil
}

func writeStructClass(b *strings.Builder, s *domain.Schema, name string, def *domain.TypeDefinition) {
	fmt.Fprintf(b, "---@class %s\n", name)
	for _, prop := range orderedProperties(def) {
		t := luaType(s, def.Properties[prop].Type)
		if def.Properties[prop].Nullable {
			t += "|nil"
		}
		fmt.Fprintf(b, "---@field %s %s\n", prop, t)
	}
	b.WriteString("\n")
}

// orderedProperties honours the schema's explicit display order and appends
// any stragglers alphabetically.
func orderedProperties(def *domain.TypeDefinition) []string {
	ordered := make([]string, 0, len(def.Properties))
	seen := map[string]bool{}
	for _, name := range def.PropertyOrder {
		if _, ok := def.Properties[name]; ok && !seen[name] {
			ordered = append(ordered, name)
			seen[name] = true
		}
	}
	rest := make([]string, 0)
	for name := range def.Properties {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(ordered, rest...)
}

func luaType(s *domain.Schema, def *domain.TypeDefinition) string {
	switch def.Kind {
	case domain.TypeKindTypeRef:
		return def.Ref
	case domain.TypeKindStruct:
		// Anonymous structs render inline.
		fields := make([]string, 0, len(def.Properties))
		for _, name := range orderedProperties(def) {
			fields = append(fields, fmt.Sprintf("%s: %s", name, luaType(s, def.Properties[name].Type)))
		}
		return "{ " + strings.Join(fields, ", ") + " }"
	case domain.TypeKindList:
		return luaType(s, def.Items) + "[]"
	case domain.TypeKindEnum:
		literals := make([]string, 0, len(def.Members))
		for _, lit := range def.Members {
			literals = append(literals, fmt.Sprintf("%q", lit))
		}
		sort.Strings(literals)
		return strings.Join(literals, "|")
	case domain.TypeKindDocumentRef:
		return "DocumentRef"
	case domain.TypeKindFile:
		return "FileRef"
	case domain.TypeKindString:
		return "string"
	case domain.TypeKindNumber:
		return "number"
	case domain.TypeKindBoolean:
		return "boolean"
	case domain.TypeKindStringLiteral:
		return fmt.Sprintf("%q", def.Value)
	case domain.TypeKindJsonObject:
		return "table"
	default:
		return "any"
	}
}
