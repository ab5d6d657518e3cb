// Package schema validates structured content against the domain type
// algebra and projects schemas into editor-facing declarations.
package schema

import (
	"fmt"
	"sort"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

// Content value conventions, by type kind:
//
//	Struct        map[string]any
//	List          []any
//	Enum          string (one of the member literals)
//	DocumentRef   map[string]any{"documentId": string[, "collectionId": string]}
//	File          map[string]any{"fileId": string}
//	String        string (format-specific leaf rules apply)
//	Number        float64 / int / int64
//	Boolean       bool
//	StringLiteral the exact literal
//	JsonObject    map[string]any, opaque
//
// Unknown properties are tolerated except at the top-level content boundary,
// where strict mode rejects them.

// Validate checks content against the schema's root type and returns the
// canonicalized content together with every issue found. The canonical
// content (instants normalized, see formats.go) is only meaningful when the
// issue list is empty. Validate never panics and never stops at the first
// problem.
func Validate(s *domain.Schema, content any) (any, []domain.ValidationIssue) {
	root, err := s.Root()
	if err != nil {
		return content, []domain.ValidationIssue{{Message: err.Error()}}
	}
	v := &validator{schema: s}
	canonical := v.check(root, content, nil, true)
	return canonical, v.issues
}

type validator struct {
	schema *domain.Schema
	issues []domain.ValidationIssue
}

func (v *validator) addIssue(path []domain.PathSegment, format string, args ...any) {
	// Copy the path; the walk mutates its slice in place.
	p := make([]domain.PathSegment, len(path))
	copy(p, path)
	v.issues = append(v.issues, domain.ValidationIssue{
		Message: fmt.Sprintf(format, args...),
		Path:    p,
	})
}

// check validates value against def and returns the canonicalized value.
// strict is only true at the content root.
func (v *validator) check(def *domain.TypeDefinition, value any, path []domain.PathSegment, strict bool) any {
	def, err := v.schema.Resolve(def)
	if err != nil {
		v.addIssue(path, "%s", err.Error())
		return value
	}

	switch def.Kind {
	case domain.TypeKindStruct:
		return v.checkStruct(def, value, path, strict)
	case domain.TypeKindList:
		return v.checkList(def, value, path)
	case domain.TypeKindEnum:
		return v.checkEnum(def, value, path)
	case domain.TypeKindDocumentRef:
		return v.checkDocumentRef(def, value, path)
	case domain.TypeKindFile:
		return v.checkFile(value, path)
	case domain.TypeKindString:
		return v.checkString(def, value, path)
	case domain.TypeKindNumber:
		switch value.(type) {
		case float64, int, int64:
			return value
		}
		v.addIssue(path, "expected a number, got %s", describe(value))
		return value
	case domain.TypeKindBoolean:
		if _, ok := value.(bool); !ok {
			v.addIssue(path, "expected a boolean, got %s", describe(value))
		}
		return value
	case domain.TypeKindStringLiteral:
		str, ok := value.(string)
		if !ok || str != def.Value {
			v.addIssue(path, "expected the literal %q, got %s", def.Value, describe(value))
		}
		return value
	case domain.TypeKindJsonObject:
		if _, ok := value.(map[string]any); !ok {
			v.addIssue(path, "expected an object, got %s", describe(value))
		}
		return value
	default:
		v.addIssue(path, "unknown type kind %q", def.Kind)
		return value
	}
}

func (v *validator) checkStruct(def *domain.TypeDefinition, value any, path []domain.PathSegment, strict bool) any {
	obj, ok := value.(map[string]any)
	if !ok {
		v.addIssue(path, "expected an object, got %s", describe(value))
		return value
	}

	canonical := make(map[string]any, len(obj))
	for key, val := range obj {
		canonical[key] = val
	}

	// Deterministic iteration keeps issue order stable across runs.
	names := make([]string, 0, len(def.Properties))
	for name := range def.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop := def.Properties[name]
		propPath := append(path, domain.PathSegment{Key: name})

		val, present := obj[name]
		if !present {
			if !prop.Nullable {
				v.addIssue(propPath, "missing required property")
			}
			continue
		}
		if val == nil {
			if !prop.Nullable {
				v.addIssue(propPath, "property is not nullable")
			}
			continue
		}
		canonical[name] = v.check(prop.Type, val, propPath, false)
	}

	if strict {
		extras := make([]string, 0)
		for key := range obj {
			if _, known := def.Properties[key]; !known {
				extras = append(extras, key)
			}
		}
		sort.Strings(extras)
		for _, key := range extras {
			v.addIssue(append(path, domain.PathSegment{Key: key}), "unknown property")
		}
	}

	return canonical
}

func (v *validator) checkList(def *domain.TypeDefinition, value any, path []domain.PathSegment) any {
	items, ok := value.([]any)
	if !ok {
		v.addIssue(path, "expected a list, got %s", describe(value))
		return value
	}
	canonical := make([]any, len(items))
	for i, item := range items {
		itemPath := append(path, domain.PathSegment{Index: i, List: true})
		if item == nil {
			v.addIssue(itemPath, "list items cannot be null")
			continue
		}
		canonical[i] = v.check(def.Items, item, itemPath, false)
	}
	return canonical
}

func (v *validator) checkEnum(def *domain.TypeDefinition, value any, path []domain.PathSegment) any {
	str, ok := value.(string)
	if !ok {
		v.addIssue(path, "expected an enum literal, got %s", describe(value))
		return value
	}
	for _, literal := range def.Members {
		if str == literal {
			return value
		}
	}
	v.addIssue(path, "%q is not a member of the enum", str)
	return value
}

func (v *validator) checkDocumentRef(def *domain.TypeDefinition, value any, path []domain.PathSegment) any {
	obj, ok := value.(map[string]any)
	if !ok {
		v.addIssue(path, "expected a document reference, got %s", describe(value))
		return value
	}
	id, ok := obj["documentId"].(string)
	if !ok || id == "" {
		v.addIssue(path, "document reference needs a documentId")
		return value
	}
	if raw, present := obj["collectionId"]; present {
		if _, ok := raw.(string); !ok {
			v.addIssue(path, "document reference collectionId must be a string")
		}
	}
	return value
}

func (v *validator) checkFile(value any, path []domain.PathSegment) any {
	obj, ok := value.(map[string]any)
	if !ok {
		v.addIssue(path, "expected a file reference, got %s", describe(value))
		return value
	}
	if id, ok := obj["fileId"].(string); !ok || id == "" {
		v.addIssue(path, "file reference needs a fileId")
	}
	return value
}

func (v *validator) checkString(def *domain.TypeDefinition, value any, path []domain.PathSegment) any {
	str, ok := value.(string)
	if !ok {
		v.addIssue(path, "expected a string, got %s", describe(value))
		return value
	}
	canonical, err := validateFormat(def.Format, str)
	if err != nil {
		v.addIssue(path, "%s", err.Error())
		return value
	}
	return canonical
}

func describe(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case float64, int, int64:
		return "a number"
	case map[string]any:
		return "an object"
	case []any:
		return "a list"
	default:
		return fmt.Sprintf("%T", value)
	}
}
