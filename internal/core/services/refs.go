package services

import (
	"fmt"
	"sort"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

// contentRefs are the structural references extracted from validated content.
type contentRefs struct {
	Documents []domain.DocumentRefTarget
	FileIDs   []string
}

// extractRefs walks validated content alongside its schema and collects every
// DocumentRef target and File id. Content must already be canonical; any
// shape mismatch here is a programming error, not user input.
func extractRefs(s *domain.Schema, content any) (*contentRefs, error) {
	root, err := s.Root()
	if err != nil {
		return nil, err
	}
	refs := &contentRefs{}
	if err := collectRefs(s, root, content, refs); err != nil {
		return nil, err
	}
	refs.Documents = dedupeRefTargets(refs.Documents)
	refs.FileIDs = dedupeStrings(refs.FileIDs)
	return refs, nil
}

func collectRefs(s *domain.Schema, def *domain.TypeDefinition, value any, refs *contentRefs) error {
	if value == nil {
		return nil
	}
	def, err := s.Resolve(def)
	if err != nil {
		return err
	}

	switch def.Kind {
	case domain.TypeKindStruct:
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("expected object, got %T", value)
		}
		for name, prop := range def.Properties {
			if err := collectRefs(s, prop.Type, obj[name], refs); err != nil {
				return err
			}
		}

	case domain.TypeKindList:
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("expected list, got %T", value)
		}
		for _, item := range items {
			if err := collectRefs(s, def.Items, item, refs); err != nil {
				return err
			}
		}

	case domain.TypeKindDocumentRef:
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("expected document ref object, got %T", value)
		}
		refs.Documents = append(refs.Documents, domain.DocumentRefTarget{
			CollectionID: TargetCollection(def, obj),
			DocumentID:   asString(obj["documentId"]),
		})

	case domain.TypeKindFile:
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("expected file ref object, got %T", value)
		}
		refs.FileIDs = append(refs.FileIDs, asString(obj["fileId"]))
	}
	return nil
}

// TargetCollection resolves the collection a DocumentRef value points into:
// an explicit collectionId in the value wins over the type's target.
func TargetCollection(def *domain.TypeDefinition, value map[string]any) string {
	if id := asString(value["collectionId"]); id != "" {
		return id
	}
	return def.TargetCollectionID
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func dedupeRefTargets(targets []domain.DocumentRefTarget) []domain.DocumentRefTarget {
	if len(targets) < 2 {
		return targets
	}
	seen := map[domain.DocumentRefTarget]bool{}
	out := targets[:0]
	for _, t := range targets {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func dedupeStrings(values []string) []string {
	if len(values) < 2 {
		return values
	}
	seen := map[string]bool{}
	out := values[:0]
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// collectText gathers the human-readable string leaves of validated content
// in schema property order, for chunking. Ref and file objects carry ids
// only and contribute nothing.
func collectText(s *domain.Schema, def *domain.TypeDefinition, value any, out *[]string) error {
	if value == nil {
		return nil
	}
	def, err := s.Resolve(def)
	if err != nil {
		return err
	}

	switch def.Kind {
	case domain.TypeKindStruct:
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("expected object, got %T", value)
		}
		for _, name := range orderedPropertyNames(def) {
			if err := collectText(s, def.Properties[name].Type, obj[name], out); err != nil {
				return err
			}
		}

	case domain.TypeKindList:
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("expected list, got %T", value)
		}
		for _, item := range items {
			if err := collectText(s, def.Items, item, out); err != nil {
				return err
			}
		}

	case domain.TypeKindString:
		if text := asString(value); text != "" {
			*out = append(*out, text)
		}
	}
	return nil
}

// orderedPropertyNames returns PropertyOrder first, then any stragglers
// alphabetically.
func orderedPropertyNames(def *domain.TypeDefinition) []string {
	names := make([]string, 0, len(def.Properties))
	listed := map[string]bool{}
	for _, name := range def.PropertyOrder {
		if _, ok := def.Properties[name]; ok && !listed[name] {
			names = append(names, name)
			listed[name] = true
		}
	}
	var rest []string
	for name := range def.Properties {
		if !listed[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
