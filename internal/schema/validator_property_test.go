package schema

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

// Re-validating accepted content must be stable: no false negatives on
// repeat, and canonicalization must be a fixed point.
func TestProperty_ValidationStable(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	s := &domain.Schema{
		RootType: "Note",
		Types: map[string]*domain.TypeDefinition{
			"Note": {
				Kind: domain.TypeKindStruct,
				Properties: map[string]domain.Property{
					"title":  {Type: &domain.TypeDefinition{Kind: domain.TypeKindString}},
					"rating": {Type: &domain.TypeDefinition{Kind: domain.TypeKindNumber}, Nullable: true},
					"done":   {Type: &domain.TypeDefinition{Kind: domain.TypeKindBoolean}},
					"tags":   {Type: &domain.TypeDefinition{Kind: domain.TypeKindList, Items: &domain.TypeDefinition{Kind: domain.TypeKindString}}, Nullable: true},
				},
				PropertyOrder: []string{"title", "rating", "done", "tags"},
			},
		},
	}

	properties.Property("accepted content stays accepted and canonical form is fixed", prop.ForAll(
		func(title string, rating float64, done bool, tags []string) bool {
			anyTags := make([]any, len(tags))
			for i, tag := range tags {
				anyTags[i] = tag
			}
			content := map[string]any{
				"title":  title,
				"rating": rating,
				"done":   done,
				"tags":   anyTags,
			}

			first, issues := Validate(s, content)
			if len(issues) != 0 {
				return false
			}
			second, issues := Validate(s, first)
			if len(issues) != 0 {
				return false
			}
			third, issues := Validate(s, second)
			return len(issues) == 0 && len(third.(map[string]any)) == len(content)
		},
		gen.AnyString(),
		gen.Float64Range(-1e9, 1e9),
		gen.Bool(),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// Annotation generation is a pure projection: identical schemas yield
// byte-identical output.
func TestProperty_AnnotationsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("same schema, same text", prop.ForAll(
		func(propNames []string) bool {
			s := &domain.Schema{
				RootType: "Root",
				Types: map[string]*domain.TypeDefinition{
					"Root": {Kind: domain.TypeKindStruct, Properties: map[string]domain.Property{}},
				},
			}
			for _, name := range propNames {
				if name == "" {
					continue
				}
				s.Types["Root"].Properties[name] = domain.Property{
					Type: &domain.TypeDefinition{Kind: domain.TypeKindString},
				}
			}
			first, err := GenerateAnnotations(s)
			if err != nil {
				return false
			}
			second, err := GenerateAnnotations(s)
			return err == nil && first == second
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
