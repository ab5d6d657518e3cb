package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
)

// deriveSummary runs the collection's summary getter over validated content.
// Script failures do not fail the caller: they are recorded on the summary so
// list views can render the failure in place of the data.
func deriveSummary(ctx context.Context, engine driven.ScriptEngine, derivation domain.DerivationSettings, content any) *domain.ContentSummary {
	result, err := engine.Execute(ctx, derivation.SummaryGetter, content)
	if err != nil {
		return &domain.ContentSummary{Error: err.Error()}
	}

	data, ok := result.(map[string]any)
	if !ok {
		// An empty Lua table comes back as an empty slice.
		if items, empty := result.([]any); empty && len(items) == 0 {
			return &domain.ContentSummary{Data: map[string]any{}}
		}
		return &domain.ContentSummary{Error: fmt.Sprintf("summary getter returned %T, want an object", result)}
	}
	for key, value := range data {
		if _, err := domain.ParseSummaryColumnKey(key); err != nil {
			return &domain.ContentSummary{Error: err.Error()}
		}
		switch value.(type) {
		case nil, bool, string, float64:
		default:
			return &domain.ContentSummary{Error: fmt.Sprintf("summary column %q holds %T, want a primitive", key, value)}
		}
	}
	return &domain.ContentSummary{Data: data}
}

// deriveBlockingKeys runs the optional blocking-keys getter. Unlike the
// summary, a failure here fails the write: missed keys would silently
// disable duplicate detection.
func deriveBlockingKeys(ctx context.Context, engine driven.ScriptEngine, derivation domain.DerivationSettings, content any) ([]string, error) {
	if derivation.BlockingKeysGetter == nil {
		return nil, nil
	}

	result, err := engine.Execute(ctx, *derivation.BlockingKeysGetter, content)
	if err != nil {
		return nil, fmt.Errorf("deriving blocking keys: %w", err)
	}
	if result == nil {
		return nil, nil
	}

	items, ok := result.([]any)
	if !ok {
		return nil, &domain.ScriptError{
			Kind:    domain.ScriptErrorNonConformingReturnValue,
			Message: fmt.Sprintf("blocking keys getter returned %T, want a list of strings", result),
		}
	}
	keys := make([]string, 0, len(items))
	for _, item := range items {
		key, ok := item.(string)
		if !ok {
			return nil, &domain.ScriptError{
				Kind:    domain.ScriptErrorNonConformingReturnValue,
				Message: fmt.Sprintf("blocking key is %T, want string", item),
			}
		}
		if key == "" {
			continue
		}
		keys = append(keys, key)
	}
	return dedupeStrings(keys), nil
}

// convertRemoteDocument maps a connector record into the collection schema
// via the binding's fromRemoteDocument script.
func convertRemoteDocument(ctx context.Context, engine driven.ScriptEngine, derivation domain.DerivationSettings, remoteContent any) (any, error) {
	if derivation.RemoteConverters == nil {
		return nil, errors.New("collection version has no remote converters")
	}
	return engine.Execute(ctx, derivation.RemoteConverters.FromRemoteDocument, remoteContent)
}

const maxChunkSize = 1000

// chunkContent splits the text leaves of validated content into search
// chunks. Paragraph boundaries are preferred split points; a paragraph
// longer than the chunk size is split hard.
func chunkContent(s *domain.Schema, content any) ([]string, error) {
	root, err := s.Root()
	if err != nil {
		return nil, err
	}
	var texts []string
	if err := collectText(s, root, content, &texts); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}

	var paragraphs []string
	for _, text := range texts {
		for _, para := range strings.Split(text, "\n\n") {
			if para = strings.TrimSpace(para); para != "" {
				paragraphs = append(paragraphs, para)
			}
		}
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}
	for _, para := range paragraphs {
		for len(para) > maxChunkSize {
			flush()
			cut := maxChunkSize
			for cut > 0 && !utf8.RuneStart(para[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxChunkSize
			}
			chunks = append(chunks, para[:cut])
			para = para[cut:]
		}
		if current.Len() > 0 && current.Len()+len(para)+2 > maxChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return chunks, nil
}
