package services

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

func TestChunkContent(t *testing.T) {
	s := bookSchema()

	t.Run("short text yields one chunk", func(t *testing.T) {
		chunks, err := chunkContent(s, bookContent("Clean Code", "978-0132350884"))
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Contains(t, chunks[0], "Clean Code")
	})

	t.Run("paragraphs pack up to the chunk limit", func(t *testing.T) {
		paragraph := strings.Repeat("word ", 80) // ~400 chars
		content := bookContent("Title", "")
		content["body"] = strings.Join([]string{paragraph, paragraph, paragraph, paragraph}, "\n\n")

		chunks, err := chunkContent(s, content)
		require.NoError(t, err)
		require.Greater(t, len(chunks), 1)
		for _, chunk := range chunks {
			assert.LessOrEqual(t, len(chunk), maxChunkSize)
		}
	})

	t.Run("oversized paragraph is hard-split", func(t *testing.T) {
		content := bookContent("Title", "")
		content["body"] = strings.Repeat("a", 2500)

		chunks, err := chunkContent(s, content)
		require.NoError(t, err)
		for _, chunk := range chunks {
			assert.LessOrEqual(t, len(chunk), maxChunkSize)
		}
	})

	t.Run("hard split keeps rune boundaries", func(t *testing.T) {
		content := bookContent("Title", "")
		content["body"] = strings.Repeat("日本語テキスト", 200) // 3 bytes per rune

		chunks, err := chunkContent(s, content)
		require.NoError(t, err)
		require.Greater(t, len(chunks), 1)
		for _, chunk := range chunks {
			assert.LessOrEqual(t, len(chunk), maxChunkSize)
			assert.True(t, utf8.ValidString(chunk))
		}
	})
}

func TestDeriveBlockingKeys(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	compiled, err := engine.Compile(blockingKeysGetterSource)
	require.NoError(t, err)
	derivation := bookDerivation()
	derivation.BlockingKeysGetter = &compiled

	t.Run("keys derive from content", func(t *testing.T) {
		keys, err := deriveBlockingKeys(ctx, engine, derivation, bookContent("Clean Code", "978-0132350884"))
		require.NoError(t, err)
		assert.Equal(t, []string{"isbn:978-0132350884"}, keys)
	})

	t.Run("no getter yields no keys", func(t *testing.T) {
		bare := bookDerivation()
		bare.BlockingKeysGetter = nil
		keys, err := deriveBlockingKeys(ctx, engine, bare, bookContent("Clean Code", "978-0132350884"))
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("getter may yield no keys", func(t *testing.T) {
		empty, err := engine.Compile(`return {}`)
		require.NoError(t, err)
		derivation := bookDerivation()
		derivation.BlockingKeysGetter = &empty

		keys, err := deriveBlockingKeys(ctx, engine, derivation, bookContent("Clean Code", ""))
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("script failure is a hard error", func(t *testing.T) {
		failing, err := engine.Compile(`error("nope")`)
		require.NoError(t, err)
		derivation := bookDerivation()
		derivation.BlockingKeysGetter = &failing

		_, err = deriveBlockingKeys(ctx, engine, derivation, bookContent("Clean Code", ""))
		var scriptErr *domain.ScriptError
		require.ErrorAs(t, err, &scriptErr)
	})
}

func TestDeriveSummarySoftFailure(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	failing, err := engine.Compile(`error("summary broken")`)
	require.NoError(t, err)
	derivation := bookDerivation()
	derivation.SummaryGetter = failing

	summary := deriveSummary(ctx, engine, derivation, bookContent("Clean Code", ""))
	require.NotNil(t, summary)
	assert.False(t, summary.OK())
	assert.Contains(t, summary.Error, "summary broken")
}

func TestDeriveSummaryEmptyObject(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	empty, err := engine.Compile(`return {}`)
	require.NoError(t, err)
	derivation := bookDerivation()
	derivation.SummaryGetter = empty

	summary := deriveSummary(ctx, engine, derivation, bookContent("Clean Code", ""))
	require.NotNil(t, summary)
	assert.True(t, summary.OK())
	assert.Empty(t, summary.Data)
}
