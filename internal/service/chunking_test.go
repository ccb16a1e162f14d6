package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_ShortDocumentIsSingleChunk(t *testing.T) {
	chunks := chunkText("Nursing requires a 50% average.", DefaultChunkConfig())
	require.Len(t, chunks, 1)
	assert.Equal(t, "Nursing requires a 50% average.", chunks[0])
}

func TestChunkText_EmptyDocument(t *testing.T) {
	assert.Nil(t, chunkText("", DefaultChunkConfig()))
	assert.Nil(t, chunkText("   \n\t ", DefaultChunkConfig()))
}

func TestChunkText_SplitsOnWordBoundaries(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 50, MinChars: 20, Overlap: 0, MaxChunks: 0}
	text := strings.Repeat("bursary deadlines matter ", 10)

	chunks := chunkText(text, cfg)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), cfg.MaxChars)
		assert.False(t, strings.HasPrefix(chunk, " "))
		assert.False(t, strings.HasSuffix(chunk, " "))
	}
}

func TestChunkText_OverlapCarriesContext(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 60, MinChars: 20, Overlap: 20, MaxChunks: 0}
	text := strings.Repeat("career guidance passages ", 12)

	chunks := chunkText(text, cfg)
	require.Greater(t, len(chunks), 1)

	// Each chunk after the first starts with text from the tail of the
	// previous chunk.
	tail := chunks[0][len(chunks[0])-10:]
	assert.Contains(t, chunks[1], strings.TrimSpace(tail))
}

func TestChunkText_PrefersParagraphBreaks(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 100, MinChars: 20, Overlap: 0, MaxChunks: 0}
	para1 := "Nursing at UCT requires a 50% average in Life Sciences."
	para2 := "NSFAS funds students from low income households across all provinces of South Africa every year."

	chunks := chunkText(para1+"\n\n"+para2, cfg)
	require.Len(t, chunks, 2)
	assert.Equal(t, para1, chunks[0])
	assert.Equal(t, para2, chunks[1])
}

func TestChunkText_RespectsMaxChunks(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 30, MinChars: 10, Overlap: 0, MaxChunks: 3}
	text := strings.Repeat("long corpus document text ", 50)

	chunks := chunkText(text, cfg)
	assert.Len(t, chunks, 3)
}

func TestChunkText_ZeroConfigFallsBackToDefaults(t *testing.T) {
	chunks := chunkText("short text", ChunkConfig{})
	require.Len(t, chunks, 1)
}
