package service

import (
	"strings"
	"unicode"
)

// ChunkConfig controls how source documents are split into passages.
type ChunkConfig struct {
	MaxChars  int
	MinChars  int
	Overlap   int
	MaxChunks int
}

// DefaultChunkConfig provides sane defaults for prospectus and bursary
// documents.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars:  1200,
		MinChars:  400,
		Overlap:   200,
		MaxChunks: 200,
	}
}

// chunkText splits a document into passages of at most MaxChars runes,
// carrying Overlap runes into the next passage so admission requirements
// that straddle a boundary stay retrievable. Cuts prefer a paragraph break,
// then any whitespace, searching backwards no further than MinChars into
// the passage.
func chunkText(text string, cfg ChunkConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}
	runes := []rune(clean)
	if len(runes) <= cfg.MaxChars {
		return []string{clean}
	}

	chunks := make([]string, 0, 8)
	start := 0
	for start < len(runes) {
		if cfg.MaxChunks > 0 && len(chunks) >= cfg.MaxChunks {
			break
		}

		end := start + cfg.MaxChars
		if end > len(runes) {
			end = len(runes)
		} else {
			end = cutPoint(runes, start, end, cfg.MinChars)
		}
		if end <= start {
			break
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(runes) {
			break
		}

		nextStart := end
		if cfg.Overlap > 0 && end-start > cfg.Overlap {
			nextStart = end - cfg.Overlap
		}
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return chunks
}

// cutPoint finds the best boundary at or before end, never earlier than
// start+minChars. A blank line beats any other whitespace; with neither in
// range the passage is cut mid-word at end.
func cutPoint(runes []rune, start, end, minChars int) int {
	minCut := start + minChars
	if minCut > end || minCut < start {
		minCut = start
	}

	wsCut := 0
	for i := end; i > minCut; i-- {
		if !unicode.IsSpace(runes[i-1]) {
			continue
		}
		if runes[i-1] == '\n' && i >= 2 && runes[i-2] == '\n' {
			return i
		}
		if wsCut == 0 {
			wsCut = i
		}
	}
	if wsCut > 0 {
		return wsCut
	}
	return end
}
