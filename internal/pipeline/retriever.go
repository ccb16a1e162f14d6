// Package pipeline implements the guidance answer pipeline: retrieval,
// draft generation, rule and model verification, and the decision engine
// that picks the terminal outcome.
package pipeline

import (
	"context"
	"sort"

	"github.com/kaelo-ai/kaelo/internal/domain"
)

// SimilaritySearcher is the knowledge store's query contract. Implemented
// by the pgvector-backed repository in production and by in-memory stores
// in tests.
type SimilaritySearcher interface {
	SimilaritySearch(ctx context.Context, embedding []float32, threshold float32, limit int) ([]domain.RetrievalResult, error)
}

// Embedder converts free text into a fixed-length vector.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// RetrieverConfig tunes retrieval.
type RetrieverConfig struct {
	Threshold float32
	Limit     int
}

// DefaultRetrieverConfig mirrors the production defaults.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{Threshold: 0.5, Limit: 5}
}

// Retriever returns the most similar knowledge chunks for a query
// embedding. An empty result is valid; a store failure is an explicit
// error so callers can tell "no relevant knowledge" from "retrieval
// broken".
type Retriever struct {
	store SimilaritySearcher
	cfg   RetrieverConfig
}

// NewRetriever creates a Retriever. Zero config values fall back to
// defaults.
func NewRetriever(store SimilaritySearcher, cfg RetrieverConfig) *Retriever {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultRetrieverConfig().Limit
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultRetrieverConfig().Threshold
	}
	return &Retriever{store: store, cfg: cfg}
}

// Retrieve returns up to Limit chunks with similarity >= Threshold,
// ordered by descending similarity. Ties break on chunk insertion order so
// results stay deterministic.
func (r *Retriever) Retrieve(ctx context.Context, queryEmbedding []float32) ([]domain.RetrievalResult, error) {
	results, err := r.store.SimilaritySearch(ctx, queryEmbedding, r.cfg.Threshold, r.cfg.Limit)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamUnavailable, "similarity search failed", err)
	}

	filtered := make([]domain.RetrievalResult, 0, len(results))
	for _, result := range results {
		if result.Chunk == nil {
			continue
		}
		if result.Similarity >= r.cfg.Threshold {
			filtered = append(filtered, result)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Similarity != filtered[j].Similarity {
			return filtered[i].Similarity > filtered[j].Similarity
		}
		return filtered[i].Chunk.Position < filtered[j].Chunk.Position
	})

	if len(filtered) > r.cfg.Limit {
		filtered = filtered[:r.cfg.Limit]
	}

	return filtered, nil
}
