package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kaelo-ai/kaelo/internal/domain"
)

// DocumentStore fetches source documents from the corpus bucket.
type DocumentStore interface {
	FetchDocument(ctx context.Context, key string) ([]byte, error)
}

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ChunkWriter persists the chunks produced from one source document.
type ChunkWriter interface {
	ReplaceSource(ctx context.Context, source string, chunks []domain.KnowledgeChunk) error
}

// IngestionService turns one source document into embedded knowledge
// chunks: fetch, split, embed, store. Re-ingesting the same document key
// replaces its previous chunks wholesale.
type IngestionService struct {
	store    DocumentStore
	embedder EmbeddingClient
	chunks   ChunkWriter
	chunkCfg ChunkConfig
}

// NewIngestionService creates a new IngestionService instance
func NewIngestionService(store DocumentStore, embedder EmbeddingClient, chunks ChunkWriter) *IngestionService {
	return &IngestionService{
		store:    store,
		embedder: embedder,
		chunks:   chunks,
		chunkCfg: DefaultChunkConfig(),
	}
}

// IngestDocument processes one document and returns the number of chunks
// stored. This method is called by the background worker.
func (s *IngestionService) IngestDocument(ctx context.Context, objectKey, category string) (int, error) {
	body, err := s.store.FetchDocument(ctx, objectKey)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch document %s: %w", objectKey, err)
	}

	pieces := chunkText(string(body), s.chunkCfg)
	if len(pieces) == 0 {
		return 0, fmt.Errorf("document %s produced no chunks", objectKey)
	}

	now := time.Now().UTC()
	chunks := make([]domain.KnowledgeChunk, 0, len(pieces))
	for i, piece := range pieces {
		embedding, err := s.embedder.GenerateEmbedding(ctx, piece)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunk %d of %s: %w", i, objectKey, err)
		}

		chunks = append(chunks, domain.KnowledgeChunk{
			ID:        uuid.NewString(),
			Text:      piece,
			Embedding: embedding,
			Metadata: domain.ChunkMetadata{
				Source:       objectKey,
				Category:     category,
				CareerTags:   detectCareers(piece),
				Institutions: detectInstitutions(piece),
			},
			Position:  i,
			CreatedAt: now,
		})
	}

	if err := s.chunks.ReplaceSource(ctx, objectKey, chunks); err != nil {
		return 0, fmt.Errorf("failed to store chunks for %s: %w", objectKey, err)
	}

	return len(chunks), nil
}

// knownCareers are the career names tagged during ingestion so retrieval
// metadata can surface which careers a passage speaks about.
var knownCareers = []string{
	"Nursing",
	"Teaching",
	"Physiotherapy",
	"Radiography",
	"Social Work",
	"Occupational Therapy",
	"Engineering",
	"Actuarial Science",
	"Data Science",
	"Statistics",
	"Quantitative Finance",
	"Medicine",
	"Law",
	"Accounting",
	"Agriculture",
}

var knownInstitutions = []string{
	"University of Cape Town",
	"University of the Witwatersrand",
	"Stellenbosch University",
	"University of Pretoria",
	"University of Johannesburg",
	"University of KwaZulu-Natal",
	"UNISA",
	"NSFAS",
}

func detectCareers(text string) []string {
	return matchNames(text, knownCareers)
}

func detectInstitutions(text string) []string {
	return matchNames(text, knownInstitutions)
}

func matchNames(text string, names []string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, name := range names {
		if strings.Contains(lower, strings.ToLower(name)) {
			found = append(found, name)
		}
	}
	return found
}
