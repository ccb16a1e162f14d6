package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kaelo-ai/kaelo/internal/domain"
	"github.com/pgvector/pgvector-go"
)

// KnowledgeChunkRepository persists embedded corpus chunks and runs the
// vector search behind retrieval.
type KnowledgeChunkRepository struct {
	db dbtx
}

func NewKnowledgeChunkRepository(pool *pgxpool.Pool) *KnowledgeChunkRepository {
	return &KnowledgeChunkRepository{db: pool}
}

func NewKnowledgeChunkRepositoryWithTx(tx pgx.Tx) *KnowledgeChunkRepository {
	return &KnowledgeChunkRepository{db: tx}
}

// SimilaritySearch returns chunks whose cosine similarity to the query
// embedding is at least threshold, ordered by similarity descending with
// ties broken by insertion position.
func (r *KnowledgeChunkRepository) SimilaritySearch(ctx context.Context, embedding []float32, threshold float32, limit int) ([]domain.RetrievalResult, error) {
	if limit <= 0 {
		limit = 5
	}

	vec := pgvector.NewVector(embedding)

	rows, err := r.db.Query(ctx,
		`SELECT id, content, source, category, career_tags, institutions, position, created_at,
		        1 - (embedding <=> $1) AS similarity
		 FROM knowledge_chunks
		 WHERE 1 - (embedding <=> $1) >= $2
		 ORDER BY similarity DESC, position ASC
		 LIMIT $3`,
		vec, threshold, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.RetrievalResult, 0, limit)
	for rows.Next() {
		var chunk domain.KnowledgeChunk
		var similarity float32
		if err := rows.Scan(
			&chunk.ID,
			&chunk.Text,
			&chunk.Metadata.Source,
			&chunk.Metadata.Category,
			&chunk.Metadata.CareerTags,
			&chunk.Metadata.Institutions,
			&chunk.Position,
			&chunk.CreatedAt,
			&similarity,
		); err != nil {
			return nil, err
		}
		results = append(results, domain.RetrievalResult{Chunk: &chunk, Similarity: similarity})
	}

	return results, rows.Err()
}

// Insert stores one chunk. Chunks are immutable after insertion.
func (r *KnowledgeChunkRepository) Insert(ctx context.Context, chunk *domain.KnowledgeChunk) error {
	if err := domain.ValidateKnowledgeChunk(chunk); err != nil {
		return err
	}

	createdAt := chunk.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	careerTags := chunk.Metadata.CareerTags
	if careerTags == nil {
		careerTags = []string{}
	}
	institutions := chunk.Metadata.Institutions
	if institutions == nil {
		institutions = []string{}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_chunks
			(id, content, embedding, source, category, career_tags, institutions, position, created_at)
		 VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		chunk.ID,
		chunk.Text,
		pgvector.NewVector(chunk.Embedding),
		chunk.Metadata.Source,
		chunk.Metadata.Category,
		careerTags,
		institutions,
		chunk.Position,
		createdAt,
	)
	return err
}

// ReplaceSource deletes every chunk from a source document and inserts the
// new set in one transaction, so re-ingesting a document never leaves
// stale passages behind and a failed re-ingest never loses the old ones.
func (r *KnowledgeChunkRepository) ReplaceSource(ctx context.Context, source string, chunks []domain.KnowledgeChunk) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txRepo := NewKnowledgeChunkRepositoryWithTx(tx)
	if _, err := tx.Exec(ctx, `DELETE FROM knowledge_chunks WHERE source = $1`, source); err != nil {
		return err
	}
	for i := range chunks {
		if err := txRepo.Insert(ctx, &chunks[i]); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *KnowledgeChunkRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeChunk, error) {
	var chunk domain.KnowledgeChunk
	err := r.db.QueryRow(ctx,
		`SELECT id, content, source, category, career_tags, institutions, position, created_at
		 FROM knowledge_chunks WHERE id = $1`,
		id,
	).Scan(
		&chunk.ID,
		&chunk.Text,
		&chunk.Metadata.Source,
		&chunk.Metadata.Category,
		&chunk.Metadata.CareerTags,
		&chunk.Metadata.Institutions,
		&chunk.Position,
		&chunk.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, err
	}
	return &chunk, nil
}

// List returns chunks ordered by source then position, for the admin
// corpus view. Embeddings are not loaded.
func (r *KnowledgeChunkRepository) List(ctx context.Context, limit, offset int) ([]*domain.KnowledgeChunk, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, content, source, category, career_tags, institutions, position, created_at
		 FROM knowledge_chunks
		 ORDER BY source, position
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := make([]*domain.KnowledgeChunk, 0, limit)
	for rows.Next() {
		var chunk domain.KnowledgeChunk
		if err := rows.Scan(
			&chunk.ID,
			&chunk.Text,
			&chunk.Metadata.Source,
			&chunk.Metadata.Category,
			&chunk.Metadata.CareerTags,
			&chunk.Metadata.Institutions,
			&chunk.Position,
			&chunk.CreatedAt,
		); err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}

	return chunks, rows.Err()
}

func (r *KnowledgeChunkRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge_chunks`).Scan(&count)
	return count, err
}
