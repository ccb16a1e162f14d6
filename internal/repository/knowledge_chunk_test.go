//go:build integration

package repository

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kaelo-ai/kaelo/internal/domain"
	"github.com/kaelo-ai/kaelo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unitVec returns a 1536-dim unit vector pointing along one axis.
func unitVec(axis int) []float32 {
	v := make([]float32, 1536)
	v[axis] = 1
	return v
}

// blendVec returns a normalized 1536-dim blend of two axes; its cosine
// similarity to unitVec(a) is wa / sqrt(wa^2 + wb^2).
func blendVec(a, b int, wa, wb float64) []float32 {
	norm := math.Sqrt(wa*wa + wb*wb)
	v := make([]float32, 1536)
	v[a] = float32(wa / norm)
	v[b] = float32(wb / norm)
	return v
}

func testChunk(embedding []float32, position int, text string) *domain.KnowledgeChunk {
	return &domain.KnowledgeChunk{
		ID:        uuid.NewString(),
		Text:      text,
		Embedding: embedding,
		Metadata: domain.ChunkMetadata{
			Source:     "nursing-prospectus.pdf",
			Category:   "careers",
			CareerTags: []string{"Nursing"},
		},
		Position:  position,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestKnowledgeChunkRepository_SimilaritySearch(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewKnowledgeChunkRepository(pool)

	exact := testChunk(unitVec(0), 0, "Nursing requires a 50% average in Life Sciences.")
	near := testChunk(blendVec(0, 1, 3, 1), 1, "The Department of Health bursary covers tuition.")
	far := testChunk(unitVec(2), 2, "Unrelated passage about engineering mathematics.")

	require.NoError(t, repo.Insert(ctx, exact))
	require.NoError(t, repo.Insert(ctx, near))
	require.NoError(t, repo.Insert(ctx, far))

	results, err := repo.SimilaritySearch(ctx, unitVec(0), 0.5, 5)
	require.NoError(t, err)

	require.Len(t, results, 2, "orthogonal chunk must be filtered out")
	assert.Equal(t, exact.ID, results[0].Chunk.ID)
	assert.Equal(t, near.ID, results[1].Chunk.ID)
	assert.InDelta(t, 1.0, float64(results[0].Similarity), 0.001)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}

func TestKnowledgeChunkRepository_SimilaritySearch_TieBreaksOnPosition(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewKnowledgeChunkRepository(pool)

	second := testChunk(unitVec(0), 7, "second passage")
	first := testChunk(unitVec(0), 3, "first passage")
	require.NoError(t, repo.Insert(ctx, second))
	require.NoError(t, repo.Insert(ctx, first))

	results, err := repo.SimilaritySearch(ctx, unitVec(0), 0.5, 5)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, first.ID, results[0].Chunk.ID)
	assert.Equal(t, second.ID, results[1].Chunk.ID)
}

func TestKnowledgeChunkRepository_SimilaritySearch_RespectsLimit(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewKnowledgeChunkRepository(pool)

	for i := 0; i < 8; i++ {
		require.NoError(t, repo.Insert(ctx, testChunk(unitVec(0), i, "passage")))
	}

	results, err := repo.SimilaritySearch(ctx, unitVec(0), 0.5, 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestKnowledgeChunkRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewKnowledgeChunkRepository(pool)

	chunk := testChunk(unitVec(0), 0, "Nursing requires a 50% average.")
	require.NoError(t, repo.Insert(ctx, chunk))

	got, err := repo.GetByID(ctx, chunk.ID)
	require.NoError(t, err)
	assert.Equal(t, chunk.Text, got.Text)
	assert.Equal(t, chunk.Metadata.Source, got.Metadata.Source)
	assert.Equal(t, chunk.Metadata.CareerTags, got.Metadata.CareerTags)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)
}

func TestKnowledgeChunkRepository_ReplaceSource(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewKnowledgeChunkRepository(pool)

	old := testChunk(unitVec(0), 0, "stale passage")
	require.NoError(t, repo.Insert(ctx, old))

	fresh := []domain.KnowledgeChunk{
		*testChunk(unitVec(0), 0, "updated passage one"),
		*testChunk(unitVec(1), 1, "updated passage two"),
	}
	require.NoError(t, repo.ReplaceSource(ctx, "nursing-prospectus.pdf", fresh))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	_, err = repo.GetByID(ctx, old.ID)
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)
}

func TestKnowledgeChunkRepository_ReplaceSource_FailureKeepsOldChunks(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewKnowledgeChunkRepository(pool)

	old := testChunk(unitVec(0), 0, "existing passage")
	require.NoError(t, repo.Insert(ctx, old))

	bad := testChunk(unitVec(1), 1, "")
	fresh := []domain.KnowledgeChunk{
		*testChunk(unitVec(0), 0, "replacement passage"),
		*bad,
	}
	require.Error(t, repo.ReplaceSource(ctx, "nursing-prospectus.pdf", fresh))

	// The delete rolled back with the failed insert.
	got, err := repo.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, "existing passage", got.Text)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestKnowledgeChunkRepository_List(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewKnowledgeChunkRepository(pool)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Insert(ctx, testChunk(unitVec(i), i, "passage")))
	}

	chunks, err := repo.List(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, 0, chunks[0].Position)

	rest, err := repo.List(ctx, 3, 3)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}
