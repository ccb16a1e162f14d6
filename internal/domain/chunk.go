package domain

import "time"

// ChunkMetadata describes where a knowledge chunk came from and which
// careers or institutions it speaks about.
type ChunkMetadata struct {
	Source       string
	Category     string
	CareerTags   []string
	Institutions []string
}

// KnowledgeChunk is an immutable passage of the guidance corpus together
// with its embedding. Chunks are created by offline ingestion and never
// mutated afterwards.
type KnowledgeChunk struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  ChunkMetadata
	Position  int
	CreatedAt time.Time
}

// RetrievalResult pairs a chunk with its similarity to the query embedding
// at retrieval time. Similarity is in [0, 1].
type RetrievalResult struct {
	Chunk      *KnowledgeChunk
	Similarity float32
}

// DraftAnswer is the raw generator output for one pipeline run, together
// with the IDs of the retrieved chunks it was grounded on. SourceIDs is
// populated even when the model cited nothing explicitly; the verifiers
// need it for grounding checks.
type DraftAnswer struct {
	Text      string
	SourceIDs []string
}

// ValidateKnowledgeChunk validates a chunk before insertion.
func ValidateKnowledgeChunk(c *KnowledgeChunk) error {
	if c == nil {
		return NewDomainError(ErrCodeValidation, "knowledge chunk cannot be nil")
	}
	if c.ID == "" {
		return NewDomainError(ErrCodeValidation, "knowledge chunk ID is required")
	}
	if c.Text == "" {
		return NewDomainError(ErrCodeValidation, "knowledge chunk text is required")
	}
	if len(c.Embedding) == 0 {
		return NewDomainError(ErrCodeValidation, "knowledge chunk embedding is required")
	}
	return nil
}
