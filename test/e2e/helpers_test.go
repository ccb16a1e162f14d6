package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kaelo-ai/kaelo/internal/api/handlers"
	"github.com/kaelo-ai/kaelo/internal/cache"
	"github.com/kaelo-ai/kaelo/internal/domain"
	llm "github.com/kaelo-ai/kaelo/internal/openai"
	"github.com/kaelo-ai/kaelo/internal/pipeline"
	"github.com/kaelo-ai/kaelo/internal/repository"
	"github.com/kaelo-ai/kaelo/internal/server"
)

const (
	draftModel  = "gpt-4o"
	verifyModel = "gpt-4o-mini"

	approveCritique = `{"recommendation": "approve", "hallucinations": 0, "issues": [], "corrections": []}`
)

// stubEmbedder returns a fixed vector and counts calls so tests can prove
// the cache short-circuited the pipeline.
type stubEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (s *stubEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return []float32{0.1, 0.2, 0.3}, nil
}

func (s *stubEmbedder) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubStore serves a fixed corpus regardless of the query embedding.
type stubStore struct {
	results []domain.RetrievalResult
}

func (s *stubStore) SimilaritySearch(ctx context.Context, embedding []float32, threshold float32, limit int) ([]domain.RetrievalResult, error) {
	return s.results, nil
}

// stubCompleter answers the draft prompt with grounded text and the
// verification prompt with an approval critique, keyed off the model.
type stubCompleter struct {
	draftResponse  string
	verifyResponse string
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string, opts llm.CompleteOptions) (string, error) {
	if opts.Model == verifyModel {
		return s.verifyResponse, nil
	}
	return s.draftResponse, nil
}

// memoryAudit records outcomes in memory and serves them back through the
// admin read interface.
type memoryAudit struct {
	mu      sync.Mutex
	entries []*repository.GuidanceLogEntry
}

func (m *memoryAudit) RecordOutcome(ctx context.Context, query string, profile *domain.StudentProfile, outcome *domain.VerificationOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	grade := 0
	if profile != nil {
		grade = profile.Grade
	}
	m.entries = append(m.entries, &repository.GuidanceLogEntry{
		ID:            time.Now().Format("20060102150405.000000000"),
		Query:         query,
		Grade:         grade,
		Decision:      outcome.Decision,
		FinalAnswer:   outcome.FinalAnswer,
		Confidence:    outcome.Confidence,
		RequiresHuman: outcome.RequiresHuman,
		IssueCount:    len(outcome.Issues),
		ProcessingMs:  outcome.ProcessingTime.Milliseconds(),
		CreatedAt:     time.Now().UTC(),
	})
	return nil
}

func (m *memoryAudit) ListRecent(ctx context.Context, limit int) ([]*repository.GuidanceLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]*repository.GuidanceLogEntry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, m.entries[i])
	}
	return entries, nil
}

func (m *memoryAudit) CountByDecision(ctx context.Context, since time.Time) (map[domain.Decision]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[domain.Decision]int64{}
	for _, entry := range m.entries {
		if entry.CreatedAt.After(since) {
			counts[entry.Decision]++
		}
	}
	return counts, nil
}

// memoryQueue records enqueued ingest jobs.
type memoryQueue struct {
	mu   sync.Mutex
	jobs []*domain.IngestJob
}

func (m *memoryQueue) Create(ctx context.Context, job *domain.IngestJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *memoryQueue) Jobs() []*domain.IngestJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.IngestJob(nil), m.jobs...)
}

// knowledgeReader serves the stub corpus through the admin knowledge API.
type knowledgeReader struct {
	chunks []*domain.KnowledgeChunk
}

func (k *knowledgeReader) List(ctx context.Context, limit, offset int) ([]*domain.KnowledgeChunk, error) {
	if offset >= len(k.chunks) {
		return nil, nil
	}
	end := offset + limit
	if end > len(k.chunks) {
		end = len(k.chunks)
	}
	return k.chunks[offset:end], nil
}

func (k *knowledgeReader) Count(ctx context.Context) (int64, error) {
	return int64(len(k.chunks)), nil
}

// TestEnv is a full in-process guidance stack behind a real HTTP server.
type TestEnv struct {
	Server   *httptest.Server
	Embedder *stubEmbedder
	Audit    *memoryAudit
	Queue    *memoryQueue
	Cache    *cache.Cache
}

func corpusChunks() []*domain.KnowledgeChunk {
	return []*domain.KnowledgeChunk{
		{
			ID:   "chunk-1",
			Text: "Nursing requires a 50% average in Life Sciences. The Department of Health bursary covers tuition.",
			Metadata: domain.ChunkMetadata{
				Source:     "careers/nursing.md",
				Category:   "healthcare",
				CareerTags: []string{"Nursing"},
			},
			Position:  0,
			CreatedAt: time.Now().UTC(),
		},
		{
			ID:   "chunk-2",
			Text: "NSFAS funds students from households earning under R350 000 per year.",
			Metadata: domain.ChunkMetadata{
				Source:   "funding/nsfas.md",
				Category: "funding",
			},
			Position:  1,
			CreatedAt: time.Now().UTC(),
		},
	}
}

// SetupEnv builds the guidance stack with stubbed model and storage
// collaborators and starts an HTTP server for it.
func SetupEnv(t *testing.T) *TestEnv {
	t.Helper()

	chunks := corpusChunks()
	results := make([]domain.RetrievalResult, 0, len(chunks))
	for i, c := range chunks {
		results = append(results, domain.RetrievalResult{Chunk: c, Similarity: 0.8 - float32(i)*0.1})
	}

	embedder := &stubEmbedder{}
	completer := &stubCompleter{
		draftResponse:  "Nursing requires a 50% average in Life Sciences, and the Department of Health bursary covers tuition for qualifying students.",
		verifyResponse: approveCritique,
	}
	audit := &memoryAudit{}
	queue := &memoryQueue{}
	outcomeCache := cache.New(cache.NewMemoryStore(), time.Hour, "v1")

	guidancePipeline := pipeline.New(
		embedder,
		pipeline.NewRetriever(&stubStore{results: results}, pipeline.DefaultRetrieverConfig()),
		pipeline.NewDraftGenerator(completer, draftModel),
		pipeline.NewLLMVerifier(completer, verifyModel),
		outcomeCache,
		audit,
		pipeline.Config{},
	)

	router := server.NewRouter(server.RouterConfig{
		GuidanceHandler: handlers.NewGuidanceHandler(guidancePipeline),
		AdminHandler:    handlers.NewAdminHandler(&knowledgeReader{chunks: chunks}, audit, outcomeCache, queue),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &TestEnv{
		Server:   srv,
		Embedder: embedder,
		Audit:    audit,
		Queue:    queue,
		Cache:    outcomeCache,
	}
}

// PostJSON posts a JSON body and decodes the enveloped response data into out.
func (env *TestEnv) PostJSON(t *testing.T, path string, body interface{}, out interface{}) int {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}

	resp, err := http.Post(env.Server.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	env.decodeData(t, resp, out)
	return resp.StatusCode
}

// GetJSON gets a path and decodes the enveloped response data into out.
func (env *TestEnv) GetJSON(t *testing.T, path string, out interface{}) int {
	t.Helper()

	resp, err := http.Get(env.Server.URL + path)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	env.decodeData(t, resp, out)
	return resp.StatusCode
}

func (env *TestEnv) decodeData(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()

	if out == nil {
		return
	}

	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(envelope.Data) == 0 {
		return
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("failed to decode response data: %v", err)
	}
}
