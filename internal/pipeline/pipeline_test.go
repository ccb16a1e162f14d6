package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kaelo-ai/kaelo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

type recordingCache struct {
	hit  *domain.VerificationOutcome
	sets []*domain.VerificationOutcome
}

func (c *recordingCache) Get(ctx context.Context, profile *domain.StudentProfile, query string) (*domain.VerificationOutcome, bool) {
	if c.hit != nil {
		return c.hit, true
	}
	return nil, false
}

func (c *recordingCache) Set(ctx context.Context, profile *domain.StudentProfile, query string, outcome *domain.VerificationOutcome) {
	c.sets = append(c.sets, outcome)
}

type recordingAudit struct {
	err     error
	queries []string
}

func (a *recordingAudit) RecordOutcome(ctx context.Context, query string, profile *domain.StudentProfile, outcome *domain.VerificationOutcome) error {
	a.queries = append(a.queries, query)
	return a.err
}

const approveCritique = `{"recommendation": "approve", "hallucinations": 0, "issues": [], "corrections": []}`

type pipelineFixture struct {
	embedder *fakeEmbedder
	store    *fakeStore
	draft    *fakeCompleter
	verify   *fakeCompleter
	cache    *recordingCache
	audit    *recordingAudit
}

func cleanFixture() *pipelineFixture {
	return &pipelineFixture{
		embedder: &fakeEmbedder{vec: []float32{0.1, 0.2}},
		store:    &fakeStore{results: retrievedChunks()},
		draft:    &fakeCompleter{response: groundedDraft().Text},
		verify:   &fakeCompleter{response: approveCritique},
		cache:    &recordingCache{},
		audit:    &recordingAudit{},
	}
}

func newTestPipeline(fx *pipelineFixture, cfg Config) *Pipeline {
	var outcomeCache OutcomeCache
	if fx.cache != nil {
		outcomeCache = fx.cache
	}
	var audit AuditLogger
	if fx.audit != nil {
		audit = fx.audit
	}
	return New(
		fx.embedder,
		NewRetriever(fx.store, DefaultRetrieverConfig()),
		NewDraftGenerator(fx.draft, "gpt-4o"),
		NewLLMVerifier(fx.verify, "gpt-4o-mini"),
		outcomeCache,
		audit,
		cfg,
	)
}

func TestRun_ApprovedEndToEnd(t *testing.T) {
	fx := cleanFixture()
	p := newTestPipeline(fx, Config{})

	result, err := p.Run(context.Background(), Request{Query: "what can I study with Life Sciences?", Profile: plainProfile()})
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionApproved, result.Outcome.Decision)
	assert.Equal(t, groundedDraft().Text, result.Response)
	assert.Contains(t, result.Outcome.StagesCompleted, domain.StageRetrieval)
	assert.Contains(t, result.Outcome.StagesCompleted, domain.StageDraft)
	assert.Contains(t, result.Outcome.StagesCompleted, domain.StageRuleVerification)
	assert.Contains(t, result.Outcome.StagesCompleted, domain.StageLLMVerification)
	assert.Contains(t, result.Outcome.StagesCompleted, domain.StageDecision)

	require.Len(t, fx.cache.sets, 1)
	require.Len(t, fx.audit.queries, 1)
	assert.Equal(t, "what can I study with Life Sciences?", fx.audit.queries[0])
}

func TestRun_EmptyQueryIsHardError(t *testing.T) {
	fx := cleanFixture()
	p := newTestPipeline(fx, Config{})

	_, err := p.Run(context.Background(), Request{Query: "   ", Profile: plainProfile()})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
	assert.Zero(t, fx.embedder.calls)
	assert.Empty(t, fx.audit.queries)
}

func TestRun_InvalidProfileIsHardError(t *testing.T) {
	fx := cleanFixture()
	p := newTestPipeline(fx, Config{})

	invalid := domain.NewStudentProfile(4, "CAPS", []string{"English"}, nil)
	_, err := p.Run(context.Background(), Request{Query: "what can I study?", Profile: invalid})

	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
	assert.Zero(t, fx.embedder.calls)
}

func TestRun_CacheHitShortCircuits(t *testing.T) {
	fx := cleanFixture()
	cachedAt := time.Now().Add(-5 * time.Minute)
	fx.cache.hit = &domain.VerificationOutcome{
		Decision:    domain.DecisionApproved,
		FinalAnswer: "cached guidance",
		Confidence:  0.95,
		CachedAt:    &cachedAt,
	}
	p := newTestPipeline(fx, Config{})

	result, err := p.Run(context.Background(), Request{Query: "what can I study?", Profile: plainProfile()})
	require.NoError(t, err)

	assert.Equal(t, "cached guidance", result.Response)
	assert.True(t, result.Outcome.FromCache())
	assert.Zero(t, fx.embedder.calls, "a cache hit must not touch the model providers")
	assert.Empty(t, fx.draft.lastPrompt)
}

func TestRun_EmbedderFailureIsFallback(t *testing.T) {
	fx := cleanFixture()
	fx.embedder.err = domain.ErrProviderUnavailable
	p := newTestPipeline(fx, Config{})

	result, err := p.Run(context.Background(), Request{Query: "what can I study?", Profile: plainProfile()})
	require.NoError(t, err, "provider failures are absorbed into the outcome")

	assert.Equal(t, domain.DecisionFallback, result.Outcome.Decision)
	assert.Equal(t, FallbackMessage, result.Response)
	assert.NotEmpty(t, result.Response)
}

func TestRun_RetrieverFailureIsFallback(t *testing.T) {
	fx := cleanFixture()
	fx.store.err = errors.New("connection refused")
	p := newTestPipeline(fx, Config{})

	result, err := p.Run(context.Background(), Request{Query: "what can I study?", Profile: plainProfile()})
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionFallback, result.Outcome.Decision)
	assert.Equal(t, FallbackMessage, result.Response)
	assert.Empty(t, fx.cache.sets, "fallback outcomes must not be cached")
	require.Len(t, fx.audit.queries, 1, "fallbacks are still audited")
}

func TestRun_SkipDefaultBypassesVerifier(t *testing.T) {
	fx := cleanFixture()
	p := newTestPipeline(fx, Config{SkipLLMVerifyDefault: true})

	result, err := p.Run(context.Background(), Request{Query: "what can I study?", Profile: plainProfile()})
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionApproved, result.Outcome.Decision)
	assert.Empty(t, fx.verify.lastPrompt, "verifier model must not be called")
	assert.NotContains(t, result.Outcome.StagesCompleted, domain.StageLLMVerification)
}

func TestRun_SkipOptionBypassesVerifier(t *testing.T) {
	fx := cleanFixture()
	p := newTestPipeline(fx, Config{})

	_, err := p.Run(context.Background(), Request{
		Query:   "what can I study?",
		Profile: plainProfile(),
		Options: Options{SkipLLMVerification: true},
	})
	require.NoError(t, err)

	assert.Empty(t, fx.verify.lastPrompt)
}

func TestRun_StrictModeForcesVerification(t *testing.T) {
	fx := cleanFixture()
	p := newTestPipeline(fx, Config{SkipLLMVerifyDefault: true})

	result, err := p.Run(context.Background(), Request{
		Query:   "what can I study?",
		Profile: plainProfile(),
		Options: Options{StrictMode: true, SkipLLMVerification: true},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, fx.verify.lastPrompt, "strict mode overrides every skip")
	assert.Contains(t, result.Outcome.StagesCompleted, domain.StageLLMVerification)
}

func TestRun_StrictModeEscalatesHighSeverityRevise(t *testing.T) {
	fx := cleanFixture()
	fx.verify.response = `{
		"recommendation": "revise",
		"hallucinations": 1,
		"issues": [{"type": "inaccuracy", "severity": "high", "problem": "mark requirement is wrong"}],
		"corrections": [{"find": "50% average", "replace": "55% average"}]
	}`
	p := newTestPipeline(fx, Config{})

	result, err := p.Run(context.Background(), Request{
		Query:   "what can I study?",
		Profile: plainProfile(),
		Options: Options{StrictMode: true},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionRejected, result.Outcome.Decision)
	assert.True(t, result.Outcome.RequiresHuman)
	assert.Equal(t, RejectedMessage, result.Response)
}

func TestRun_ReviseAppliedWithoutStrictMode(t *testing.T) {
	fx := cleanFixture()
	fx.verify.response = `{
		"recommendation": "revise",
		"hallucinations": 0,
		"issues": [{"type": "inaccuracy", "severity": "medium", "problem": "mark requirement is wrong"}],
		"corrections": [{"find": "50% average", "replace": "55% average"}]
	}`
	p := newTestPipeline(fx, Config{})

	result, err := p.Run(context.Background(), Request{Query: "what can I study?", Profile: plainProfile()})
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionRevised, result.Outcome.Decision)
	assert.Contains(t, result.Response, "55% average")
	require.Len(t, fx.cache.sets, 1, "revised outcomes are cacheable")
}

func TestRun_VerifierFallbackDecidesFallback(t *testing.T) {
	fx := cleanFixture()
	fx.verify.response = "I cannot answer in JSON today."
	p := newTestPipeline(fx, Config{})

	result, err := p.Run(context.Background(), Request{Query: "what can I study?", Profile: plainProfile()})
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionFallback, result.Outcome.Decision)
	assert.Empty(t, fx.cache.sets)
}

func TestRun_AuditFailureDoesNotFailRequest(t *testing.T) {
	fx := cleanFixture()
	fx.audit.err = errors.New("audit table locked")
	p := newTestPipeline(fx, Config{})

	result, err := p.Run(context.Background(), Request{Query: "what can I study?", Profile: plainProfile()})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionApproved, result.Outcome.Decision)
}

func TestRun_CancelledContextSkipsCacheWrite(t *testing.T) {
	fx := cleanFixture()
	p := newTestPipeline(fx, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := p.Run(ctx, Request{Query: "what can I study?", Profile: plainProfile()})
	require.NoError(t, err)

	assert.NotNil(t, result.Outcome)
	assert.Empty(t, fx.cache.sets)
}

func TestRun_NilCacheAndAudit(t *testing.T) {
	fx := cleanFixture()
	fx.cache = nil
	fx.audit = nil
	p := newTestPipeline(fx, Config{})

	result, err := p.Run(context.Background(), Request{Query: "what can I study?", Profile: plainProfile()})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionApproved, result.Outcome.Decision)
}
