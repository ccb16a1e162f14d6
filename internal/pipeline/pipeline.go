package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/kaelo-ai/kaelo/internal/domain"
	"github.com/kaelo-ai/kaelo/internal/telemetry"
)

// OutcomeCache memoizes pipeline outcomes. Satisfied by cache.Cache; a nil
// cache disables memoization without changing answers.
type OutcomeCache interface {
	Get(ctx context.Context, profile *domain.StudentProfile, query string) (*domain.VerificationOutcome, bool)
	Set(ctx context.Context, profile *domain.StudentProfile, query string, outcome *domain.VerificationOutcome)
}

// AuditLogger persists terminal outcomes for the admin dashboards.
type AuditLogger interface {
	RecordOutcome(ctx context.Context, query string, profile *domain.StudentProfile, outcome *domain.VerificationOutcome) error
}

// Options are the caller-supplied knobs for one request.
type Options struct {
	// SkipLLMVerification forces the rule-only fast path.
	SkipLLMVerification bool
	// StrictMode forces model verification even when the deployment
	// default skips it, and rejects drafts with high-severity issues.
	StrictMode bool
}

// Request is the pipeline's inbound contract.
type Request struct {
	Query   string
	Profile *domain.StudentProfile
	Options Options
}

// Result pairs the student-facing response text with the audit outcome.
type Result struct {
	Response string
	Outcome  *domain.VerificationOutcome
}

// Config tunes the pipeline's stage behavior.
type Config struct {
	SkipLLMVerifyDefault bool
	EmbedTimeout         time.Duration
	LLMTimeout           time.Duration
}

// Pipeline wires the stages together. All collaborators are injected; the
// pipeline itself holds no mutable state, so independent requests can run
// concurrently.
type Pipeline struct {
	embedder  Embedder
	retriever *Retriever
	generator *DraftGenerator
	ruleCheck *RuleVerifier
	verifier  *LLMVerifier
	engine    *Engine
	cache     OutcomeCache
	audit     AuditLogger
	cfg       Config
}

// New creates a Pipeline. cache and audit may be nil.
func New(
	embedder Embedder,
	retriever *Retriever,
	generator *DraftGenerator,
	verifier *LLMVerifier,
	outcomeCache OutcomeCache,
	audit AuditLogger,
	cfg Config,
) *Pipeline {
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 10 * time.Second
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 30 * time.Second
	}
	return &Pipeline{
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
		ruleCheck: NewRuleVerifier(),
		verifier:  verifier,
		engine:    NewEngine(),
		cache:     outcomeCache,
		audit:     audit,
		cfg:       cfg,
	}
}

// Run executes the full pipeline for one request. Invalid input is the
// only hard error; every other failure class is absorbed into a terminal
// decision so the caller always receives an answer.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "Pipeline.Run", telemetry.SpanAttributes{
		Operation: "guidance",
	})
	defer span.End()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	if err := domain.ValidateStudentProfile(req.Profile); err != nil {
		return nil, err
	}

	if p.cache != nil {
		if cached, hit := p.cache.Get(ctx, req.Profile, query); hit {
			return &Result{Response: cached.FinalAnswer, Outcome: cached}, nil
		}
	}

	started := time.Now()
	outcome := p.runStages(ctx, query, req.Profile, req.Options, started)
	span.SetDecision(string(outcome.Decision))

	// A cancelled run must not write a cache entry.
	if ctx.Err() == nil && p.cache != nil && outcome.Decision != domain.DecisionFallback {
		p.cache.Set(ctx, req.Profile, query, outcome)
	}

	if p.audit != nil {
		if err := p.audit.RecordOutcome(ctx, query, req.Profile, outcome); err != nil {
			telemetry.CaptureError(ctx, err)
		}
	}

	return &Result{Response: outcome.FinalAnswer, Outcome: outcome}, nil
}

func (p *Pipeline) runStages(ctx context.Context, query string, profile *domain.StudentProfile, opts Options, started time.Time) *domain.VerificationOutcome {
	var stages []domain.Stage

	embedCtx, cancelEmbed := context.WithTimeout(ctx, p.cfg.EmbedTimeout)
	embedding, err := p.embedder.GenerateEmbedding(embedCtx, query)
	cancelEmbed()
	if err != nil {
		return p.engine.Decide(DecisionInput{SystemErr: err, StartedAt: started, Stages: stages})
	}

	retrieved, err := p.retriever.Retrieve(ctx, embedding)
	if err != nil {
		return p.engine.Decide(DecisionInput{SystemErr: err, StartedAt: started, Stages: stages})
	}
	stages = append(stages, domain.StageRetrieval)

	draftCtx, cancelDraft := context.WithTimeout(ctx, p.cfg.LLMTimeout)
	draft, err := p.generator.Generate(draftCtx, query, profile, retrieved)
	cancelDraft()
	if err != nil {
		return p.engine.Decide(DecisionInput{SystemErr: err, StartedAt: started, Stages: stages})
	}
	stages = append(stages, domain.StageDraft)

	ruleResult := p.ruleCheck.CheckRules(draft, retrieved, profile, query)
	stages = append(stages, domain.StageRuleVerification)

	skip := opts.SkipLLMVerification || p.cfg.SkipLLMVerifyDefault
	if opts.StrictMode {
		skip = false
	}

	verifyCtx, cancelVerify := context.WithTimeout(ctx, p.cfg.LLMTimeout)
	llmResult := p.verifier.Verify(verifyCtx, draft, retrieved, profile, VerifyOptions{Skip: skip})
	cancelVerify()
	if !llmResult.Skipped {
		stages = append(stages, domain.StageLLMVerification)
	}

	if opts.StrictMode {
		llmResult = tightenForStrictMode(llmResult)
	}

	return p.engine.Decide(DecisionInput{
		Draft:     draft,
		Rule:      ruleResult,
		LLM:       llmResult,
		StartedAt: started,
		Stages:    stages,
	})
}

// tightenForStrictMode escalates a revise recommendation to reject when
// any high-severity issue is present.
func tightenForStrictMode(result LLMVerificationResult) LLMVerificationResult {
	if result.Recommendation != RecommendRevise {
		return result
	}
	for _, issue := range result.Issues {
		if issue.Severity == domain.SeverityCritical || issue.Severity == domain.SeverityHigh {
			result.Recommendation = RecommendReject
			result.Approved = false
			break
		}
	}
	return result
}
