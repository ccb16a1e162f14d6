package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaelo-ai/kaelo/internal/domain"
	llm "github.com/kaelo-ai/kaelo/internal/openai"
)

// Recommendation is the LLM verifier's judgment on a draft. Fallback is an
// outcome value, not an exception: it means the verifier could not reach a
// judgment at all.
type Recommendation string

const (
	RecommendApprove  Recommendation = "approve"
	RecommendRevise   Recommendation = "revise"
	RecommendReject   Recommendation = "reject"
	RecommendFallback Recommendation = "fallback"
)

// Correction is one mechanical text replacement the decision engine may
// apply.
type Correction struct {
	Find    string `json:"find"`
	Replace string `json:"replace"`
}

// LLMVerificationResult is the outcome of the model-based critique stage.
type LLMVerificationResult struct {
	Skipped                bool
	Approved               bool
	Issues                 []domain.Issue
	Recommendation         Recommendation
	HallucinationsDetected int
	Corrections            []Correction
}

// VerifyOptions tunes one verification call.
type VerifyOptions struct {
	Skip bool
}

// LLMVerifier cross-checks a draft against the retrieved passages with a
// second model call whose only job is critique. It never introduces new
// facts; it flags or corrects existing ones.
type LLMVerifier struct {
	client TextCompleter
	model  string
}

// NewLLMVerifier creates an LLMVerifier.
func NewLLMVerifier(client TextCompleter, model string) *LLMVerifier {
	return &LLMVerifier{client: client, model: model}
}

type critiqueResponse struct {
	Recommendation string `json:"recommendation"`
	Hallucinations int    `json:"hallucinations"`
	Issues         []struct {
		Type       string `json:"type"`
		Severity   string `json:"severity"`
		Location   string `json:"location"`
		Problem    string `json:"problem"`
		Correction string `json:"correction"`
	} `json:"issues"`
	Corrections []Correction `json:"corrections"`
}

// Verify critiques the draft. All failures are absorbed into a fallback
// recommendation rather than surfaced as errors; the verifier's contract
// is that it always returns a judgment value.
func (v *LLMVerifier) Verify(ctx context.Context, draft domain.DraftAnswer, retrieved []domain.RetrievalResult, profile *domain.StudentProfile, opts VerifyOptions) LLMVerificationResult {
	if opts.Skip {
		return LLMVerificationResult{Skipped: true, Recommendation: RecommendApprove, Approved: true}
	}

	prompt := buildCritiquePrompt(draft, retrieved)

	raw, err := v.client.Complete(ctx, prompt, llm.CompleteOptions{
		Model:       v.model,
		Temperature: 0,
	})
	if err != nil {
		return fallbackResult(fmt.Sprintf("verifier call failed: %v", err))
	}

	parsed, err := parseCritique(raw)
	if err != nil {
		return fallbackResult(fmt.Sprintf("verifier returned unparseable critique: %v", err))
	}

	return resultFromCritique(parsed)
}

func buildCritiquePrompt(draft domain.DraftAnswer, retrieved []domain.RetrievalResult) string {
	var b strings.Builder

	b.WriteString("You are a fact checker. Compare every factual claim in the ANSWER against the SOURCES.\n")
	b.WriteString("Do not add new facts. Only flag claims the sources do not support, or correct inaccurate ones.\n\n")

	if len(retrieved) == 0 {
		b.WriteString("SOURCES: none. Treat every specific factual claim as unsupported.\n\n")
	} else {
		b.WriteString("SOURCES:\n")
		for i, result := range retrieved {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, result.Chunk.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString("ANSWER:\n")
	b.WriteString(draft.Text)
	b.WriteString("\n\n")

	b.WriteString(`Respond with JSON only, in this shape:
{
  "recommendation": "approve" | "revise" | "reject",
  "hallucinations": <number of unsupported claims>,
  "issues": [{"type": "hallucination|inaccuracy|tone|policy|structure", "severity": "critical|high|medium|low", "location": "<quoted text>", "problem": "<description>", "correction": "<replacement text, optional>"}],
  "corrections": [{"find": "<exact text in answer>", "replace": "<corrected text>"}]
}`)

	return b.String()
}

// parseCritique tolerates markdown code fences around the JSON body.
func parseCritique(raw string) (*critiqueResponse, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed critiqueResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

func resultFromCritique(parsed *critiqueResponse) LLMVerificationResult {
	recommendation := Recommendation(strings.ToLower(strings.TrimSpace(parsed.Recommendation)))
	switch recommendation {
	case RecommendApprove, RecommendRevise, RecommendReject:
	default:
		return fallbackResult(fmt.Sprintf("verifier returned unknown recommendation %q", parsed.Recommendation))
	}

	issues := make([]domain.Issue, 0, len(parsed.Issues))
	for _, raw := range parsed.Issues {
		issue := domain.Issue{
			Type:       domain.IssueType(strings.ToLower(raw.Type)),
			Severity:   domain.Severity(strings.ToLower(raw.Severity)),
			Location:   raw.Location,
			Problem:    raw.Problem,
			Correction: raw.Correction,
		}
		if !issue.Type.IsValid() {
			issue.Type = domain.IssueInaccuracy
		}
		if !issue.Severity.IsValid() {
			issue.Severity = domain.SeverityMedium
		}
		issues = append(issues, issue)
	}

	corrections := make([]Correction, 0, len(parsed.Corrections))
	for _, c := range parsed.Corrections {
		if strings.TrimSpace(c.Find) == "" {
			continue
		}
		corrections = append(corrections, c)
	}

	return LLMVerificationResult{
		Approved:               recommendation == RecommendApprove,
		Issues:                 issues,
		Recommendation:         recommendation,
		HallucinationsDetected: parsed.Hallucinations,
		Corrections:            corrections,
	}
}

func fallbackResult(problem string) LLMVerificationResult {
	return LLMVerificationResult{
		Recommendation: RecommendFallback,
		Issues: []domain.Issue{{
			Type:     domain.IssueSystem,
			Severity: domain.SeverityHigh,
			Problem:  problem,
		}},
	}
}
