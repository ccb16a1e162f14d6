package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/kaelo-ai/kaelo/internal/domain"
)

// FallbackMessage is returned when a stage failed at the system level and
// no verified answer exists.
const FallbackMessage = "I could not verify an answer to your question right now. Please try again in a few minutes."

// RejectedMessage replaces a draft judged too flawed to deliver.
const RejectedMessage = "I want to make sure you get accurate guidance, so I have sent your question to one of our counsellors. You will receive a verified answer soon."

// DecisionInput carries everything the engine needs to pick a terminal
// decision. SystemErr is set when an upstream stage failed outright; in
// that case Rule and LLM may be zero values.
type DecisionInput struct {
	Draft     domain.DraftAnswer
	Rule      RuleCheckResult
	LLM       LLMVerificationResult
	SystemErr error
	StartedAt time.Time
	Stages    []domain.Stage
}

// Engine maps verifier outputs onto one of the four terminal decisions. It
// is deterministic and side-effect free: identical inputs always produce
// identical outcomes.
type Engine struct{}

// NewEngine creates a decision Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Decide produces the terminal VerificationOutcome. Fallback is the only
// decision reachable without completing all stages.
func (e *Engine) Decide(input DecisionInput) *domain.VerificationOutcome {
	outcome := &domain.VerificationOutcome{
		StagesCompleted: append([]domain.Stage{}, input.Stages...),
	}

	if input.SystemErr != nil {
		return e.decideFallback(outcome, input)
	}

	allIssues := append([]domain.Issue{}, input.Rule.Issues...)
	if !input.LLM.Skipped {
		allIssues = append(allIssues, input.LLM.Issues...)
	}

	outcome.Issues = allIssues
	outcome.StagesCompleted = append(outcome.StagesCompleted, domain.StageDecision)
	outcome.ProcessingTime = sinceStart(input.StartedAt)

	switch {
	case input.LLM.Recommendation == RecommendFallback:
		outcome.Decision = domain.DecisionFallback
		outcome.FinalAnswer = FallbackMessage
		outcome.Confidence = 0

	case !input.Rule.Passed || input.LLM.Recommendation == RecommendReject:
		outcome.Decision = domain.DecisionRejected
		outcome.FinalAnswer = RejectedMessage
		outcome.RequiresHuman = true
		outcome.Confidence = cappedConfidence(input.Rule.Confidence, 0.3)

	case needsRevision(input):
		revised, applied := ApplyCorrections(input.Draft.Text, collectCorrections(input))
		outcome.Decision = domain.DecisionRevised
		outcome.FinalAnswer = revised
		outcome.RevisionsApplied = applied
		outcome.Confidence = input.Rule.Confidence * 0.9

	default:
		outcome.Decision = domain.DecisionApproved
		outcome.FinalAnswer = input.Draft.Text
		outcome.Confidence = input.Rule.Confidence
	}

	return outcome
}

func (e *Engine) decideFallback(outcome *domain.VerificationOutcome, input DecisionInput) *domain.VerificationOutcome {
	outcome.Decision = domain.DecisionFallback
	outcome.FinalAnswer = FallbackMessage
	outcome.Confidence = 0
	outcome.ProcessingTime = sinceStart(input.StartedAt)
	outcome.Issues = []domain.Issue{{
		Type:     domain.IssueSystem,
		Severity: domain.SeverityHigh,
		Problem:  fmt.Sprintf("pipeline stage failed: %v", input.SystemErr),
	}}
	return outcome
}

// needsRevision reports whether the draft should be delivered with
// corrections applied rather than verbatim.
func needsRevision(input DecisionInput) bool {
	if input.LLM.Recommendation == RecommendRevise && len(collectCorrections(input)) > 0 {
		return true
	}
	// Rule verifier passed but flagged correctable issues.
	for _, issue := range input.Rule.Issues {
		if issue.Correction != "" {
			return true
		}
	}
	return false
}

func collectCorrections(input DecisionInput) []Correction {
	corrections := append([]Correction{}, input.LLM.Corrections...)
	for _, issue := range input.Rule.Issues {
		if issue.Correction == "" {
			continue
		}
		if issue.Location != "" {
			corrections = append(corrections, Correction{Find: issue.Location, Replace: issue.Location + " (" + issue.Correction + ")"})
		} else {
			// Append-style correction, e.g. a missing disclaimer.
			corrections = append(corrections, Correction{Find: "", Replace: issue.Correction})
		}
	}
	return corrections
}

// ApplyCorrections applies each correction mechanically and returns the
// revised text plus a record of what was applied. The operation is
// idempotent: applying the same correction to already-corrected text
// changes nothing, and each Find is replaced in at most one pass so a
// replacement that happens to re-create its own Find pattern is never
// rescanned.
func ApplyCorrections(text string, corrections []Correction) (string, []string) {
	var applied []string
	replacedFinds := make(map[string]bool)

	for _, c := range corrections {
		if c.Find == "" {
			// Appends replacement once if absent.
			if c.Replace != "" && !strings.Contains(text, c.Replace) {
				text = strings.TrimRight(text, "\n") + "\n\n" + c.Replace
				applied = append(applied, fmt.Sprintf("appended: %s", truncate(c.Replace, 60)))
			}
			continue
		}
		if replacedFinds[c.Find] {
			continue
		}
		if !strings.Contains(text, c.Find) {
			continue
		}
		if strings.Contains(c.Replace, c.Find) && strings.Contains(text, c.Replace) {
			// Already corrected on a previous pass.
			continue
		}
		text = strings.ReplaceAll(text, c.Find, c.Replace)
		replacedFinds[c.Find] = true
		applied = append(applied, fmt.Sprintf("replaced %q with %q", truncate(c.Find, 40), truncate(c.Replace, 40)))
	}

	return text, applied
}

func cappedConfidence(confidence, ceiling float64) float64 {
	if confidence > ceiling {
		return ceiling
	}
	if confidence < 0 {
		return 0
	}
	return confidence
}

func sinceStart(start time.Time) time.Duration {
	if start.IsZero() {
		return 0
	}
	return time.Since(start)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
