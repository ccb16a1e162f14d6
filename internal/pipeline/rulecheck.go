package pipeline

import (
	"regexp"
	"strings"

	"github.com/kaelo-ai/kaelo/internal/domain"
)

// RuleCheckResult is the rule verifier's judgment. Passed is false only
// when a critical issue was found; minor issues lower confidence without
// failing the draft.
type RuleCheckResult struct {
	Passed     bool
	Issues     []domain.Issue
	Confidence float64
}

// RuleVerifier runs a deterministic battery of checks over a draft. It
// never performs I/O and never panics on malformed input; malformed input
// is itself an issue.
type RuleVerifier struct{}

// NewRuleVerifier creates a RuleVerifier.
func NewRuleVerifier() *RuleVerifier {
	return &RuleVerifier{}
}

var bannedPlaceholders = []string{
	"[insert",
	"[your ",
	"lorem ipsum",
	"as an ai",
	"i cannot browse",
	"{{",
}

var financialPromisePattern = regexp.MustCompile(`(?i)\b(guaranteed (bursary|funding|placement)|will definitely (receive|get|be awarded)|promise[sd]? (you )?(a )?(bursary|funding))\b`)

var bursaryAmountPattern = regexp.MustCompile(`(?i)R\s?\d[\d\s,.]*\s*(per (year|annum|month)|bursary|funding)?`)

var medicalLegalPattern = regexp.MustCompile(`(?i)\b(diagnos(e|is|ed)|prescri(be|ption)|legal advice|sue|lawsuit|medication)\b`)

const minDraftLength = 40

// CheckRules verifies the draft against the deterministic rule battery.
func (v *RuleVerifier) CheckRules(draft domain.DraftAnswer, retrieved []domain.RetrievalResult, profile *domain.StudentProfile, query string) RuleCheckResult {
	var issues []domain.Issue

	issues = append(issues, checkStructure(draft)...)
	issues = append(issues, checkDisclaimers(draft)...)
	issues = append(issues, checkGrounding(draft, retrieved)...)
	issues = append(issues, checkMathAversion(draft, profile, query)...)

	confidence := confidenceFrom(issues)
	return RuleCheckResult{
		Passed:     !hasCritical(issues),
		Issues:     issues,
		Confidence: confidence,
	}
}

func checkStructure(draft domain.DraftAnswer) []domain.Issue {
	var issues []domain.Issue

	trimmed := strings.TrimSpace(draft.Text)
	if trimmed == "" {
		return []domain.Issue{{
			Type:     domain.IssueStructure,
			Severity: domain.SeverityCritical,
			Problem:  "draft answer is empty",
		}}
	}
	if len(trimmed) < minDraftLength {
		issues = append(issues, domain.Issue{
			Type:     domain.IssueStructure,
			Severity: domain.SeverityHigh,
			Problem:  "draft answer is too short to be useful",
		})
	}

	lower := strings.ToLower(trimmed)
	for _, placeholder := range bannedPlaceholders {
		if strings.Contains(lower, placeholder) {
			issues = append(issues, domain.Issue{
				Type:     domain.IssueStructure,
				Severity: domain.SeverityCritical,
				Location: placeholder,
				Problem:  "draft contains placeholder or template text",
			})
		}
	}

	return issues
}

func checkDisclaimers(draft domain.DraftAnswer) []domain.Issue {
	var issues []domain.Issue
	text := draft.Text

	if financialPromisePattern.MatchString(text) {
		issues = append(issues, domain.Issue{
			Type:     domain.IssuePolicy,
			Severity: domain.SeverityCritical,
			Location: financialPromisePattern.FindString(text),
			Problem:  "draft promises funding outcomes that cannot be guaranteed",
		})
	}

	if bursaryAmountPattern.MatchString(text) && !strings.Contains(text, FundingDisclaimer) {
		issues = append(issues, domain.Issue{
			Type:       domain.IssuePolicy,
			Severity:   domain.SeverityMedium,
			Location:   bursaryAmountPattern.FindString(text),
			Problem:    "bursary amount cited without the funding disclaimer",
			Correction: FundingDisclaimer,
		})
	}

	if medicalLegalPattern.MatchString(text) {
		issues = append(issues, domain.Issue{
			Type:     domain.IssuePolicy,
			Severity: domain.SeverityHigh,
			Location: medicalLegalPattern.FindString(text),
			Problem:  "draft strays into medical or legal claims",
		})
	}

	return issues
}

// checkGrounding applies a keyword-overlap heuristic between the draft and
// the retrieved passages. A draft generated with zero grounding is flagged
// for the verifiers downstream.
func checkGrounding(draft domain.DraftAnswer, retrieved []domain.RetrievalResult) []domain.Issue {
	if len(retrieved) == 0 {
		return []domain.Issue{{
			Type:     domain.IssueHallucination,
			Severity: domain.SeverityHigh,
			Problem:  "no knowledge passages were retrieved; answer is ungrounded",
		}}
	}

	draftWords := contentWords(draft.Text)
	if len(draftWords) == 0 {
		return nil
	}

	sourceWords := map[string]bool{}
	for _, result := range retrieved {
		if result.Chunk == nil {
			continue
		}
		for word := range contentWords(result.Chunk.Text) {
			sourceWords[word] = true
		}
	}

	overlap := 0
	for word := range draftWords {
		if sourceWords[word] {
			overlap++
		}
	}

	ratio := float64(overlap) / float64(len(draftWords))
	if ratio < 0.08 {
		return []domain.Issue{{
			Type:     domain.IssueHallucination,
			Severity: domain.SeverityHigh,
			Problem:  "draft shares almost no vocabulary with the retrieved passages",
		}}
	}

	return nil
}

func checkMathAversion(draft domain.DraftAnswer, profile *domain.StudentProfile, query string) []domain.Issue {
	if !MathAversionActive(profile, query) {
		return nil
	}

	var issues []domain.Issue
	lower := strings.ToLower(draft.Text)

	for _, career := range HighMathCareers {
		if strings.Contains(lower, strings.ToLower(career)) {
			issues = append(issues, domain.Issue{
				Type:     domain.IssuePolicy,
				Severity: domain.SeverityHigh,
				Location: career,
				Problem:  "high-math career recommended to a math-averse student",
			})
		}
	}

	mentionsModerate := false
	for _, career := range ModerateMathCareers {
		if strings.Contains(lower, strings.ToLower(career)) {
			mentionsModerate = true
			break
		}
	}
	if mentionsModerate && !strings.Contains(draft.Text, MathDisclaimer) {
		issues = append(issues, domain.Issue{
			Type:       domain.IssuePolicy,
			Severity:   domain.SeverityMedium,
			Problem:    "moderate-math career listed without the required disclaimer",
			Correction: MathDisclaimer,
		})
	}

	return issues
}

var wordPattern = regexp.MustCompile(`[a-zA-Z]{4,}`)

var stopWords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "your": true,
	"have": true, "will": true, "they": true, "there": true, "which": true,
	"would": true, "could": true, "should": true, "about": true, "students": true,
	"student": true, "career": true, "careers": true, "study": true,
}

func contentWords(text string) map[string]bool {
	words := map[string]bool{}
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if !stopWords[word] {
			words[word] = true
		}
	}
	return words
}

// confidenceFrom maps issues onto a confidence score. Confidence decreases
// with the count and severity of issues; any critical issue caps it at
// 0.3.
func confidenceFrom(issues []domain.Issue) float64 {
	confidence := 1.0
	for _, issue := range issues {
		confidence -= issue.Severity.Weight()
	}
	if confidence < 0 {
		confidence = 0
	}
	if hasCritical(issues) && confidence > 0.3 {
		confidence = 0.3
	}
	return confidence
}

func hasCritical(issues []domain.Issue) bool {
	for _, issue := range issues {
		if issue.Severity == domain.SeverityCritical {
			return true
		}
	}
	return false
}
