package pipeline

import (
	"regexp"
	"strings"

	"github.com/kaelo-ai/kaelo/internal/domain"
)

// MathDisclaimer is the exact sentence appended to moderate-math careers
// when the math-aversion rule is active.
const MathDisclaimer = "Note: this career does involve some mathematics, but many students who find maths difficult succeed in it with the right support."

// FundingDisclaimer must accompany any concrete bursary amount or deadline.
const FundingDisclaimer = "Bursary amounts and closing dates change every year, so always confirm the details with the institution or funder."

// PromptRule conditionally injects an instruction block into the draft
// prompt. Rules are evaluated once per request, in order.
type PromptRule struct {
	Name        string
	Applies     func(profile *domain.StudentProfile, query string) bool
	Instruction string
}

var mathAversionPattern = regexp.MustCompile(`(?i)\b(hate|bad at|struggle(s)? with|can'?t do|terrible at|weak (at|in)|fail(ing|ed)?) (math|maths|mathematics)\b`)

var financialHardshipPattern = regexp.MustCompile(`(?i)\b(afford|bursar(y|ies)|nsfas|financial|poor|no money|cheap|funding|scholarship)\b`)

// ModerateMathCareers involve a manageable amount of mathematics; they
// stay in recommendations under the math-aversion rule, with a
// disclaimer.
var ModerateMathCareers = []string{
	"Nursing",
	"Teaching",
	"Physiotherapy",
	"Radiography",
	"Social Work",
	"Occupational Therapy",
}

// HighMathCareers are excluded when mathematics is a significant weakness.
var HighMathCareers = []string{
	"Engineering",
	"Actuarial Science",
	"Data Science",
	"Statistics",
	"Quantitative Finance",
}

// MathAversionActive reports whether the math-aversion rule fires for a
// profile and query.
func MathAversionActive(profile *domain.StudentProfile, query string) bool {
	if mathAversionPattern.MatchString(query) {
		return true
	}
	if profile == nil {
		return false
	}
	return profile.HasWeakness("Mathematics") || profile.HasWeakness("Maths")
}

// FinancialRuleActive reports whether the financial-constraint rule fires.
func FinancialRuleActive(profile *domain.StudentProfile, query string) bool {
	if profile != nil && profile.Constraints.Financial == domain.FinancialLow {
		return true
	}
	return financialHardshipPattern.MatchString(query)
}

// DefaultPromptRules returns the ordered rule table used in production.
func DefaultPromptRules() []PromptRule {
	return []PromptRule{
		{
			Name:    "math-aversion",
			Applies: MathAversionActive,
			Instruction: strings.Join([]string{
				"The student struggles with or dislikes mathematics. Do NOT remove every career that touches maths.",
				"Keep careers with moderate maths requirements (for example " + strings.Join(ModerateMathCareers, ", ") + ") and add this exact sentence after each one: \"" + MathDisclaimer + "\"",
				"Exclude careers with heavy maths requirements such as " + strings.Join(HighMathCareers, ", ") + ".",
			}, "\n"),
		},
		{
			Name:    "financial-constraint",
			Applies: FinancialRuleActive,
			Instruction: strings.Join([]string{
				"The student faces financial constraints. Prioritise careers with funded pathways.",
				"Cite concrete bursary amounts and application deadlines from the reference passages where available, and always mention NSFAS and other need-based aid.",
				"Use encouraging phrasing; never tell the student a path is closed to them because of money.",
			}, "\n"),
		},
	}
}

// ActiveRules returns the subset of rules whose predicates fire, in table
// order.
func ActiveRules(rules []PromptRule, profile *domain.StudentProfile, query string) []PromptRule {
	active := make([]PromptRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Applies != nil && rule.Applies(profile, query) {
			active = append(active, rule)
		}
	}
	return active
}
