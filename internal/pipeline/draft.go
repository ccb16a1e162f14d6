package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/kaelo-ai/kaelo/internal/domain"
	llm "github.com/kaelo-ai/kaelo/internal/openai"
)

// TextCompleter runs one LLM completion. Satisfied by openai.Client.
type TextCompleter interface {
	Complete(ctx context.Context, prompt string, opts llm.CompleteOptions) (string, error)
}

// DraftGenerator prompts the generation model with retrieved chunks, the
// student profile and the verbatim query, plus whichever prompt rules
// fire. It performs no retries; retry policy belongs to the caller.
type DraftGenerator struct {
	client TextCompleter
	model  string
	rules  []PromptRule
}

// NewDraftGenerator creates a DraftGenerator with the default rule table.
func NewDraftGenerator(client TextCompleter, model string) *DraftGenerator {
	return &DraftGenerator{
		client: client,
		model:  model,
		rules:  DefaultPromptRules(),
	}
}

// NewDraftGeneratorWithRules creates a DraftGenerator with an explicit
// rule table, mainly for tests.
func NewDraftGeneratorWithRules(client TextCompleter, model string, rules []PromptRule) *DraftGenerator {
	return &DraftGenerator{client: client, model: model, rules: rules}
}

// Generate produces a draft answer. The returned draft always records the
// retrieved chunk IDs it was grounded on, even when the model cited none.
func (g *DraftGenerator) Generate(ctx context.Context, query string, profile *domain.StudentProfile, retrieved []domain.RetrievalResult) (domain.DraftAnswer, error) {
	prompt := g.buildPrompt(query, profile, retrieved)

	text, err := g.client.Complete(ctx, prompt, llm.CompleteOptions{
		Model:       g.model,
		Temperature: 0.4,
	})
	if err != nil {
		return domain.DraftAnswer{}, fmt.Errorf("draft generation: %w", err)
	}

	if MathAversionActive(profile, query) {
		text = ensureMathDisclaimer(text)
	}

	sourceIDs := make([]string, 0, len(retrieved))
	for _, result := range retrieved {
		sourceIDs = append(sourceIDs, result.Chunk.ID)
	}

	return domain.DraftAnswer{Text: text, SourceIDs: sourceIDs}, nil
}

func (g *DraftGenerator) buildPrompt(query string, profile *domain.StudentProfile, retrieved []domain.RetrievalResult) string {
	var b strings.Builder

	b.WriteString("You are a career guidance counsellor for South African secondary-school students.\n")
	b.WriteString("Answer the student's question using ONLY the reference passages below. ")
	b.WriteString("If the passages do not cover something, say so rather than inventing facts.\n\n")

	if len(retrieved) == 0 {
		b.WriteString("Reference passages: none were found for this question.\n\n")
	} else {
		b.WriteString("Reference passages:\n")
		for i, result := range retrieved {
			fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, result.Chunk.ID, result.Chunk.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString("Student profile:\n")
	b.WriteString(formatProfile(profile))
	b.WriteString("\n")

	active := ActiveRules(g.rules, profile, query)
	if len(active) > 0 {
		b.WriteString("Additional instructions:\n")
		for _, rule := range active {
			b.WriteString(rule.Instruction)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Student's question: %s\n", query)

	return b.String()
}

func formatProfile(profile *domain.StudentProfile) string {
	if profile == nil {
		return "- not provided\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "- Grade %d, %s curriculum\n", profile.Grade, profile.Curriculum)
	if len(profile.Subjects) > 0 {
		fmt.Fprintf(&b, "- Subjects: %s\n", strings.Join(profile.Subjects, ", "))
	}
	if len(profile.Marks) > 0 {
		marks := make([]string, 0, len(profile.Marks))
		for _, subject := range profile.Subjects {
			if mark, ok := profile.MarkFor(subject); ok {
				marks = append(marks, fmt.Sprintf("%s %.0f%%", subject, mark))
			}
		}
		if len(marks) > 0 {
			fmt.Fprintf(&b, "- Marks: %s\n", strings.Join(marks, ", "))
		}
	}
	if len(profile.Interests) > 0 {
		fmt.Fprintf(&b, "- Interests: %s\n", strings.Join(profile.Interests, ", "))
	}
	if len(profile.Weaknesses) > 0 {
		fmt.Fprintf(&b, "- Self-reported weaknesses: %s\n", strings.Join(profile.Weaknesses, ", "))
	}
	if profile.Constraints.Financial != "" {
		fmt.Fprintf(&b, "- Financial means: %s\n", profile.Constraints.Financial)
	}
	if profile.Constraints.Location != "" {
		fmt.Fprintf(&b, "- Location: %s\n", profile.Constraints.Location)
	}
	return b.String()
}

// ensureMathDisclaimer appends the exact disclaimer when the draft names a
// moderate-math career but the model left the disclaimer out. Applying it
// twice is a no-op.
func ensureMathDisclaimer(text string) string {
	if strings.Contains(text, MathDisclaimer) {
		return text
	}
	lower := strings.ToLower(text)
	for _, career := range ModerateMathCareers {
		if strings.Contains(lower, strings.ToLower(career)) {
			return strings.TrimRight(text, "\n") + "\n\n" + MathDisclaimer
		}
	}
	return text
}
