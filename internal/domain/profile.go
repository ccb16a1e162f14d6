package domain

import (
	"fmt"
	"strings"
)

// FinancialConstraint buckets a student's ability to fund further study.
type FinancialConstraint string

const (
	FinancialLow    FinancialConstraint = "low"
	FinancialMedium FinancialConstraint = "medium"
	FinancialHigh   FinancialConstraint = "high"
)

// IsValid returns true if the financial constraint is a known bucket.
func (f FinancialConstraint) IsValid() bool {
	switch f {
	case FinancialLow, FinancialMedium, FinancialHigh:
		return true
	}
	return false
}

// ProfileConstraints carries the practical limits a student reported
// during assessment.
type ProfileConstraints struct {
	Financial    FinancialConstraint
	Location     string
	TimeFlexible bool
}

// StudentProfile is the per-request snapshot of a student's registration
// and assessment data. It is immutable for the duration of one pipeline
// invocation.
type StudentProfile struct {
	Grade       int
	Curriculum  string
	Subjects    []string
	Marks       map[string]float64
	Interests   []string
	Weaknesses  []string
	Constraints ProfileConstraints
}

// NewStudentProfile creates a StudentProfile with an empty marks map when
// none is supplied.
func NewStudentProfile(grade int, curriculum string, subjects []string, marks map[string]float64) *StudentProfile {
	if marks == nil {
		marks = map[string]float64{}
	}
	return &StudentProfile{
		Grade:      grade,
		Curriculum: curriculum,
		Subjects:   subjects,
		Marks:      marks,
	}
}

// MarkFor returns the recorded mark for a subject, matching
// case-insensitively. The second return reports whether a mark exists.
func (p *StudentProfile) MarkFor(subject string) (float64, bool) {
	for name, mark := range p.Marks {
		if strings.EqualFold(name, subject) {
			return mark, true
		}
	}
	return 0, false
}

// HasWeakness reports whether the subject appears in the student's listed
// academic weaknesses.
func (p *StudentProfile) HasWeakness(subject string) bool {
	for _, w := range p.Weaknesses {
		if strings.EqualFold(strings.TrimSpace(w), subject) {
			return true
		}
	}
	return false
}

// ValidateStudentProfile validates a StudentProfile before it enters the
// pipeline. Invalid profiles are rejected up front, never coerced.
func ValidateStudentProfile(p *StudentProfile) error {
	if p == nil {
		return NewDomainError(ErrCodeValidation, "student profile cannot be nil")
	}

	if p.Grade < 8 || p.Grade > 12 {
		return NewDomainError(ErrCodeValidation, fmt.Sprintf("grade must be between 8 and 12, got %d", p.Grade))
	}

	if len(p.Subjects) == 0 {
		return NewDomainError(ErrCodeValidation, "profile must list at least one subject")
	}

	for subject, mark := range p.Marks {
		if strings.TrimSpace(subject) == "" {
			return NewDomainError(ErrCodeValidation, "mark recorded for empty subject name")
		}
		if mark < 0 || mark > 100 {
			return NewDomainError(ErrCodeValidation, fmt.Sprintf("mark for %s out of range: %.1f", subject, mark))
		}
	}

	if p.Constraints.Financial != "" && !p.Constraints.Financial.IsValid() {
		return NewDomainError(ErrCodeValidation, fmt.Sprintf("unknown financial constraint %q", p.Constraints.Financial))
	}

	return nil
}
