package domain

import "time"

// Decision is the terminal result of the verification pipeline. Once set,
// no further processing occurs.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRevised  Decision = "revised"
	DecisionRejected Decision = "rejected"
	DecisionFallback Decision = "fallback"
)

// IsValid returns true if the decision is one of the four terminal values.
func (d Decision) IsValid() bool {
	switch d {
	case DecisionApproved, DecisionRevised, DecisionRejected, DecisionFallback:
		return true
	}
	return false
}

// Stage names a pipeline stage for audit records.
type Stage string

const (
	StageRetrieval        Stage = "retrieval"
	StageDraft            Stage = "draft"
	StageRuleVerification Stage = "rule_verification"
	StageLLMVerification  Stage = "llm_verification"
	StageDecision         Stage = "decision"
)

// VerificationOutcome is the unit persisted to the guidance audit log and
// returned to the caller. FinalAnswer is always non-empty; fallback text
// substitutes when nothing else can be delivered. Confidence feeds
// analytics only, never the student-facing response.
type VerificationOutcome struct {
	Decision         Decision
	FinalAnswer      string
	Issues           []Issue
	RevisionsApplied []string
	Confidence       float64
	RequiresHuman    bool
	ProcessingTime   time.Duration
	StagesCompleted  []Stage
	CachedAt         *time.Time
}

// FromCache reports whether the outcome was served from the cache layer.
func (o *VerificationOutcome) FromCache() bool {
	return o != nil && o.CachedAt != nil
}

// ValidateVerificationOutcome validates an outcome before it is persisted
// or cached.
func ValidateVerificationOutcome(o *VerificationOutcome) error {
	if o == nil {
		return NewDomainError(ErrCodeValidation, "verification outcome cannot be nil")
	}
	if !o.Decision.IsValid() {
		return NewDomainError(ErrCodeValidation, "verification outcome has unknown decision")
	}
	if o.FinalAnswer == "" {
		return NewDomainError(ErrCodeValidation, "verification outcome must carry a final answer")
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		return NewDomainError(ErrCodeValidation, "verification outcome confidence out of range")
	}
	return nil
}
