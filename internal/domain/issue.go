package domain

// IssueType classifies a problem found in a draft answer.
type IssueType string

const (
	IssueHallucination IssueType = "hallucination"
	IssueInaccuracy    IssueType = "inaccuracy"
	IssueTone          IssueType = "tone"
	IssuePolicy        IssueType = "policy"
	IssueStructure     IssueType = "structure"
	IssueSystem        IssueType = "system"
)

// IsValid returns true if the issue type is known.
func (t IssueType) IsValid() bool {
	switch t {
	case IssueHallucination, IssueInaccuracy, IssueTone, IssuePolicy, IssueStructure, IssueSystem:
		return true
	}
	return false
}

// Severity grades how serious an issue is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// IsValid returns true if the severity is known.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Weight returns the confidence penalty weight for a severity. Unknown
// severities weigh like medium.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 0.40
	case SeverityHigh:
		return 0.20
	case SeverityMedium:
		return 0.10
	case SeverityLow:
		return 0.05
	default:
		return 0.10
	}
}

// Issue is one detected problem in a draft. Correction is optional; when
// present it holds replacement text the decision engine can apply
// mechanically.
type Issue struct {
	Type       IssueType
	Severity   Severity
	Location   string
	Problem    string
	Correction string
}

// HasCorrection reports whether the issue carries an applicable correction.
func (i Issue) HasCorrection() bool {
	return i.Correction != "" && i.Location != ""
}
