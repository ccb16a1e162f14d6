package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kaelo-ai/kaelo/internal/domain"
)

// GuidanceLogRepository stores every terminal pipeline outcome for review
// and counsellor follow-up.
type GuidanceLogRepository struct {
	pool *pgxpool.Pool
}

func NewGuidanceLogRepository(pool *pgxpool.Pool) *GuidanceLogRepository {
	return &GuidanceLogRepository{pool: pool}
}

// GuidanceLogEntry is one persisted outcome row.
type GuidanceLogEntry struct {
	ID            string
	Query         string
	Grade         int
	Decision      domain.Decision
	FinalAnswer   string
	Confidence    float64
	RequiresHuman bool
	IssueCount    int
	ProcessingMs  int64
	CreatedAt     time.Time
}

type loggedIssue struct {
	Type       string `json:"type"`
	Severity   string `json:"severity"`
	Location   string `json:"location,omitempty"`
	Problem    string `json:"problem"`
	Correction string `json:"correction,omitempty"`
}

type loggedProfile struct {
	Grade      int      `json:"grade"`
	Curriculum string   `json:"curriculum,omitempty"`
	Subjects   []string `json:"subjects,omitempty"`
	Interests  []string `json:"interests,omitempty"`
	Financial  string   `json:"financial,omitempty"`
}

// RecordOutcome persists a terminal outcome. It satisfies the pipeline's
// audit logger interface.
func (r *GuidanceLogRepository) RecordOutcome(ctx context.Context, query string, profile *domain.StudentProfile, outcome *domain.VerificationOutcome) error {
	issues := make([]loggedIssue, 0, len(outcome.Issues))
	for _, issue := range outcome.Issues {
		issues = append(issues, loggedIssue{
			Type:       string(issue.Type),
			Severity:   string(issue.Severity),
			Location:   issue.Location,
			Problem:    issue.Problem,
			Correction: issue.Correction,
		})
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return err
	}

	var grade int
	var profileJSON []byte
	if profile != nil {
		grade = profile.Grade
		profileJSON, err = json.Marshal(loggedProfile{
			Grade:      profile.Grade,
			Curriculum: profile.Curriculum,
			Subjects:   profile.Subjects,
			Interests:  profile.Interests,
			Financial:  string(profile.Constraints.Financial),
		})
		if err != nil {
			return err
		}
	}

	stages := make([]string, 0, len(outcome.StagesCompleted))
	for _, stage := range outcome.StagesCompleted {
		stages = append(stages, string(stage))
	}

	revisions := outcome.RevisionsApplied
	if revisions == nil {
		revisions = []string{}
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO guidance_log
			(id, query, grade, profile, decision, final_answer, confidence, requires_human,
			 issues, issue_count, revisions_applied, stages, processing_ms, created_at)
		 VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		uuid.NewString(),
		query,
		grade,
		profileJSON,
		string(outcome.Decision),
		outcome.FinalAnswer,
		outcome.Confidence,
		outcome.RequiresHuman,
		issuesJSON,
		len(outcome.Issues),
		revisions,
		stages,
		outcome.ProcessingTime.Milliseconds(),
		time.Now().UTC(),
	)
	return err
}

// ListRecent returns the most recent outcomes, newest first.
func (r *GuidanceLogRepository) ListRecent(ctx context.Context, limit int) ([]*GuidanceLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, query, grade, decision, final_answer, confidence, requires_human, issue_count, processing_ms, created_at
		 FROM guidance_log
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*GuidanceLogEntry, 0, limit)
	for rows.Next() {
		var entry GuidanceLogEntry
		var decision string
		if err := rows.Scan(
			&entry.ID,
			&entry.Query,
			&entry.Grade,
			&decision,
			&entry.FinalAnswer,
			&entry.Confidence,
			&entry.RequiresHuman,
			&entry.IssueCount,
			&entry.ProcessingMs,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.Decision = domain.Decision(decision)
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// CountByDecision returns outcome counts per terminal decision since the
// given time, for the admin stats view.
func (r *GuidanceLogRepository) CountByDecision(ctx context.Context, since time.Time) (map[domain.Decision]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT decision, COUNT(*)
		 FROM guidance_log
		 WHERE created_at >= $1
		 GROUP BY decision`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Decision]int64)
	for rows.Next() {
		var decision string
		var count int64
		if err := rows.Scan(&decision, &count); err != nil {
			return nil, err
		}
		counts[domain.Decision(decision)] = count
	}

	return counts, rows.Err()
}
