//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/kaelo-ai/kaelo/internal/domain"
	"github.com/kaelo-ai/kaelo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loggedOutcome(decision domain.Decision) *domain.VerificationOutcome {
	return &domain.VerificationOutcome{
		Decision:    decision,
		FinalAnswer: "Nursing could be a strong option for you.",
		Confidence:  0.9,
		Issues: []domain.Issue{
			{Type: domain.IssueTone, Severity: domain.SeverityLow, Problem: "slightly formal phrasing"},
		},
		RevisionsApplied: []string{"replaced \"60%\" with \"50%\""},
		ProcessingTime:   1200 * time.Millisecond,
		StagesCompleted:  []domain.Stage{domain.StageRetrieval, domain.StageDraft, domain.StageDecision},
	}
}

func loggedStudent() *domain.StudentProfile {
	p := domain.NewStudentProfile(11, "CAPS", []string{"English", "Life Sciences"}, nil)
	p.Interests = []string{"healthcare"}
	p.Constraints.Financial = domain.FinancialLow
	return p
}

func TestGuidanceLogRepository_RecordAndList(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewGuidanceLogRepository(pool)

	err := repo.RecordOutcome(ctx, "what can I study?", loggedStudent(), loggedOutcome(domain.DecisionRevised))
	require.NoError(t, err)

	entries, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, "what can I study?", entry.Query)
	assert.Equal(t, 11, entry.Grade)
	assert.Equal(t, domain.DecisionRevised, entry.Decision)
	assert.Equal(t, 0.9, entry.Confidence)
	assert.Equal(t, 1, entry.IssueCount)
	assert.EqualValues(t, 1200, entry.ProcessingMs)
	assert.False(t, entry.RequiresHuman)
}

func TestGuidanceLogRepository_NilProfile(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewGuidanceLogRepository(pool)

	err := repo.RecordOutcome(ctx, "anonymous question", nil, loggedOutcome(domain.DecisionApproved))
	require.NoError(t, err)

	entries, err := repo.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Zero(t, entries[0].Grade)
}

func TestGuidanceLogRepository_CountByDecision(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewGuidanceLogRepository(pool)

	student := loggedStudent()
	require.NoError(t, repo.RecordOutcome(ctx, "q1", student, loggedOutcome(domain.DecisionApproved)))
	require.NoError(t, repo.RecordOutcome(ctx, "q2", student, loggedOutcome(domain.DecisionApproved)))
	require.NoError(t, repo.RecordOutcome(ctx, "q3", student, loggedOutcome(domain.DecisionRejected)))

	counts, err := repo.CountByDecision(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts[domain.DecisionApproved])
	assert.EqualValues(t, 1, counts[domain.DecisionRejected])
}
