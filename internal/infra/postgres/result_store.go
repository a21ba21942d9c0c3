package postgres

import (
	"context"
	"fmt"
	"time"

	"assessment-service/internal/domain"
	"github.com/uptrace/bun"
)

type resultRow struct {
	bun.BaseModel `bun:"table:assessment_results"`

	ID                      int64                    `bun:"id,pk,autoincrement"`
	LearnerID               string                   `bun:"learner_id,notnull"`
	ScopeID                 string                   `bun:"scope_id,notnull"`
	Attempt                 int                      `bun:"attempt,notnull"`
	RawScore                int                      `bun:"raw_score,notnull"`
	TotalPossiblePoints     int                      `bun:"total_possible_points,notnull"`
	Percentage              int                      `bun:"percentage,notnull"`
	Passed                  bool                     `bun:"passed,notnull"`
	PassingScorePercent     int                      `bun:"passing_score_percent,notnull"`
	TimeTakenSeconds        int                      `bun:"time_taken_seconds,notnull"`
	IntegrityViolationCount int                      `bun:"integrity_violation_count,notnull"`
	Reason                  string                   `bun:"reason,notnull"`
	Answers                 map[string]domain.Answer `bun:"answers,type:jsonb"`
	SubmittedAt             time.Time                `bun:"submitted_at,notnull"`
}

func toRow(rec domain.AttemptRecord) *resultRow {
	r := rec.Result
	return &resultRow{
		LearnerID:               rec.LearnerID,
		ScopeID:                 rec.Scope,
		Attempt:                 rec.Attempt,
		RawScore:                r.RawScore,
		TotalPossiblePoints:     r.TotalPossiblePoints,
		Percentage:              r.Percentage,
		Passed:                  r.Passed,
		PassingScorePercent:     r.PassingScorePercent,
		TimeTakenSeconds:        r.TimeTakenSeconds,
		IntegrityViolationCount: r.IntegrityViolationCount,
		Reason:                  string(r.Reason),
		Answers:                 r.Answers,
		SubmittedAt:             r.SubmittedAt.UTC(),
	}
}

func (row *resultRow) record() domain.AttemptRecord {
	answers := row.Answers
	if answers == nil {
		answers = map[string]domain.Answer{}
	}
	return domain.AttemptRecord{
		LearnerID: row.LearnerID,
		Scope:     row.ScopeID,
		Attempt:   row.Attempt,
		Result: domain.AssessmentResult{
			RawScore:                row.RawScore,
			TotalPossiblePoints:     row.TotalPossiblePoints,
			Percentage:              row.Percentage,
			Passed:                  row.Passed,
			PassingScorePercent:     row.PassingScorePercent,
			TimeTakenSeconds:        row.TimeTakenSeconds,
			IntegrityViolationCount: row.IntegrityViolationCount,
			Answers:                 answers,
			Reason:                  domain.SubmitReason(row.Reason),
			SubmittedAt:             row.SubmittedAt,
		},
	}
}

// ResultStore persists completed attempts in Postgres through bun.
type ResultStore struct {
	db *bun.DB
}

func NewResultStore(db *bun.DB) *ResultStore {
	return &ResultStore{db: db}
}

// SaveResult numbers the attempt inside a transaction. An advisory lock on (learner, scope)
// serialises concurrent saves so attempt numbers stay dense.
func (s *ResultStore) SaveResult(ctx context.Context, rec domain.AttemptRecord) (domain.AttemptRecord, error) {
	row := toRow(rec)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext(?))`, rec.LearnerID+"/"+rec.Scope); err != nil {
			return fmt.Errorf("lock attempts: %w", err)
		}
		var last int
		err := tx.NewSelect().
			Model((*resultRow)(nil)).
			ColumnExpr("COALESCE(MAX(attempt), 0)").
			Where("learner_id = ?", rec.LearnerID).
			Where("scope_id = ?", rec.Scope).
			Scan(ctx, &last)
		if err != nil {
			return fmt.Errorf("next attempt: %w", err)
		}
		row.Attempt = last + 1
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.AttemptRecord{}, err
	}
	return row.record(), nil
}

func (s *ResultStore) ListResults(ctx context.Context, learnerID, scope string) ([]domain.AttemptRecord, error) {
	var rows []resultRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("learner_id = ?", learnerID).
		Where("scope_id = ?", scope).
		Order("attempt ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	out := make([]domain.AttemptRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].record())
	}
	return out, nil
}
