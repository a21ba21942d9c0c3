package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"assessment-service/internal/domain"
	_ "modernc.org/sqlite" // driver: sqlite
)

const defaultDSN = "file:assessments.db?mode=rwc&_pragma=busy_timeout(5000)"

const schema = `
CREATE TABLE IF NOT EXISTS assessment_results (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  learner_id TEXT NOT NULL,
  scope_id TEXT NOT NULL,
  attempt INTEGER NOT NULL,
  raw_score INTEGER NOT NULL,
  total_possible_points INTEGER NOT NULL,
  percentage INTEGER NOT NULL,
  passed INTEGER NOT NULL,
  passing_score_percent INTEGER NOT NULL,
  time_taken_seconds INTEGER NOT NULL,
  integrity_violation_count INTEGER NOT NULL,
  reason TEXT NOT NULL,
  answers_json TEXT NOT NULL,
  submitted_at INTEGER NOT NULL,
  UNIQUE (learner_id, scope_id, attempt)
);
`

// ResultStore keeps completed attempts in a local SQLite file for single-node deployments.
type ResultStore struct {
	db *sql.DB
}

// Open opens the database and ensures the schema exists. An empty dsn uses a file in the
// working directory.
func Open(ctx context.Context, dsn string) (*ResultStore, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer keeps attempt numbering serial
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &ResultStore{db: db}, nil
}

func (s *ResultStore) Close() error {
	return s.db.Close()
}

func (s *ResultStore) SaveResult(ctx context.Context, rec domain.AttemptRecord) (domain.AttemptRecord, error) {
	answers, err := json.Marshal(rec.Result.Answers)
	if err != nil {
		return domain.AttemptRecord{}, fmt.Errorf("marshal answers: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.AttemptRecord{}, err
	}
	defer tx.Rollback()

	var last int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(attempt), 0) FROM assessment_results WHERE learner_id = ? AND scope_id = ?`,
		rec.LearnerID, rec.Scope).Scan(&last)
	if err != nil {
		return domain.AttemptRecord{}, fmt.Errorf("next attempt: %w", err)
	}
	rec.Attempt = last + 1

	r := rec.Result
	_, err = tx.ExecContext(ctx, `
INSERT INTO assessment_results (
  learner_id, scope_id, attempt, raw_score, total_possible_points, percentage, passed,
  passing_score_percent, time_taken_seconds, integrity_violation_count, reason, answers_json, submitted_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.LearnerID, rec.Scope, rec.Attempt, r.RawScore, r.TotalPossiblePoints, r.Percentage, r.Passed,
		r.PassingScorePercent, r.TimeTakenSeconds, r.IntegrityViolationCount, string(r.Reason), string(answers),
		r.SubmittedAt.UnixMilli())
	if err != nil {
		return domain.AttemptRecord{}, fmt.Errorf("insert result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.AttemptRecord{}, err
	}
	return rec, nil
}

func (s *ResultStore) ListResults(ctx context.Context, learnerID, scope string) ([]domain.AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT attempt, raw_score, total_possible_points, percentage, passed, passing_score_percent,
       time_taken_seconds, integrity_violation_count, reason, answers_json, submitted_at
FROM assessment_results
WHERE learner_id = ? AND scope_id = ?
ORDER BY attempt ASC`, learnerID, scope)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	out := []domain.AttemptRecord{}
	for rows.Next() {
		var (
			rec       = domain.AttemptRecord{LearnerID: learnerID, Scope: scope}
			reason    string
			answers   string
			submitted int64
		)
		r := &rec.Result
		if err := rows.Scan(&rec.Attempt, &r.RawScore, &r.TotalPossiblePoints, &r.Percentage, &r.Passed,
			&r.PassingScorePercent, &r.TimeTakenSeconds, &r.IntegrityViolationCount, &reason, &answers, &submitted); err != nil {
			return nil, err
		}
		r.Reason = domain.SubmitReason(reason)
		r.SubmittedAt = time.UnixMilli(submitted).UTC()
		if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
		if r.Answers == nil {
			r.Answers = map[string]domain.Answer{}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
