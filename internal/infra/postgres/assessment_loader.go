package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"assessment-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// AssessmentLoader loads assessment JSONB from Postgres, one document per scope.
type AssessmentLoader struct {
	pool *pgxpool.Pool
}

func NewAssessmentLoader(pool *pgxpool.Pool) *AssessmentLoader {
	return &AssessmentLoader{pool: pool}
}

func (l *AssessmentLoader) LoadAssessment(ctx context.Context, scope string) (domain.AssessmentConfig, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM assessments WHERE scope_id=$1`, scope).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AssessmentConfig{}, domain.ErrAssessmentNotFound
	}
	if err != nil {
		return domain.AssessmentConfig{}, fmt.Errorf("load assessment: %w", err)
	}
	var cfg domain.AssessmentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return domain.AssessmentConfig{}, fmt.Errorf("unmarshal assessment: %w", err)
	}
	cfg.Scope = scope
	return cfg, nil
}

// SaveAssessment upserts the document for cfg.Scope.
func (l *AssessmentLoader) SaveAssessment(ctx context.Context, cfg domain.AssessmentConfig) error {
	if cfg.Scope == "" {
		return fmt.Errorf("%w: scope is required", domain.ErrMalformedAssessment)
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
INSERT INTO assessments (scope_id, data, updated_at) VALUES ($1, $2::jsonb, now())
ON CONFLICT (scope_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`, cfg.Scope, string(data))
	if err != nil {
		return fmt.Errorf("save assessment: %w", err)
	}
	return nil
}
