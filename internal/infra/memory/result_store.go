package memory

import (
	"context"
	"sync"

	"assessment-service/internal/domain"
)

// ResultStore keeps completed attempts in memory. Attempt numbers are assigned per
// learner and scope in arrival order.
type ResultStore struct {
	mu      sync.Mutex
	records map[resultKey][]domain.AttemptRecord
}

type resultKey struct {
	learner string
	scope   string
}

func NewResultStore() *ResultStore {
	return &ResultStore{records: make(map[resultKey][]domain.AttemptRecord)}
}

func (s *ResultStore) SaveResult(ctx context.Context, rec domain.AttemptRecord) (domain.AttemptRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.AttemptRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := resultKey{learner: rec.LearnerID, scope: rec.Scope}
	rec.Attempt = len(s.records[key]) + 1
	s.records[key] = append(s.records[key], rec)
	return rec, nil
}

func (s *ResultStore) ListResults(ctx context.Context, learnerID, scope string) ([]domain.AttemptRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.records[resultKey{learner: learnerID, scope: scope}]
	out := make([]domain.AttemptRecord, len(stored))
	copy(out, stored)
	return out, nil
}
