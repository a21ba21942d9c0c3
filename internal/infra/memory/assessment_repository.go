package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"assessment-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// AssessmentLoader fetches assessment content from a backing store (e.g., Postgres).
type AssessmentLoader interface {
	LoadAssessment(ctx context.Context, scope string) (domain.AssessmentConfig, error)
}

// AssessmentRepository caches assessments with TTL to avoid repeated DB hits.
type AssessmentRepository struct {
	loader AssessmentLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedAssessment
}

type cachedAssessment struct {
	cfg       domain.AssessmentConfig
	expiresAt time.Time
}

func NewAssessmentRepository(loader AssessmentLoader, ttl time.Duration) *AssessmentRepository {
	return &AssessmentRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedAssessment),
	}
}

func (r *AssessmentRepository) GetAssessment(ctx context.Context, scope string) (domain.AssessmentConfig, error) {
	if cfg, ok := r.cached(scope); ok {
		return cfg, nil
	}

	result, err, _ := r.sf.Do(scope, func() (interface{}, error) {
		if cfg, ok := r.cached(scope); ok {
			return cfg, nil
		}

		cfg, err := r.loader.LoadAssessment(ctx, scope)
		if err != nil {
			return domain.AssessmentConfig{}, err
		}

		r.mu.Lock()
		r.cache[scope] = cachedAssessment{
			cfg:       cfg,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return cfg, nil
	})
	if err != nil {
		return domain.AssessmentConfig{}, err
	}
	return result.(domain.AssessmentConfig), nil
}

func (r *AssessmentRepository) cached(scope string) (domain.AssessmentConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[scope]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.AssessmentConfig{}, false
	}
	return entry.cfg, true
}

func (r *AssessmentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticAssessmentLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticAssessmentLoader struct {
	assessments map[string]domain.AssessmentConfig
}

func NewStaticAssessmentLoader(assessments map[string]domain.AssessmentConfig) *StaticAssessmentLoader {
	return &StaticAssessmentLoader{assessments: assessments}
}

func (l *StaticAssessmentLoader) LoadAssessment(_ context.Context, scope string) (domain.AssessmentConfig, error) {
	if cfg, ok := l.assessments[scope]; ok {
		return cfg, nil
	}
	return domain.AssessmentConfig{}, domain.ErrAssessmentNotFound
}
