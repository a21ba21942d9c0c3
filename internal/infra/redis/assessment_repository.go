package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"assessment-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// AssessmentLoader fetches assessment content from a backing store (e.g., Postgres).
type AssessmentLoader interface {
	LoadAssessment(ctx context.Context, scope string) (domain.AssessmentConfig, error)
}

// AssessmentRepository caches assessments in Redis as JSON and falls back to a loader on cache miss.
// Content is stored as: SET assessment:{scope} {json} EX ttl
// Redis errors degrade to a loader read rather than failing the request.
type AssessmentRepository struct {
	client *redis.Client
	loader AssessmentLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewAssessmentRepository(client *redis.Client, loader AssessmentLoader, ttl time.Duration) *AssessmentRepository {
	return &AssessmentRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *AssessmentRepository) GetAssessment(ctx context.Context, scope string) (domain.AssessmentConfig, error) {
	if cfg, ok := r.cached(ctx, scope); ok {
		return cfg, nil
	}

	result, err, _ := r.sf.Do(scope, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if cfg, ok := r.cached(ctx, scope); ok {
			return cfg, nil
		}

		cfg, err := r.loader.LoadAssessment(ctx, scope)
		if err != nil {
			return domain.AssessmentConfig{}, err
		}

		if raw, err := json.Marshal(cfg); err == nil {
			_ = r.client.Set(ctx, r.key(scope), raw, r.ttlWithJitter()).Err()
		}
		return cfg, nil
	})
	if err != nil {
		return domain.AssessmentConfig{}, err
	}
	return result.(domain.AssessmentConfig), nil
}

// Invalidate removes the cached copy of a scope.
func (r *AssessmentRepository) Invalidate(ctx context.Context, scope string) error {
	return r.client.Del(ctx, r.key(scope)).Err()
}

func (r *AssessmentRepository) cached(ctx context.Context, scope string) (domain.AssessmentConfig, bool) {
	raw, err := r.client.Get(ctx, r.key(scope)).Bytes()
	if err != nil {
		return domain.AssessmentConfig{}, false
	}
	var cfg domain.AssessmentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		// corrupt entry; drop it so the loader repopulates
		_ = r.client.Del(ctx, r.key(scope)).Err()
		return domain.AssessmentConfig{}, false
	}
	return cfg, true
}

func (r *AssessmentRepository) key(scope string) string {
	return "assessment:" + scope
}

func (r *AssessmentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
