package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"assessment-service/internal/domain"
	"assessment-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestAssessmentRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		AssessmentLoader: memory.NewStaticAssessmentLoader(map[string]domain.AssessmentConfig{
			"chapter-1": sampleAssessment(),
		}),
	}
	repo := NewAssessmentRepository(client, loader, time.Minute)

	_, err = repo.GetAssessment(context.Background(), "chapter-1")
	if err != nil {
		t.Fatalf("get assessment: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls.Load())
	}
	if !mr.Exists("assessment:chapter-1") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("assessment:chapter-1"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	cfg, err := repo.GetAssessment(context.Background(), "chapter-1")
	if err != nil {
		t.Fatalf("get assessment 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls.Load())
	}
	if len(cfg.Questions) != 1 || cfg.Questions[0].Options[1] != "4" {
		t.Fatalf("unexpected cached content %+v", cfg)
	}
	if cfg.PassingScore() != 80 {
		t.Fatalf("expected passing score to survive the cache, got %d", cfg.PassingScore())
	}
}

func TestAssessmentRepositoryDropsCorruptEntries(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	if err := mr.Set("assessment:chapter-1", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	loader := &countingLoader{
		AssessmentLoader: memory.NewStaticAssessmentLoader(map[string]domain.AssessmentConfig{
			"chapter-1": sampleAssessment(),
		}),
	}
	repo := NewAssessmentRepository(newClient(mr), loader, time.Minute)

	if _, err := repo.GetAssessment(context.Background(), "chapter-1"); err != nil {
		t.Fatalf("get assessment: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader fallback, calls=%d", loader.calls.Load())
	}
}

func TestAssessmentRepositoryPassesThroughNotFound(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewAssessmentRepository(newClient(mr), memory.NewStaticAssessmentLoader(nil), time.Minute)
	_, err = repo.GetAssessment(context.Background(), "missing")
	if !errors.Is(err, domain.ErrAssessmentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if mr.Exists("assessment:missing") {
		t.Fatalf("misses must not be cached")
	}
}

type countingLoader struct {
	memory.AssessmentLoader
	calls atomic.Int32
}

func (l *countingLoader) LoadAssessment(ctx context.Context, scope string) (domain.AssessmentConfig, error) {
	l.calls.Add(1)
	return l.AssessmentLoader.LoadAssessment(ctx, scope)
}

func sampleAssessment() domain.AssessmentConfig {
	passing := 80
	return domain.AssessmentConfig{
		Scope:               "chapter-1",
		TimeLimitSeconds:    60,
		PassingScorePercent: &passing,
		Questions: []domain.Question{
			{ID: "q1", Prompt: "What is 2 + 2?", Options: []string{"3", "4"}, CorrectAnswer: 1},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
