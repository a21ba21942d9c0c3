package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"assessment-service/internal/app"
	"assessment-service/internal/config"
	"assessment-service/internal/domain"
	"assessment-service/internal/engine"
	"assessment-service/internal/infra/amqp"
	"assessment-service/internal/infra/memory"
	pgstore "assessment-service/internal/infra/postgres"
	infraredis "assessment-service/internal/infra/redis"
	"assessment-service/internal/infra/sqlite"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// backends holds the storage and messaging adapters selected by configuration.
type backends struct {
	assessments app.AssessmentRepository
	sessions    app.SessionRepository
	results     app.ResultRepository
	publisher   *amqp.Publisher
	closers     []func() error
}

func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// openBackends picks Postgres over bundled content, Redis over the in-process cache and
// Postgres, then SQLite, then memory for results.
func openBackends(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*backends, error) {
	b := &backends{}
	fail := func(err error) (*backends, error) {
		_ = b.Close()
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, redisClient.Close)
	}

	var loader memory.AssessmentLoader = memory.NewStaticAssessmentLoader(sampleAssessments())
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fail(fmt.Errorf("connect postgres: %w", err))
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
		loader = pgstore.NewAssessmentLoader(pool)

		db := openBunDB(cfg.Postgres.URL)
		b.closers = append(b.closers, db.Close)
		b.results = pgstore.NewResultStore(db)
	} else {
		log.Info("postgres not configured, serving bundled sample assessments")
	}

	contentTTL := config.DurationOr(cfg.Assessment.TTL, 10*time.Minute)
	if redisClient != nil {
		b.assessments = infraredis.NewAssessmentRepository(redisClient, loader, contentTTL)
		b.sessions = infraredis.NewSessionStore(redisClient, config.DurationOr(cfg.Redis.TTL, 10*time.Minute))
	} else {
		b.assessments = memory.NewAssessmentRepository(loader, contentTTL)
		b.sessions = memory.NewSessionStore()
	}

	if b.results == nil {
		if cfg.SQLite.DSN != "" {
			store, err := sqlite.Open(ctx, cfg.SQLite.DSN)
			if err != nil {
				return fail(fmt.Errorf("open sqlite: %w", err))
			}
			b.closers = append(b.closers, store.Close)
			b.results = store
		} else {
			log.Warn("no result database configured, results are kept in memory")
			b.results = memory.NewResultStore()
		}
	}

	publisher, err := amqp.NewPublisher(cfg.AMQP.URL, log)
	if err != nil {
		return fail(err)
	}
	b.closers = append(b.closers, publisher.Close)
	b.publisher = publisher
	return b, nil
}

func openBunDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func newService(cfg config.Config, b *backends, log logrus.FieldLogger) *app.AssessmentService {
	return app.NewAssessmentService(b.sessions, b.assessments, b.results,
		app.WithLogger(log),
		app.WithPublisher(b.publisher),
		app.WithTiming(
			config.DurationOr(cfg.Assessment.Tick, engine.DefaultTickInterval),
			config.DurationOr(cfg.Assessment.FeedbackDelay, engine.DefaultFeedbackDelay),
		),
		app.WithPersistTimeout(config.DurationOr(cfg.Assessment.PersistTimeout, 5*time.Second)),
	)
}

// sampleAssessments provides bundled content; swap this loader with the Postgres-backed one in production.
func sampleAssessments() map[string]domain.AssessmentConfig {
	return map[string]domain.AssessmentConfig{
		"chapter-1": {
			Scope:            "chapter-1",
			Title:            "Numbers warm-up",
			TimeLimitSeconds: 120,
			Questions: []domain.Question{
				{ID: "q1", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: 1},
				{ID: "q2", Prompt: "What is 7 * 6?", Options: []string{"36", "42", "48"}, CorrectAnswer: 1},
				{ID: "q3", Prompt: "Which number is prime?", Options: []string{"9", "15", "17"}, CorrectText: "17", Points: 2},
				{ID: "q4", Prompt: "What is 100 / 4?", Options: []string{"20", "25", "40"}, CorrectAnswer: 1},
			},
		},
		"chapter-2": {
			Scope:            "chapter-2",
			Title:            "Capitals",
			TimeLimitSeconds: 60,
			Questions: []domain.Question{
				{ID: "c1", Prompt: "Capital of France?", Options: []string{"Paris", "Lyon", "Nice"}, CorrectText: "Paris"},
				{ID: "c2", Prompt: "Capital of Japan?", Options: []string{"Osaka", "Tokyo", "Kyoto"}, CorrectAnswer: 1},
				{ID: "c3", Prompt: "Capital of Vietnam?", Options: []string{"Hanoi", "Hue", "Da Nang"}, CorrectAnswer: 0},
			},
		},
	}
}
