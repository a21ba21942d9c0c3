package integration

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"assessment-service/internal/engine"
	pgstore "assessment-service/internal/infra/postgres"
	pgmigrations "assessment-service/internal/infra/postgres/migrations"
	infraredis "assessment-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestAssessmentEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := migrateDB(t, ctx, pgURL)
	defer db.Close()

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgstore.NewAssessmentLoader(pool)
	if err := loader.SaveAssessment(ctx, sampleAssessment()); err != nil {
		t.Fatalf("seed assessment: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	log := logrus.New()
	log.SetOutput(io.Discard)
	service := app.NewAssessmentService(
		infraredis.NewSessionStore(redisClient, 5*time.Minute),
		infraredis.NewAssessmentRepository(redisClient, loader, 5*time.Minute),
		pgstore.NewResultStore(db),
		app.WithLogger(log),
	)

	for attempt := 1; attempt <= 2; attempt++ {
		session, err := service.Open(ctx, "u1", "chapter-1", engine.ModeReview)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		ctrl := session.Controller
		if err := ctrl.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}
		if _, err := ctrl.SelectAnswer("q1", domain.Answer{Index: 1}); err != nil {
			t.Fatalf("select: %v", err)
		}
		if attempt == 2 {
			if _, err := ctrl.SelectAnswer("q2", domain.Answer{Text: "Tokyo"}); err != nil {
				t.Fatalf("select: %v", err)
			}
		}
		if _, err := ctrl.Submit(); err != nil {
			t.Fatalf("submit: %v", err)
		}
		service.Wait()
		service.Close(session.ID)
	}

	history, err := service.History(ctx, "u1", "chapter-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if history.AttemptCount != 2 {
		t.Fatalf("expected 2 attempts, got %d", history.AttemptCount)
	}
	first, second := history.Attempts[0], history.Attempts[1]
	if first.Attempt != 1 || first.Result.Percentage != 33 || first.Result.Passed {
		t.Fatalf("unexpected first attempt %+v", first)
	}
	if second.Attempt != 2 || second.Result.Percentage != 100 || !second.Result.Passed {
		t.Fatalf("unexpected second attempt %+v", second)
	}
	if second.Result.Answers["q2"].Text != "Tokyo" {
		t.Fatalf("answers not stored: %+v", second.Result.Answers)
	}

	exists, err := redisClient.Exists(ctx, "assessment:chapter-1").Result()
	if err != nil || exists != 1 {
		t.Fatalf("expected cached assessment in redis, exists=%d err=%v", exists, err)
	}

	unknown, err := service.Open(ctx, "u1", "chapter-9", engine.ModeReview)
	if err != nil {
		t.Fatalf("open unknown scope: %v", err)
	}
	defer service.Close(unknown.ID)
	if err := unknown.Controller.Start(); err != domain.ErrAssessmentUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "assessment", "POSTGRES_PASSWORD": "assessmentpass", "POSTGRES_DB": "assessments"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://assessment:assessmentpass@%s:%s/assessments?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func sampleAssessment() domain.AssessmentConfig {
	return domain.AssessmentConfig{
		Scope:            "chapter-1",
		Title:            "Integration",
		TimeLimitSeconds: 300,
		Questions: []domain.Question{
			{ID: "q1", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: 1},
			{ID: "q2", Prompt: "Capital of Japan?", Options: []string{"Osaka", "Tokyo"}, CorrectText: "Tokyo", Points: 2},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
