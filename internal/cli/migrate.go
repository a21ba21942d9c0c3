package cli

import (
	"context"
	"fmt"

	"assessment-service/internal/config"
	"assessment-service/internal/domain"
	pgstore "assessment-service/internal/infra/postgres"
	pgmigrations "assessment-service/internal/infra/postgres/migrations"
	infraredis "assessment-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath, seed)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "upsert the bundled sample assessments after migrating")
	return cmd
}

func runMigrations(ctx context.Context, configPath string, seed bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
		return err
	}
	if seed {
		return seedAssessments(ctx, cfg, log)
	}
	return nil
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, log logrus.FieldLogger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := openBunDB(cfg.Postgres.URL)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Info("no new migrations")
		return nil
	}
	log.WithField("group", group.String()).Info("migrations applied")
	return nil
}

type assessmentWriter interface {
	SaveAssessment(ctx context.Context, cfg domain.AssessmentConfig) error
}

type contentCache interface {
	Invalidate(ctx context.Context, scope string) error
}

func seedAssessments(ctx context.Context, cfg config.Config, log logrus.FieldLogger) error {
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	loader := pgstore.NewAssessmentLoader(pool)
	var cache contentCache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		cache = infraredis.NewAssessmentRepository(client, loader, 0)
	}
	return seed(ctx, loader, cache, sampleAssessments(), log)
}

// seed upserts assessments and drops any cached copy so running servers pick up the new
// content on their next load.
func seed(ctx context.Context, store assessmentWriter, cache contentCache, assessments map[string]domain.AssessmentConfig, log logrus.FieldLogger) error {
	for scope, assessment := range assessments {
		if err := store.SaveAssessment(ctx, assessment); err != nil {
			return fmt.Errorf("seed %s: %w", scope, err)
		}
		if cache != nil {
			if err := cache.Invalidate(ctx, scope); err != nil {
				log.WithError(err).WithField("scope", scope).Warn("cached assessment not invalidated")
			}
		}
		log.WithField("scope", scope).Info("assessment seeded")
	}
	return nil
}
