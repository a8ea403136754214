package cli

import (
	"context"
	"fmt"

	"quiz-arena/internal/config"
	"quiz-arena/internal/infra/memory"
	pgstore "quiz-arena/internal/infra/postgres"
	pgmigrations "quiz-arena/internal/infra/postgres/migrations"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// NewMigrateCmd applies database migrations and optionally seeds question sets.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if err := runMigrationsWithConfig(cmd.Context(), cfg, logger); err != nil {
				return err
			}
			if seed {
				return seedQuestionSets(cmd.Context(), cfg, logger)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "upsert question sets from questionSets.file into postgres")
	return cmd
}

func seedQuestionSets(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.QuestionSets.File == "" {
		return fmt.Errorf("questionSets.file not configured")
	}
	sets, err := memory.ReadQuestionSetsFile(cfg.QuestionSets.File)
	if err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	loader := pgstore.NewQuestionSetLoader(pool)
	for _, set := range sets {
		if err := loader.SaveQuestionSet(ctx, set); err != nil {
			return err
		}
	}
	logger.Info("question sets seeded", zap.Int("count", len(sets)), zap.String("file", cfg.QuestionSets.File))
	return nil
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := openBun(cfg.Postgres.URL)
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
		logger.Info("no new migrations")
		return nil
	}
	logger.Info("migrations applied", zap.String("group", group.String()))
	return nil
}
