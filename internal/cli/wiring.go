package cli

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"quiz-arena/internal/app"
	"quiz-arena/internal/config"
	"quiz-arena/internal/domain"
	"quiz-arena/internal/infra/memory"
	pgstore "quiz-arena/internal/infra/postgres"
	redisstore "quiz-arena/internal/infra/redis"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// arena bundles the service with the resources it holds open.
type arena struct {
	service *app.ArenaService
	closers []func()
}

func (a *arena) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level := strings.ToLower(cfg.Log.Level)
	if level == "debug" {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zcfg.Build()
}

func arenaOptions(cfg config.Config) app.Options {
	return app.Options{
		PointsPerQuestion: cfg.Arena.PointsPerQuestion,
		MaxPlayers:        cfg.Arena.MaxPlayers,
		CodeLength:        cfg.Arena.CodeLength,
		StoreTimeout:      config.TTLDuration(cfg.Store.Timeout, 5*time.Second),
	}
}

func openBun(url string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(url)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// buildArena wires the room store, question sets and event bus selected by cfg.
func buildArena(ctx context.Context, cfg config.Config, logger *zap.Logger) (*arena, error) {
	a := &arena{}
	driver := cfg.StoreDriver()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	} else if driver == config.DriverRedis {
		return nil, fmt.Errorf("store driver redis needs redis.addr")
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
	} else if driver == config.DriverPostgres {
		a.Close()
		return nil, fmt.Errorf("store driver postgres needs postgres.url")
	}

	var rooms app.RoomStore
	switch driver {
	case config.DriverRedis:
		rooms = redisstore.NewRoomStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 6*time.Hour))
	case config.DriverPostgres:
		db := openBun(cfg.Postgres.URL)
		a.closers = append(a.closers, func() { _ = db.Close() })
		rooms = pgstore.NewRoomStore(db)
	default:
		rooms = memory.NewRoomStore()
	}

	loader, err := questionSetLoader(cfg, pool)
	if err != nil {
		a.Close()
		return nil, err
	}
	setsTTL := config.TTLDuration(cfg.QuestionSets.TTL, 10*time.Minute)
	var sets app.QuestionSetRepository
	if redisClient != nil {
		sets = redisstore.NewQuestionSetRepository(redisClient, loader, setsTTL)
	} else {
		sets = memory.NewQuestionSetRepository(loader, setsTTL)
	}

	var events app.EventBus
	if redisClient != nil {
		events = redisstore.NewEventBus(redisClient, logger)
	} else {
		events = memory.NewEventHub()
	}

	logger.Info("arena wired",
		zap.String("store", driver),
		zap.Bool("redis", redisClient != nil),
		zap.Bool("postgres", pool != nil),
	)
	a.service = app.NewArenaService(rooms, sets, events, logger, arenaOptions(cfg))
	return a, nil
}

// questionSetLoader prefers the Postgres question_sets table, then the YAML file, then an empty loader.
func questionSetLoader(cfg config.Config, pool *pgxpool.Pool) (memory.QuestionSetLoader, error) {
	if pool != nil {
		return pgstore.NewQuestionSetLoader(pool), nil
	}
	if cfg.QuestionSets.File != "" {
		return memory.LoadQuestionSetsFile(cfg.QuestionSets.File)
	}
	return memory.NewStaticQuestionSetLoader(map[string]domain.QuestionSet{}), nil
}
