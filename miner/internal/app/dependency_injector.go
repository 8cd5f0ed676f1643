package mapp

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strings"

	mio "github.com/you-humble/ubattery/core/libs/minio"
	natsq "github.com/you-humble/ubattery/core/libs/nats"
	rediscli "github.com/you-humble/ubattery/core/libs/redis"
	sqlcli "github.com/you-humble/ubattery/core/libs/sql"
	"github.com/you-humble/ubattery/core/mining"
	"github.com/you-humble/ubattery/core/mining/algorithm"
	"github.com/you-humble/ubattery/core/queue"
	"github.com/you-humble/ubattery/core/store/archive"
	rowstore "github.com/you-humble/ubattery/core/store/rows"
	taskstore "github.com/you-humble/ubattery/core/store/task"
	"github.com/you-humble/ubattery/miner/internal/infra/config"
	"github.com/you-humble/ubattery/miner/internal/miner"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const cfgPath = "./miner/configs/local.yaml"

type Miner interface {
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
}

type TaskStore interface {
	mining.TaskStore
	mining.RetentionStore
}

type ArchiveStore interface {
	archive.Storage
	mining.ArchiveCleaner
}

type dependencyInjector struct {
	cfg    *config.Config
	logger *slog.Logger

	redis     *redis.Client
	taskStore TaskStore

	db        *gorm.DB
	rowSource mining.RowSource

	archiveStore ArchiveStore
	archiver     *archive.Archiver

	natsConn *nats.Conn
	js       nats.JetStreamContext
	inflight *queue.Inflight

	executor *mining.Executor
	reaper   *mining.Reaper
	miner    Miner
}

func newDI() *dependencyInjector {
	return &dependencyInjector{}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		path := cfgPath
		if p := os.Getenv("UBATTERY_MINER_CONFIG"); p != "" {
			path = p
		}
		di.cfg = config.MustLoad(path)
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(
			slog.NewTextHandler(
				os.Stdout,
				&slog.HandlerOptions{
					Level: logLevel(di.Config().LogLevel),
				},
			),
		)
	}

	slog.SetDefault(di.logger)
	return di.logger
}

func (di *dependencyInjector) RedisClient(ctx context.Context) *redis.Client {
	if di.redis == nil {
		cfg := di.Config().Redis
		client, err := rediscli.NewClient(ctx, rediscli.Config{
			Addr:     cfg.Addr,
			User:     cfg.User,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		})
		if err != nil {
			log.Fatalf("RedisClient: %+v", err)
		}

		di.redis = client
		di.Logger().Info("connected to redis", slog.String("addr", cfg.Addr))
	}
	return di.redis
}

func (di *dependencyInjector) TaskStore(ctx context.Context) TaskStore {
	if di.taskStore == nil {
		di.taskStore = taskstore.NewRedisTaskStore(di.RedisClient(ctx))
	}
	return di.taskStore
}

func (di *dependencyInjector) DB(ctx context.Context) *gorm.DB {
	if di.db == nil {
		cfg := di.Config().Database
		db, err := sqlcli.NewClient(ctx, sqlcli.Config{
			Driver:          cfg.Driver,
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			LogLevel:        cfg.LogLevel,
		})
		if err != nil {
			log.Fatalf("DB: %+v", err)
		}

		di.db = db
		di.Logger().Info("connected to database", slog.String("driver", cfg.Driver))
	}
	return di.db
}

func (di *dependencyInjector) RowSource(ctx context.Context) mining.RowSource {
	if di.rowSource == nil {
		di.rowSource = rowstore.NewGormRowSource(di.DB(ctx), di.Config().RowLimit)
	}
	return di.rowSource
}

// ArchiveStore returns nil when no MinIO endpoint is configured.
func (di *dependencyInjector) ArchiveStore(ctx context.Context) ArchiveStore {
	cfg := di.Config().MinIO
	if cfg.Endpoint == "" {
		return nil
	}

	if di.archiveStore == nil {
		store, err := archive.NewMinIOStore(ctx, mio.Config{
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			UseSSL:          cfg.UseSSL,
			Bucket:          cfg.Bucket,
			BasePath:        cfg.BasePath,
		})
		if err != nil {
			log.Fatalf("ArchiveStore minio: %+v", err)
		}

		di.archiveStore = store
		di.Logger().Info("initialized MinIO result archive",
			slog.String("endpoint", cfg.Endpoint),
			slog.String("bucket", cfg.Bucket),
		)
	}
	return di.archiveStore
}

func (di *dependencyInjector) Archiver(ctx context.Context) *archive.Archiver {
	store := di.ArchiveStore(ctx)
	if store == nil {
		return nil
	}

	if di.archiver == nil {
		cfg := di.Config().Archive
		di.archiver = archive.NewArchiver(store, cfg.QueueCapacity, cfg.Workers, cfg.MaxRetries)
		di.Logger().Info("using async result archiver",
			slog.Int("queue_size", cfg.QueueCapacity),
			slog.Int("worker_num", cfg.Workers),
			slog.Int("max_retries", cfg.MaxRetries),
		)
	}
	return di.archiver
}

func (di *dependencyInjector) NATSConn(ctx context.Context) *nats.Conn {
	if di.natsConn == nil {
		cfg := di.Config().NATS
		nc, err := natsq.NewConnect(cfg.URL, natsq.Config{
			Name:          cfg.Name,
			MaxReconnects: cfg.MaxReconnects,
		})
		if err != nil {
			log.Fatalf("NATS connect: %+v", err)
		}
		di.natsConn = nc
	}
	return di.natsConn
}

func (di *dependencyInjector) JetStream(ctx context.Context) nats.JetStreamContext {
	if di.js == nil {
		cfg := di.Config()
		js, err := natsq.NewJetStream(di.NATSConn(ctx), &nats.StreamConfig{
			Name:      cfg.NATS.Stream,
			Subjects:  []string{cfg.NATS.Subject},
			Storage:   nats.FileStorage,
			Retention: nats.WorkQueuePolicy,
			Replicas:  1,
			MaxAge:    cfg.TaskTTL,
		})
		if err != nil {
			log.Fatalf("DI JetStream: %+v", err)
		}

		di.js = js
	}
	return di.js
}

func (di *dependencyInjector) Inflight() *queue.Inflight {
	if di.inflight == nil {
		di.inflight = queue.NewInflight()
	}
	return di.inflight
}

func (di *dependencyInjector) Executor(ctx context.Context) *mining.Executor {
	if di.executor == nil {
		var opts []mining.ExecutorOption
		if a := di.Archiver(ctx); a != nil {
			opts = append(opts, mining.WithArchiver(a))
		}
		di.executor = mining.NewExecutor(
			di.TaskStore(ctx),
			algorithm.NewRegistry(),
			mining.DefaultCatalog(),
			di.RowSource(ctx),
			opts...,
		)
	}
	return di.executor
}

func (di *dependencyInjector) Reaper(ctx context.Context) *mining.Reaper {
	if di.reaper == nil {
		cfg := di.Config()
		var cleaner mining.ArchiveCleaner
		if a := di.ArchiveStore(ctx); a != nil {
			cleaner = a
		}
		di.reaper = mining.NewReaper(di.TaskStore(ctx), cleaner, cfg.TaskTTL, cfg.CleanupInterval)
	}
	return di.reaper
}

func (di *dependencyInjector) Miner(ctx context.Context) Miner {
	if di.miner == nil {
		cfg := di.Config()
		di.miner = miner.New(
			miner.Config{
				Stream:  cfg.NATS.Stream,
				Subject: cfg.NATS.Subject,
				Durable: cfg.NATS.Durable,
				Workers: cfg.PoolSize,
				AckWait: cfg.AckWait,
			},
			di.JetStream(ctx),
			di.Executor(ctx),
			di.Inflight(),
		)
	}
	return di.miner
}

// Close releases the connections opened so far.
func (di *dependencyInjector) Close() {
	if di.natsConn != nil {
		if err := di.natsConn.Drain(); err != nil {
			slog.Warn("drain nats", slog.String("error", err.Error()))
		}
	}
	if di.redis != nil {
		if err := di.redis.Close(); err != nil {
			slog.Warn("close redis", slog.String("error", err.Error()))
		}
	}
	if di.db != nil {
		if sqlDB, err := di.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				slog.Warn("close database", slog.String("error", err.Error()))
			}
		}
	}
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
