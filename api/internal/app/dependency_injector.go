package app

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/you-humble/ubattery/api/internal/infra/config"
	"github.com/you-humble/ubattery/api/internal/transport"
	"github.com/you-humble/ubattery/api/internal/usecase"
	"github.com/you-humble/ubattery/core/cache"
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

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const cfgPath = "./api/configs/local.yaml"

type Router interface {
	MountRoutes(*http.ServeMux) *http.ServeMux
}

type TaskStore interface {
	mining.TaskStore
	mining.RetentionStore
}

type ArchiveStore interface {
	archive.Storage
	mining.ArchiveCleaner
	usecase.Archive
}

type dependencyInjector struct {
	cfg    *config.Config
	logger *slog.Logger

	redis     *redis.Client
	taskStore TaskStore

	db        *gorm.DB
	rowSource mining.RowSource
	sampler   usecase.Sampler

	archiveStore ArchiveStore
	archiver     *archive.Archiver

	natsConn *nats.Conn
	js       nats.JetStreamContext

	catalog   *mining.Catalog
	registry  *mining.Registry
	executor  *mining.Executor
	local     *queue.Local
	scheduler *mining.Scheduler
	reaper    *mining.Reaper

	resultCache *cache.ResultCache

	usecase transport.Usecase
	handler transport.Handler
	router  Router
}

func newDI() *dependencyInjector {
	return &dependencyInjector{}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		path := cfgPath
		if p := os.Getenv("UBATTERY_API_CONFIG"); p != "" {
			path = p
		}
		di.cfg = config.MustLoad(path)
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel(di.Config().LogLevel),
		}))
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

// Sampler is nil when no database is configured.
func (di *dependencyInjector) Sampler(ctx context.Context) usecase.Sampler {
	if di.Config().Database.Driver == "" {
		return nil
	}

	if di.sampler == nil {
		di.sampler = rowstore.NewGormRowSource(di.DB(ctx), di.Config().RowLimit)
	}
	return di.sampler
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

func (di *dependencyInjector) Catalog() *mining.Catalog {
	if di.catalog == nil {
		di.catalog = mining.DefaultCatalog()
	}
	return di.catalog
}

func (di *dependencyInjector) Registry() *mining.Registry {
	if di.registry == nil {
		di.registry = algorithm.NewRegistry()
	}
	return di.registry
}

func (di *dependencyInjector) Executor(ctx context.Context) *mining.Executor {
	if di.executor == nil {
		var opts []mining.ExecutorOption
		if a := di.Archiver(ctx); a != nil {
			opts = append(opts, mining.WithArchiver(a))
		}
		di.executor = mining.NewExecutor(
			di.TaskStore(ctx),
			di.Registry(),
			di.Catalog(),
			di.RowSource(ctx),
			opts...,
		)
	}
	return di.executor
}

// LocalQueue is nil unless queue.driver is local.
func (di *dependencyInjector) LocalQueue(ctx context.Context) *queue.Local {
	cfg := di.Config()
	if cfg.Queue.Driver != config.DriverLocal {
		return nil
	}

	if di.local == nil {
		di.local = queue.NewLocal(di.Executor(ctx), cfg.QueueCapacity, cfg.PoolSize)
	}
	return di.local
}

func (di *dependencyInjector) Scheduler(ctx context.Context) *mining.Scheduler {
	if di.scheduler == nil {
		var (
			q           mining.TaskQueue
			interrupter mining.Interrupter
		)
		switch cfg := di.Config(); cfg.Queue.Driver {
		case config.DriverNATS:
			q = queue.NewJetStream(di.JetStream(ctx), cfg.NATS.Subject)
			interrupter = queue.NewBroadcaster(di.NATSConn(ctx), cfg.NATS.InterruptSubject)
		default:
			local := di.LocalQueue(ctx)
			q, interrupter = local, local
		}

		var opts []mining.SchedulerOption
		if a := di.ArchiveStore(ctx); a != nil {
			opts = append(opts, mining.WithArchive(a))
		}

		di.scheduler = mining.NewScheduler(
			di.TaskStore(ctx),
			di.Registry(),
			di.Catalog(),
			q,
			interrupter,
			opts...,
		)
		di.Logger().Info("scheduler ready", slog.String("queue_driver", di.Config().Queue.Driver))
	}
	return di.scheduler
}

// Reaper runs in the api only with the local driver; the miner owns it
// otherwise.
func (di *dependencyInjector) Reaper(ctx context.Context) *mining.Reaper {
	cfg := di.Config()
	if cfg.Queue.Driver != config.DriverLocal {
		return nil
	}

	if di.reaper == nil {
		var cleaner mining.ArchiveCleaner
		if a := di.ArchiveStore(ctx); a != nil {
			cleaner = a
		}
		di.reaper = mining.NewReaper(di.TaskStore(ctx), cleaner, cfg.TaskTTL, cfg.CleanupInterval)
	}
	return di.reaper
}

func (di *dependencyInjector) ResultCache() *cache.ResultCache {
	if di.resultCache == nil {
		cfg := di.Config().Cache
		di.resultCache = cache.NewResultCache(cfg.Size, cfg.TTL)
	}
	return di.resultCache
}

func (di *dependencyInjector) Usecase(ctx context.Context) transport.Usecase {
	if di.usecase == nil {
		var a usecase.Archive
		if s := di.ArchiveStore(ctx); s != nil {
			a = s
		}
		di.usecase = usecase.New(
			di.Scheduler(ctx),
			di.ResultCache(),
			di.Catalog(),
			a,
			di.Sampler(ctx),
		)
	}

	return di.usecase
}

func (di *dependencyInjector) Handler(ctx context.Context) transport.Handler {
	if di.handler == nil {
		di.handler = transport.NewHandler(di.Usecase(ctx))
	}

	return di.handler
}

func (di *dependencyInjector) Router(ctx context.Context) Router {
	if di.router == nil {
		di.router = transport.NewRouter(di.Handler(ctx), transport.Auth(di.Config().Auth.Secret))
	}

	return di.router
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
