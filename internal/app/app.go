// Package app builds the long-lived services from configuration and runs
// them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-feeds/internal/api"
	"github.com/JakeFAU/paper-feeds/internal/apiclient"
	"github.com/JakeFAU/paper-feeds/internal/cache"
	"github.com/JakeFAU/paper-feeds/internal/clock/system"
	"github.com/JakeFAU/paper-feeds/internal/config"
	"github.com/JakeFAU/paper-feeds/internal/crossref"
	"github.com/JakeFAU/paper-feeds/internal/dispatcher"
	"github.com/JakeFAU/paper-feeds/internal/feeds"
	"github.com/JakeFAU/paper-feeds/internal/id/uuid"
	"github.com/JakeFAU/paper-feeds/internal/metrics"
	"github.com/JakeFAU/paper-feeds/internal/openalex"
	"github.com/JakeFAU/paper-feeds/internal/pipeline"
	queueMemory "github.com/JakeFAU/paper-feeds/internal/queue/memory"
	"github.com/JakeFAU/paper-feeds/internal/rss"
	"github.com/JakeFAU/paper-feeds/internal/scheduler"
	"github.com/JakeFAU/paper-feeds/internal/storage/memory"
	"github.com/JakeFAU/paper-feeds/internal/storage/postgres"
	"github.com/JakeFAU/paper-feeds/internal/worker"
)

// MemoryDSN selects the in-process store instead of Postgres.
const MemoryDSN = "memory://"

const (
	shutdownTimeout = 10 * time.Second
	workerRetries   = 2
	retryBackoff    = 5 * time.Second
)

// App holds all the shared, long-lived services for the application.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Store      feeds.Store
	Service    *pipeline.Service
	Queue      *queueMemory.Queue
	Dispatcher *dispatcher.Dispatcher
	Scheduler  *scheduler.Scheduler
	Server     *api.Server

	redis *redis.Client
}

// OpenStore connects the configured store. Postgres schemas are checked with
// EnsureSchema so an empty database is migrated and an outdated one is refused.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (feeds.Store, error) {
	if strings.HasPrefix(cfg.DB.DSN, MemoryDSN) {
		logger.Warn("using in-memory store, data is lost on exit")
		return memory.NewStore(), nil
	}
	pg, err := OpenPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}
	applied, err := pg.EnsureSchema(ctx)
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("check schema: %w", err)
	}
	for _, m := range applied {
		logger.Info("applied migration", zap.Int("version", m.Version), zap.String("name", m.Name))
	}
	return pg, nil
}

// OpenPostgres opens the Postgres pool without touching the schema.
func OpenPostgres(ctx context.Context, cfg config.Config) (*postgres.Store, error) {
	pg, err := postgres.Open(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return pg, nil
}

// NewService builds the journal and paper pipeline on top of store. Fetch
// jobs go to queue; the returned redis client is nil when caching is off.
func NewService(cfg config.Config, store feeds.Store, queue pipeline.Enqueuer, logger *zap.Logger) (*pipeline.Service, *redis.Client, error) {
	crossrefAPI, err := apiclient.New(apiclient.Config{
		Name:              "crossref",
		BaseURL:           cfg.Crossref.BaseURL,
		UserAgent:         cfg.API.UserAgent,
		Email:             cfg.API.Email,
		Timeout:           cfg.RequestTimeout(),
		RequestsPerSecond: cfg.Crossref.RequestsPerSecond,
		Observer:          metrics.ObserveUpstream,
		OnDelay:           metrics.ObserveRateLimitDelay,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("crossref client: %w", err)
	}
	openalexAPI, err := apiclient.New(apiclient.Config{
		Name:              "openalex",
		BaseURL:           cfg.OpenAlex.BaseURL,
		UserAgent:         cfg.API.UserAgent,
		Email:             cfg.API.Email,
		Timeout:           cfg.RequestTimeout(),
		RequestsPerSecond: cfg.OpenAlex.RequestsPerSecond,
		Observer:          metrics.ObserveUpstream,
		OnDelay:           metrics.ObserveRateLimitDelay,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("openalex client: %w", err)
	}

	var (
		searchCache cache.SearchCache = cache.Noop{}
		rdb         *redis.Client
	)
	if cfg.Cache.RedisAddr != "" {
		searchCache, rdb = cache.NewRedis(cfg.Cache.RedisAddr, cfg.CacheTTL())
		logger.Info("search cache enabled", zap.String("redis_addr", cfg.Cache.RedisAddr))
	}

	svc := pipeline.New(pipeline.Deps{
		Store:     store,
		Crossref:  crossref.New(crossrefAPI, logger),
		Homepages: openalex.New(openalexAPI, cfg.OpenAlex.BatchSize, logger),
		Cache:     searchCache,
		Queue:     queue,
		Clock:     system.New(),
		IDs:       uuid.New(),
	}, pipeline.Config{
		PageRows:     cfg.Fetch.PageRows,
		DefaultLimit: cfg.Fetch.Limit,
	}, logger)
	return svc, rdb, nil
}

// New wires every component for the serve command.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewWithStore(cfg, store, logger)
}

// NewWithStore wires every component around an already opened store.
func NewWithStore(cfg config.Config, store feeds.Store, logger *zap.Logger) (*App, error) {
	metrics.Init()

	queue := queueMemory.NewQueue(cfg.Fetch.QueueDepth)
	dispatch := dispatcher.New(queue, nil)

	svc, rdb, err := NewService(cfg, store, dispatch, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	clock := system.New()
	for i := 0; i < cfg.Fetch.Concurrency; i++ {
		dispatch.AddWorkers(worker.New(
			queue,
			svc,
			store,
			clock,
			worker.Config{MaxRetries: workerRetries, RetryBackoffBase: retryBackoff},
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}

	var sched *scheduler.Scheduler
	if cfg.Schedule.Enabled {
		sched, err = scheduler.New(cfg.Schedule.RefreshCron, svc, logger)
		if err != nil {
			store.Close()
			if rdb != nil {
				_ = rdb.Close()
			}
			return nil, err
		}
	}

	server := api.NewServer(api.Deps{
		Service: svc,
		Store:   store,
		Feeds:   rss.New(cfg.Server.PublicURL, cfg.RSS.ItemLimit, store),
		Logger:  logger,
	}, api.Options{})

	return &App{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Service:    svc,
		Queue:      queue,
		Dispatcher: dispatch,
		Scheduler:  sched,
		Server:     server,
		redis:      rdb,
	}, nil
}

// Run starts the dispatcher, the scheduler and the HTTP server and blocks
// until ctx is canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           a.Server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	background := make(chan struct{})
	go func() {
		defer close(background)
		done := make(chan struct{})
		go func() {
			defer close(done)
			a.Logger.Info("dispatcher started", zap.Int("workers", a.Config.Fetch.Concurrency))
			a.Dispatcher.Run(ctx)
		}()
		if a.Scheduler != nil {
			a.Scheduler.Run(ctx)
		}
		<-done
	}()

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info("http server started", zap.Int("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("http server: %w", err)
			stop()
			return
		}
		serveErr <- nil
	}()

	<-ctx.Done()
	a.Logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("server shutdown error", zap.Error(err))
	}
	a.Queue.Close()
	<-background
	a.Logger.Info("shutdown complete")
	return <-serveErr
}

// Close releases the store and cache connections.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("close redis", zap.Error(err))
		}
	}
	a.Store.Close()
}
