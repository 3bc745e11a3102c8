// Package server builds the application graph from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/frontier-crawler/internal/api"
	"github.com/JakeFAU/frontier-crawler/internal/clock/system"
	"github.com/JakeFAU/frontier-crawler/internal/config"
	"github.com/JakeFAU/frontier-crawler/internal/control"
	"github.com/JakeFAU/frontier-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/frontier-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/frontier-crawler/internal/linkextract"
	"github.com/JakeFAU/frontier-crawler/internal/logging"
	"github.com/JakeFAU/frontier-crawler/internal/metrics"
	"github.com/JakeFAU/frontier-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/frontier-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/frontier-crawler/internal/progress/sinks"
	"github.com/JakeFAU/frontier-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/frontier-crawler/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/frontier-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/frontier-crawler/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      crawler.FrontierStore
	hub        *progress.Hub
	controller *control.Controller
	apiServer  *api.Server
}

// Options customise Build. The zero value is what the CLI uses.
type Options struct {
	// Logger overrides the logger built from cfg.Logging.
	Logger *zap.Logger
	// Registerer receives the progress Prometheus collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Int("default_max_depth", cfg.Crawler.DefaultMaxDepth),
	)

	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.store = store

	app.hub, err = setupProgress(ctx, cfg, logger, opts.Registerer)
	if err != nil {
		app.closeStore()
		return nil, err
	}
	var emitter progress.Emitter = progress.Nop{}
	if app.hub != nil {
		emitter = app.hub
	}

	clock := system.New()
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgents:   cfg.Crawler.UserAgents,
		Timeout:      cfg.HTTP.Timeout(),
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	})
	throttle := ratelimit.New(ratelimit.Config{
		RPS:      cfg.RateLimit.RPS,
		Burst:    cfg.RateLimit.Burst,
		MinDelay: cfg.RateLimit.MinDelay(),
		MaxDelay: cfg.RateLimit.MaxDelay(),
	})
	logger.Info("politeness configured",
		zap.Float64("rps", cfg.RateLimit.RPS),
		zap.Int("burst", cfg.RateLimit.Burst),
		zap.Duration("min_delay", cfg.RateLimit.MinDelay()),
		zap.Duration("max_delay", cfg.RateLimit.MaxDelay()),
	)

	w := worker.New(store, fetcher, linkextract.New(), throttle, clock, emitter, logger)
	app.controller = control.New(store, w, emitter, clock, logger)
	app.apiServer = api.NewServer(app.controller, store, *cfg, logger)
	return app, nil
}

// OpenStore opens the frontier store selected by cfg.Storage.Backend.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (crawler.FrontierStore, error) {
	clock := system.New()
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory frontier; state is lost on exit")
		return memory.NewFrontierStore(clock), nil
	case config.BackendPostgres:
		store, err := pgstore.NewFrontierStore(ctx, pgstore.Config{
			DSN:             cfg.Storage.Postgres.DSN,
			Table:           cfg.Storage.Table,
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			MinConns:        cfg.Storage.Postgres.MinConns,
			MaxConnLifetime: time.Duration(cfg.Storage.Postgres.MaxConnLifetimeMinutes) * time.Minute,
		}, clock)
		if err != nil {
			return nil, fmt.Errorf("postgres frontier init failed: %w", err)
		}
		if err := preparePostgres(ctx, store); err != nil {
			return nil, err
		}
		logger.Info("postgres frontier ready", zap.String("table", cfg.Storage.Table))
		return store, nil
	default:
		store, err := sqlitestore.Open(ctx, sqlitestore.Config{
			Path:          cfg.Storage.SQLite.Path,
			Table:         cfg.Storage.Table,
			BusyTimeoutMS: cfg.Storage.SQLite.BusyTimeoutMs,
			DisableWAL:    cfg.Storage.SQLite.DisableWAL,
		}, clock)
		if err != nil {
			return nil, fmt.Errorf("sqlite frontier init failed: %w", err)
		}
		logger.Info("sqlite frontier ready",
			zap.String("path", cfg.Storage.SQLite.Path),
			zap.String("table", cfg.Storage.Table),
		)
		return store, nil
	}
}

// preparePostgres creates the frontier table, closing the store when that fails.
func preparePostgres(ctx context.Context, store *pgstore.FrontierStore) error {
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("postgres frontier init failed: %w", err)
	}
	return nil
}

//nolint:gocognit // one branch per optional sink
func setupProgress(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	reg prometheus.Registerer,
) (*progress.Hub, error) {
	pc := cfg.Progress
	var sinkList []progress.Sink
	closeAll := func() {
		for _, s := range sinkList {
			_ = s.Close(ctx)
		}
	}

	if pc.Log.Enabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(logger.Named("progress_log")))
	}
	if pc.Prometheus.Enabled {
		sink, err := progresssinks.NewPrometheusSink(reg)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("prometheus progress sink init failed: %w", err)
		}
		sinkList = append(sinkList, sink)
	}
	if pc.Kafka.Enabled {
		sink, err := progresssinks.NewKafkaSink(pc.Kafka.Brokers, pc.Kafka.Topic)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("kafka progress sink init failed: %w", err)
		}
		sinkList = append(sinkList, sink)
		logger.Info("kafka progress sink enabled", zap.Strings("brokers", pc.Kafka.Brokers), zap.String("topic", pc.Kafka.Topic))
	}
	if pc.PubSub.Enabled {
		sink, err := progresssinks.NewPubSubSink(ctx, pc.PubSub.ProjectID, pc.PubSub.TopicName)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("pubsub progress sink init failed: %w", err)
		}
		sinkList = append(sinkList, sink)
		logger.Info("Pub/Sub progress sink enabled",
			zap.String("project", pc.PubSub.ProjectID),
			zap.String("topic", pc.PubSub.TopicName),
		)
	}
	if pc.Redis.Enabled {
		sink, err := progresssinks.NewRedisSink(progresssinks.RedisConfig{
			Addr:     pc.Redis.Addr,
			Password: pc.Redis.Password,
			DB:       pc.Redis.DB,
			Prefix:   pc.Redis.Prefix,
			TTL:      time.Duration(pc.Redis.TTLSeconds) * time.Second,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("redis progress sink init failed: %w", err)
		}
		sinkList = append(sinkList, sink)
		logger.Info("redis progress sink enabled", zap.String("addr", pc.Redis.Addr))
	}
	if pc.Neo4j.Enabled {
		sink, err := progresssinks.NewGraphSink(ctx, progresssinks.GraphConfig{
			URI:      pc.Neo4j.URI,
			Username: pc.Neo4j.Username,
			Password: pc.Neo4j.Password,
			Database: pc.Neo4j.Database,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("neo4j progress sink init failed: %w", err)
		}
		sinkList = append(sinkList, sink)
		logger.Info("neo4j progress sink enabled", zap.String("uri", pc.Neo4j.URI))
	}

	if len(sinkList) == 0 {
		logger.Info("progress tracking disabled: no sinks configured")
		return nil, nil
	}
	hubCfg := progress.Config{
		BufferSize:     pc.BufferSize,
		MaxBatchEvents: pc.MaxBatchEvents,
		MaxBatchWait:   pc.MaxBatchWait(),
		SinkTimeout:    pc.SinkTimeout(),
		Logger:         logger.Named("progress_hub"),
	}
	hub := progress.NewHub(hubCfg, sinkList...)
	logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return hub, nil
}

// Controller exposes the run controller for the CLI.
func (a *App) Controller() *control.Controller {
	return a.controller
}

// Handler returns the admin HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run serves the admin API and blocks until the context is canceled or a
// termination signal arrives, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.shutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
		return nil
	})
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	return errors.Join(runErr, a.Close(shutdownCtx))
}

func (a *App) shutdownTimeout() time.Duration {
	if d := a.cfg.Server.ShutdownTimeout(); d > 0 {
		return d
	}
	return 10 * time.Second
}

// Close stops the worker, flushes progress events and closes the store. The
// order matters: the worker emits until it exits, and the hub must drain
// before the store goes away.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.controller != nil {
		if err := a.controller.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("controller shutdown: %w", err))
		}
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	a.closeStore()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeStore() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("frontier store close failed", zap.Error(err))
	}
	a.store = nil
}
