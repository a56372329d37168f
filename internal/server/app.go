// Package server initializes and runs the SecureBox server: it wires the
// three storage tiers, the lifecycle services, the background reconciler and
// the HTTP surface, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/securebox/internal/cryptox"
	"github.com/dmitrijs2005/securebox/internal/logging"
	"github.com/dmitrijs2005/securebox/internal/server/blob"
	"github.com/dmitrijs2005/securebox/internal/server/config"
	"github.com/dmitrijs2005/securebox/internal/server/gateway"
	"github.com/dmitrijs2005/securebox/internal/server/httpapi"
	"github.com/dmitrijs2005/securebox/internal/server/notify"
	"github.com/dmitrijs2005/securebox/internal/server/reconciler"
	"github.com/dmitrijs2005/securebox/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/securebox/internal/server/stats"
	"github.com/dmitrijs2005/securebox/internal/server/storage"
	"github.com/dmitrijs2005/securebox/internal/server/tokencache"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	cache      *tokencache.RedisCache
	httpServer *httpapi.Server
	runner     *reconciler.Runner
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewDefault()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	cache := tokencache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	blobs, err := blob.NewS3Store(ctx, blob.S3Config{
		RootUser:     cfg.S3RootUser,
		RootPassword: cfg.S3RootPassword,
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	store := storage.NewService(db, repos, blobs, cache, logger, storage.Options{
		DownloadedRetention: cfg.DownloadedRetention,
		OrphanGraceWindow:   cfg.OrphanGraceWindow,
	})

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.WebhookURL, 5*time.Second)
	}

	gw := gateway.NewService(store, cache, cryptox.NewAESGCM(), notifier, logger, gateway.Limits{
		MaxFileSize:        int64(cfg.MaxFileSizeMB) << 20,
		MaxExpiryHours:     cfg.MaxExpiryHours,
		DefaultExpiryHours: cfg.DefaultExpiryHours,
	})

	aggregator := stats.NewAggregator(store, cache, logger, cfg.StatsInterval)

	runner := reconciler.NewRunner(logger,
		reconciler.Task{
			Name:     "cleanup_expired",
			Interval: cfg.CleanupExpiredInterval,
			Run: func(ctx context.Context) error {
				_, err := store.CleanupExpired(ctx)
				return err
			},
		},
		reconciler.Task{
			Name:     "cleanup_downloaded",
			Interval: cfg.CleanupDownloadedInterval,
			Run: func(ctx context.Context) error {
				_, err := store.CleanupDownloaded(ctx)
				return err
			},
		},
		reconciler.Task{
			Name:     "orphan_sweep",
			Interval: cfg.OrphanSweepInterval,
			Run: func(ctx context.Context) error {
				_, err := store.OrphanSweep(ctx)
				return err
			},
		},
		reconciler.Task{
			Name:     "generate_usage_stats",
			Interval: cfg.StatsInterval,
			Run: func(ctx context.Context) error {
				_, err := aggregator.Recompute(ctx)
				return err
			},
		},
	)

	auth := httpapi.NewJWTManager(cfg.SecretKey, cfg.JWTValidityDuration)
	handlers := httpapi.NewHandlers(gw, aggregator, auth, logger,
		int64(cfg.MaxFileSizeMB)<<20+1<<20,
		map[string]httpapi.Pinger{
			"database": store.PingDB,
			"cache":    cache.Ping,
			"blob": func(ctx context.Context) error {
				_, err := blobs.List(ctx)
				return err
			},
		})
	httpServer := httpapi.NewServer(cfg.EndpointAddrHTTP, handlers, logger)

	return &App{
		config:     cfg,
		logger:     logger,
		db:         db,
		cache:      cache,
		httpServer: httpServer,
		runner:     runner,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app", "addr", app.config.EndpointAddrHTTP)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.httpServer.Run(ctx); err != nil {
			app.logger.Error(ctx, "http server error", "error", err)
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runner.Run(ctx)
	}()

	wg.Wait()

	if err := app.cache.Close(); err != nil {
		app.logger.Warn(ctx, "cache close error", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "app stopped")
}
