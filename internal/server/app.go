// Package server wires the asset store: it selects metadata, blob and quota
// backends from the configuration, runs migrations and serves the HTTP API
// until a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/imgdrop/internal/logging"
	"github.com/dmitrijs2005/imgdrop/internal/server/blobstore"
	"github.com/dmitrijs2005/imgdrop/internal/server/config"
	"github.com/dmitrijs2005/imgdrop/internal/server/httpapi"
	"github.com/dmitrijs2005/imgdrop/internal/server/quota"
	"github.com/dmitrijs2005/imgdrop/internal/server/repositories/assets"
	"github.com/dmitrijs2005/imgdrop/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/imgdrop/internal/server/services"
)

// Seams for tests.
var (
	openDB     = repomanager.Open
	newS3Store = func(ctx context.Context, cfg blobstore.S3Config) (blobstore.Store, error) {
		s, err := blobstore.NewS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
	newRedisQuota = func(ctx context.Context, url string) (quota.Store, func() error, error) {
		s, err := quota.NewRedisStore(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	server  *httpapi.Server
	closers []func() error
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	app := &App{config: c, logger: logger}

	limits := services.Limits{MaxUploadBytes: c.MaxUploadBytes, QuotaBytes: c.QuotaBytes}

	blobs, err := app.initBlobs(ctx)
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	q, err := app.initQuota(ctx)
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("quota store init error: %w", err)
	}

	var svc *services.AssetService
	if c.DatabaseDSN == "" {
		logger.Info(ctx, "keeping asset metadata in memory")
		svc = services.NewMemoryAssetService(assets.NewMemoryRepository(), blobs, q, limits, logger)
	} else {
		db, rm, err := app.initDB(ctx)
		if err != nil {
			app.close(ctx)
			return nil, fmt.Errorf("db init error: %w", err)
		}
		svc = services.NewAssetService(db, rm, blobs, q, limits, logger)
	}

	app.server = httpapi.NewServer(httpapi.Options{
		Address:         c.ListenAddr,
		PublicURL:       c.PublicURL,
		Secret:          c.SecretKey,
		MaxUploadBytes:  c.MaxUploadBytes,
		RateLimit:       c.RateLimit,
		ShutdownTimeout: c.ShutdownTimeout,
	}, svc, logger)

	return app, nil
}

func (app *App) initDB(ctx context.Context) (*sql.DB, repomanager.RepositoryManager, error) {
	db, err := openDB(ctx, app.config.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	app.closers = append(app.closers, db.Close)

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, nil, err
	}
	return db, rm, nil
}

func (app *App) initBlobs(ctx context.Context) (blobstore.Store, error) {
	if app.config.S3BaseEndpoint == "" {
		app.logger.Info(ctx, "keeping blobs in memory")
		return blobstore.NewMemoryStore(), nil
	}
	return newS3Store(ctx, blobstore.S3Config{
		Endpoint: app.config.S3BaseEndpoint,
		Region:   app.config.S3Region,
		User:     app.config.S3RootUser,
		Password: app.config.S3RootPassword,
		Bucket:   app.config.S3Bucket,
	})
}

func (app *App) initQuota(ctx context.Context) (quota.Store, error) {
	if app.config.RedisURL == "" {
		return quota.NewMemoryStore(), nil
	}
	q, closeFn, err := newRedisQuota(ctx, app.config.RedisURL)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closeFn)
	return q, nil
}

func (app *App) close(ctx context.Context) {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Warn(ctx, "closing resource", "error", err)
		}
	}
	app.closers = nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// releases the backends.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info(ctx, "Shutting down...")
		return nil
	})

	err := g.Wait()
	app.close(context.WithoutCancel(ctx))
	return err
}
