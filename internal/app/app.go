// Package app wires configuration, storage and the pricing engine into a
// runnable application shared by the API server and the CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/timmy/pricebook/internal/activity"
	"github.com/timmy/pricebook/internal/config"
	"github.com/timmy/pricebook/internal/logger"
	"github.com/timmy/pricebook/internal/observability"
	"github.com/timmy/pricebook/internal/repository"
	"github.com/timmy/pricebook/internal/service"
	"github.com/timmy/pricebook/internal/storage"
	"github.com/timmy/pricebook/internal/undo"
	"gorm.io/gorm"
)

// Repos groups the gorm repositories.
type Repos struct {
	Catalog  *repository.CatalogRepository
	Modes    *repository.ModeRepository
	Jobs     *repository.JobRepository
	Activity *repository.ActivityRepository
}

// App holds every long-lived component.
type App struct {
	Cfg      *config.Config
	DB       *gorm.DB
	SQL      *sql.DB
	Repos    Repos
	Pricing  *service.PricingService
	Importer *service.CatalogImporter

	closers []func(context.Context) error
}

// New connects to the database and the optional backends and builds the
// pricing service.
// Parameters:
//   - ctx: context for startup checks.
//   - cfg: loaded configuration.
// Returns:
//   - *App: wired application; call Close when done.
//   - error: non-nil if a configured backend is unreachable.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Cfg: cfg}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("init database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.DB, a.SQL = db, sqlDB
	a.closers = append(a.closers, func(context.Context) error { return sqlDB.Close() })

	a.Repos = Repos{
		Catalog:  repository.NewCatalogRepository(db),
		Modes:    repository.NewModeRepository(db),
		Jobs:     repository.NewJobRepository(db),
		Activity: repository.NewActivityRepository(db),
	}

	sink := a.activitySink()

	windows, err := a.undoStore()
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	archive, err := a.reportArchive(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	registry := service.NewModeRegistry(a.Repos.Modes, sink)
	if cfg.Pricing.SeedPresets {
		n, err := registry.SeedPresets(ctx)
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("seed presets: %w", err)
		}
		if n > 0 {
			logger.With(logger.Fields{logger.FieldCount: n}).Info(ctx, "Seeded preset pricing modes")
		}
	}

	preview := service.NewPreviewEngine(a.Repos.Catalog, &service.PreviewConfig{
		LookupChunkSize:   cfg.Pricing.LookupChunkSize,
		LookupConcurrency: cfg.Pricing.LookupConcurrency,
	})
	orch := service.NewOrchestrator(a.Repos.Jobs, a.Repos.Modes, a.Repos.Catalog, preview, sink, &service.OrchestratorConfig{
		WriteBatchSize:  cfg.Pricing.WriteBatchSize,
		StaleJobTimeout: cfg.Pricing.StaleJobTimeout,
	})
	var archiver service.ReportArchiver
	if archive != nil {
		archiver = archive
	}
	undoMgr := service.NewUndoManager(a.Repos.Catalog, windows, orch, archiver, cfg.Pricing.UndoWindow)
	a.Pricing = service.NewPricingService(registry, preview, orch, undoMgr, service.NewRunner())
	a.Importer = service.NewCatalogImporter(a.Repos.Catalog, cfg.Pricing.LookupChunkSize)
	return a, nil
}

func (a *App) activitySink() activity.Logger {
	sinks := activity.Multi{a.Repos.Activity}
	if a.Cfg.Activity.WebhookEnabled && a.Cfg.Activity.WebhookURL != "" {
		sinks = append(sinks, activity.NewWebhook(&activity.WebhookConfig{
			URL:     a.Cfg.Activity.WebhookURL,
			Token:   a.Cfg.Activity.WebhookToken,
			Timeout: a.Cfg.Activity.WebhookTimeout,
		}))
	}
	return sinks
}

func (a *App) undoStore() (undo.Store, error) {
	if !a.Cfg.Redis.Enabled {
		return undo.NewMemoryStore(), nil
	}
	store, err := undo.NewRedisStore(&undo.RedisConfig{
		Addr:      a.Cfg.Redis.Addr,
		Password:  a.Cfg.Redis.Password,
		DB:        a.Cfg.Redis.DB,
		KeyPrefix: a.Cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("init undo store: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	return store, nil
}

func (a *App) reportArchive(ctx context.Context) (*storage.ReportArchive, error) {
	sc := a.Cfg.Storage
	if !sc.Enabled {
		return nil, nil
	}
	objects, err := storage.NewS3Storage(&storage.S3Config{
		Type:      storage.StorageType(sc.Type),
		Endpoint:  sc.Endpoint,
		AccessKey: sc.AccessKey,
		SecretKey: sc.SecretKey,
		UseSSL:    sc.UseSSL,
		Bucket:    sc.Bucket,
		Region:    sc.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init report storage: %w", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure report bucket: %w", err)
	}
	return storage.NewReportArchive(objects, sc.Prefix), nil
}

// RecoverJobs resumes the unfinished jobs of every organization listed in
// pricing.recover_on_startup.
func (a *App) RecoverJobs(ctx context.Context) {
	for _, orgID := range a.Cfg.Pricing.RecoverOnStartup {
		orgCtx := logger.SetOrgID(ctx, orgID)
		if _, err := a.Pricing.RecoverActiveJobs(orgCtx, orgID); err != nil {
			logger.FromContext(orgCtx).WithError(err).Warn("Failed to recover pricing jobs")
		}
	}
}

// Close stops running jobs and releases every backend in reverse order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Pricing != nil {
		if err := a.Pricing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop jobs: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
