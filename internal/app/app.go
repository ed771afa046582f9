// Package app wires configuration, infrastructure clients, repositories and
// services into one container shared by the API server and the admin CLI.
package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/moracollect-api/internal/repository"
	"github.com/noah-isme/moracollect-api/internal/service"
	"github.com/noah-isme/moracollect-api/pkg/cache"
	"github.com/noah-isme/moracollect-api/pkg/config"
	"github.com/noah-isme/moracollect-api/pkg/database"
	"github.com/noah-isme/moracollect-api/pkg/storage"
)

// Repos groups the postgres-backed repositories.
type Repos struct {
	Store        *repository.ContributionStore
	Catalog      *repository.CatalogRepository
	Aggregates   *repository.AggregateRepository
	Snapshots    *repository.SnapshotRepository
	Submissions  *repository.SubmissionRepository
	Contributors *repository.ContributorRepository
}

// Services groups the domain services.
type Services struct {
	Metrics      *service.MetricsService
	Cache        *service.CacheService
	Identity     *service.IdentityService
	Snapshots    *service.SnapshotService
	Registration *service.RegistrationService
	Deletion     *service.DeletionService
	Mirror       *service.MirrorService
	Profiles     *service.ProfileService
	Leaderboard  *service.LeaderboardService
	Catalog      *service.CatalogService
	Backfill     *service.BackfillService
	StatsExport  *service.StatsExportService
	OrphanGC     *service.OrphanGCService
}

// App owns every long-lived client. Close releases them.
type App struct {
	Cfg      *config.Config
	Log      *zap.Logger
	DB       *sqlx.DB
	Redis    *redis.Client
	Blobs    storage.BlobStore
	Repos    Repos
	Services Services

	closers []func() error
}

// New connects to postgres, redis (when the edge cache is enabled) and the
// configured blob store, then wires repositories and services.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Cfg: cfg, Log: log}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	if cfg.Snapshots.EdgeCacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			// The edge cache is an optimisation; listings fall back to postgres.
			log.Warn("redis unavailable, snapshot edge cache disabled", zap.Error(err))
		} else {
			a.Redis = client
			a.closers = append(a.closers, client.Close)
		}
	}

	blobs, err := newBlobStore(ctx, cfg.Storage)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("init blob store: %w", err)
	}
	a.Blobs = blobs
	if closer, ok := blobs.(interface{ Close() error }); ok {
		a.closers = append(a.closers, closer.Close)
	}

	metrics := service.NewMetricsService()
	a.Repos = wireRepos(db, cfg, log, metrics)
	a.Services = wireServices(a, metrics)
	return a, nil
}

func newBlobStore(ctx context.Context, cfg config.StorageConfig) (storage.BlobStore, error) {
	switch cfg.Backend {
	case config.StorageBackendGCS:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("STORAGE_BUCKET is required for the gcs backend")
		}
		return storage.NewGCSStore(ctx, cfg.Bucket, cfg.Timeout)
	case config.StorageBackendLocal, "":
		return storage.NewLocalStore(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func wireRepos(db *sqlx.DB, cfg *config.Config, log *zap.Logger, metrics *service.MetricsService) Repos {
	observer := func(attempt int, err error) {
		metrics.RecordTxRetry()
		log.Warn("retrying contribution transaction", zap.Int("attempt", attempt), zap.Error(err))
	}
	return Repos{
		Store:        repository.NewContributionStore(db, cfg.Transactions, observer),
		Catalog:      repository.NewCatalogRepository(db),
		Aggregates:   repository.NewAggregateRepository(db),
		Snapshots:    repository.NewSnapshotRepository(db),
		Submissions:  repository.NewSubmissionRepository(db),
		Contributors: repository.NewContributorRepository(db),
	}
}

func wireServices(a *App, metrics *service.MetricsService) Services {
	cfg, log, repos := a.Cfg, a.Log, a.Repos
	validate := validator.New()

	var cacheRepo service.CacheRepository
	if a.Redis != nil {
		cacheRepo = repository.NewCacheRepository(a.Redis, log)
	}
	edge := service.NewCacheService(cacheRepo, metrics, cfg.Snapshots.EdgeCacheTTL, log, a.Redis != nil)

	snapshots := service.NewSnapshotService(repos.Store, repos.Snapshots, repos.Aggregates, edge, metrics, log, cfg.Snapshots.RebuildConcurrency)

	return Services{
		Metrics: metrics,
		Cache:   edge,
		Identity: service.NewIdentityService(service.IdentityConfig{
			Secret:   cfg.Auth.Secret,
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
		}),
		Snapshots: snapshots,
		Registration: service.NewRegistrationService(repos.Store, repos.Catalog, a.Blobs, snapshots, validate, metrics, log, service.RegistrationConfig{
			RawPrefix:              cfg.Storage.RawPrefix,
			AllowedExtensions:      cfg.Submissions.AllowedExtensions,
			AllowedMIMETypes:       cfg.Submissions.AllowedMIMETypes,
			MaxBytes:               cfg.Submissions.MaxBytes,
			MaxDurationMs:          cfg.Submissions.MaxDurationMs,
			ClientMetadataMaxBytes: cfg.Submissions.ClientMetadataMaxBytes,
		}),
		Deletion:    service.NewDeletionService(repos.Store, a.Blobs, snapshots, metrics, log, cfg.Storage.DerivedPrefixes),
		Mirror:      service.NewMirrorService(repos.Submissions, cfg.Submissions.SelfListDefaultLimit, cfg.Submissions.SelfListMaxLimit),
		Profiles:    service.NewProfileService(repos.Contributors, validate),
		Leaderboard: service.NewLeaderboardService(repos.Contributors, log, cfg.Leaderboard.DefaultLimit, cfg.Leaderboard.MaxLimit),
		Catalog:     service.NewCatalogService(repos.Catalog, snapshots, log),
		Backfill:    service.NewBackfillService(repos.Submissions, repos.Contributors, log, cfg.Maintenance.BackfillBatchSize),
		StatsExport: service.NewStatsExportService(repos.Aggregates),
		OrphanGC: service.NewOrphanGCService(a.Blobs, repos.Submissions, log, service.OrphanGCConfig{
			RawPrefix:       cfg.Storage.RawPrefix,
			DerivedPrefixes: cfg.Storage.DerivedPrefixes,
			GracePeriod:     cfg.Maintenance.OrphanGracePeriod,
			Concurrency:     cfg.Maintenance.OrphanGCConcurrency,
		}),
	}
}

// Close releases clients in reverse order of acquisition.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
