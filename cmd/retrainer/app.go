package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/retrainer/internal/batch"
	"github.com/kiranshivaraju/retrainer/internal/blobstore"
	"github.com/kiranshivaraju/retrainer/internal/cache"
	"github.com/kiranshivaraju/retrainer/internal/config"
	"github.com/kiranshivaraju/retrainer/internal/metrics"
	"github.com/kiranshivaraju/retrainer/internal/results"
	"github.com/kiranshivaraju/retrainer/internal/retrain"
	"github.com/kiranshivaraju/retrainer/internal/store"
	"github.com/kiranshivaraju/retrainer/pkg/models"
	"github.com/spf13/cobra"
)

const migrationsDir = "migrations"

// app holds the collaborators shared by every command.
type app struct {
	cfg     *config.Config
	bucket  blobstore.Bucket
	results *results.Store
	jobs    batch.Client
	cache   cache.Cache
	store   store.Store
	metrics *metrics.Collector

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.NewCollector()}

	bucket, err := blobstore.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.bucket = bucket
	a.results = results.New(bucket, cfg.ConnectionString(), cfg.Storage.ResultPrefix)
	slog.Debug("storage ready", "backend", cfg.Storage.Backend, "container", bucket.Name())

	a.jobs = batch.NewHTTPClient(batch.Options{
		URL:              cfg.Training.URL,
		Key:              cfg.Training.Key,
		Container:        cfg.Storage.Container,
		ConnectionString: cfg.ConnectionString(),
		QueryParameter:   cfg.Training.QueryParameter,
		Timeout:          cfg.Training.Timeout,
	})

	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("create redis cache: %w", err)
		}
		if err := redisCache.Ping(ctx); err != nil {
			redisCache.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.cache = redisCache
		a.closers = append(a.closers, func() { redisCache.Close() })
		slog.Debug("redis connected")
	} else {
		a.cache = cache.NewLocalCache()
	}

	if cfg.Database.URL != "" {
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		if err := store.RunMigrations(cfg.Database.URL, migrationsDir); err != nil {
			a.close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.store = store.NewPostgresStore(pool)
		slog.Debug("run ledger ready")
	}

	return a, nil
}

func (a *app) service() *retrain.Service {
	return retrain.NewService(a.results, a.jobs, a.store, a.cache, a.metrics,
		retrain.PolicyFromConfig(a.cfg.Poll), []models.PublishEndpoint{a.cfg.PrimaryEndpoint()})
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// withApp loads configuration, wires an app and runs fn with it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	return fn(ctx, a)
}
