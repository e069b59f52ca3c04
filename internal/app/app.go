// Package app wires configuration into a ready ledger service. The HTTP server and the
// ledgerctl command share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"kasirinaja/backoffice/internal/cache"
	"kasirinaja/backoffice/internal/config"
	"kasirinaja/backoffice/internal/ledger"
	"kasirinaja/backoffice/internal/locker"
	"kasirinaja/backoffice/internal/logger"
	"kasirinaja/backoffice/internal/report"
	"kasirinaja/backoffice/internal/service"
	"kasirinaja/backoffice/internal/store"
	"kasirinaja/backoffice/internal/store/memory"
	pgstore "kasirinaja/backoffice/internal/store/postgres"
)

type App struct {
	Service *service.Service
	Engine  *ledger.Engine
	Reports *report.Composer

	closers []func() error
}

// Build connects the configured backends. DATABASE_URL selects Postgres and a failing
// database is fatal; a failing Redis only downgrades to in-process cache and locks.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	log := logger.WithComponent("app")
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	tolerance, err := cfg.Tolerance()
	if err != nil {
		return nil, err
	}

	a := &App{}

	var repo store.Repository
	var pg *pgstore.Store
	if cfg.DatabaseURL != "" {
		pg, err = pgstore.New(ctx, cfg.DatabaseURL, logger.WithComponent("store"))
		if err != nil {
			return nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				_ = a.Close()
				return nil, err
			}
		}
		repo = pg
		log.Info().Msg("repository: postgres")
	} else {
		repo = memory.New()
		log.Info().Msg("repository: in-memory")
	}

	var redisClient *redis.Client
	reportCache := cache.Cache[report.Report](cache.NewMemory[report.Report]())
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedis[report.Report](client, "backoffice:report:")
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using in-process cache and locks")
			_ = client.Close()
		} else {
			redisClient = client
			reportCache = redisCache
			a.closers = append(a.closers, client.Close)
			log.Info().Msg("cache: redis")
		}
	}

	var locks locker.Locker
	switch {
	case redisClient != nil:
		locks = locker.NewRedis(redisClient, locker.RedisOptions{TTL: cfg.LockTTL()}, logger.WithComponent("locker"))
		log.Info().Msg("locks: redis")
	case pg != nil:
		locks = pgstore.NewAdvisoryLocker(pg.DB(), pgstore.AdvisoryOptions{Wait: cfg.LockTTL()}, logger.WithComponent("locker"))
		log.Info().Msg("locks: postgres advisory")
	default:
		locks = locker.NewKeyed()
		log.Info().Msg("locks: in-process")
	}

	a.Engine = ledger.NewEngine(repo, ledger.Options{
		Location:        loc,
		MaxLookbackDays: cfg.MaxLookbackDays,
		MaxRangeDays:    cfg.MaxRangeDays,
		Tolerance:       tolerance,
		Locker:          locks,
		Logger:          logger.WithComponent("ledger"),
	})
	a.Reports = report.NewComposer(a.Engine, repo, report.Options{
		Cache:    reportCache,
		CacheTTL: cfg.ReportCacheTTL(),
		Logger:   logger.WithComponent("report"),
	})
	a.Service = service.New(repo, a.Engine, a.Reports, service.Options{
		Logger: logger.WithComponent("service"),
	})
	return a, nil
}

// Close releases backends in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
