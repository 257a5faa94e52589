package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fidus-platform/fidus/internal/analytics"
	"github.com/fidus-platform/fidus/internal/config"
	"github.com/fidus-platform/fidus/internal/database"
	"github.com/fidus-platform/fidus/internal/deals"
	"github.com/fidus-platform/fidus/internal/export"
	"github.com/fidus-platform/fidus/internal/fund"
	"github.com/fidus-platform/fidus/internal/metrics"
	"github.com/fidus-platform/fidus/internal/pnl"
	"github.com/fidus-platform/fidus/internal/snapshot"
	"github.com/fidus-platform/fidus/internal/store"
	"github.com/fidus-platform/fidus/internal/worker"
)

// app holds the wired services shared by the commands.
type app struct {
	pool      *pgxpool.Pool
	cache     *store.CachedSource // nil without REDIS_URL
	calc      *pnl.Calculator
	funds     *fund.Service
	analytics *analytics.Service
	snapshots *snapshot.Service
	hooks     worker.Hooks
	closers   []func()
}

func newApp(ctx context.Context, cfg config.Config) (_ *app, err error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)

	source, investments, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("pinging redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.cache = store.NewCachedSource(source, rdb, cfg.AccountCacheTTL)
		source = a.cache
	}

	reducer := deals.NewReducer(cfg.RebateRatePerLot)
	if cfg.RebateRatePerLot == nil {
		slog.Warn("REBATE_RATE_PER_LOT not set, rebate calculations will fail")
	}

	a.calc = pnl.NewCalculator(source, reducer)
	a.funds = fund.NewService(investments, a.calc, cfg.Terms)
	a.analytics = analytics.NewService(source, reducer)
	a.snapshots = snapshot.NewService(a.calc, snapshot.NewPgRepository(pool), a.funds)

	a.hooks = worker.Hooks{metrics.NewService()}
	writers, err := exportWriters(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if len(writers) > 0 {
		a.hooks = append(a.hooks, export.NewService(a.snapshots, writers...))
	}
	return a, nil
}

// openStore connects the configured account and deal backend.
func (a *app) openStore(ctx context.Context, cfg config.Config) (store.Source, store.InvestmentSource, error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		client, err := store.ConnectMongo(ctx, cfg.MongoURL)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				slog.Warn("mongodb disconnect failed", "error", err)
			}
		})
		s := store.NewMongoStore(client.Database(cfg.MongoDB), cfg.BrokerLocation)
		slog.Info("using mongodb store", "db", cfg.MongoDB)
		return s, s, nil
	case config.BackendPostgres:
		s := store.NewPgStore(a.pool)
		slog.Info("using postgres store")
		return s, s, nil
	default:
		slog.Warn("using empty in-memory store")
		s := store.NewMemoryStore()
		return s, s, nil
	}
}

func exportWriters(ctx context.Context, cfg config.Config) ([]export.SheetWriter, error) {
	var writers []export.SheetWriter
	if cfg.ExportDir != "" {
		writers = append(writers, export.NewXLSXWriter(cfg.ExportDir))
	}
	if cfg.GoogleSheetsID != "" && cfg.GoogleCredentialsJSON != "" {
		w, err := export.NewSheetsWriter(ctx, cfg.GoogleSheetsID, cfg.GoogleCredentialsJSON)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	return writers, nil
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
