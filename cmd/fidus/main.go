package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/fidus-platform/fidus/internal/api"
	"github.com/fidus-platform/fidus/internal/config"
	"github.com/fidus-platform/fidus/internal/database"
	"github.com/fidus-platform/fidus/internal/worker"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cliApp := &cli.App{
		Name:  "fidus",
		Usage: "FIDUS P&L aggregation and reconciliation engine",
		Before: func(*cli.Context) error {
			setupLogging(os.Getenv("LOG_FORMAT"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and background workers",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply pending database migrations",
				Action: migrate,
			},
			{
				Name:  "report",
				Usage: "generate and export the P&L snapshot once",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "date",
						Usage: "snapshot date (YYYY-MM-DD), defaults to today",
					},
				},
				Action: report,
			},
		},
	}

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		slog.Error("fidus failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(format string) {
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	} else {
		handler = slog.NewTextHandler(os.Stderr, nil)
	}
	slog.SetDefault(slog.New(handler))
}

func migrate(c *cli.Context) error {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	pool, err := database.Connect(c.Context, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	return runMigrations(c.Context, pool)
}

func report(c *cli.Context) error {
	date := time.Now().UTC()
	if v := c.String("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", v, err)
		}
		date = d
	}

	a, err := newApp(c.Context, config.Load())
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.snapshots.Generate(c.Context, date)
	if err != nil {
		return err
	}
	slog.Info("report generated",
		"id", r.ID,
		"date", r.Date.Format(time.DateOnly),
		"totalPnl", r.Admin.Total.TruePnL.StringFixed(2),
		"warnings", len(r.Warnings),
	)
	return a.hooks.Export(c.Context, r)
}

func serve(c *cli.Context) error {
	ctx := c.Context
	cfg := config.Load()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := runMigrations(ctx, a.pool); err != nil {
		return err
	}

	if a.cache != nil {
		go worker.NewRefreshWorker(a.cache, cfg.AccountCacheTTL).Run(ctx)
	}
	slog.Info("report schedule", "cron", cfg.ReportScheduleSpec)
	go worker.NewReportWorker(a.snapshots, cfg.ReportSchedule, a.hooks).Run(ctx)

	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, generate endpoint is unprotected")
	}

	handler := api.NewHandler(a.calc, a.funds, a.analytics, a.snapshots, a.hooks)
	srv := api.NewServer(cfg.HTTPPort, handler, cfg.AdminAPIKey)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("HTTP server: %w", err)
	}
	slog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
	return nil
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migrations sub-fs: %w", err)
	}
	return database.RunMigrations(ctx, pool, sub)
}
