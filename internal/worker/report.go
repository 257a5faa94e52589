// Package worker runs the background jobs of the service.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fidus-platform/fidus/internal/snapshot"
)

// SnapshotGenerator defines the interface for generating snapshots.
type SnapshotGenerator interface {
	Generate(ctx context.Context, date time.Time) (snapshot.Report, error)
}

// AfterSnapshotHook is called after each successful snapshot generation.
type AfterSnapshotHook interface {
	Export(ctx context.Context, report snapshot.Report) error
}

// Hooks runs several hooks in order. Every hook is attempted; errors are joined.
type Hooks []AfterSnapshotHook

func (h Hooks) Export(ctx context.Context, report snapshot.Report) error {
	var errs []error
	for _, hook := range h {
		if err := hook.Export(ctx, report); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", hook, err))
		}
	}
	return errors.Join(errs...)
}

// ReportWorker generates the daily P&L snapshot on a cron schedule.
type ReportWorker struct {
	generator SnapshotGenerator
	schedule  cron.Schedule
	hook      AfterSnapshotHook // optional
	now       func() time.Time
}

// NewReportWorker creates a new ReportWorker with an optional post-generation hook.
func NewReportWorker(generator SnapshotGenerator, schedule cron.Schedule, hook AfterSnapshotHook) *ReportWorker {
	if generator == nil {
		panic("worker.NewReportWorker: generator is nil")
	}
	if schedule == nil {
		panic("worker.NewReportWorker: schedule is nil")
	}
	return &ReportWorker{
		generator: generator,
		schedule:  schedule,
		hook:      hook,
		now:       time.Now,
	}
}

// runHook calls the post-generation hook if one is configured.
func (w *ReportWorker) runHook(ctx context.Context, report snapshot.Report) {
	if w.hook == nil {
		return
	}
	if err := w.hook.Export(ctx, report); err != nil {
		slog.Error("ReportWorker: export hook failed", "error", err)
	} else {
		slog.Info("ReportWorker: export hook completed")
	}
}

func (w *ReportWorker) generate(ctx context.Context, phase string) {
	report, err := w.generator.Generate(ctx, w.now().UTC())
	if err != nil {
		slog.Error("ReportWorker: "+phase+" generation failed", "error", err)
		return
	}
	slog.Info("ReportWorker: "+phase+" generation completed",
		"id", report.ID,
		"totalPnl", report.Admin.Total.TruePnL.StringFixed(2),
		"warnings", len(report.Warnings),
	)
	w.runHook(ctx, report)
}

// Run starts the report worker loop. It blocks until the context is cancelled.
func (w *ReportWorker) Run(ctx context.Context) {
	slog.Info("ReportWorker: starting")

	// Generate immediately on startup
	w.generate(ctx, "initial")

	for {
		next := w.schedule.Next(w.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("ReportWorker: shutting down")
			return
		case <-timer.C:
			w.generate(ctx, "scheduled")
		}
	}
}
