// Package snapshot generates and stores the daily P&L report.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fidus-platform/fidus/internal/domain"
	"github.com/fidus-platform/fidus/internal/fund"
)

// PnLService produces the admin P&L view.
type PnLService interface {
	AdminView(ctx context.Context) (domain.AdminView, error)
}

// GapService produces the fund obligation gap analysis.
type GapService interface {
	FundGap(ctx context.Context) (fund.GapReport, error)
}

// Report is the payload stored in each snapshot.
type Report struct {
	ID       string           `json:"id"`
	Date     time.Time        `json:"date"`
	Admin    domain.AdminView `json:"admin"`
	Gap      *fund.GapReport  `json:"gap,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
}

// Service manages snapshot generation and retrieval.
type Service struct {
	pnl  PnLService
	gap  GapService
	repo Repository
}

// NewService creates a new snapshot Service. The gap service is optional; without it
// snapshots carry only the admin view.
func NewService(pnl PnLService, repo Repository, gap GapService) *Service {
	if pnl == nil {
		panic("snapshot.NewService: pnl is nil")
	}
	if repo == nil {
		panic("snapshot.NewService: repo is nil")
	}
	return &Service{pnl: pnl, gap: gap, repo: repo}
}

// Generate computes the report for date and stores it, replacing any report of the
// same date. A failing gap analysis is recorded as a warning; a failing admin view
// fails the snapshot.
func (s *Service) Generate(ctx context.Context, date time.Time) (Report, error) {
	view, err := s.pnl.AdminView(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("generating admin view: %w", err)
	}

	report := Report{
		ID:    uuid.NewString(),
		Date:  truncateDay(date),
		Admin: view,
	}

	if s.gap != nil {
		gap, err := s.gap.FundGap(ctx)
		if err != nil {
			w := fmt.Sprintf("fund gap analysis unavailable: %v", err)
			slog.Warn("snapshot without gap analysis", "date", report.Date.Format(time.DateOnly), "error", err)
			report.Warnings = append(report.Warnings, w)
		} else {
			report.Gap = &gap
		}
	}

	data, err := json.Marshal(report)
	if err != nil {
		return Report{}, fmt.Errorf("marshaling report: %w", err)
	}

	if err := s.repo.Save(ctx, report.ID, report.Date, data); err != nil {
		return Report{}, fmt.Errorf("saving snapshot: %w", err)
	}

	return report, nil
}

// GetLatest retrieves the most recent snapshot.
func (s *Service) GetLatest(ctx context.Context) (*Snapshot, error) {
	return s.repo.GetLatest(ctx)
}

// GetByDate retrieves a snapshot for a specific date.
func (s *Service) GetByDate(ctx context.Context, date time.Time) (*Snapshot, error) {
	return s.repo.GetByDate(ctx, truncateDay(date))
}

// GetNearestBefore retrieves the latest snapshot on or before date.
func (s *Service) GetNearestBefore(ctx context.Context, date time.Time) (*Snapshot, error) {
	return s.repo.GetNearestBefore(ctx, truncateDay(date))
}

// List retrieves recent snapshots.
func (s *Service) List(ctx context.Context, limit int) ([]Snapshot, error) {
	return s.repo.List(ctx, limit)
}

// Decode unmarshals a stored snapshot back into a Report.
func Decode(s *Snapshot) (Report, error) {
	var r Report
	if err := json.Unmarshal(s.Data, &r); err != nil {
		return Report{}, fmt.Errorf("decoding snapshot %s: %w", s.ID, err)
	}
	return r, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
