// Package api exposes the P&L engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fidus-platform/fidus/internal/analytics"
	"github.com/fidus-platform/fidus/internal/domain"
	"github.com/fidus-platform/fidus/internal/fund"
	"github.com/fidus-platform/fidus/internal/snapshot"
)

// PnLService computes tiered P&L.
type PnLService interface {
	AdminView(ctx context.Context) (domain.AdminView, error)
	ClientView(ctx context.Context, clientID string) (domain.TieredPnLResult, error)
	CalculateTier(ctx context.Context, tier domain.Tier, clientID string) (domain.TieredPnLResult, error)
	CalculateFund(ctx context.Context, fund domain.Fund) (domain.FundPnL, error)
	CalculateManager(ctx context.Context, managerID string) (domain.TieredPnLResult, error)
}

// GapService runs the fund obligation analysis.
type GapService interface {
	FundGap(ctx context.Context) (fund.GapReport, error)
	ObligationFor(ctx context.Context, fund domain.Fund) (fund.FundObligation, error)
}

// AccountService computes per-account statistics.
type AccountService interface {
	Account(ctx context.Context, number int64, window domain.Window) (analytics.AccountReport, error)
	Risk(ctx context.Context, number int64, confidence float64, horizonDays int) (analytics.RiskReport, error)
}

// SnapshotService stores and generates daily reports.
type SnapshotService interface {
	Generate(ctx context.Context, date time.Time) (snapshot.Report, error)
	GetLatest(ctx context.Context) (*snapshot.Snapshot, error)
	GetByDate(ctx context.Context, date time.Time) (*snapshot.Snapshot, error)
	List(ctx context.Context, limit int) ([]snapshot.Snapshot, error)
}

// ReportHook runs after a snapshot generated on demand.
type ReportHook interface {
	Export(ctx context.Context, report snapshot.Report) error
}

// Handler provides HTTP endpoints for the P&L API.
type Handler struct {
	pnl       PnLService
	gap       GapService     // optional
	accounts  AccountService // optional
	snapshots SnapshotService
	hook      ReportHook // optional
	now       func() time.Time
}

// NewHandler creates a new API handler. gap, accounts and hook may be nil; their
// routes are then not registered or not run.
func NewHandler(pnl PnLService, gap GapService, accounts AccountService, snapshots SnapshotService, hook ReportHook) *Handler {
	if pnl == nil {
		panic("api.NewHandler: pnl is nil")
	}
	if snapshots == nil {
		panic("api.NewHandler: snapshots is nil")
	}
	return &Handler{
		pnl:       pnl,
		gap:       gap,
		accounts:  accounts,
		snapshots: snapshots,
		hook:      hook,
		now:       time.Now,
	}
}

// GetLatestSnapshot handles GET /api/v1/snapshots/latest.
func (h *Handler) GetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	s, err := h.snapshots.GetLatest(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to get latest snapshot")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GetSnapshotByDate handles GET /api/v1/snapshots/{date}.
func (h *Handler) GetSnapshotByDate(w http.ResponseWriter, r *http.Request) {
	dateStr := chi.URLParam(r, "date")
	date, err := time.Parse(time.DateOnly, dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return
	}

	s, err := h.snapshots.GetByDate(r.Context(), date)
	if err != nil {
		writeServiceError(w, err, "failed to get snapshot by date", "date", dateStr)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ListSnapshots handles GET /api/v1/snapshots.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	const maxLimit = 365
	limit := 30
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = min(n, maxLimit)
		}
	}

	snapshots, err := h.snapshots.List(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err, "failed to list snapshots")
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

// GenerateSnapshot handles POST /api/v1/snapshots/generate.
func (h *Handler) GenerateSnapshot(w http.ResponseWriter, r *http.Request) {
	report, err := h.snapshots.Generate(r.Context(), h.now().UTC())
	if err != nil {
		writeServiceError(w, err, "failed to generate snapshot")
		return
	}
	if h.hook != nil {
		if err := h.hook.Export(r.Context(), report); err != nil {
			slog.Error("snapshot export hook failed", "id", report.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, report)
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps engine errors onto HTTP statuses. Unexpected errors are
// logged with the extra attributes and reported as 500.
func writeServiceError(w http.ResponseWriter, err error, msg string, attrs ...any) {
	var integrity *domain.DataIntegrityError
	var cfg *domain.ConfigurationError
	switch {
	case errors.Is(err, domain.ErrUnknownTier), errors.Is(err, domain.ErrScopeRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrScopeNotFound), errors.Is(err, snapshot.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &integrity):
		slog.Error(msg, append(attrs, "field", integrity.Field, "record", integrity.RecordID, "error", err)...)
		writeError(w, http.StatusInternalServerError, "data integrity error: field "+integrity.Field+" of record "+integrity.RecordID)
	case errors.As(err, &cfg):
		slog.Error(msg, append(attrs, "error", err)...)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		slog.Error(msg, append(attrs, "error", err)...)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
