package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fidus-platform/fidus/internal/analytics"
	"github.com/fidus-platform/fidus/internal/deals"
	"github.com/fidus-platform/fidus/internal/domain"
	"github.com/fidus-platform/fidus/internal/fund"
	"github.com/fidus-platform/fidus/internal/pnl"
	"github.com/fidus-platform/fidus/internal/snapshot"
	"github.com/fidus-platform/fidus/internal/store"
)

type mockSnapshots struct {
	snapshots     []snapshot.Snapshot
	lastListLimit int
	generated     int
	err           error
}

func (m *mockSnapshots) Generate(_ context.Context, date time.Time) (snapshot.Report, error) {
	if m.err != nil {
		return snapshot.Report{}, m.err
	}
	m.generated++
	return snapshot.Report{ID: "generated", Date: date}, nil
}

func (m *mockSnapshots) GetLatest(_ context.Context) (*snapshot.Snapshot, error) {
	if len(m.snapshots) == 0 {
		return nil, snapshot.ErrNotFound
	}
	return &m.snapshots[0], nil
}

func (m *mockSnapshots) GetByDate(_ context.Context, date time.Time) (*snapshot.Snapshot, error) {
	for _, s := range m.snapshots {
		if s.SnapshotDate.Equal(date) {
			return &s, nil
		}
	}
	return nil, snapshot.ErrNotFound
}

func (m *mockSnapshots) List(_ context.Context, limit int) ([]snapshot.Snapshot, error) {
	m.lastListLimit = limit
	if limit > len(m.snapshots) {
		limit = len(m.snapshots)
	}
	return m.snapshots[:limit], nil
}

type mockGap struct {
	err error
}

func (m *mockGap) FundGap(_ context.Context) (fund.GapReport, error) {
	if m.err != nil {
		return fund.GapReport{}, m.err
	}
	return fund.GapReport{Gap: fund.Gap{SurplusOrDeficit: decimal.NewFromInt(200), Status: fund.StatusSurplus}}, nil
}

func (m *mockGap) ObligationFor(_ context.Context, f domain.Fund) (fund.FundObligation, error) {
	return fund.FundObligation{Fund: f, Principal: decimal.NewFromInt(10000), Obligation: decimal.NewFromInt(1800)}, m.err
}

type mockHook struct {
	calls int
}

func (m *mockHook) Export(_ context.Context, _ snapshot.Report) error {
	m.calls++
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestStore() *store.MemoryStore {
	s := store.NewMemoryStore()
	s.PutAccount(domain.TradingAccount{
		Number: 886557, Fund: domain.FundBalance, CapitalSource: domain.CapitalClient,
		ClientID: "client_alejandro", ManagerID: "mgr_1",
		InitialAllocation: dec("18151.41"), CurrentEquity: dec("18423.68"),
	})
	s.PutAccount(domain.TradingAccount{
		Number: 891215, Fund: domain.FundCore, CapitalSource: domain.CapitalFidus,
		InitialAllocation: dec("5000"), CurrentEquity: dec("4337.06"),
	})
	s.AppendDeals(domain.DealRecord{
		Ticket: 1, AccountNumber: 886557, Type: domain.EntrySell,
		Time: time.Date(2025, 10, 2, 12, 0, 0, 0, time.UTC), Volume: dec("1"), Profit: dec("272.27"),
	})
	return s
}

type testEnv struct {
	router    http.Handler
	snapshots *mockSnapshots
	hook      *mockHook
	gap       *mockGap
}

func newTestEnv(t *testing.T, src store.Source) *testEnv {
	t.Helper()
	reducer := deals.NewReducer(nil)
	reducer.Now = func() time.Time { return time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC) }

	env := &testEnv{snapshots: &mockSnapshots{}, hook: &mockHook{}, gap: &mockGap{}}
	h := NewHandler(
		pnl.NewCalculator(src, reducer),
		env.gap,
		analytics.NewService(src, reducer),
		env.snapshots,
		env.hook,
	)
	h.now = func() time.Time { return time.Date(2025, 10, 14, 23, 0, 0, 0, time.UTC) }
	env.router = NewRouter(h, "secret-key")
	return env
}

func (e *testEnv) do(method, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decoding body %q: %v", w.Body.String(), err)
	}
}

func TestPnLRoutes(t *testing.T) {
	env := newTestEnv(t, newTestStore())

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"admin", "/api/v1/pnl/admin", http.StatusOK},
		{"client", "/api/v1/pnl/clients/client_alejandro", http.StatusOK},
		{"unknown client lenient", "/api/v1/pnl/clients/nobody", http.StatusOK},
		{"unknown client strict", "/api/v1/pnl/clients/nobody?strict=true", http.StatusNotFound},
		{"fidus tier", "/api/v1/pnl/tiers/fidus", http.StatusOK},
		{"house alias", "/api/v1/pnl/tiers/house", http.StatusOK},
		{"client tier without id", "/api/v1/pnl/tiers/client", http.StatusBadRequest},
		{"client tier with id", "/api/v1/pnl/tiers/client?clientId=client_alejandro", http.StatusOK},
		{"held-out tier", "/api/v1/pnl/tiers/separation", http.StatusBadRequest},
		{"unknown tier", "/api/v1/pnl/tiers/vip", http.StatusBadRequest},
		{"fund", "/api/v1/pnl/funds/balance", http.StatusOK},
		{"unknown fund", "/api/v1/pnl/funds/growth", http.StatusBadRequest},
		{"manager", "/api/v1/pnl/managers/mgr_1", http.StatusOK},
		{"gap", "/api/v1/funds/gap", http.StatusOK},
		{"obligation", "/api/v1/funds/core/obligation", http.StatusOK},
		{"analytics", "/api/v1/accounts/886557/analytics", http.StatusOK},
		{"analytics bad date", "/api/v1/accounts/886557/analytics?from=01/10/2025", http.StatusBadRequest},
		{"analytics unknown account", "/api/v1/accounts/1/analytics", http.StatusNotFound},
		{"analytics bad account", "/api/v1/accounts/abc/analytics", http.StatusBadRequest},
		{"risk", "/api/v1/accounts/886557/risk?confidence=0.99&horizon=10", http.StatusOK},
		{"risk bad confidence", "/api/v1/accounts/886557/risk?confidence=1.2", http.StatusBadRequest},
		{"risk bad horizon", "/api/v1/accounts/886557/risk?horizon=0", http.StatusBadRequest},
		{"healthz", "/healthz", http.StatusOK},
		{"metrics", "/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodGet, tt.target)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestGetClientPnLBody(t *testing.T) {
	env := newTestEnv(t, newTestStore())

	w := env.do(http.MethodGet, "/api/v1/pnl/clients/client_alejandro")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	decodeBody(t, w, &body)
	if body["truePnl"] != "272.27" {
		t.Errorf("truePnl = %v, want \"272.27\"", body["truePnl"])
	}
	if body["accountCount"] != float64(1) {
		t.Errorf("accountCount = %v", body["accountCount"])
	}
}

type poisonedSource struct {
	store.Source
}

func (p poisonedSource) FindAccounts(_ context.Context, _ domain.AccountFilter) ([]domain.TradingAccount, error) {
	return nil, fmt.Errorf("decoding account: %w", &domain.DataIntegrityError{Field: "equity", RecordID: "42", Value: "abc"})
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, poisonedSource{Source: newTestStore()})

	w := env.do(http.MethodGet, "/api/v1/pnl/admin")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body map[string]string
	decodeBody(t, w, &body)
	if body["error"] != "data integrity error: field equity of record 42" {
		t.Errorf("error = %q", body["error"])
	}

	env.gap.err = &domain.ConfigurationError{Key: "CORE_RATE"}
	w = env.do(http.MethodGet, "/api/v1/funds/gap")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("gap status = %d, want 500", w.Code)
	}
}

func TestGenerateSnapshotRequiresAuth(t *testing.T) {
	env := newTestEnv(t, newTestStore())

	w := env.do(http.MethodPost, "/api/v1/snapshots/generate")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if env.snapshots.generated != 0 {
		t.Error("snapshot generated without auth")
	}

	w = env.do(http.MethodPost, "/api/v1/snapshots/generate", "Authorization", "Bearer secret-key")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if env.snapshots.generated != 1 || env.hook.calls != 1 {
		t.Errorf("generated = %d, hook calls = %d, want 1/1", env.snapshots.generated, env.hook.calls)
	}
}

func TestGetLatestSnapshot(t *testing.T) {
	env := newTestEnv(t, newTestStore())

	w := env.do(http.MethodGet, "/api/v1/snapshots/latest")
	if w.Code != http.StatusNotFound {
		t.Errorf("empty status = %d, want 404", w.Code)
	}

	data, _ := json.Marshal(map[string]string{"test": "data"})
	env.snapshots.snapshots = []snapshot.Snapshot{
		{ID: "s1", SnapshotDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), Data: data},
	}
	w = env.do(http.MethodGet, "/api/v1/snapshots/latest")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var result snapshot.Snapshot
	decodeBody(t, w, &result)
	if result.ID != "s1" {
		t.Errorf("snapshot ID = %s, want s1", result.ID)
	}
}

func TestGetSnapshotByDate(t *testing.T) {
	env := newTestEnv(t, newTestStore())
	env.snapshots.snapshots = []snapshot.Snapshot{
		{ID: "s1", SnapshotDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), Data: json.RawMessage(`{}`)},
	}

	tests := []struct {
		target string
		status int
	}{
		{"/api/v1/snapshots/2024-01-15", http.StatusOK},
		{"/api/v1/snapshots/2024-01-16", http.StatusNotFound},
		{"/api/v1/snapshots/not-a-date", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := env.do(http.MethodGet, tt.target); w.Code != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.target, w.Code, tt.status)
		}
	}
}

func TestListSnapshotsLimit(t *testing.T) {
	env := newTestEnv(t, newTestStore())
	env.snapshots.snapshots = []snapshot.Snapshot{
		{ID: "s1", Data: json.RawMessage(`{}`)},
		{ID: "s2", Data: json.RawMessage(`{}`)},
	}

	tests := []struct {
		query string
		limit int
	}{
		{"?limit=9999", 365},
		{"?limit=-5", 30},
		{"?limit=10", 10},
		{"", 30},
	}
	for _, tt := range tests {
		w := env.do(http.MethodGet, "/api/v1/snapshots"+tt.query)
		if w.Code != http.StatusOK {
			t.Errorf("%q: status = %d", tt.query, w.Code)
		}
		if env.snapshots.lastListLimit != tt.limit {
			t.Errorf("%q: limit = %d, want %d", tt.query, env.snapshots.lastListLimit, tt.limit)
		}
	}
}

// mockPnL satisfies PnLService with zero results.
type mockPnL struct{}

func (mockPnL) AdminView(_ context.Context) (domain.AdminView, error) {
	return domain.AdminView{}, nil
}

func (mockPnL) ClientView(_ context.Context, clientID string) (domain.TieredPnLResult, error) {
	return domain.TieredPnLResult{ClientID: clientID}, nil
}

func (mockPnL) CalculateTier(_ context.Context, tier domain.Tier, _ string) (domain.TieredPnLResult, error) {
	return domain.TieredPnLResult{Tier: tier}, nil
}

func (mockPnL) CalculateFund(_ context.Context, f domain.Fund) (domain.FundPnL, error) {
	return domain.FundPnL{Fund: f}, nil
}

func (mockPnL) CalculateManager(_ context.Context, _ string) (domain.TieredPnLResult, error) {
	return domain.TieredPnLResult{}, nil
}
