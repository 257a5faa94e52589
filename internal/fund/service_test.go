package fund

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fidus-platform/fidus/internal/domain"
	"github.com/fidus-platform/fidus/internal/store"
)

type mockPnL struct {
	view domain.AdminView
	err  error
}

func (m *mockPnL) AdminView(_ context.Context) (domain.AdminView, error) {
	return m.view, m.err
}

func seededInvestments(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, inv := range []domain.Investment{
		{ID: "inv-1", ClientID: "c1", Fund: domain.FundBalance, Principal: d("60000"), StartDate: start},
		{ID: "inv-2", ClientID: "c2", Fund: domain.FundBalance, Principal: d("40000"), StartDate: start},
		{ID: "inv-3", ClientID: "c1", Fund: domain.FundCore, Principal: d("10000"), StartDate: start},
	} {
		if err := s.PutInvestment(inv); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func testTerms() TermsBook {
	return TermsBook{
		domain.FundCore:    {Fund: domain.FundCore, Frequency: Monthly, PeriodicRate: d("0.015"), Periods: 12, IncubationMonths: 2},
		domain.FundBalance: balanceTerms(),
	}
}

func TestFundGap(t *testing.T) {
	view := domain.AdminView{Total: domain.TieredPnLResult{TruePnL: d("12000")}}
	svc := NewService(seededInvestments(t), &mockPnL{view: view}, testTerms())

	report, err := svc.FundGap(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Balance.Principal.Equal(d("100000")) || report.Balance.InvestmentCount != 2 {
		t.Errorf("balance = %+v", report.Balance)
	}
	if !report.Balance.Obligation.Equal(d("10000")) {
		t.Errorf("balance obligation = %s, want 10000", report.Balance.Obligation)
	}
	if !report.Core.Obligation.Equal(d("1800")) {
		t.Errorf("core obligation = %s, want 1800", report.Core.Obligation)
	}
	if !report.Gap.TotalObligations.Equal(d("11800")) || !report.Gap.SurplusOrDeficit.Equal(d("200")) {
		t.Errorf("gap = %+v", report.Gap)
	}
	if report.Gap.Status != StatusSurplus {
		t.Errorf("Status = %s", report.Gap.Status)
	}
}

func TestFundGapMissingTerms(t *testing.T) {
	terms := testTerms()
	delete(terms, domain.FundCore)
	svc := NewService(seededInvestments(t), &mockPnL{}, terms)

	_, err := svc.FundGap(context.Background())
	if !domain.IsConfiguration(err) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}

	// BALANCE is unaffected by the missing CORE terms.
	balance, err := svc.ObligationFor(context.Background(), domain.FundBalance)
	if err != nil || !balance.Obligation.Equal(d("10000")) {
		t.Errorf("balance = %+v, %v", balance, err)
	}
}

func TestObligationForEmptyFundNeedsNoTerms(t *testing.T) {
	svc := NewService(store.NewMemoryStore(), &mockPnL{}, TermsBook{})

	got, err := svc.ObligationFor(context.Background(), domain.FundCore)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Obligation.IsZero() || got.InvestmentCount != 0 {
		t.Errorf("got = %+v", got)
	}
}

func TestFundGapPropagatesPnLError(t *testing.T) {
	boom := errors.New("mongo down")
	svc := NewService(seededInvestments(t), &mockPnL{err: boom}, testTerms())

	if _, err := svc.FundGap(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestNewServicePanicsOnNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewService(nil, &mockPnL{}, nil)
}
