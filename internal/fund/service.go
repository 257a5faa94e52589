package fund

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/fidus-platform/fidus/internal/domain"
	"github.com/fidus-platform/fidus/internal/store"
)

// PnLSource provides the realized P&L the obligations are compared against.
type PnLSource interface {
	AdminView(ctx context.Context) (domain.AdminView, error)
}

// FundObligation is the principal and projected liability of one fund.
type FundObligation struct {
	Fund            domain.Fund     `json:"fund"`
	Principal       decimal.Decimal `json:"principal"`
	InvestmentCount int             `json:"investmentCount"`
	Obligation      decimal.Decimal `json:"obligation"`
}

// GapReport is the fund gap analysis with its inputs.
type GapReport struct {
	Core        FundObligation `json:"core"`
	Balance     FundObligation `json:"balance"`
	Gap         Gap            `json:"gap"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// Service runs the obligation pipeline against live data.
type Service struct {
	investments store.InvestmentSource
	pnl         PnLSource
	terms       TermsBook
	now         func() time.Time
}

// NewService creates a new fund obligation Service. All dependencies are required.
func NewService(investments store.InvestmentSource, pnl PnLSource, terms TermsBook) *Service {
	if investments == nil {
		panic("fund.NewService: investments is nil")
	}
	if pnl == nil {
		panic("fund.NewService: pnl is nil")
	}
	return &Service{investments: investments, pnl: pnl, terms: terms, now: time.Now}
}

// Terms exposes the configured contract terms.
func (s *Service) Terms() TermsBook {
	return s.terms
}

// FundGap compares the CORE and BALANCE obligations against the total P&L of all
// capital tiers.
func (s *Service) FundGap(ctx context.Context) (GapReport, error) {
	var core, balance FundObligation
	var view domain.AdminView

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		core, err = s.ObligationFor(gctx, domain.FundCore)
		return err
	})
	g.Go(func() error {
		var err error
		balance, err = s.ObligationFor(gctx, domain.FundBalance)
		return err
	})
	g.Go(func() error {
		var err error
		if view, err = s.pnl.AdminView(gctx); err != nil {
			return fmt.Errorf("computing admin view: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return GapReport{}, err
	}

	return GapReport{
		Core:        core,
		Balance:     balance,
		Gap:         GapAnalysis(view.Total, Obligations{Core: core.Obligation, Balance: balance.Obligation}),
		GeneratedAt: s.now().UTC(),
	}, nil
}

// ObligationFor sums the principal invested in a fund and projects its obligation.
// Terms are only required once the fund holds principal.
func (s *Service) ObligationFor(ctx context.Context, fund domain.Fund) (FundObligation, error) {
	investments, err := s.investments.FindInvestments(ctx, fund)
	if err != nil {
		return FundObligation{}, fmt.Errorf("fetching %s investments: %w", fund, err)
	}
	principal := lo.Reduce(investments, func(acc decimal.Decimal, inv domain.Investment, _ int) decimal.Decimal {
		return acc.Add(inv.Principal)
	}, decimal.Zero)

	result := FundObligation{
		Fund:            fund,
		Principal:       principal,
		InvestmentCount: len(investments),
		Obligation:      decimal.Zero,
	}
	if principal.IsZero() {
		return result, nil
	}

	terms, err := s.terms.For(fund)
	if err != nil {
		return FundObligation{}, fmt.Errorf("projecting %s obligation: %w", fund, err)
	}
	result.Obligation = Obligation(principal, terms)
	return result, nil
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
