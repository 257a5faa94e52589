// Package pnl computes reconciled profit and loss for capital tiers, clients,
// funds and managers from account snapshots and deal history.
package pnl

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/fidus-platform/fidus/internal/aggregate"
	"github.com/fidus-platform/fidus/internal/deals"
	"github.com/fidus-platform/fidus/internal/domain"
	"github.com/fidus-platform/fidus/internal/store"
)

// Calculator derives TieredPnLResult values from a store. It holds no mutable
// state and is safe for concurrent use.
type Calculator struct {
	source  store.Source
	reducer *deals.Reducer
	now     func() time.Time
}

// NewCalculator creates a Calculator. Both dependencies are required.
func NewCalculator(source store.Source, reducer *deals.Reducer) *Calculator {
	if source == nil {
		panic("pnl.NewCalculator: source is nil")
	}
	if reducer == nil {
		panic("pnl.NewCalculator: reducer is nil")
	}
	return &Calculator{source: source, reducer: reducer, now: time.Now}
}

// position is the raw material of one result: account totals plus the
// all-time deal summary of exactly the same accounts. The fetched accounts and
// deals are kept so a view can regroup them without reading the store again.
type position struct {
	totals   aggregate.Totals
	summary  deals.Summary
	accounts []domain.TradingAccount
	records  []domain.DealRecord
}

func (p position) merge(o position) position {
	return position{
		totals: p.totals.Merge(o.totals),
		summary: deals.Summary{
			DealCount:        p.summary.DealCount + o.summary.DealCount,
			TradeCount:       p.summary.TradeCount + o.summary.TradeCount,
			TotalVolume:      p.summary.TotalVolume.Add(o.summary.TotalVolume),
			GrossDeposits:    p.summary.GrossDeposits.Add(o.summary.GrossDeposits),
			GrossWithdrawals: p.summary.GrossWithdrawals.Add(o.summary.GrossWithdrawals),
			RebateAmount:     p.summary.RebateAmount.Add(o.summary.RebateAmount),
		},
	}
}

// resultFor is the only place true P&L is computed. Withdrawals have already left
// equity, so they are reported but never added back.
func resultFor(p position) domain.TieredPnLResult {
	truePnL := p.totals.TotalEquity.Sub(p.totals.TotalInitialAllocation)
	return domain.TieredPnLResult{
		InitialAllocation: p.totals.TotalInitialAllocation,
		CurrentEquity:     p.totals.TotalEquity,
		CurrentBalance:    p.totals.TotalBalance,
		TotalDeposits:     p.summary.GrossDeposits,
		TotalWithdrawals:  p.summary.GrossWithdrawals,
		TruePnL:           truePnL,
		ReturnPercentage:  domain.Percentage(truePnL, p.totals.TotalInitialAllocation),
		AccountCount:      p.totals.AccountCount,
	}
}

// CalculateTier computes one tier. The client tier requires clientID and only
// covers that client's accounts; the other tiers ignore it.
func (c *Calculator) CalculateTier(ctx context.Context, tier domain.Tier, clientID string) (domain.TieredPnLResult, error) {
	filter, err := tierFilter(tier, clientID)
	if err != nil {
		return domain.TieredPnLResult{}, err
	}
	p, err := c.position(ctx, filter, nil)
	if err != nil {
		return domain.TieredPnLResult{}, fmt.Errorf("calculating tier %s: %w", tier, err)
	}
	result := resultFor(p)
	result.Tier = tier
	if tier == domain.TierClient {
		result.ClientID = clientID
	}
	return result, nil
}

// ClientView returns the client-tier result of one client.
func (c *Calculator) ClientView(ctx context.Context, clientID string) (domain.TieredPnLResult, error) {
	return c.CalculateTier(ctx, domain.TierClient, clientID)
}

// CalculateFund computes the P&L of the capital accounts assigned to a fund.
// Separation and intermediary accounts are not capital positions and are skipped.
func (c *Calculator) CalculateFund(ctx context.Context, fund domain.Fund) (domain.FundPnL, error) {
	p, err := c.position(ctx, domain.AccountFilter{Fund: fund}, excludeHeldOut)
	if err != nil {
		return domain.FundPnL{}, fmt.Errorf("calculating fund %s: %w", fund, err)
	}
	return domain.FundPnL{Fund: fund, TieredPnLResult: resultFor(p)}, nil
}

// CalculateManager computes the P&L of the accounts run by a money manager.
func (c *Calculator) CalculateManager(ctx context.Context, managerID string) (domain.TieredPnLResult, error) {
	if managerID == "" {
		return domain.TieredPnLResult{}, fmt.Errorf("calculating manager: %w", domain.ErrScopeRequired)
	}
	p, err := c.position(ctx, domain.AccountFilter{ManagerID: managerID}, excludeHeldOut)
	if err != nil {
		return domain.TieredPnLResult{}, fmt.Errorf("calculating manager %s: %w", managerID, err)
	}
	return resultFor(p), nil
}

// CalculateAccounts computes the P&L of an explicit account list.
func (c *Calculator) CalculateAccounts(ctx context.Context, numbers []int64) (domain.TieredPnLResult, error) {
	if len(numbers) == 0 {
		return resultFor(position{totals: aggregate.Zero(), summary: deals.ZeroSummary()}), nil
	}
	p, err := c.position(ctx, domain.AccountFilter{AccountNumbers: numbers}, nil)
	if err != nil {
		return domain.TieredPnLResult{}, fmt.Errorf("calculating accounts: %w", err)
	}
	return resultFor(p), nil
}

// AdminView computes every tier and the held-out buckets in parallel. The
// per-fund breakdown is regrouped from the tier snapshots, so funds and tiers
// always describe the same accounts. Any failing branch fails the whole view.
func (c *Calculator) AdminView(ctx context.Context) (domain.AdminView, error) {
	var client, fidus, reinvested position
	var separation, intermediary aggregate.Totals

	g, gctx := errgroup.WithContext(ctx)
	tierBranch := func(dst *position, source domain.CapitalSource) {
		g.Go(func() error {
			p, err := c.position(gctx, domain.AccountFilter{CapitalSource: source}, nil)
			if err != nil {
				return fmt.Errorf("calculating tier %s: %w", source, err)
			}
			*dst = p
			return nil
		})
	}
	heldOutBranch := func(dst *aggregate.Totals, source domain.CapitalSource) {
		g.Go(func() error {
			accounts, err := c.source.FindAccounts(gctx, domain.AccountFilter{CapitalSource: source})
			if err != nil {
				return fmt.Errorf("fetching %s accounts: %w", source, err)
			}
			*dst = aggregate.Aggregate(accounts)
			return nil
		})
	}

	tierBranch(&client, domain.CapitalClient)
	tierBranch(&fidus, domain.CapitalFidus)
	tierBranch(&reinvested, domain.CapitalReinvested)
	heldOutBranch(&separation, domain.CapitalSeparation)
	heldOutBranch(&intermediary, domain.CapitalIntermediary)

	if err := g.Wait(); err != nil {
		return domain.AdminView{}, err
	}

	funds := make([]domain.FundPnL, 0, len(reportFunds))
	for _, f := range reportFunds {
		fp, err := c.regroup(func(a domain.TradingAccount) bool { return a.Fund == f }, client, fidus, reinvested)
		if err != nil {
			return domain.AdminView{}, fmt.Errorf("calculating fund %s: %w", f, err)
		}
		funds = append(funds, domain.FundPnL{Fund: f, TieredPnLResult: resultFor(fp)})
	}

	view := domain.AdminView{
		Client:       withTier(resultFor(client), domain.TierClient),
		Fidus:        withTier(resultFor(fidus), domain.TierFidus),
		Reinvested:   withTier(resultFor(reinvested), domain.TierReinvested),
		Total:        resultFor(client.merge(fidus).merge(reinvested)),
		Separation:   heldOut(domain.CapitalSeparation, separation),
		Intermediary: heldOut(domain.CapitalIntermediary, intermediary),
		Funds:        funds,
		GeneratedAt:  c.now().UTC(),
	}
	return view, nil
}

// reportFunds are the funds broken out in the admin view.
var reportFunds = []domain.Fund{domain.FundCore, domain.FundBalance}

// position fetches the matching accounts once, then the full deal history of
// exactly those accounts once, so both halves come from one snapshot.
func (c *Calculator) position(ctx context.Context, filter domain.AccountFilter, keep func(domain.TradingAccount) bool) (position, error) {
	accounts, err := c.source.FindAccounts(ctx, filter)
	if err != nil {
		return position{}, fmt.Errorf("fetching accounts: %w", err)
	}
	if keep != nil {
		accounts = lo.Filter(accounts, func(a domain.TradingAccount, _ int) bool { return keep(a) })
	}
	if len(accounts) == 0 {
		return position{totals: aggregate.Zero(), summary: deals.ZeroSummary()}, nil
	}

	records, err := c.source.FindDeals(ctx, domain.AccountNumbers(accounts), nil)
	if err != nil {
		return position{}, fmt.Errorf("fetching deals: %w", err)
	}
	summary, err := c.reducer.Reduce(records, domain.AllTime())
	if err != nil {
		return position{}, fmt.Errorf("reducing deals: %w", err)
	}
	return position{totals: aggregate.Aggregate(accounts), summary: summary, accounts: accounts, records: records}, nil
}

// regroup builds a position from the accounts of already fetched positions that
// match keep, together with their deals.
func (c *Calculator) regroup(keep func(domain.TradingAccount) bool, from ...position) (position, error) {
	var accounts []domain.TradingAccount
	var records []domain.DealRecord
	for _, p := range from {
		matched := lo.Filter(p.accounts, func(a domain.TradingAccount, _ int) bool { return keep(a) })
		numbers := lo.SliceToMap(matched, func(a domain.TradingAccount) (int64, bool) { return a.Number, true })
		accounts = append(accounts, matched...)
		records = append(records, lo.Filter(p.records, func(d domain.DealRecord, _ int) bool { return numbers[d.AccountNumber] })...)
	}
	if len(accounts) == 0 {
		return position{totals: aggregate.Zero(), summary: deals.ZeroSummary()}, nil
	}
	summary, err := c.reducer.Reduce(records, domain.AllTime())
	if err != nil {
		return position{}, fmt.Errorf("reducing deals: %w", err)
	}
	return position{totals: aggregate.Aggregate(accounts), summary: summary, accounts: accounts, records: records}, nil
}

func tierFilter(tier domain.Tier, clientID string) (domain.AccountFilter, error) {
	switch tier {
	case domain.TierClient:
		if clientID == "" {
			return domain.AccountFilter{}, domain.ErrScopeRequired
		}
		return domain.AccountFilter{CapitalSource: domain.CapitalClient, ClientID: clientID}, nil
	case domain.TierFidus, domain.TierReinvested:
		return domain.AccountFilter{CapitalSource: tier.CapitalSource()}, nil
	default:
		return domain.AccountFilter{}, fmt.Errorf("%w: %q", domain.ErrUnknownTier, tier)
	}
}

func excludeHeldOut(a domain.TradingAccount) bool {
	return !a.CapitalSource.HeldOut()
}

func withTier(r domain.TieredPnLResult, tier domain.Tier) domain.TieredPnLResult {
	r.Tier = tier
	return r
}

func heldOut(source domain.CapitalSource, t aggregate.Totals) domain.HeldOutBalance {
	return domain.HeldOutBalance{
		CapitalSource: source,
		Balance:       t.TotalBalance,
		Equity:        t.TotalEquity,
		AccountCount:  t.AccountCount,
	}
}

// RequireAccounts turns an empty scope into ErrScopeNotFound for callers that
// must tell "no accounts" apart from "zero balance".
func RequireAccounts(r domain.TieredPnLResult) error {
	if r.AccountCount > 0 {
		return nil
	}
	if r.ClientID != "" {
		return fmt.Errorf("client %s: %w", r.ClientID, domain.ErrScopeNotFound)
	}
	return fmt.Errorf("tier %s: %w", r.Tier, domain.ErrScopeNotFound)
}
