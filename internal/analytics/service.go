package analytics

import (
	"context"
	"errors"
	"fmt"

	"github.com/fidus-platform/fidus/internal/deals"
	"github.com/fidus-platform/fidus/internal/domain"
	"github.com/fidus-platform/fidus/internal/risk"
	"github.com/fidus-platform/fidus/internal/store"
)

// AccountReport is the trade statistics of one account.
type AccountReport struct {
	Account domain.TradingAccount `json:"account"`
	Window  domain.Window         `json:"window"`
	Report
}

// RiskReport is the loss estimate of one account's equity from its daily P&L history.
type RiskReport struct {
	Account         int64          `json:"account"`
	Observations    int            `json:"observations"`
	DailyVolatility float64        `json:"dailyVolatility"`
	Parametric      risk.Estimate  `json:"parametric"`
	Historical      *risk.Estimate `json:"historical,omitempty"`
}

// Service loads account history and runs the statistics over it.
type Service struct {
	source  store.Source
	reducer *deals.Reducer
}

// NewService creates a new analytics Service.
func NewService(source store.Source, reducer *deals.Reducer) *Service {
	if source == nil {
		panic("analytics.NewService: source is nil")
	}
	if reducer == nil {
		panic("analytics.NewService: reducer is nil")
	}
	return &Service{source: source, reducer: reducer}
}

// Account computes trade statistics for one account over the window.
func (s *Service) Account(ctx context.Context, number int64, window domain.Window) (AccountReport, error) {
	account, records, err := s.load(ctx, number)
	if err != nil {
		return AccountReport{}, err
	}
	window = s.reducer.Resolve(window)
	report, err := Analyze(records, window, s.reducer)
	if err != nil {
		return AccountReport{}, fmt.Errorf("analyzing account %d: %w", number, err)
	}
	return AccountReport{Account: account, Window: window, Report: report}, nil
}

// Risk estimates VaR and expected shortfall on the account's current equity. Daily
// returns are taken on the initial allocation compounded by realized P&L. The
// historical estimate is omitted when the account has no trading days.
func (s *Service) Risk(ctx context.Context, number int64, confidence float64, horizonDays int) (RiskReport, error) {
	account, records, err := s.load(ctx, number)
	if err != nil {
		return RiskReport{}, err
	}
	report, err := Analyze(records, domain.AllTime(), s.reducer)
	if err != nil {
		return RiskReport{}, fmt.Errorf("analyzing account %d: %w", number, err)
	}

	returns := risk.Returns(account.InitialAllocation, report.DailyNet())
	vol := risk.Volatility(returns)

	parametric, err := risk.Parametric(account.CurrentEquity, vol, confidence, horizonDays)
	if err != nil {
		return RiskReport{}, err
	}
	result := RiskReport{
		Account:         number,
		Observations:    len(returns),
		DailyVolatility: vol,
		Parametric:      parametric,
	}

	historical, err := risk.Historical(account.CurrentEquity, returns, confidence)
	switch {
	case errors.Is(err, risk.ErrInsufficientData):
	case err != nil:
		return RiskReport{}, err
	default:
		result.Historical = &historical
	}
	return result, nil
}

func (s *Service) load(ctx context.Context, number int64) (domain.TradingAccount, []domain.DealRecord, error) {
	accounts, err := s.source.FindAccounts(ctx, domain.AccountFilter{AccountNumbers: []int64{number}})
	if err != nil {
		return domain.TradingAccount{}, nil, fmt.Errorf("fetching account %d: %w", number, err)
	}
	if len(accounts) == 0 {
		return domain.TradingAccount{}, nil, fmt.Errorf("account %d: %w", number, domain.ErrScopeNotFound)
	}
	records, err := s.source.FindDeals(ctx, []int64{number}, nil)
	if err != nil {
		return domain.TradingAccount{}, nil, fmt.Errorf("fetching deals of account %d: %w", number, err)
	}
	return accounts[0], records, nil
}
