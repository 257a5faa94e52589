package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Tier is a capital-ownership bucket used for P&L reporting.
type Tier string

const (
	TierClient     Tier = "client"
	TierFidus      Tier = "fidus"
	TierReinvested Tier = "reinvested_profit"
)

// Tiers lists the capital tiers in report order.
func Tiers() []Tier {
	return []Tier{TierClient, TierFidus, TierReinvested}
}

// ParseTier accepts the tier tags plus the "house" alias.
func ParseTier(s string) (Tier, error) {
	cs, err := ParseCapitalSource(s)
	if err != nil || cs.HeldOut() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
	return Tier(cs), nil
}

// CapitalSource is the account tag selecting the tier's accounts.
func (t Tier) CapitalSource() CapitalSource {
	return CapitalSource(t)
}

// TieredPnLResult is the reconciled P&L of a set of accounts.
// TruePnL is always CurrentEquity - InitialAllocation: withdrawals have already left equity.
type TieredPnLResult struct {
	Tier              Tier            `json:"tier,omitempty"`
	ClientID          string          `json:"clientId,omitempty"`
	InitialAllocation decimal.Decimal `json:"initialAllocation"`
	CurrentEquity     decimal.Decimal `json:"currentEquity"`
	CurrentBalance    decimal.Decimal `json:"currentBalance"`
	TotalDeposits     decimal.Decimal `json:"totalDeposits"`
	TotalWithdrawals  decimal.Decimal `json:"totalWithdrawals"`
	TruePnL           decimal.Decimal `json:"truePnl"`
	ReturnPercentage  decimal.Decimal `json:"returnPercentage"`
	AccountCount      int             `json:"accountCount"`
}

// HeldOutBalance summarizes the separation or intermediary accounts kept out of the tiers.
type HeldOutBalance struct {
	CapitalSource CapitalSource   `json:"capitalSource"`
	Balance       decimal.Decimal `json:"balance"`
	Equity        decimal.Decimal `json:"equity"`
	AccountCount  int             `json:"accountCount"`
}

// FundPnL is the P&L of the accounts assigned to one fund.
type FundPnL struct {
	Fund Fund `json:"fund"`
	TieredPnLResult
}

// AdminView is the full P&L report across all tiers.
type AdminView struct {
	Client       TieredPnLResult `json:"client"`
	Fidus        TieredPnLResult `json:"fidus"`
	Reinvested   TieredPnLResult `json:"reinvestedProfit"`
	Total        TieredPnLResult `json:"total"`
	Separation   HeldOutBalance  `json:"separation"`
	Intermediary HeldOutBalance  `json:"intermediary"`
	Funds        []FundPnL       `json:"funds"`
	GeneratedAt  time.Time       `json:"generatedAt"`
}

// Investment is a client's principal placed in a fund.
type Investment struct {
	ID        string          `json:"id"`
	ClientID  string          `json:"clientId"`
	Fund      Fund            `json:"fund"`
	Principal decimal.Decimal `json:"principal"`
	StartDate time.Time       `json:"startDate"`
}
