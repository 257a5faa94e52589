// Package fund projects contractual interest obligations on client principal
// and compares them against realized P&L.
package fund

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fidus-platform/fidus/internal/domain"
)

// Frequency is the interest payment cadence of a fund contract.
type Frequency string

const (
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
)

// ParseFrequency accepts the frequency names case-insensitively.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(lower(s)); f {
	case Monthly, Quarterly:
		return f, nil
	default:
		return "", fmt.Errorf("unknown payment frequency %q", s)
	}
}

// Months is the number of months between two payments.
func (f Frequency) Months() int {
	if f == Quarterly {
		return 3
	}
	return 1
}

// Terms are the contract terms of a fund class.
type Terms struct {
	Fund             domain.Fund     `json:"fund"`
	Frequency        Frequency       `json:"frequency"`
	PeriodicRate     decimal.Decimal `json:"periodicRate"`
	Periods          int             `json:"periods"`
	IncubationMonths int             `json:"incubationMonths"`
}

// Validate rejects terms that cannot produce an obligation.
func (t Terms) Validate() error {
	key := string(t.Fund) + "_RATE"
	switch {
	case t.Frequency != Monthly && t.Frequency != Quarterly:
		return &domain.ConfigurationError{Key: string(t.Fund) + "_FREQUENCY", Reason: fmt.Sprintf("unknown frequency %q", t.Frequency)}
	case t.PeriodicRate.IsNegative():
		return &domain.ConfigurationError{Key: key, Reason: "rate is negative"}
	case t.Periods <= 0:
		return &domain.ConfigurationError{Key: string(t.Fund) + "_PERIODS", Reason: "periods must be positive"}
	case t.IncubationMonths < 0:
		return &domain.ConfigurationError{Key: string(t.Fund) + "_INCUBATION_MONTHS", Reason: "incubation is negative"}
	}
	return nil
}

// TermsBook holds the configured terms per fund.
type TermsBook map[domain.Fund]Terms

// For returns a fund's terms or a *ConfigurationError when they are missing or invalid.
func (b TermsBook) For(fund domain.Fund) (Terms, error) {
	t, ok := b[fund]
	if !ok {
		return Terms{}, &domain.ConfigurationError{Key: string(fund) + "_RATE", Reason: fmt.Sprintf("no contract terms for fund %s", fund)}
	}
	if err := t.Validate(); err != nil {
		return Terms{}, err
	}
	return t, nil
}

// Obligation is principal x periodic rate x periods, rounded to cents.
func Obligation(principal decimal.Decimal, terms Terms) decimal.Decimal {
	return domain.RoundMoney(principal.Mul(terms.PeriodicRate).Mul(decimal.NewFromInt(int64(terms.Periods))))
}

// Payment is one projected interest payment.
type Payment struct {
	Number int             `json:"number"`
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// Schedule projects the interest payments of a principal. No interest accrues during
// incubation; the first payment falls one period after incubation ends.
func Schedule(principal decimal.Decimal, terms Terms, start time.Time) []Payment {
	amount := domain.RoundMoney(principal.Mul(terms.PeriodicRate))
	step := terms.Frequency.Months()
	payments := make([]Payment, 0, terms.Periods)
	for i := 1; i <= terms.Periods; i++ {
		payments = append(payments, Payment{
			Number: i,
			Date:   start.AddDate(0, terms.IncubationMonths+i*step, 0),
			Amount: amount,
		})
	}
	return payments
}

// Obligations are the projected liabilities of the two interest-bearing funds.
type Obligations struct {
	Core    decimal.Decimal `json:"core"`
	Balance decimal.Decimal `json:"balance"`
}

// Total sums both funds.
func (o Obligations) Total() decimal.Decimal {
	return o.Core.Add(o.Balance)
}

// Status labels the sign of a gap.
type Status string

const (
	StatusSurplus Status = "surplus"
	StatusDeficit Status = "deficit"
)

// Gap compares realized P&L against projected obligations.
type Gap struct {
	FundPnL          decimal.Decimal `json:"fundPnl"`
	TotalObligations decimal.Decimal `json:"totalObligations"`
	SurplusOrDeficit decimal.Decimal `json:"surplusOrDeficit"`
	CoverageRatio    decimal.Decimal `json:"coverageRatio"`
	Status           Status          `json:"status"`
}

// GapAnalysis computes surplus or deficit and coverage. Coverage is zero when there
// are no obligations.
func GapAnalysis(fundPnL domain.TieredPnLResult, obligations Obligations) Gap {
	total := obligations.Total()
	gap := fundPnL.TruePnL.Sub(total)
	status := StatusSurplus
	if gap.IsNegative() {
		status = StatusDeficit
	}
	return Gap{
		FundPnL:          fundPnL.TruePnL,
		TotalObligations: total,
		SurplusOrDeficit: gap,
		CoverageRatio:    domain.Percentage(fundPnL.TruePnL, total),
		Status:           status,
	}
}
