package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Platform is the broker platform an account lives on.
type Platform string

const (
	PlatformMT5 Platform = "MT5"
	PlatformMT4 Platform = "MT4"
)

// Fund is the fund an account is assigned to. The zero value means unassigned.
type Fund string

const (
	FundCore       Fund = "CORE"
	FundBalance    Fund = "BALANCE"
	FundSeparation Fund = "SEPARATION"
	FundUnassigned Fund = ""
)

// ParseFund accepts fund codes case-insensitively.
func ParseFund(s string) (Fund, error) {
	switch f := Fund(strings.ToUpper(strings.TrimSpace(s))); f {
	case FundCore, FundBalance, FundSeparation, FundUnassigned:
		return f, nil
	default:
		return "", fmt.Errorf("unknown fund %q", s)
	}
}

// CapitalSource tags whose money funds an account.
type CapitalSource string

const (
	CapitalClient       CapitalSource = "client"
	CapitalFidus        CapitalSource = "fidus"
	CapitalReinvested   CapitalSource = "reinvested_profit"
	CapitalIntermediary CapitalSource = "intermediary"
	CapitalSeparation   CapitalSource = "separation"
)

// capitalSourceSpellings lists every stored spelling accepted for a source,
// lower-cased. Store queries match the same table the parser reads.
var capitalSourceSpellings = map[CapitalSource][]string{
	CapitalClient:       {"client"},
	CapitalFidus:        {"fidus", "house"},
	CapitalReinvested:   {"reinvested_profit", "reinvested"},
	CapitalIntermediary: {"intermediary"},
	CapitalSeparation:   {"separation"},
}

// Spellings returns the lower-cased stored values that parse to c.
// Parsing ignores case and surrounding whitespace.
func (c CapitalSource) Spellings() []string {
	return capitalSourceSpellings[c]
}

// ParseCapitalSource accepts the canonical tags plus the "house" alias for fidus
// capital and the short "reinvested" alias.
func ParseCapitalSource(s string) (CapitalSource, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for source, spellings := range capitalSourceSpellings {
		if lo.Contains(spellings, want) {
			return source, nil
		}
	}
	return "", fmt.Errorf("unknown capital source %q", s)
}

// HeldOut reports whether the source is an operational pass-through bucket
// excluded from every capital tier.
func (c CapitalSource) HeldOut() bool {
	return c == CapitalSeparation || c == CapitalIntermediary
}

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	StatusActive   AccountStatus = "active"
	StatusInactive AccountStatus = "inactive"
)

// TradingAccount is a point-in-time snapshot of one broker account.
type TradingAccount struct {
	Number            int64           `json:"account"`
	Platform          Platform        `json:"platform"`
	Fund              Fund            `json:"fundCode"`
	CapitalSource     CapitalSource   `json:"capitalSource"`
	ClientID          string          `json:"clientId,omitempty"`
	ManagerID         string          `json:"managerId,omitempty"`
	Status            AccountStatus   `json:"status"`
	InitialAllocation decimal.Decimal `json:"initialAllocation"`
	CurrentBalance    decimal.Decimal `json:"balance"`
	CurrentEquity     decimal.Decimal `json:"equity"`
	ProfitWithdrawals decimal.Decimal `json:"profitWithdrawals"`
}

// RecordID identifies the account in error messages.
func (a TradingAccount) RecordID() string {
	return strconv.FormatInt(a.Number, 10)
}

// AccountFilter is a conjunction of equality predicates. Zero-valued fields do not constrain.
type AccountFilter struct {
	CapitalSource  CapitalSource `json:"capitalSource,omitempty"`
	ClientID       string        `json:"clientId,omitempty"`
	Fund           Fund          `json:"fund,omitempty"`
	ManagerID      string        `json:"managerId,omitempty"`
	Status         AccountStatus `json:"status,omitempty"`
	AccountNumbers []int64       `json:"accounts,omitempty"`
}

// Match reports whether the account satisfies every set predicate.
func (f AccountFilter) Match(a TradingAccount) bool {
	if f.CapitalSource != "" && a.CapitalSource != f.CapitalSource {
		return false
	}
	if f.ClientID != "" && a.ClientID != f.ClientID {
		return false
	}
	if f.Fund != "" && a.Fund != f.Fund {
		return false
	}
	if f.ManagerID != "" && a.ManagerID != f.ManagerID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if len(f.AccountNumbers) > 0 && !lo.Contains(f.AccountNumbers, a.Number) {
		return false
	}
	return true
}

// Apply returns the accounts matching the filter, preserving input order.
func (f AccountFilter) Apply(accounts []TradingAccount) []TradingAccount {
	return lo.Filter(accounts, func(a TradingAccount, _ int) bool {
		return f.Match(a)
	})
}

// AccountNumbers extracts the account numbers of a set of accounts.
func AccountNumbers(accounts []TradingAccount) []int64 {
	return lo.Map(accounts, func(a TradingAccount, _ int) int64 {
		return a.Number
	})
}
