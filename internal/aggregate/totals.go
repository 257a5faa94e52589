// Package aggregate sums money fields across sets of trading accounts.
package aggregate

import (
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/fidus-platform/fidus/internal/domain"
)

// Totals holds the summed money fields of an account set.
type Totals struct {
	TotalInitialAllocation decimal.Decimal `json:"totalInitialAllocation"`
	TotalEquity            decimal.Decimal `json:"totalEquity"`
	TotalBalance           decimal.Decimal `json:"totalBalance"`
	TotalWithdrawals       decimal.Decimal `json:"totalWithdrawals"`
	AccountCount           int             `json:"accountCount"`
}

// Aggregate sums the money fields of the given accounts. An empty set yields zero totals.
func Aggregate(accounts []domain.TradingAccount) Totals {
	return lo.Reduce(accounts, func(acc Totals, a domain.TradingAccount, _ int) Totals {
		return acc.add(a)
	}, Zero())
}

// Zero returns totals with every money field set to an explicit zero.
func Zero() Totals {
	return Totals{
		TotalInitialAllocation: decimal.Zero,
		TotalEquity:            decimal.Zero,
		TotalBalance:           decimal.Zero,
		TotalWithdrawals:       decimal.Zero,
	}
}

func (t Totals) add(a domain.TradingAccount) Totals {
	return Totals{
		TotalInitialAllocation: t.TotalInitialAllocation.Add(a.InitialAllocation),
		TotalEquity:            t.TotalEquity.Add(a.CurrentEquity),
		TotalBalance:           t.TotalBalance.Add(a.CurrentBalance),
		TotalWithdrawals:       t.TotalWithdrawals.Add(a.ProfitWithdrawals),
		AccountCount:           t.AccountCount + 1,
	}
}

// Merge adds two totals.
func (t Totals) Merge(o Totals) Totals {
	return Totals{
		TotalInitialAllocation: t.TotalInitialAllocation.Add(o.TotalInitialAllocation),
		TotalEquity:            t.TotalEquity.Add(o.TotalEquity),
		TotalBalance:           t.TotalBalance.Add(o.TotalBalance),
		TotalWithdrawals:       t.TotalWithdrawals.Add(o.TotalWithdrawals),
		AccountCount:           t.AccountCount + o.AccountCount,
	}
}

// Equal reports whether both totals carry the same values.
func (t Totals) Equal(o Totals) bool {
	return t.AccountCount == o.AccountCount &&
		t.TotalInitialAllocation.Equal(o.TotalInitialAllocation) &&
		t.TotalEquity.Equal(o.TotalEquity) &&
		t.TotalBalance.Equal(o.TotalBalance) &&
		t.TotalWithdrawals.Equal(o.TotalWithdrawals)
}

// KeyFunc maps an account to its partition key.
type KeyFunc func(domain.TradingAccount) string

// Partition keys for the common report dimensions.
var (
	ByFund          KeyFunc = func(a domain.TradingAccount) string { return string(a.Fund) }
	ByCapitalSource KeyFunc = func(a domain.TradingAccount) string { return string(a.CapitalSource) }
	ByManager       KeyFunc = func(a domain.TradingAccount) string { return a.ManagerID }
	ByClient        KeyFunc = func(a domain.TradingAccount) string { return a.ClientID }
)

// GroupBy partitions the accounts by key and aggregates each partition.
func GroupBy(accounts []domain.TradingAccount, key KeyFunc) map[string]Totals {
	groups := lo.GroupBy(accounts, func(a domain.TradingAccount) string {
		return key(a)
	})
	return lo.MapValues(groups, func(group []domain.TradingAccount, _ string) Totals {
		return Aggregate(group)
	})
}

// Keys returns the partition keys in sorted order for reproducible reports.
func Keys(groups map[string]Totals) []string {
	keys := lo.Keys(groups)
	sort.Strings(keys)
	return keys
}
