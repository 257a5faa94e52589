// Package store provides the read-only data sources the calculators consume.
// MongoDB is the system of record; PostgreSQL holds a mirror; Redis caches
// account lookups; the in-memory store backs tests and local development.
package store

import (
	"context"

	"github.com/fidus-platform/fidus/internal/domain"
)

// Source is the query surface the P&L core reads from.
type Source interface {
	// FindAccounts returns the accounts matching every predicate of the filter.
	FindAccounts(ctx context.Context, filter domain.AccountFilter) ([]domain.TradingAccount, error)

	// FindDeals returns the deals of the given accounts in insertion order.
	// A nil window returns the full history.
	FindDeals(ctx context.Context, accountNumbers []int64, window *domain.Window) ([]domain.DealRecord, error)
}

// InvestmentSource lists client principal per fund.
type InvestmentSource interface {
	FindInvestments(ctx context.Context, fund domain.Fund) ([]domain.Investment, error)
}
