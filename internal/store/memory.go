package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/fidus-platform/fidus/internal/domain"
)

// MemoryStore implements Source and InvestmentSource with in-memory slices.
// Used for tests and development.
type MemoryStore struct {
	mu          sync.RWMutex
	accounts    []domain.TradingAccount
	deals       []domain.DealRecord
	investments []domain.Investment
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// PutAccount inserts or replaces an account by number.
func (s *MemoryStore) PutAccount(a domain.TradingAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := slices.IndexFunc(s.accounts, func(existing domain.TradingAccount) bool {
		return existing.Number == a.Number
	}); i >= 0 {
		s.accounts[i] = a
		return
	}
	s.accounts = append(s.accounts, a)
}

// AppendDeals appends deal records in insertion order. Duplicates are kept,
// mirroring repeated sync runs against the ledger.
func (s *MemoryStore) AppendDeals(records ...domain.DealRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deals = append(s.deals, records...)
}

// PutInvestment adds a client investment.
func (s *MemoryStore) PutInvestment(inv domain.Investment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lo.ContainsBy(s.investments, func(existing domain.Investment) bool { return existing.ID == inv.ID }) {
		return fmt.Errorf("investment %s already exists", inv.ID)
	}
	s.investments = append(s.investments, inv)
	return nil
}

func (s *MemoryStore) FindAccounts(_ context.Context, filter domain.AccountFilter) ([]domain.TradingAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Apply allocates a fresh slice, so callers never alias store memory.
	return filter.Apply(s.accounts), nil
}

func (s *MemoryStore) FindDeals(_ context.Context, accountNumbers []int64, window *domain.Window) ([]domain.DealRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := lo.SliceToMap(accountNumbers, func(n int64) (int64, bool) { return n, true })
	return lo.Filter(s.deals, func(d domain.DealRecord, _ int) bool {
		if !wanted[d.AccountNumber] {
			return false
		}
		return window == nil || inWindow(d.Time, *window)
	}), nil
}

func (s *MemoryStore) FindInvestments(_ context.Context, fund domain.Fund) ([]domain.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Filter(s.investments, func(inv domain.Investment, _ int) bool {
		return fund == "" || inv.Fund == fund
	}), nil
}
