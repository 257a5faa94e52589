package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fidus-platform/fidus/internal/domain"
)

// PgStore implements Source and InvestmentSource over the PostgreSQL mirror.
// NUMERIC columns are read as text and normalized, never scanned into floats.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PostgreSQL-backed store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) FindAccounts(ctx context.Context, filter domain.AccountFilter) ([]domain.TradingAccount, error) {
	where, args := accountWhere(filter)
	rows, err := s.pool.Query(ctx,
		`SELECT account_number, platform, fund_code, capital_source,
		        COALESCE(client_id, ''), COALESCE(manager_id, ''), status,
		        initial_allocation::TEXT, balance::TEXT, equity::TEXT, profit_withdrawals::TEXT
		 FROM trading_accounts`+where+`
		 ORDER BY account_number`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.TradingAccount
	for rows.Next() {
		var r rawAccount
		var number int64
		var initial, balance, equity, withdrawals *string
		if err := rows.Scan(&number, &r.Platform, &r.Fund, &r.CapitalSource,
			&r.ClientID, &r.ManagerID, &r.Status,
			&initial, &balance, &equity, &withdrawals); err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		r.Number = number
		r.InitialAllocation, r.Balance, r.Equity, r.ProfitWithdrawals = initial, balance, equity, withdrawals

		a, err := r.decode()
		if err != nil {
			return nil, fmt.Errorf("decoding account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accounts: %w", err)
	}
	return accounts, nil
}

func (s *PgStore) FindDeals(ctx context.Context, accountNumbers []int64, window *domain.Window) ([]domain.DealRecord, error) {
	if len(accountNumbers) == 0 {
		return nil, nil
	}
	query := `SELECT ticket, account_number, deal_type, deal_time, volume::TEXT, profit::TEXT
	          FROM deal_records
	          WHERE account_number = ANY($1)`
	args := []any{accountNumbers}
	if window != nil {
		if !window.Start.IsZero() {
			args = append(args, window.Start)
			query += fmt.Sprintf(" AND deal_time >= $%d", len(args))
		}
		if !window.End.IsZero() {
			args = append(args, window.End)
			query += fmt.Sprintf(" AND deal_time < $%d", len(args))
		}
	}
	query += " ORDER BY id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying deals: %w", err)
	}
	defer rows.Close()

	var deals []domain.DealRecord
	for rows.Next() {
		var ticket, account int64
		var dealType string
		var dealTime time.Time
		var volume, profit *string
		if err := rows.Scan(&ticket, &account, &dealType, &dealTime, &volume, &profit); err != nil {
			return nil, fmt.Errorf("scanning deal: %w", err)
		}
		d, err := rawDeal{
			Ticket:        ticket,
			AccountNumber: account,
			Type:          dealType,
			Time:          dealTime,
			Volume:        volume,
			Profit:        profit,
		}.decode(time.UTC)
		if err != nil {
			return nil, fmt.Errorf("decoding deal: %w", err)
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deals: %w", err)
	}
	return deals, nil
}

func (s *PgStore) FindInvestments(ctx context.Context, fund domain.Fund) ([]domain.Investment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, client_id, fund_code, principal::TEXT, start_date
		 FROM investments
		 WHERE $1 = '' OR fund_code = $1
		 ORDER BY start_date, id`, string(fund))
	if err != nil {
		return nil, fmt.Errorf("querying investments: %w", err)
	}

	investments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Investment, error) {
		var inv domain.Investment
		var fundCode, principal string
		var err error
		if err = row.Scan(&inv.ID, &inv.ClientID, &fundCode, &principal, &inv.StartDate); err != nil {
			return domain.Investment{}, err
		}
		if inv.Fund, err = domain.ParseFund(fundCode); err != nil {
			return domain.Investment{}, &domain.DataIntegrityError{Field: "fund_code", RecordID: inv.ID, Value: fundCode, Err: err}
		}
		if inv.Principal, err = domain.Normalize("principal", inv.ID, principal); err != nil {
			return domain.Investment{}, err
		}
		inv.StartDate = inv.StartDate.UTC()
		return inv, nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading investments: %w", err)
	}
	return investments, nil
}

func accountWhere(f domain.AccountFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(format string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(format, len(args)))
	}
	if f.CapitalSource != "" {
		add("capital_source ~* $%d", capitalSourcePattern(f.CapitalSource))
	}
	if f.ClientID != "" {
		add("client_id = $%d", f.ClientID)
	}
	if f.Fund != "" {
		add("fund_code ~* $%d", fundPattern(f.Fund))
	}
	if f.ManagerID != "" {
		add("manager_id = $%d", f.ManagerID)
	}
	switch f.Status {
	case "":
	case domain.StatusInactive:
		add("status ~* $%d", inactivePattern)
	default:
		add("coalesce(status, '') !~* $%d", inactivePattern)
	}
	if len(f.AccountNumbers) > 0 {
		add("account_number = ANY($%d)", f.AccountNumbers)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
