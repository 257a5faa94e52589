package store

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/fidus-platform/fidus/internal/domain"
)

// rawAccount is an account row before normalization. Money fields hold whatever
// the driver produced: decimal wrappers, floats, strings or nil.
type rawAccount struct {
	Number            any
	Platform          string
	Fund              string
	CapitalSource     string
	ClientID          string
	ManagerID         string
	Status            string
	InitialAllocation any
	Balance           any
	Equity            any
	ProfitWithdrawals any
}

func (r rawAccount) decode() (domain.TradingAccount, error) {
	number, err := toInt64("account", "", r.Number)
	if err != nil {
		return domain.TradingAccount{}, err
	}
	id := strconv.FormatInt(number, 10)

	fund, err := domain.ParseFund(r.Fund)
	if err != nil {
		return domain.TradingAccount{}, &domain.DataIntegrityError{Field: "fund_code", RecordID: id, Value: r.Fund, Err: err}
	}
	source, err := domain.ParseCapitalSource(r.CapitalSource)
	if err != nil {
		return domain.TradingAccount{}, &domain.DataIntegrityError{Field: "capital_source", RecordID: id, Value: r.CapitalSource, Err: err}
	}

	a := domain.TradingAccount{
		Number:        number,
		Platform:      parsePlatform(r.Platform),
		Fund:          fund,
		CapitalSource: source,
		ClientID:      r.ClientID,
		ManagerID:     r.ManagerID,
		Status:        parseStatus(r.Status),
	}

	if a.InitialAllocation, err = domain.Normalize("initial_allocation", id, r.InitialAllocation); err != nil {
		return domain.TradingAccount{}, err
	}
	if a.CurrentBalance, err = domain.Normalize("balance", id, r.Balance); err != nil {
		return domain.TradingAccount{}, err
	}
	if a.CurrentEquity, err = domain.Normalize("equity", id, r.Equity); err != nil {
		return domain.TradingAccount{}, err
	}
	if a.ProfitWithdrawals, err = domain.Normalize("profit_withdrawals", id, r.ProfitWithdrawals); err != nil {
		return domain.TradingAccount{}, err
	}
	return a, nil
}

// rawDeal is a deal-history row before normalization.
type rawDeal struct {
	Ticket        any
	AccountNumber any
	Type          any
	Time          any
	Volume        any
	Profit        any
}

func (r rawDeal) decode(loc *time.Location) (domain.DealRecord, error) {
	account, err := toInt64("account_number", "", r.AccountNumber)
	if err != nil {
		return domain.DealRecord{}, err
	}
	ticket, err := toInt64("ticket", strconv.FormatInt(account, 10), r.Ticket)
	if err != nil {
		return domain.DealRecord{}, err
	}
	d := domain.DealRecord{Ticket: ticket, AccountNumber: account}
	id := d.RecordID()

	if d.Type, err = domain.ParseEntryType(r.Type); err != nil {
		return domain.DealRecord{}, &domain.DataIntegrityError{Field: "type", RecordID: id, Value: fmt.Sprintf("%v", r.Type), Err: err}
	}
	if d.Time, err = domain.ParseTimestamp(r.Time, id, loc); err != nil {
		return domain.DealRecord{}, err
	}
	if d.Volume, err = domain.Normalize("volume", id, r.Volume); err != nil {
		return domain.DealRecord{}, err
	}
	if d.Profit, err = domain.Normalize("profit", id, r.Profit); err != nil {
		return domain.DealRecord{}, err
	}
	return d, nil
}

func toInt64(field, recordID string, raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int64(v), nil
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, &domain.DataIntegrityError{Field: field, RecordID: recordID, Value: fmt.Sprintf("%v", raw), Reason: "not an integer identifier"}
}

func parsePlatform(s string) domain.Platform {
	if strings.EqualFold(strings.TrimSpace(s), string(domain.PlatformMT4)) {
		return domain.PlatformMT4
	}
	return domain.PlatformMT5
}

func parseStatus(s string) domain.AccountStatus {
	if strings.EqualFold(strings.TrimSpace(s), string(domain.StatusInactive)) {
		return domain.StatusInactive
	}
	return domain.StatusActive
}

// spellingPattern matches any of the spellings ignoring surrounding whitespace.
// Callers apply it case-insensitively, which is how the decoders parse these
// columns, so a filter selects every row that decodes to the filtered value.
func spellingPattern(spellings ...string) string {
	quoted := lo.Map(spellings, func(s string, _ int) string { return regexp.QuoteMeta(s) })
	return `^\s*(` + strings.Join(quoted, "|") + `)\s*$`
}

func capitalSourcePattern(c domain.CapitalSource) string {
	if spellings := c.Spellings(); len(spellings) > 0 {
		return spellingPattern(spellings...)
	}
	return spellingPattern(string(c))
}

func fundPattern(f domain.Fund) string {
	return spellingPattern(string(f))
}

// inactivePattern selects inactive rows; every other status decodes as active.
var inactivePattern = spellingPattern(string(domain.StatusInactive))
