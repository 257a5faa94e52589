package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntryType classifies a deal-history row.
type EntryType string

const (
	EntryBuy     EntryType = "buy"
	EntrySell    EntryType = "sell"
	EntryBalance EntryType = "balance"
	// EntryOther covers credit, commission, bonus and the remaining MT5 deal types.
	EntryOther EntryType = "other"
)

// ParseEntryType accepts MT5 deal type names and their numeric codes (0 buy, 1 sell, 2 balance).
func ParseEntryType(raw any) (EntryType, error) {
	switch v := raw.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "buy", "deal_type_buy", "trade-buy", "0":
			return EntryBuy, nil
		case "sell", "deal_type_sell", "trade-sell", "1":
			return EntrySell, nil
		case "balance", "deal_type_balance", "balance-operation", "2":
			return EntryBalance, nil
		case "":
			return "", fmt.Errorf("empty entry type")
		default:
			return EntryOther, nil
		}
	case int32:
		return entryTypeFromCode(int64(v)), nil
	case int64:
		return entryTypeFromCode(v), nil
	case int:
		return entryTypeFromCode(int64(v)), nil
	default:
		return "", fmt.Errorf("unsupported entry type %T", raw)
	}
}

func entryTypeFromCode(code int64) EntryType {
	switch code {
	case 0:
		return EntryBuy
	case 1:
		return EntrySell
	case 2:
		return EntryBalance
	default:
		return EntryOther
	}
}

// IsTrade reports whether the entry is a buy or sell execution.
func (t EntryType) IsTrade() bool {
	return t == EntryBuy || t == EntrySell
}

// DealRecord is one settled row of an account's deal history.
type DealRecord struct {
	Ticket        int64           `json:"ticket"`
	AccountNumber int64           `json:"accountNumber"`
	Type          EntryType       `json:"type"`
	Time          time.Time       `json:"time"`
	Volume        decimal.Decimal `json:"volume"`
	Profit        decimal.Decimal `json:"profit"`
}

// DealKey is the identity of a deal. Tickets are unique per account only.
type DealKey struct {
	Ticket        int64
	AccountNumber int64
}

// Key returns the deal identity.
func (d DealRecord) Key() DealKey {
	return DealKey{Ticket: d.Ticket, AccountNumber: d.AccountNumber}
}

// RecordID identifies the deal in error messages.
func (d DealRecord) RecordID() string {
	return strconv.FormatInt(d.AccountNumber, 10) + "/" + strconv.FormatInt(d.Ticket, 10)
}
