package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fidus-platform/fidus/internal/domain"
)

func TestMemoryStoreFindAccounts(t *testing.T) {
	s := NewMemoryStore()
	s.PutAccount(domain.TradingAccount{Number: 1, CapitalSource: domain.CapitalClient, ClientID: "c1"})
	s.PutAccount(domain.TradingAccount{Number: 2, CapitalSource: domain.CapitalFidus})
	s.PutAccount(domain.TradingAccount{Number: 1, CapitalSource: domain.CapitalClient, ClientID: "c2"})

	got, err := s.FindAccounts(context.Background(), domain.AccountFilter{CapitalSource: domain.CapitalClient})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ClientID != "c2" {
		t.Errorf("FindAccounts = %+v, want replaced account 1 for c2", got)
	}

	got[0].ClientID = "mutated"
	again, _ := s.FindAccounts(context.Background(), domain.AccountFilter{CapitalSource: domain.CapitalClient})
	if again[0].ClientID != "c2" {
		t.Error("returned slice aliases store memory")
	}
}

func TestMemoryStoreFindDeals(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	s.AppendDeals(
		domain.DealRecord{Ticket: 1, AccountNumber: 10, Time: base},
		domain.DealRecord{Ticket: 2, AccountNumber: 20, Time: base},
		domain.DealRecord{Ticket: 3, AccountNumber: 10, Time: base.Add(48 * time.Hour)},
		domain.DealRecord{Ticket: 1, AccountNumber: 10, Time: base},
	)

	all, err := s.FindDeals(context.Background(), []int64{10}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("len = %d, want 3 (duplicates kept, other account excluded)", len(all))
	}

	windowed, _ := s.FindDeals(context.Background(), []int64{10}, &domain.Window{Start: base, End: base.Add(24 * time.Hour)})
	if len(windowed) != 2 {
		t.Errorf("windowed len = %d, want 2", len(windowed))
	}
}

func TestMemoryStorePutInvestmentRejectsDuplicate(t *testing.T) {
	s := NewMemoryStore()
	inv := domain.Investment{ID: "inv-1", Fund: domain.FundCore}
	if err := s.PutInvestment(inv); err != nil {
		t.Fatal(err)
	}
	if err := s.PutInvestment(inv); err == nil {
		t.Error("expected duplicate error")
	}
	got, _ := s.FindInvestments(context.Background(), domain.FundBalance)
	if len(got) != 0 {
		t.Errorf("BALANCE investments = %d, want 0", len(got))
	}
}

func TestAccountFromDocNormalizesDecimal128(t *testing.T) {
	equity, err := primitive.ParseDecimal128("18423.68")
	if err != nil {
		t.Fatal(err)
	}
	doc := bson.M{
		"account":            int32(886557),
		"fund_code":          "BALANCE",
		"capital_source":     "client",
		"client_id":          "client_alejandro",
		"initial_allocation": 18151.41,
		"equity":             equity,
		"balance":            "18400.00",
		"profit_withdrawals": nil,
	}

	a, err := accountFromDoc(doc).decode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Number != 886557 || a.Fund != domain.FundBalance || a.CapitalSource != domain.CapitalClient {
		t.Errorf("identity = %+v", a)
	}
	if !a.CurrentEquity.Equal(decimal.RequireFromString("18423.68")) {
		t.Errorf("equity = %s, want 18423.68", a.CurrentEquity)
	}
	if !a.InitialAllocation.Equal(decimal.RequireFromString("18151.41")) {
		t.Errorf("initial = %s, want 18151.41", a.InitialAllocation)
	}
	if !a.ProfitWithdrawals.IsZero() {
		t.Errorf("withdrawals = %s, want 0 for null", a.ProfitWithdrawals)
	}
	if a.Platform != domain.PlatformMT5 || a.Status != domain.StatusActive {
		t.Errorf("defaults = %s / %s", a.Platform, a.Status)
	}
}

func TestAccountFromDocRejectsMalformedMoney(t *testing.T) {
	doc := bson.M{"account": int64(42), "capital_source": "fidus", "equity": "12,000.00"}

	_, err := accountFromDoc(doc).decode()
	var integrity *domain.DataIntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("error = %v, want *DataIntegrityError", err)
	}
	if integrity.Field != "equity" || integrity.RecordID != "42" {
		t.Errorf("error = %+v, want equity of record 42", integrity)
	}
}

func TestDealFromDocTimestampShapes(t *testing.T) {
	want := time.Date(2025, 10, 1, 14, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		raw  any
	}{
		{"bson datetime", primitive.NewDateTimeFromTime(want)},
		{"iso string", "2025-10-01T14:30:00Z"},
		{"broker export", "2025.10.01 14:30:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := bson.M{"ticket": int64(55), "account_number": int32(886557), "type": int32(2), "time": tt.raw, "profit": "-100.5"}
			d, err := dealFromDoc(doc).decode(time.UTC)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !d.Time.Equal(want) {
				t.Errorf("time = %v, want %v", d.Time, want)
			}
			if d.Type != domain.EntryBalance || !d.Profit.Equal(decimal.RequireFromString("-100.5")) {
				t.Errorf("deal = %+v", d)
			}
		})
	}
}

func TestDealFromDocRejectsBadTimestamp(t *testing.T) {
	doc := bson.M{"ticket": int64(55), "account_number": int64(886557), "type": "buy", "time": "01/10/2025"}

	_, err := dealFromDoc(doc).decode(time.UTC)
	var integrity *domain.DataIntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("error = %v, want *DataIntegrityError", err)
	}
	if integrity.Value != "01/10/2025" || integrity.RecordID != "886557/55" {
		t.Errorf("error = %+v", integrity)
	}
}

func TestAccountQuery(t *testing.T) {
	q := accountQuery(domain.AccountFilter{CapitalSource: domain.CapitalClient, ClientID: "c1", AccountNumbers: []int64{1, 2}})
	if q["client_id"] != "c1" {
		t.Errorf("query = %v", q)
	}
	if re, ok := q["capital_source"].(primitive.Regex); !ok || re.Options != "i" {
		t.Errorf("capital_source clause = %#v, want case-insensitive regex", q["capital_source"])
	}
	if _, ok := q["account"]; !ok {
		t.Error("expected account $in clause")
	}
	if len(accountQuery(domain.AccountFilter{})) != 0 {
		t.Error("empty filter should produce empty query")
	}
}

// matchesQuery evaluates the subset of Mongo operators accountQuery emits.
func matchesQuery(t *testing.T, q bson.M, doc bson.M) bool {
	t.Helper()
	for field, cond := range q {
		value, _ := doc[field].(string)
		switch c := cond.(type) {
		case string:
			if value != c {
				return false
			}
		case primitive.Regex:
			if !regexp.MustCompile("(?" + c.Options + ")" + c.Pattern).MatchString(value) {
				return false
			}
		case bson.M:
			re, ok := c["$not"].(primitive.Regex)
			if !ok {
				t.Fatalf("unexpected operator on %s: %v", field, c)
			}
			if regexp.MustCompile("(?" + re.Options + ")" + re.Pattern).MatchString(value) {
				return false
			}
		default:
			t.Fatalf("unexpected clause on %s: %#v", field, cond)
		}
	}
	return true
}

func TestAccountQueryMatchesEveryDecodedSpelling(t *testing.T) {
	tests := []struct {
		name string
		doc  bson.M
	}{
		{"house alias with lowercase fund", bson.M{"capital_source": "house", "fund_code": "core"}},
		{"padded uppercase source", bson.M{"capital_source": " FIDUS ", "fund_code": "Balance"}},
		{"short reinvested alias", bson.M{"capital_source": "reinvested", "fund_code": "CORE"}},
		{"canonical reinvested", bson.M{"capital_source": "reinvested_profit", "fund_code": "separation "}},
		{"uppercase inactive", bson.M{"capital_source": "client", "fund_code": "CORE", "status": "INACTIVE"}},
		{"missing status is active", bson.M{"capital_source": "Client", "fund_code": "BALANCE"}},
		{"unknown status is active", bson.M{"capital_source": "separation", "fund_code": "", "status": "paused"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := bson.M{"account": int64(1)}
			for k, v := range tt.doc {
				doc[k] = v
			}
			a, err := accountFromDoc(doc).decode()
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			filter := domain.AccountFilter{CapitalSource: a.CapitalSource, Fund: a.Fund, Status: a.Status}
			if !matchesQuery(t, accountQuery(filter), doc) {
				t.Errorf("query %v for decoded %+v does not select the document %v", accountQuery(filter), filter, doc)
			}

			other := domain.CapitalClient
			if a.CapitalSource == domain.CapitalClient {
				other = domain.CapitalFidus
			}
			if matchesQuery(t, accountQuery(domain.AccountFilter{CapitalSource: other}), doc) {
				t.Errorf("query for %s selects a %s document", other, a.CapitalSource)
			}
		})
	}
}

func TestAccountWhere(t *testing.T) {
	where, args := accountWhere(domain.AccountFilter{Fund: domain.FundCore, ManagerID: "m1"})
	if where != " WHERE fund_code ~* $1 AND manager_id = $2" {
		t.Errorf("where = %q", where)
	}
	if len(args) != 2 || args[0] != fundPattern(domain.FundCore) || args[1] != "m1" {
		t.Errorf("args = %v", args)
	}

	where, args = accountWhere(domain.AccountFilter{CapitalSource: domain.CapitalFidus, Status: domain.StatusActive})
	if where != " WHERE capital_source ~* $1 AND coalesce(status, '') !~* $2" {
		t.Errorf("where = %q", where)
	}
	if pattern, _ := args[0].(string); !regexp.MustCompile("(?i)" + pattern).MatchString("House") {
		t.Errorf("fidus pattern %q does not accept the house alias", pattern)
	}

	if where, args := accountWhere(domain.AccountFilter{}); where != "" || args != nil {
		t.Errorf("empty filter = %q, %v", where, args)
	}
}

func TestAccountsKeyIsStable(t *testing.T) {
	a := accountsKey(domain.AccountFilter{CapitalSource: domain.CapitalFidus})
	b := accountsKey(domain.AccountFilter{CapitalSource: domain.CapitalFidus})
	c := accountsKey(domain.AccountFilter{CapitalSource: domain.CapitalClient})
	if a != b {
		t.Error("same filter should produce the same key")
	}
	if a == c {
		t.Error("different filters should produce different keys")
	}
}
