package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fidus-platform/fidus/internal/domain"
)

// Collection names in the FIDUS database.
const (
	accountsCollection    = "mt5_accounts"
	dealsCollection       = "mt5_deals_history"
	investmentsCollection = "investments"
)

// MongoStore reads accounts, deals and investments from MongoDB.
// Money arrives as Decimal128, floats or strings and timestamps in several
// shapes; both are normalized here, at the storage boundary.
type MongoStore struct {
	db       *mongo.Database
	location *time.Location
}

// NewMongoStore creates a MongoDB-backed store. Naive deal timestamps are read in loc.
func NewMongoStore(db *mongo.Database, loc *time.Location) *MongoStore {
	if loc == nil {
		loc = time.UTC
	}
	return &MongoStore{db: db, location: loc}
}

// ConnectMongo opens a client and verifies the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}
	return client, nil
}

func (s *MongoStore) FindAccounts(ctx context.Context, filter domain.AccountFilter) ([]domain.TradingAccount, error) {
	cur, err := s.db.Collection(accountsCollection).Find(ctx, accountQuery(filter),
		options.Find().SetSort(bson.D{{Key: "account", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("reading accounts: %w", err)
	}

	accounts := make([]domain.TradingAccount, 0, len(docs))
	for _, doc := range docs {
		a, err := accountFromDoc(doc).decode()
		if err != nil {
			return nil, fmt.Errorf("decoding account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

// FindDeals loads the full history of the accounts and filters the window after
// normalization: stored timestamps are not comparable server-side across formats.
func (s *MongoStore) FindDeals(ctx context.Context, accountNumbers []int64, window *domain.Window) ([]domain.DealRecord, error) {
	if len(accountNumbers) == 0 {
		return nil, nil
	}
	cur, err := s.db.Collection(dealsCollection).Find(ctx,
		bson.M{"account_number": bson.M{"$in": accountNumbers}},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("querying deals: %w", err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("reading deals: %w", err)
	}

	deals := make([]domain.DealRecord, 0, len(docs))
	for _, doc := range docs {
		d, err := dealFromDoc(doc).decode(s.location)
		if err != nil {
			return nil, fmt.Errorf("decoding deal: %w", err)
		}
		if window != nil && !inWindow(d.Time, *window) {
			continue
		}
		deals = append(deals, d)
	}
	return deals, nil
}

func (s *MongoStore) FindInvestments(ctx context.Context, fund domain.Fund) ([]domain.Investment, error) {
	query := bson.M{}
	if fund != "" {
		query["fund_code"] = string(fund)
	}
	cur, err := s.db.Collection(investmentsCollection).Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying investments: %w", err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("reading investments: %w", err)
	}

	investments := make([]domain.Investment, 0, len(docs))
	for _, doc := range docs {
		inv, err := investmentFromDoc(doc, s.location)
		if err != nil {
			return nil, fmt.Errorf("decoding investment: %w", err)
		}
		investments = append(investments, inv)
	}
	return investments, nil
}

// accountQuery translates a filter into a Mongo query. Enum columns are matched
// by pattern so aliases and stray casing select the same documents the decoder
// accepts.
func accountQuery(f domain.AccountFilter) bson.M {
	q := bson.M{}
	if f.CapitalSource != "" {
		q["capital_source"] = insensitive(capitalSourcePattern(f.CapitalSource))
	}
	if f.ClientID != "" {
		q["client_id"] = f.ClientID
	}
	if f.Fund != "" {
		q["fund_code"] = insensitive(fundPattern(f.Fund))
	}
	if f.ManagerID != "" {
		q["manager_id"] = f.ManagerID
	}
	switch f.Status {
	case "":
	case domain.StatusInactive:
		q["status"] = insensitive(inactivePattern)
	default:
		q["status"] = bson.M{"$not": insensitive(inactivePattern)}
	}
	if len(f.AccountNumbers) > 0 {
		q["account"] = bson.M{"$in": f.AccountNumbers}
	}
	return q
}

func insensitive(pattern string) primitive.Regex {
	return primitive.Regex{Pattern: pattern, Options: "i"}
}

func accountFromDoc(doc bson.M) rawAccount {
	return rawAccount{
		Number:            bsonValue(doc["account"]),
		Platform:          bsonString(doc["platform"]),
		Fund:              bsonString(doc["fund_code"]),
		CapitalSource:     bsonString(doc["capital_source"]),
		ClientID:          bsonString(doc["client_id"]),
		ManagerID:         bsonString(doc["manager_id"]),
		Status:            bsonString(doc["status"]),
		InitialAllocation: bsonValue(doc["initial_allocation"]),
		Balance:           bsonValue(doc["balance"]),
		Equity:            bsonValue(doc["equity"]),
		ProfitWithdrawals: bsonValue(doc["profit_withdrawals"]),
	}
}

func dealFromDoc(doc bson.M) rawDeal {
	return rawDeal{
		Ticket:        bsonValue(doc["ticket"]),
		AccountNumber: bsonValue(doc["account_number"]),
		Type:          bsonValue(doc["type"]),
		Time:          bsonValue(doc["time"]),
		Volume:        bsonValue(doc["volume"]),
		Profit:        bsonValue(doc["profit"]),
	}
}

func investmentFromDoc(doc bson.M, loc *time.Location) (domain.Investment, error) {
	id := bsonString(doc["investment_id"])
	if id == "" {
		if oid, ok := doc["_id"].(primitive.ObjectID); ok {
			id = oid.Hex()
		}
	}
	fund, err := domain.ParseFund(bsonString(doc["fund_code"]))
	if err != nil {
		return domain.Investment{}, &domain.DataIntegrityError{Field: "fund_code", RecordID: id, Value: bsonString(doc["fund_code"]), Err: err}
	}
	principal, err := domain.Normalize("principal_amount", id, bsonValue(doc["principal_amount"]))
	if err != nil {
		return domain.Investment{}, err
	}
	start, err := domain.ParseTimestamp(bsonValue(doc["deposit_date"]), id, loc)
	if err != nil {
		return domain.Investment{}, err
	}
	return domain.Investment{
		ID:        id,
		ClientID:  bsonString(doc["client_id"]),
		Fund:      fund,
		Principal: principal,
		StartDate: start,
	}, nil
}

// bsonValue unwraps driver types into values the domain normalizers accept.
func bsonValue(v any) any {
	switch x := v.(type) {
	case primitive.Decimal128:
		return x.String()
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.Null, primitive.Undefined:
		return nil
	default:
		return v
	}
}

func bsonString(v any) string {
	s, _ := v.(string)
	return s
}

func inWindow(t time.Time, w domain.Window) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	return w.End.IsZero() || t.Before(w.End)
}
