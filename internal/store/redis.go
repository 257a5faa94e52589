package store

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fidus-platform/fidus/internal/domain"
)

// CachedSource wraps a primary Source with a Redis read-through cache of account
// lookups. Deal history is always read from the primary: it is append-only and a
// stale copy would under-count movements.
//
// A result may therefore pair account snapshots up to ttl old with current
// deals. Cached entries never outlive ttl, and the refresh worker drops them
// every ACCOUNT_CACHE_TTL, so the account half lags the deal half by at most ttl.
// Equity and deposits can disagree within that bound; TruePnL only reads the
// account half and stays internally consistent.
type CachedSource struct {
	primary Source
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedSource creates a cached wrapper around a primary source.
func NewCachedSource(primary Source, rdb *redis.Client, ttl time.Duration) *CachedSource {
	return &CachedSource{primary: primary, rdb: rdb, ttl: ttl}
}

func (s *CachedSource) FindAccounts(ctx context.Context, filter domain.AccountFilter) ([]domain.TradingAccount, error) {
	key := accountsKey(filter)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var accounts []domain.TradingAccount
		if json.Unmarshal(data, &accounts) == nil {
			return accounts, nil
		}
	}

	accounts, err := s.primary.FindAccounts(ctx, filter)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(accounts); err == nil {
		if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
			slog.Warn("account cache write failed", "key", key, "error", err)
		}
	}
	return accounts, nil
}

func (s *CachedSource) FindDeals(ctx context.Context, accountNumbers []int64, window *domain.Window) ([]domain.DealRecord, error) {
	return s.primary.FindDeals(ctx, accountNumbers, window)
}

// Invalidate drops every cached account lookup, e.g. after the sync job refreshed snapshots.
func (s *CachedSource) Invalidate(ctx context.Context) error {
	iter := s.rdb.Scan(ctx, 0, accountsKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

const accountsKeyPrefix = "fidus:accounts:"

// accountsKey derives a stable key from the filter's JSON encoding.
func accountsKey(f domain.AccountFilter) string {
	data, _ := json.Marshal(f)
	sum := sha1.Sum(data)
	return accountsKeyPrefix + hex.EncodeToString(sum[:])
}
