package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/stakevault/internal/domain"
)

// BalanceCache implements domain.BalanceCache using Redis hashes. Each
// holder's aggregate balance is stored at "balance:{holder}" with fields
// "balance" (decimal string) and "ts" (Unix nanosecond timestamp). Entries
// are invalidated on every ledger mutation for the holder and expire on
// their own after ttl as a backstop.
type BalanceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBalanceCache creates a BalanceCache backed by the given Client. A zero
// ttl disables expiry.
func NewBalanceCache(c *Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{rdb: c.Underlying(), ttl: ttl}
}

func balanceKey(holder common.Address) string {
	return "balance:" + strings.ToLower(holder.Hex())
}

// SetBalance stores the holder's aggregate balance and its read timestamp.
func (bc *BalanceCache) SetBalance(ctx context.Context, holder common.Address, balance *big.Int, ts time.Time) error {
	key := balanceKey(holder)
	fields := map[string]interface{}{
		"balance": balance.String(),
		"ts":      strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := bc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set balance %s: %w", holder.Hex(), err)
	}
	if bc.ttl > 0 {
		if err := bc.rdb.Expire(ctx, key, bc.ttl).Err(); err != nil {
			return fmt.Errorf("redis: expire balance %s: %w", holder.Hex(), err)
		}
	}
	return nil
}

// GetBalance retrieves the cached balance and its timestamp. It returns
// domain.ErrNotFound when the holder has no cached entry.
func (bc *BalanceCache) GetBalance(ctx context.Context, holder common.Address) (*big.Int, time.Time, error) {
	vals, err := bc.rdb.HGetAll(ctx, balanceKey(holder)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get balance %s: %w", holder.Hex(), err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, domain.ErrNotFound
	}

	raw, ok := vals["balance"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	balance, ok2 := new(big.Int).SetString(raw, 10)
	if !ok2 {
		return nil, time.Time{}, fmt.Errorf("redis: malformed balance %q for %s", raw, holder.Hex())
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: parse balance ts for %s: %w", holder.Hex(), err)
	}

	return balance, time.Unix(0, tsNano), nil
}

// Invalidate drops the holder's cached balance.
func (bc *BalanceCache) Invalidate(ctx context.Context, holder common.Address) error {
	if err := bc.rdb.Del(ctx, balanceKey(holder)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate balance %s: %w", holder.Hex(), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BalanceCache = (*BalanceCache)(nil)
