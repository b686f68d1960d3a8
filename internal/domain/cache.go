package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceCache caches holder aggregate balances in front of the ledger store.
// Entries are invalidated on every mutation for the holder.
type BalanceCache interface {
	SetBalance(ctx context.Context, holder common.Address, balance *big.Int, ts time.Time) error
	GetBalance(ctx context.Context, holder common.Address) (*big.Int, time.Time, error)
	Invalidate(ctx context.Context, holder common.Address) error
}

// RateLimiter applies request rate limiting.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under limit
	// requests per window, counting the request when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed mutual exclusion. The ledger acquires a
// per-holder lock so stake and liquidate operations for one holder are
// serialized across service replicas.
type LockManager interface {
	// Acquire obtains the lock for key with the given TTL, returning an
	// unlock function, or ErrLockHeld when another party holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// StreamMessage is a single durable message read from a bus stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub for ephemeral event fan-out and streams for
// durable, ordered delivery.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
