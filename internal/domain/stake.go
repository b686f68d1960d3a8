// Package domain defines the core types, interfaces, and error taxonomy for
// the stakevault custody backend. Concrete implementations (postgres, redis,
// chain adapters) live in their own packages and depend only on this one.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Accepted lock tiers, in days.
const (
	DurationShort  = 30
	DurationMedium = 60
	DurationLong   = 90
)

// ValidDuration reports whether days is one of the accepted lock tiers.
func ValidDuration(days int) bool {
	switch days {
	case DurationShort, DurationMedium, DurationLong:
		return true
	default:
		return false
	}
}

// Stake is a single principal deposit locked for a fixed duration. Everything
// except Liquidated is fixed at creation; Liquidated flips to true exactly
// once and never back.
type Stake struct {
	// ID is a 1-based sequence number unique within the owner's stake list.
	// IDs are never reused or reordered, even after liquidation.
	ID uint64

	Owner        common.Address
	Amount       *big.Int
	Reward       *big.Int
	DurationDays int
	CreatedAt    time.Time
	Liquidated   bool
}

// Duration returns the lock length as a time.Duration.
func (s *Stake) Duration() time.Duration {
	return time.Duration(s.DurationDays) * 24 * time.Hour
}

// MaturesAt returns the instant the stake matures.
func (s *Stake) MaturesAt() time.Time {
	return s.CreatedAt.Add(s.Duration())
}

// Mature reports whether the stake has reached maturity at the given time.
// The cliff is hard: exactly at MaturesAt the stake is mature.
func (s *Stake) Mature(now time.Time) bool {
	return !now.Before(s.MaturesAt())
}

// Payout returns the amount owed to the owner if the stake were liquidated at
// the given time: principal plus reward at or after maturity, principal only
// before it.
func (s *Stake) Payout(now time.Time) *big.Int {
	out := new(big.Int).Set(s.Amount)
	if s.Mature(now) {
		out.Add(out, s.Reward)
	}
	return out
}

// Clone returns a deep copy so callers can hand out stakes without sharing
// the big.Int internals.
func (s *Stake) Clone() *Stake {
	cp := *s
	cp.Amount = new(big.Int).Set(s.Amount)
	cp.Reward = new(big.Int).Set(s.Reward)
	return &cp
}
