package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/stakevault/internal/domain"
)

// MemoryStore is an in-process domain.LedgerStore. It backs the "memory"
// persistence mode and the engine tests. All operations on one store are
// serialized by a single mutex, which also gives each holder the sequential
// execution the ledger semantics assume.
type MemoryStore struct {
	mu      sync.Mutex
	holders map[common.Address]*holderLedger
}

type holderLedger struct {
	stakes  []*domain.Stake
	balance *big.Int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{holders: make(map[common.Address]*holderLedger)}
}

func (m *MemoryStore) ledgerFor(holder common.Address) *holderLedger {
	hl, ok := m.holders[holder]
	if !ok {
		hl = &holderLedger{balance: new(big.Int)}
		m.holders[holder] = hl
	}
	return hl
}

// CreateStake appends the stake with id = count+1 and credits the holder's
// aggregate balance in the same critical section.
func (m *MemoryStore) CreateStake(_ context.Context, stake *domain.Stake) (*domain.Stake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hl := m.ledgerFor(stake.Owner)
	rec := stake.Clone()
	rec.ID = uint64(len(hl.stakes)) + 1
	rec.Liquidated = false

	hl.stakes = append(hl.stakes, rec)
	hl.balance.Add(hl.balance, rec.Amount)
	return rec.Clone(), nil
}

// Liquidate debits the balance and flips the liquidated flag before invoking
// settle. When settle fails both mutations are reverted, restoring the
// invariant as if the call never happened.
func (m *MemoryStore) Liquidate(_ context.Context, holder common.Address, id uint64, settle domain.SettleFunc) (*domain.Stake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hl, ok := m.holders[holder]
	if !ok || id == 0 || id > uint64(len(hl.stakes)) {
		return nil, domain.ErrInvalidStakeID
	}
	rec := hl.stakes[id-1]
	if rec.Liquidated {
		return nil, domain.ErrAlreadyLiquidated
	}

	// Debit, then flag, then transfer. The order is load-bearing.
	hl.balance.Sub(hl.balance, rec.Amount)
	rec.Liquidated = true

	if err := settle(rec.Clone()); err != nil {
		rec.Liquidated = false
		hl.balance.Add(hl.balance, rec.Amount)
		return nil, err
	}
	return rec.Clone(), nil
}

// GetStake returns the stake with the given 1-based id.
func (m *MemoryStore) GetStake(_ context.Context, holder common.Address, id uint64) (*domain.Stake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hl, ok := m.holders[holder]
	if !ok || id == 0 || id > uint64(len(hl.stakes)) {
		return nil, fmt.Errorf("ledger: stake %d for %s: %w", id, holder.Hex(), domain.ErrInvalidStakeID)
	}
	return hl.stakes[id-1].Clone(), nil
}

// ListStakes returns the holder's stakes in insertion order.
func (m *MemoryStore) ListStakes(_ context.Context, holder common.Address) ([]*domain.Stake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hl, ok := m.holders[holder]
	if !ok {
		return []*domain.Stake{}, nil
	}
	out := make([]*domain.Stake, 0, len(hl.stakes))
	for _, s := range hl.stakes {
		out = append(out, s.Clone())
	}
	return out, nil
}

// Balance returns the holder's aggregate active balance.
func (m *MemoryStore) Balance(_ context.Context, holder common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hl, ok := m.holders[holder]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(hl.balance), nil
}

// StakeCount returns how many stakes the holder has ever created.
func (m *MemoryStore) StakeCount(_ context.Context, holder common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hl, ok := m.holders[holder]
	if !ok {
		return 0, nil
	}
	return uint64(len(hl.stakes)), nil
}

// ListLiquidatedBefore returns liquidated stakes created before the cutoff,
// across all holders, ordered by creation time.
func (m *MemoryStore) ListLiquidatedBefore(_ context.Context, cutoff time.Time, opts domain.ListOpts) ([]*domain.Stake, error) {
	return m.collect(opts, func(s *domain.Stake) bool {
		return s.Liquidated && s.CreatedAt.Before(cutoff)
	})
}

// ListActive returns all non-liquidated stakes across holders.
func (m *MemoryStore) ListActive(_ context.Context, opts domain.ListOpts) ([]*domain.Stake, error) {
	return m.collect(opts, func(s *domain.Stake) bool {
		return !s.Liquidated
	})
}

func (m *MemoryStore) collect(opts domain.ListOpts, keep func(*domain.Stake) bool) ([]*domain.Stake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Stake
	for _, hl := range m.holders {
		for _, s := range hl.stakes {
			if keep(s) {
				out = append(out, s.Clone())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []*domain.Stake{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.LedgerStore = (*MemoryStore)(nil)
