package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SettleFunc performs the outward asset push for a liquidation. It runs after
// the ledger has debited the holder's balance and flagged the stake, but
// before the mutation is committed: when it returns an error the whole
// liquidation, ledger mutation included, is rolled back.
type SettleFunc func(stake *Stake) error

// LedgerStore owns the holder -> ordered stake list mapping and the holder ->
// aggregate active balance. Between operations every holder satisfies
// balance == sum of Amount over their non-liquidated stakes.
type LedgerStore interface {
	// CreateStake appends a stake and increases the holder's aggregate
	// balance by stake.Amount in one atomic unit. The store assigns
	// stake.ID = current count + 1 and returns the stored record.
	CreateStake(ctx context.Context, stake *Stake) (*Stake, error)

	// Liquidate debits the holder's aggregate balance by the stake's
	// amount, marks it liquidated, and only then invokes settle. A settle
	// error rolls the mutation back. It fails with ErrInvalidStakeID when
	// id is out of range and ErrAlreadyLiquidated on a repeat call.
	Liquidate(ctx context.Context, holder common.Address, id uint64, settle SettleFunc) (*Stake, error)

	// GetStake returns the stake with the given 1-based id, or
	// ErrInvalidStakeID when the holder has no such record.
	GetStake(ctx context.Context, holder common.Address, id uint64) (*Stake, error)

	// ListStakes returns all of the holder's stakes in insertion order,
	// liquidated ones included.
	ListStakes(ctx context.Context, holder common.Address) ([]*Stake, error)

	// Balance returns the holder's aggregate active balance.
	Balance(ctx context.Context, holder common.Address) (*big.Int, error)

	// StakeCount returns how many stakes the holder has ever created.
	StakeCount(ctx context.Context, holder common.Address) (uint64, error)

	// ListLiquidatedBefore returns liquidated stakes created before the
	// cutoff, across all holders. Used by the snapshot archiver.
	ListLiquidatedBefore(ctx context.Context, cutoff time.Time, opts ListOpts) ([]*Stake, error)

	// ListActive returns all non-liquidated stakes across holders, in
	// creation order. Used by the maturity notifier.
	ListActive(ctx context.Context, opts ListOpts) ([]*Stake, error)
}

// DepositStore durably records which deposit transactions have been credited,
// so a holder cannot replay the same deposit hash after a process restart.
type DepositStore interface {
	// Consume marks the deposit transaction as credited. It fails with
	// ErrDepositConsumed when the hash was recorded before.
	Consume(ctx context.Context, depositTx common.Hash) error
}

// AuditEntry is a single append-only audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of ledger mutations.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
