// Package ledger implements the staking engine: the stake lifecycle, the
// per-holder multi-stake ledger, the reward-tier calculation, and the
// liquidation state transition. The engine is parameterized over a
// domain.LedgerStore for persistence and a domain.AssetVault for asset
// movement, so the same logic serves the native-currency and ERC-20 variants.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/stakevault/internal/domain"
)

// Engine validates operations, computes rewards, and drives the ledger store
// and asset vault. One engine instance serves all holders.
type Engine struct {
	store  domain.LedgerStore
	vault  domain.AssetVault
	logger *slog.Logger

	// now is swapped out in tests to pin maturity boundaries.
	now func() time.Time
}

// New creates an Engine over the given store and vault.
func New(store domain.LedgerStore, vault domain.AssetVault, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		vault:  vault,
		logger: logger.With(slog.String("component", "ledger")),
		now:    time.Now,
	}
}

// SetClock overrides the engine's time source. Intended for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Vault returns the asset vault the engine settles against.
func (e *Engine) Vault() domain.AssetVault {
	return e.vault
}

// Stake pulls amount into custody, computes the tier reward, and appends a
// new active stake for the holder. The pull happens before any ledger
// mutation; a failed pull commits nothing. The append and the aggregate
// balance increase are one atomic unit in the store.
func (e *Engine) Stake(ctx context.Context, holder common.Address, amount *big.Int, durationDays int) (*domain.Stake, error) {
	if err := checkHolder(holder); err != nil {
		return nil, err
	}
	if !domain.ValidDuration(durationDays) {
		return nil, fmt.Errorf("ledger: duration %d days: %w", durationDays, domain.ErrInvalidDuration)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	if err := e.vault.Pull(ctx, holder, amount); err != nil {
		return nil, fmt.Errorf("ledger: pull %s into custody: %w", amount, err)
	}

	stake := &domain.Stake{
		Owner:        holder,
		Amount:       new(big.Int).Set(amount),
		Reward:       Reward(durationDays, amount),
		DurationDays: durationDays,
		CreatedAt:    e.now().UTC(),
	}

	created, err := e.store.CreateStake(ctx, stake)
	if err != nil {
		// Custody already holds the funds; return them before surfacing
		// the failure so no value is stranded.
		if pushErr := e.vault.Push(ctx, holder, amount); pushErr != nil {
			e.logger.ErrorContext(ctx, "refund after failed append",
				slog.String("holder", holder.Hex()),
				slog.String("amount", amount.String()),
				slog.String("error", pushErr.Error()),
			)
		}
		return nil, fmt.Errorf("ledger: append stake: %w", err)
	}

	e.logger.InfoContext(ctx, "stake opened",
		slog.String("holder", holder.Hex()),
		slog.Uint64("stake_id", created.ID),
		slog.String("amount", created.Amount.String()),
		slog.Int("duration_days", durationDays),
	)
	return created, nil
}

// Liquidate closes the addressed stake and pays the holder. The store debits
// the aggregate balance and flips the liquidated flag before the outward push
// runs; a nested or repeated liquidation therefore fails the not-already-
// liquidated precondition even while the push is in flight. A failed push
// rolls the ledger mutation back, so the operation is all-or-nothing.
//
// The stake is early when liquidation happens strictly before
// createdAt+duration: the reward is forfeited and only the principal is
// returned. At or after maturity the payout is principal plus reward.
func (e *Engine) Liquidate(ctx context.Context, holder common.Address, stakeID uint64) (*domain.Stake, *big.Int, error) {
	if err := checkHolder(holder); err != nil {
		return nil, nil, err
	}
	if stakeID == 0 {
		return nil, nil, domain.ErrInvalidStakeID
	}

	now := e.now().UTC()
	var payout *big.Int

	closed, err := e.store.Liquidate(ctx, holder, stakeID, func(stake *domain.Stake) error {
		payout = stake.Payout(now)
		if err := e.vault.Push(ctx, holder, payout); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrTransferFailed, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrTransferFailed) {
			e.logger.ErrorContext(ctx, "payout push failed, liquidation rolled back",
				slog.String("holder", holder.Hex()),
				slog.Uint64("stake_id", stakeID),
				slog.String("error", err.Error()),
			)
		}
		return nil, nil, fmt.Errorf("ledger: liquidate stake %d: %w", stakeID, err)
	}

	e.logger.InfoContext(ctx, "stake closed",
		slog.String("holder", holder.Hex()),
		slog.Uint64("stake_id", stakeID),
		slog.String("principal", closed.Amount.String()),
		slog.String("payout", payout.String()),
		slog.Bool("early", !closed.Mature(now)),
	)
	return closed, payout, nil
}

// Balance returns the holder's aggregate active balance: the sum of principal
// over their non-liquidated stakes.
func (e *Engine) Balance(ctx context.Context, holder common.Address) (*big.Int, error) {
	if err := checkHolder(holder); err != nil {
		return nil, err
	}
	return e.store.Balance(ctx, holder)
}

// ListStakes returns the holder's full stake history in insertion order,
// liquidated records included.
func (e *Engine) ListStakes(ctx context.Context, holder common.Address) ([]*domain.Stake, error) {
	if err := checkHolder(holder); err != nil {
		return nil, err
	}
	return e.store.ListStakes(ctx, holder)
}

// GetStake returns a single stake by its 1-based id.
func (e *Engine) GetStake(ctx context.Context, holder common.Address, stakeID uint64) (*domain.Stake, error) {
	if err := checkHolder(holder); err != nil {
		return nil, err
	}
	if stakeID == 0 {
		return nil, domain.ErrInvalidStakeID
	}
	return e.store.GetStake(ctx, holder, stakeID)
}

// checkHolder rejects the zero address before any operation proceeds.
func checkHolder(holder common.Address) error {
	if holder == (common.Address{}) {
		return domain.ErrZeroAddress
	}
	return nil
}
