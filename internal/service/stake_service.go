// Package service orchestrates the ledger engine with the surrounding
// infrastructure: per-holder locking, balance caching, the audit log, event
// publication, and operator notifications.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/stakevault/internal/domain"
	"github.com/alanyoungcy/stakevault/internal/ledger"
	"github.com/alanyoungcy/stakevault/internal/notify"
)

const (
	// holderLockTTL bounds how long a crashed replica can hold a holder's
	// mutation lock.
	holderLockTTL = 30 * time.Second

	// eventStream is the durable stream mirror of published events.
	eventStream = "stream:ledger_events"
)

// StakeService wraps the ledger engine with locking, caching, auditing, and
// event publication. All mutations for one holder are serialized via the
// lock manager so replicas cannot interleave ledger operations.
type StakeService struct {
	engine   *ledger.Engine
	locks    domain.LockManager
	balances domain.BalanceCache
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewStakeService creates a StakeService. locks, balances, bus, audit, and
// notifier may each be nil, in which case the corresponding side effect is
// skipped; the engine itself is required.
func NewStakeService(
	engine *ledger.Engine,
	locks domain.LockManager,
	balances domain.BalanceCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *StakeService {
	return &StakeService{
		engine:   engine,
		locks:    locks,
		balances: balances,
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "stake_service")),
	}
}

// Vault exposes the engine's asset vault for status reporting.
func (s *StakeService) Vault() domain.AssetVault {
	return s.engine.Vault()
}

// Stake locks the holder, runs the engine's stake operation, and on success
// invalidates the cached balance, audits the mutation, and publishes a
// stake_opened event.
func (s *StakeService) Stake(ctx context.Context, holder common.Address, amount *big.Int, durationDays int) (*domain.Stake, error) {
	unlock, err := s.lockHolder(ctx, holder)
	if err != nil {
		return nil, err
	}
	defer unlock()

	stake, err := s.engine.Stake(ctx, holder, amount, durationDays)
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, holder)
	s.auditLog(ctx, "stake.opened", map[string]any{
		"holder":        strings.ToLower(holder.Hex()),
		"stake_id":      stake.ID,
		"amount":        stake.Amount.String(),
		"reward":        stake.Reward.String(),
		"duration_days": stake.DurationDays,
	})
	s.publish(ctx, domain.ChannelStakeOpened, domain.StakeOpenedEvent{
		Holder:       holder,
		StakeID:      stake.ID,
		Amount:       stake.Amount,
		DurationDays: stake.DurationDays,
		CreatedAt:    stake.CreatedAt,
	})
	s.notify(ctx, domain.ChannelStakeOpened, "Stake opened",
		fmt.Sprintf("%s locked %s for %d days (stake #%d)",
			holder.Hex(), stake.Amount, stake.DurationDays, stake.ID))

	return stake, nil
}

// Liquidate locks the holder and runs the engine's liquidation. The emitted
// stake_closed event carries the principal only, never the reward.
func (s *StakeService) Liquidate(ctx context.Context, holder common.Address, stakeID uint64) (*domain.Stake, *big.Int, error) {
	unlock, err := s.lockHolder(ctx, holder)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	stake, payout, err := s.engine.Liquidate(ctx, holder, stakeID)
	if err != nil {
		return nil, nil, err
	}

	early := !stake.Mature(time.Now().UTC())

	s.invalidateBalance(ctx, holder)
	s.auditLog(ctx, "stake.closed", map[string]any{
		"holder":    strings.ToLower(holder.Hex()),
		"stake_id":  stake.ID,
		"principal": stake.Amount.String(),
		"payout":    payout.String(),
		"early":     early,
	})
	s.publish(ctx, domain.ChannelStakeClosed, domain.StakeClosedEvent{
		Holder:  holder,
		StakeID: stake.ID,
		Amount:  stake.Amount,
		Early:   early,
	})
	s.notify(ctx, domain.ChannelStakeClosed, "Stake closed",
		fmt.Sprintf("%s liquidated stake #%d, payout %s", holder.Hex(), stake.ID, payout))

	return stake, payout, nil
}

// Balance returns the holder's aggregate active balance, served from the
// cache when possible.
func (s *StakeService) Balance(ctx context.Context, holder common.Address) (*big.Int, error) {
	if s.balances != nil {
		if cached, _, err := s.balances.GetBalance(ctx, holder); err == nil {
			return cached, nil
		}
	}

	balance, err := s.engine.Balance(ctx, holder)
	if err != nil {
		return nil, err
	}

	if s.balances != nil {
		if err := s.balances.SetBalance(ctx, holder, balance, time.Now().UTC()); err != nil {
			s.logger.WarnContext(ctx, "balance cache write failed",
				slog.String("holder", holder.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}
	return balance, nil
}

// ListStakes returns the holder's full stake history.
func (s *StakeService) ListStakes(ctx context.Context, holder common.Address) ([]*domain.Stake, error) {
	return s.engine.ListStakes(ctx, holder)
}

// GetStake returns a single stake by id.
func (s *StakeService) GetStake(ctx context.Context, holder common.Address, stakeID uint64) (*domain.Stake, error) {
	return s.engine.GetStake(ctx, holder, stakeID)
}

func (s *StakeService) lockHolder(ctx context.Context, holder common.Address) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	unlock, err := s.locks.Acquire(ctx, "holder:"+strings.ToLower(holder.Hex()), holderLockTTL)
	if err != nil {
		return nil, fmt.Errorf("service: lock holder %s: %w", holder.Hex(), err)
	}
	return unlock, nil
}

func (s *StakeService) invalidateBalance(ctx context.Context, holder common.Address) {
	if s.balances == nil {
		return
	}
	if err := s.balances.Invalidate(ctx, holder); err != nil {
		s.logger.WarnContext(ctx, "balance cache invalidation failed",
			slog.String("holder", holder.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *StakeService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.ErrorContext(ctx, "audit log write failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *StakeService) publish(ctx context.Context, channel string, event any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.ErrorContext(ctx, "event marshal failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, eventStream, payload); err != nil {
		s.logger.WarnContext(ctx, "event stream append failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *StakeService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
