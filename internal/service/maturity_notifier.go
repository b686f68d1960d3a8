package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/stakevault/internal/domain"
	"github.com/alanyoungcy/stakevault/internal/notify"
)

// MaturityNotifier polls active stakes and publishes a stake_matured event the
// first time each stake is observed at or past maturity. It is purely
// informational: maturity never changes a stake's state, and the payout tier
// is still decided at liquidation time.
type MaturityNotifier struct {
	store    domain.LedgerStore
	bus      domain.SignalBus
	notifier *notify.Notifier
	pollDur  time.Duration
	logger   *slog.Logger

	// seen tracks stakes already announced so restarts of the poll loop do
	// not re-fire within one process. Keyed by holder:id.
	seen map[string]struct{}
}

// NewMaturityNotifier creates a MaturityNotifier. pollInterval is how often
// active stakes are scanned for newly matured records.
func NewMaturityNotifier(
	store domain.LedgerStore,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	pollInterval time.Duration,
	logger *slog.Logger,
) *MaturityNotifier {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &MaturityNotifier{
		store:    store,
		bus:      bus,
		notifier: notifier,
		pollDur:  pollInterval,
		logger:   logger.With(slog.String("component", "maturity_notifier")),
		seen:     make(map[string]struct{}),
	}
}

// Run scans for matured stakes until ctx is cancelled. Call in a goroutine.
func (m *MaturityNotifier) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.pollDur)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.checkMaturity(ctx); err != nil {
				m.logger.ErrorContext(ctx, "maturity scan failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (m *MaturityNotifier) checkMaturity(ctx context.Context) error {
	now := time.Now().UTC()
	active, err := m.store.ListActive(ctx, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("service: list active stakes: %w", err)
	}
	for _, stake := range active {
		if !stake.Mature(now) {
			continue
		}
		key := fmt.Sprintf("%s:%d", strings.ToLower(stake.Owner.Hex()), stake.ID)
		if _, ok := m.seen[key]; ok {
			continue
		}
		m.seen[key] = struct{}{}

		m.logger.InfoContext(ctx, "stake matured",
			slog.String("holder", stake.Owner.Hex()),
			slog.Uint64("stake_id", stake.ID),
			slog.String("amount", stake.Amount.String()),
			slog.Time("matured_at", stake.MaturesAt()),
		)
		if m.bus != nil {
			payload, _ := json.Marshal(domain.StakeMaturedEvent{
				Holder:    stake.Owner,
				StakeID:   stake.ID,
				Amount:    stake.Amount,
				MaturedAt: stake.MaturesAt(),
			})
			if err := m.bus.Publish(ctx, domain.ChannelStakeMatured, payload); err != nil {
				m.logger.WarnContext(ctx, "matured event publish failed",
					slog.Uint64("stake_id", stake.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		if m.notifier != nil {
			msg := fmt.Sprintf("Stake #%d for %s matured: %s plus %s reward claimable",
				stake.ID, stake.Owner.Hex(), stake.Amount, stake.Reward)
			if err := m.notifier.Notify(ctx, domain.ChannelStakeMatured, "Stake matured", msg); err != nil {
				m.logger.WarnContext(ctx, "matured notification failed",
					slog.Uint64("stake_id", stake.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return nil
}
