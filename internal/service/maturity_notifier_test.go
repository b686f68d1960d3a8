package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakevault/internal/domain"
	"github.com/alanyoungcy/stakevault/internal/ledger"
)

func TestMaturityNotifierAnnouncesOnce(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()
	bus := newFakeBus()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// One stake created long enough ago to be mature, one fresh.
	_, err := store.CreateStake(ctx, &domain.Stake{
		Owner:        testHolder,
		Amount:       big.NewInt(1000),
		Reward:       big.NewInt(50),
		DurationDays: 30,
		CreatedAt:    time.Now().UTC().Add(-31 * 24 * time.Hour),
	})
	require.NoError(t, err)
	_, err = store.CreateStake(ctx, &domain.Stake{
		Owner:        testHolder,
		Amount:       big.NewInt(500),
		Reward:       big.NewInt(25),
		DurationDays: 90,
		CreatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)

	mn := NewMaturityNotifier(store, bus, nil, time.Minute, logger)

	require.NoError(t, mn.checkMaturity(ctx))
	require.Len(t, bus.published[domain.ChannelStakeMatured], 1)

	var event domain.StakeMaturedEvent
	require.NoError(t, json.Unmarshal(bus.published[domain.ChannelStakeMatured][0], &event))
	assert.Equal(t, testHolder, event.Holder)
	assert.Equal(t, uint64(1), event.StakeID)
	assert.Equal(t, "1000", event.Amount.String())

	// A second scan must not re-announce the same stake.
	require.NoError(t, mn.checkMaturity(ctx))
	assert.Len(t, bus.published[domain.ChannelStakeMatured], 1)
}

func TestMaturityNotifierSkipsLiquidated(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()
	bus := newFakeBus()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rec, err := store.CreateStake(ctx, &domain.Stake{
		Owner:        testHolder,
		Amount:       big.NewInt(1000),
		Reward:       big.NewInt(50),
		DurationDays: 30,
		CreatedAt:    time.Now().UTC().Add(-31 * 24 * time.Hour),
	})
	require.NoError(t, err)
	_, err = store.Liquidate(ctx, testHolder, rec.ID, func(*domain.Stake) error { return nil })
	require.NoError(t, err)

	mn := NewMaturityNotifier(store, bus, nil, time.Minute, logger)
	require.NoError(t, mn.checkMaturity(ctx))
	assert.Empty(t, bus.published[domain.ChannelStakeMatured])
}
