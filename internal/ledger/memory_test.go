package ledger

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakevault/internal/domain"
)

func seedStake(t *testing.T, store *MemoryStore, owner common.Address, createdAt time.Time) *domain.Stake {
	t.Helper()
	rec, err := store.CreateStake(context.Background(), &domain.Stake{
		Owner:        owner,
		Amount:       big.NewInt(100),
		Reward:       big.NewInt(1),
		DurationDays: 30,
		CreatedAt:    createdAt,
	})
	require.NoError(t, err)
	return rec
}

func liquidateSeeded(t *testing.T, store *MemoryStore, owner common.Address, id uint64) {
	t.Helper()
	_, err := store.Liquidate(context.Background(), owner, id, func(*domain.Stake) error { return nil })
	require.NoError(t, err)
}

func TestMemoryStoreListActive(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a := common.HexToAddress("0x0a00000000000000000000000000000000000000")
	b := common.HexToAddress("0x0b00000000000000000000000000000000000000")
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seedStake(t, store, a, base)
	seedStake(t, store, b, base.Add(time.Hour))
	seedStake(t, store, a, base.Add(2*time.Hour))
	liquidateSeeded(t, store, a, 1)

	active, err := store.ListActive(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, active, 2)
	// Ordered by creation time across holders.
	assert.Equal(t, b, active[0].Owner)
	assert.Equal(t, a, active[1].Owner)
	assert.Equal(t, uint64(2), active[1].ID)
}

func TestMemoryStoreListLiquidatedBefore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a := common.HexToAddress("0x0a00000000000000000000000000000000000000")
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seedStake(t, store, a, base)
	seedStake(t, store, a, base.Add(48*time.Hour))
	liquidateSeeded(t, store, a, 1)
	liquidateSeeded(t, store, a, 2)

	out, err := store.ListLiquidatedBefore(ctx, base.Add(24*time.Hour), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, uint64(1), out[0].ID)
	assert.True(t, out[0].Liquidated)
}

func TestMemoryStorePagination(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a := common.HexToAddress("0x0a00000000000000000000000000000000000000")
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedStake(t, store, a, base.Add(time.Duration(i)*time.Minute))
	}

	page, err := store.ListActive(ctx, domain.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(2), page[0].ID)
	assert.Equal(t, uint64(3), page[1].ID)

	past, err := store.ListActive(ctx, domain.ListOpts{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestMemoryStoreSettleRollback(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a := common.HexToAddress("0x0a00000000000000000000000000000000000000")
	rec := seedStake(t, store, a, time.Now().UTC())

	_, err := store.Liquidate(ctx, a, rec.ID, func(*domain.Stake) error {
		return domain.ErrTransferFailed
	})
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	bal, err := store.Balance(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "100", bal.String())

	got, err := store.GetStake(ctx, a, rec.ID)
	require.NoError(t, err)
	assert.False(t, got.Liquidated)
}

func TestMemoryStoreFlagsStakeBeforeSettle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a := common.HexToAddress("0x0a00000000000000000000000000000000000000")
	rec := seedStake(t, store, a, time.Now().UTC())

	// The record handed to settle must already be closed, so nothing the
	// outward push triggers can spend the same stake again.
	settled := false
	_, err := store.Liquidate(ctx, a, rec.ID, func(s *domain.Stake) error {
		settled = true
		assert.True(t, s.Liquidated)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, settled)
}

func TestMemoryStoreSecondLiquidateDuringSettle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a := common.HexToAddress("0x0a00000000000000000000000000000000000000")
	rec := seedStake(t, store, a, time.Now().UTC())

	// A liquidation attempt issued while the first settle is still in flight
	// must wait for it and then observe the closed stake.
	second := make(chan error, 1)
	_, err := store.Liquidate(ctx, a, rec.ID, func(*domain.Stake) error {
		go func() {
			_, e := store.Liquidate(ctx, a, rec.ID, func(*domain.Stake) error { return nil })
			second <- e
		}()
		return nil
	})
	require.NoError(t, err)
	require.ErrorIs(t, <-second, domain.ErrAlreadyLiquidated)

	bal, err := store.Balance(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "0", bal.String())
}

func TestMemoryStoreClonesRecords(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a := common.HexToAddress("0x0a00000000000000000000000000000000000000")
	rec := seedStake(t, store, a, time.Now().UTC())

	// Mutating a returned record must not reach the stored copy.
	rec.Amount.SetInt64(999999)

	got, err := store.GetStake(ctx, a, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", got.Amount.String())
}
