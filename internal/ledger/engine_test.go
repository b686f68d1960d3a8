package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakevault/internal/domain"
	"github.com/alanyoungcy/stakevault/internal/vault"
)

var (
	testHolder  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testCustody = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
)

func newTestEngine(t *testing.T) (*Engine, *vault.MemoryVault) {
	t.Helper()
	v := vault.NewMemoryVault(testCustody)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(NewMemoryStore(), v, logger), v
}

func fund(v *vault.MemoryVault, holder common.Address, amount int64) {
	v.Mint(holder, big.NewInt(amount))
	v.Approve(holder, big.NewInt(amount))
}

func TestStakeAndBalance(t *testing.T) {
	eng, v := newTestEngine(t)
	ctx := context.Background()
	fund(v, testHolder, 1500)

	first, err := eng.Stake(ctx, testHolder, big.NewInt(1000), 90)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.ID)
	assert.Equal(t, "1000", first.Amount.String())
	assert.Equal(t, "50", first.Reward.String())
	assert.False(t, first.Liquidated)

	second, err := eng.Stake(ctx, testHolder, big.NewInt(500), 30)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.ID)

	bal, err := eng.Balance(ctx, testHolder)
	require.NoError(t, err)
	assert.Equal(t, "1500", bal.String())

	custody, err := v.BalanceOf(ctx, testCustody)
	require.NoError(t, err)
	assert.Equal(t, "1500", custody.String())
}

func TestStakeValidation(t *testing.T) {
	eng, v := newTestEngine(t)
	ctx := context.Background()
	fund(v, testHolder, 1000)

	_, err := eng.Stake(ctx, common.Address{}, big.NewInt(100), 30)
	assert.ErrorIs(t, err, domain.ErrZeroAddress)

	_, err = eng.Stake(ctx, testHolder, big.NewInt(100), 45)
	assert.ErrorIs(t, err, domain.ErrInvalidDuration)

	_, err = eng.Stake(ctx, testHolder, big.NewInt(0), 30)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = eng.Stake(ctx, testHolder, nil, 30)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// No state leaked from the rejections.
	bal, err := eng.Balance(ctx, testHolder)
	require.NoError(t, err)
	assert.Equal(t, "0", bal.String())
}

func TestStakeInsufficientFundsAndAllowance(t *testing.T) {
	eng, v := newTestEngine(t)
	ctx := context.Background()

	v.Mint(testHolder, big.NewInt(50))
	v.Approve(testHolder, big.NewInt(1000))
	_, err := eng.Stake(ctx, testHolder, big.NewInt(100), 30)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	v.Mint(testHolder, big.NewInt(1000))
	v.Approve(testHolder, big.NewInt(10))
	_, err = eng.Stake(ctx, testHolder, big.NewInt(100), 30)
	assert.ErrorIs(t, err, domain.ErrInsufficientAllowance)
}

func TestLiquidateEarlyForfeitsReward(t *testing.T) {
	eng, v := newTestEngine(t)
	ctx := context.Background()
	fund(v, testHolder, 1000)

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	eng.SetClock(func() time.Time { return created })

	stake, err := eng.Stake(ctx, testHolder, big.NewInt(1000), 90)
	require.NoError(t, err)
	require.Equal(t, "50", stake.Reward.String())

	// One second short of the cliff still pays principal only.
	eng.SetClock(func() time.Time { return stake.MaturesAt().Add(-time.Second) })

	closed, payout, err := eng.Liquidate(ctx, testHolder, stake.ID)
	require.NoError(t, err)
	assert.Equal(t, "1000", payout.String())
	assert.True(t, closed.Liquidated)

	bal, err := v.BalanceOf(ctx, testHolder)
	require.NoError(t, err)
	assert.Equal(t, "1000", bal.String())
}

func TestLiquidateAtMaturityPaysReward(t *testing.T) {
	eng, v := newTestEngine(t)
	ctx := context.Background()
	fund(v, testHolder, 1000)
	// Custody needs to cover the reward on top of the pulled principal.
	v.Mint(testCustody, big.NewInt(50))

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	eng.SetClock(func() time.Time { return created })

	stake, err := eng.Stake(ctx, testHolder, big.NewInt(1000), 90)
	require.NoError(t, err)

	// Exactly at the cliff the stake is mature.
	eng.SetClock(func() time.Time { return stake.MaturesAt() })

	_, payout, err := eng.Liquidate(ctx, testHolder, stake.ID)
	require.NoError(t, err)
	assert.Equal(t, "1050", payout.String())

	ledgerBal, err := eng.Balance(ctx, testHolder)
	require.NoError(t, err)
	assert.Equal(t, "0", ledgerBal.String())
}

func TestLiquidateTwice(t *testing.T) {
	eng, v := newTestEngine(t)
	ctx := context.Background()
	fund(v, testHolder, 100)

	stake, err := eng.Stake(ctx, testHolder, big.NewInt(100), 30)
	require.NoError(t, err)

	_, _, err = eng.Liquidate(ctx, testHolder, stake.ID)
	require.NoError(t, err)

	_, _, err = eng.Liquidate(ctx, testHolder, stake.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyLiquidated)
}

func TestLiquidateUnknownID(t *testing.T) {
	eng, v := newTestEngine(t)
	ctx := context.Background()
	fund(v, testHolder, 100)

	_, err := eng.Stake(ctx, testHolder, big.NewInt(100), 30)
	require.NoError(t, err)

	_, _, err = eng.Liquidate(ctx, testHolder, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidStakeID)

	_, _, err = eng.Liquidate(ctx, testHolder, 99)
	assert.ErrorIs(t, err, domain.ErrInvalidStakeID)
}

func TestLiquidatePushFailureRollsBack(t *testing.T) {
	eng, v := newTestEngine(t)
	ctx := context.Background()
	fund(v, testHolder, 1000)

	stake, err := eng.Stake(ctx, testHolder, big.NewInt(1000), 60)
	require.NoError(t, err)

	v.SetPushFailure(errors.New("rpc timeout"))
	_, _, err = eng.Liquidate(ctx, testHolder, stake.ID)
	assert.ErrorIs(t, err, domain.ErrTransferFailed)

	// The ledger mutation was reverted with the failed push.
	bal, err := eng.Balance(ctx, testHolder)
	require.NoError(t, err)
	assert.Equal(t, "1000", bal.String())

	got, err := eng.GetStake(ctx, testHolder, stake.ID)
	require.NoError(t, err)
	assert.False(t, got.Liquidated)

	// Clearing the fault lets the same liquidation go through.
	v.SetPushFailure(nil)
	_, payout, err := eng.Liquidate(ctx, testHolder, stake.ID)
	require.NoError(t, err)
	assert.Equal(t, "1000", payout.String())
}

func TestStakeIDsNeverReused(t *testing.T) {
	eng, v := newTestEngine(t)
	ctx := context.Background()
	fund(v, testHolder, 400)

	for i := 0; i < 3; i++ {
		_, err := eng.Stake(ctx, testHolder, big.NewInt(100), 30)
		require.NoError(t, err)
	}
	_, _, err := eng.Liquidate(ctx, testHolder, 2)
	require.NoError(t, err)

	// Re-approve the pushed-back principal so it can be staked again.
	v.Approve(testHolder, big.NewInt(200))
	next, err := eng.Stake(ctx, testHolder, big.NewInt(100), 30)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), next.ID)

	stakes, err := eng.ListStakes(ctx, testHolder)
	require.NoError(t, err)
	require.Len(t, stakes, 4)
	assert.True(t, stakes[1].Liquidated)
	assert.False(t, stakes[3].Liquidated)
}

func TestBalancePerHolder(t *testing.T) {
	eng, v := newTestEngine(t)
	ctx := context.Background()
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	fund(v, testHolder, 300)
	fund(v, other, 700)

	_, err := eng.Stake(ctx, testHolder, big.NewInt(300), 60)
	require.NoError(t, err)
	_, err = eng.Stake(ctx, other, big.NewInt(700), 90)
	require.NoError(t, err)

	bal, err := eng.Balance(ctx, testHolder)
	require.NoError(t, err)
	assert.Equal(t, "300", bal.String())

	bal, err = eng.Balance(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, "700", bal.String())
}
