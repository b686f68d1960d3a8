package vault

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakevault/internal/chain"
	"github.com/alanyoungcy/stakevault/internal/domain"
)

var (
	testDepositor = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testDepositTx = common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
)

// fakeDepositStore records consumed hashes like the postgres store does, but
// in a map that outlives individual vault instances.
type fakeDepositStore struct {
	consumed map[common.Hash]bool
}

func newFakeDepositStore() *fakeDepositStore {
	return &fakeDepositStore{consumed: make(map[common.Hash]bool)}
}

func (s *fakeDepositStore) Consume(_ context.Context, depositTx common.Hash) error {
	if s.consumed[depositTx] {
		return domain.ErrDepositConsumed
	}
	s.consumed[depositTx] = true
	return nil
}

type fakeAuditLog struct {
	entries []domain.AuditEntry
}

func (a *fakeAuditLog) Log(_ context.Context, event string, detail map[string]any) error {
	a.entries = append(a.entries, domain.AuditEntry{Event: event, Detail: detail})
	return nil
}

func (a *fakeAuditLog) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return a.entries, nil
}

func newNativeForTest(t *testing.T, deposits domain.DepositStore, audit domain.AuditStore) *NativeVault {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewNativeVault(nil, nil, deposits, audit, logger)
}

func testDeposit(amount int64) *chain.Deposit {
	return &chain.Deposit{
		From:   testDepositor,
		Amount: big.NewInt(amount),
		TxHash: testDepositTx,
	}
}

func TestNativeCreditAccruesAndAudits(t *testing.T) {
	ctx := context.Background()
	audit := &fakeAuditLog{}
	v := newNativeForTest(t, newFakeDepositStore(), audit)

	require.NoError(t, v.credit(ctx, testDeposit(100)))

	allowance, err := v.Allowance(ctx, testDepositor)
	require.NoError(t, err)
	assert.Equal(t, "100", allowance.String())

	require.Len(t, audit.entries, 1)
	assert.Equal(t, "deposit.credited", audit.entries[0].Event)
	assert.Equal(t, "100", audit.entries[0].Detail["amount"])
	assert.Equal(t, testDepositTx.Hex(), audit.entries[0].Detail["tx"])
}

func TestNativeCreditRejectsReplay(t *testing.T) {
	ctx := context.Background()
	audit := &fakeAuditLog{}
	v := newNativeForTest(t, newFakeDepositStore(), audit)

	require.NoError(t, v.credit(ctx, testDeposit(100)))

	err := v.credit(ctx, testDeposit(100))
	require.ErrorIs(t, err, domain.ErrDepositConsumed)

	allowance, err := v.Allowance(ctx, testDepositor)
	require.NoError(t, err)
	assert.Equal(t, "100", allowance.String())
	assert.Len(t, audit.entries, 1)
}

func TestNativeCreditRejectsReplayAfterRestart(t *testing.T) {
	ctx := context.Background()
	store := newFakeDepositStore()

	v1 := newNativeForTest(t, store, nil)
	require.NoError(t, v1.credit(ctx, testDeposit(100)))

	// A fresh vault instance sharing the same deposit store stands in for the
	// process after a restart: its in-memory state is empty, but the durable
	// record still blocks the hash.
	v2 := newNativeForTest(t, store, nil)
	err := v2.credit(ctx, testDeposit(100))
	require.ErrorIs(t, err, domain.ErrDepositConsumed)

	allowance, err := v2.Allowance(ctx, testDepositor)
	require.NoError(t, err)
	assert.Equal(t, "0", allowance.String())
}

func TestNativeCreditWithoutStoreGuardsInProcess(t *testing.T) {
	ctx := context.Background()
	v := newNativeForTest(t, nil, nil)

	require.NoError(t, v.credit(ctx, testDeposit(100)))
	require.ErrorIs(t, v.credit(ctx, testDeposit(100)), domain.ErrDepositConsumed)
}

func TestNativePullConsumesCredit(t *testing.T) {
	ctx := context.Background()
	v := newNativeForTest(t, newFakeDepositStore(), nil)
	require.NoError(t, v.credit(ctx, testDeposit(100)))

	require.NoError(t, v.Pull(ctx, testDepositor, big.NewInt(60)))

	allowance, err := v.Allowance(ctx, testDepositor)
	require.NoError(t, err)
	assert.Equal(t, "40", allowance.String())

	err = v.Pull(ctx, testDepositor, big.NewInt(50))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
}
