package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakevault/internal/domain"
	"github.com/alanyoungcy/stakevault/internal/ledger"
	"github.com/alanyoungcy/stakevault/internal/vault"
)

var (
	testHolder  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testCustody = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
)

// fakeLocks records acquisitions and can simulate a held lock.
type fakeLocks struct {
	mu       sync.Mutex
	acquired []string
	held     bool
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.acquired = append(f.acquired, key)
	return func() {}, nil
}

// fakeBus captures published payloads per channel.
type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  [][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: make(map[string][][]byte)}
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (f *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamed = append(f.streamed, payload)
	return nil
}

func (f *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

// fakeAudit records log calls.
type fakeAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (f *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, domain.AuditEntry{Event: event, Detail: detail})
	return nil
}

func (f *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AuditEntry{}, f.entries...), nil
}

func newServiceFixture(t *testing.T) (*StakeService, *vault.MemoryVault, *fakeLocks, *fakeBus, *fakeAudit) {
	t.Helper()
	v := vault.NewMemoryVault(testCustody)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := ledger.New(ledger.NewMemoryStore(), v, logger)

	locks := &fakeLocks{}
	bus := newFakeBus()
	audit := &fakeAudit{}
	svc := NewStakeService(eng, locks, nil, bus, audit, nil, logger)
	return svc, v, locks, bus, audit
}

func TestStakePublishesAndAudits(t *testing.T) {
	svc, v, locks, bus, audit := newServiceFixture(t)
	ctx := context.Background()
	v.Mint(testHolder, big.NewInt(1000))
	v.Approve(testHolder, big.NewInt(1000))

	stake, err := svc.Stake(ctx, testHolder, big.NewInt(1000), 90)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stake.ID)

	require.Len(t, locks.acquired, 1)
	assert.Equal(t, "holder:0x1111111111111111111111111111111111111111", locks.acquired[0])

	require.Len(t, bus.published[domain.ChannelStakeOpened], 1)
	var opened domain.StakeOpenedEvent
	require.NoError(t, json.Unmarshal(bus.published[domain.ChannelStakeOpened][0], &opened))
	assert.Equal(t, testHolder, opened.Holder)
	assert.Equal(t, "1000", opened.Amount.String())

	// Every published event is mirrored to the durable stream.
	assert.Len(t, bus.streamed, 1)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, "stake.opened", audit.entries[0].Event)
	assert.Equal(t, "1000", audit.entries[0].Detail["amount"])
}

func TestLiquidateEventCarriesPrincipalOnly(t *testing.T) {
	svc, v, _, bus, audit := newServiceFixture(t)
	ctx := context.Background()
	v.Mint(testHolder, big.NewInt(1000))
	v.Approve(testHolder, big.NewInt(1000))

	stake, err := svc.Stake(ctx, testHolder, big.NewInt(1000), 90)
	require.NoError(t, err)

	_, payout, err := svc.Liquidate(ctx, testHolder, stake.ID)
	require.NoError(t, err)
	assert.Equal(t, "1000", payout.String())

	require.Len(t, bus.published[domain.ChannelStakeClosed], 1)
	var closed domain.StakeClosedEvent
	require.NoError(t, json.Unmarshal(bus.published[domain.ChannelStakeClosed][0], &closed))
	assert.Equal(t, "1000", closed.Amount.String())
	assert.True(t, closed.Early)

	require.Len(t, audit.entries, 2)
	assert.Equal(t, "stake.closed", audit.entries[1].Event)
	assert.Equal(t, true, audit.entries[1].Detail["early"])
}

func TestStakeFailsWhenLockHeld(t *testing.T) {
	svc, v, locks, bus, _ := newServiceFixture(t)
	ctx := context.Background()
	v.Mint(testHolder, big.NewInt(100))
	v.Approve(testHolder, big.NewInt(100))

	locks.held = true
	_, err := svc.Stake(ctx, testHolder, big.NewInt(100), 30)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Empty(t, bus.published)
}

func TestEngineErrorSkipsSideEffects(t *testing.T) {
	svc, _, _, bus, audit := newServiceFixture(t)
	ctx := context.Background()

	_, err := svc.Stake(ctx, testHolder, big.NewInt(100), 30)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Empty(t, bus.published)
	assert.Empty(t, audit.entries)
}

func TestNilSideEffectDepsAreOptional(t *testing.T) {
	v := vault.NewMemoryVault(testCustody)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := ledger.New(ledger.NewMemoryStore(), v, logger)
	svc := NewStakeService(eng, nil, nil, nil, nil, nil, logger)

	ctx := context.Background()
	v.Mint(testHolder, big.NewInt(100))
	v.Approve(testHolder, big.NewInt(100))

	stake, err := svc.Stake(ctx, testHolder, big.NewInt(100), 30)
	require.NoError(t, err)

	bal, err := svc.Balance(ctx, testHolder)
	require.NoError(t, err)
	assert.Equal(t, "100", bal.String())

	_, payout, err := svc.Liquidate(ctx, testHolder, stake.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", payout.String())
}
