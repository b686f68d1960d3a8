package vault

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/stakevault/internal/chain"
	vcrypto "github.com/alanyoungcy/stakevault/internal/crypto"
	"github.com/alanyoungcy/stakevault/internal/domain"
)

// NativeVault moves the chain's native currency. The pull side of a native
// stake is the deposit transaction the holder already sent to the custody
// address: Credit verifies that transfer on chain and records it, and Pull
// then consumes the recorded credit, so the pull cannot fail independently of
// the deposit having succeeded. Push signs and submits a value transfer from
// the custody account.
type NativeVault struct {
	client   *chain.Client
	signer   *vcrypto.TxSigner
	deposits domain.DepositStore // nil disables durable replay protection
	audit    domain.AuditStore   // nil disables the audit trail
	logger   *slog.Logger

	mu      sync.Mutex
	credits map[common.Address]*big.Int
	seen    map[common.Hash]bool // deposit txs credited by this process
}

// NewNativeVault creates a NativeVault settling through the given chain
// client and custody signer. Consumed deposit hashes are recorded in the
// deposit store so a restart cannot re-credit them; credits are mirrored to
// the audit store.
func NewNativeVault(client *chain.Client, signer *vcrypto.TxSigner, deposits domain.DepositStore, audit domain.AuditStore, logger *slog.Logger) *NativeVault {
	return &NativeVault{
		client:   client,
		signer:   signer,
		deposits: deposits,
		audit:    audit,
		logger:   logger.With(slog.String("component", "native_vault")),
		credits:  make(map[common.Address]*big.Int),
		seen:     make(map[common.Hash]bool),
	}
}

// Kind reports the native variant.
func (v *NativeVault) Kind() domain.AssetKind {
	return domain.AssetNative
}

// CustodyAddress returns the custody account.
func (v *NativeVault) CustodyAddress() common.Address {
	return v.signer.Address()
}

// Credit verifies the deposit transaction on chain and records its value as
// available to stake for the sender. A deposit hash is only ever credited
// once.
func (v *NativeVault) Credit(ctx context.Context, depositTx common.Hash) (common.Address, *big.Int, error) {
	dep, err := v.client.VerifyDeposit(ctx, depositTx, v.signer.Address())
	if err != nil {
		return common.Address{}, nil, err
	}
	if err := v.credit(ctx, dep); err != nil {
		return common.Address{}, nil, err
	}
	return dep.From, dep.Amount, nil
}

// credit records a verified deposit exactly once. The durable consume runs
// before the in-memory accrual, so a hash that was credited by an earlier
// process is rejected here too.
func (v *NativeVault) credit(ctx context.Context, dep *chain.Deposit) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.seen[dep.TxHash] {
		return fmt.Errorf("vault: deposit %s: %w", dep.TxHash.Hex(), domain.ErrDepositConsumed)
	}
	if v.deposits != nil {
		if err := v.deposits.Consume(ctx, dep.TxHash); err != nil {
			return fmt.Errorf("vault: deposit %s: %w", dep.TxHash.Hex(), err)
		}
	}
	v.seen[dep.TxHash] = true
	v.creditOf(dep.From).Add(v.creditOf(dep.From), dep.Amount)

	if v.audit != nil {
		err := v.audit.Log(ctx, "deposit.credited", map[string]any{
			"holder": strings.ToLower(dep.From.Hex()),
			"amount": dep.Amount.String(),
			"tx":     strings.ToLower(dep.TxHash.Hex()),
		})
		if err != nil {
			v.logger.WarnContext(ctx, "audit log failed",
				slog.String("event", "deposit.credited"),
				slog.String("error", err.Error()),
			)
		}
	}

	v.logger.InfoContext(ctx, "deposit credited",
		slog.String("holder", dep.From.Hex()),
		slog.String("amount", dep.Amount.String()),
		slog.String("tx", dep.TxHash.Hex()),
	)
	return nil
}

// BalanceOf returns the account's native balance on chain.
func (v *NativeVault) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return v.client.BalanceAt(ctx, account)
}

// Allowance reports the holder's verified, not-yet-staked deposit credit.
// The native variant has no on-chain allowance concept.
func (v *NativeVault) Allowance(_ context.Context, owner common.Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.creditOf(owner)), nil
}

// Pull consumes amount from the holder's verified deposit credit. The value
// is already in custody; a missing credit means no matching deposit was
// attached to the stake request.
func (v *NativeVault) Pull(_ context.Context, from common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	credit := v.creditOf(from)
	if credit.Cmp(amount) < 0 {
		return fmt.Errorf("vault: deposit credit %s < %s: %w", credit, amount, domain.ErrInsufficientFunds)
	}
	credit.Sub(credit, amount)
	return nil
}

// Push sends amount of native value from custody to the recipient and waits
// for the transfer to be mined.
func (v *NativeVault) Push(ctx context.Context, to common.Address, amount *big.Int) error {
	tx, err := v.client.BuildTx(ctx, chain.TxParams{
		From:  v.signer.Address(),
		To:    to,
		Value: amount,
	})
	if err != nil {
		return err
	}

	signed, err := v.signer.SignTx(tx)
	if err != nil {
		return err
	}

	if _, err := v.client.SendAndWait(ctx, signed); err != nil {
		return err
	}

	v.logger.InfoContext(ctx, "native payout sent",
		slog.String("to", to.Hex()),
		slog.String("amount", amount.String()),
		slog.String("tx", signed.Hash().Hex()),
	)
	return nil
}

func (v *NativeVault) creditOf(account common.Address) *big.Int {
	c, ok := v.credits[account]
	if !ok {
		c = new(big.Int)
		v.credits[account] = c
	}
	return c
}

// Compile-time interface check.
var _ domain.AssetVault = (*NativeVault)(nil)
