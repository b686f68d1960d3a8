// Package vault implements the domain.AssetVault capability: how value moves
// into and out of custody. Three variants exist: native chain currency,
// ERC-20 token, and an in-process vault for tests and development.
package vault

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/stakevault/internal/domain"
)

// MemoryVault is an in-process asset vault with explicit balances and
// allowances. It backs the "memory" asset mode and the engine tests, and
// enforces the same insufficient-funds / insufficient-allowance checks as
// the token variant.
type MemoryVault struct {
	mu         sync.Mutex
	custody    common.Address
	balances   map[common.Address]*big.Int
	allowances map[common.Address]*big.Int // owner -> amount approved to custody
	pushErr    error
}

// NewMemoryVault creates a MemoryVault with the given custody address.
func NewMemoryVault(custody common.Address) *MemoryVault {
	return &MemoryVault{
		custody:    custody,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]*big.Int),
	}
}

// Kind reports the memory variant.
func (v *MemoryVault) Kind() domain.AssetKind {
	return domain.AssetMemory
}

// CustodyAddress returns the account holding custodied assets.
func (v *MemoryVault) CustodyAddress() common.Address {
	return v.custody
}

// Mint credits an account with funds. Test and development helper.
func (v *MemoryVault) Mint(account common.Address, amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balanceOf(account).Add(v.balanceOf(account), amount)
}

// Approve sets the amount custody may pull from owner.
func (v *MemoryVault) Approve(owner common.Address, amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.allowances[owner] = new(big.Int).Set(amount)
}

// SetPushFailure makes every subsequent Push fail with err until called with
// nil again. Used to exercise the liquidation rollback path.
func (v *MemoryVault) SetPushFailure(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pushErr = err
}

// BalanceOf returns the account's balance.
func (v *MemoryVault) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.balanceOf(account)), nil
}

// Allowance returns what custody may pull from owner.
func (v *MemoryVault) Allowance(_ context.Context, owner common.Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if a, ok := v.allowances[owner]; ok {
		return new(big.Int).Set(a), nil
	}
	return new(big.Int), nil
}

// Pull moves amount from the holder into custody, checking funds first and
// allowance second so each failure surfaces its own error.
func (v *MemoryVault) Pull(_ context.Context, from common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	bal := v.balanceOf(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("vault: balance %s < %s: %w", bal, amount, domain.ErrInsufficientFunds)
	}

	allowance, ok := v.allowances[from]
	if !ok || allowance.Cmp(amount) < 0 {
		return fmt.Errorf("vault: allowance below %s: %w", amount, domain.ErrInsufficientAllowance)
	}

	bal.Sub(bal, amount)
	allowance.Sub(allowance, amount)
	v.balanceOf(v.custody).Add(v.balanceOf(v.custody), amount)
	return nil
}

// Push moves amount from custody to the recipient.
func (v *MemoryVault) Push(_ context.Context, to common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pushErr != nil {
		return v.pushErr
	}

	bal := v.balanceOf(v.custody)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("vault: custody balance %s < %s: %w", bal, amount, domain.ErrInsufficientFunds)
	}
	bal.Sub(bal, amount)
	v.balanceOf(to).Add(v.balanceOf(to), amount)
	return nil
}

func (v *MemoryVault) balanceOf(account common.Address) *big.Int {
	b, ok := v.balances[account]
	if !ok {
		b = new(big.Int)
		v.balances[account] = b
	}
	return b
}

// Compile-time interface check.
var _ domain.AssetVault = (*MemoryVault)(nil)
