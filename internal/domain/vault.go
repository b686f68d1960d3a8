package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetKind identifies how value enters and leaves custody.
type AssetKind string

const (
	// AssetNative moves the chain's native currency. Pull is implicit with
	// the inbound deposit; push sends value from the custody account.
	AssetNative AssetKind = "native"

	// AssetToken moves an ERC-20 token via a pre-authorized allowance.
	AssetToken AssetKind = "erc20"

	// AssetMemory is an in-process vault for tests and development.
	AssetMemory AssetKind = "memory"
)

// AssetVault abstracts the movement of value into and out of custody. The
// ledger engine never touches the asset directly; it only calls Pull before
// committing a stake and Push while settling a liquidation.
type AssetVault interface {
	// Kind reports which transfer mechanics this vault implements.
	Kind() AssetKind

	// BalanceOf returns the asset balance of the given account.
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)

	// Allowance returns the amount the owner has pre-authorized custody to
	// pull. Vaults without an allowance concept report the requested
	// owner's full balance.
	Allowance(ctx context.Context, owner common.Address) (*big.Int, error)

	// Pull moves amount from the holder into custody. It fails with
	// ErrInsufficientFunds or ErrInsufficientAllowance before moving
	// anything; no partial transfer is possible.
	Pull(ctx context.Context, from common.Address, amount *big.Int) error

	// Push moves amount from custody to the recipient. A failure must be
	// reported explicitly; callers treat it as ErrTransferFailed and roll
	// back the enclosing operation.
	Push(ctx context.Context, to common.Address, amount *big.Int) error

	// CustodyAddress returns the account holding custodied assets.
	CustodyAddress() common.Address
}
