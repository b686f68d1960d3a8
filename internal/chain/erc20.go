package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// erc20ABI is the minimal ERC-20 fragment the vault exercises. Mint, burn,
// decimals, and supply are opaque to the ledger and deliberately absent.
const erc20ABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transferFrom","type":"function","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// ERC20 binds the minimal token interface at a fixed contract address.
type ERC20 struct {
	client *Client
	token  common.Address
	abi    abi.ABI
}

// NewERC20 creates a binding for the token contract at addr.
func NewERC20(client *Client, addr common.Address) (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse erc20 abi: %w", err)
	}
	return &ERC20{client: client, token: addr, abi: parsed}, nil
}

// Address returns the bound token contract address.
func (t *ERC20) Address() common.Address {
	return t.token
}

// BalanceOf reads the token balance of account.
func (t *ERC20) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return t.callUint(ctx, "balanceOf", account)
}

// Allowance reads the amount spender may pull from owner.
func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return t.callUint(ctx, "allowance", owner, spender)
}

// TransferTx builds an unsigned transfer(to, amount) transaction from the
// given sender.
func (t *ERC20) TransferTx(ctx context.Context, from, to common.Address, amount *big.Int) (*types.Transaction, error) {
	data, err := t.abi.Pack("transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack transfer: %w", err)
	}
	return t.client.BuildTx(ctx, TxParams{From: from, To: t.token, Value: new(big.Int), Data: data})
}

// TransferFromTx builds an unsigned transferFrom(owner, to, amount)
// transaction submitted by the spender.
func (t *ERC20) TransferFromTx(ctx context.Context, spender, owner, to common.Address, amount *big.Int) (*types.Transaction, error) {
	data, err := t.abi.Pack("transferFrom", owner, to, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack transferFrom: %w", err)
	}
	return t.client.BuildTx(ctx, TxParams{From: spender, To: t.token, Value: new(big.Int), Data: data})
}

func (t *ERC20) callUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	data, err := t.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}

	raw, err := t.client.CallContract(ctx, t.token, data)
	if err != nil {
		return nil, fmt.Errorf("chain: %s: %w", method, err)
	}

	out, err := t.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("chain: %s: unexpected output arity %d", method, len(out))
	}
	val, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: %s: unexpected output type %T", method, out[0])
	}
	return val, nil
}
