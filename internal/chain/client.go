// Package chain wraps the go-ethereum RPC client with the narrow surface the
// asset vaults need: balance reads, contract calls, transaction submission,
// and deposit verification.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// receiptPollInterval is how often WaitMined polls for a receipt.
const receiptPollInterval = 2 * time.Second

// ClientConfig holds connection parameters for the chain client.
type ClientConfig struct {
	RPCURL  string
	ChainID int64
}

// Client wraps an ethclient.Client together with the chain id used for
// transaction signing and sender recovery.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
}

// Dial connects to the configured RPC endpoint and verifies that the remote
// chain id matches the configured one.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	remote, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: query chain id: %w", err)
	}
	if cfg.ChainID != 0 && remote.Int64() != cfg.ChainID {
		eth.Close()
		return nil, fmt.Errorf("chain: chain id mismatch: configured %d, node reports %s", cfg.ChainID, remote)
	}

	return &Client{eth: eth, chainID: remote}, nil
}

// ChainID returns the connected chain's id.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// BalanceAt returns the native balance of the account at the latest block.
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: balance of %s: %w", account.Hex(), err)
	}
	return bal, nil
}

// CallContract executes a read-only contract call at the latest block.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s: %w", to.Hex(), err)
	}
	return out, nil
}

// TxParams carries everything needed to assemble an unsigned transaction.
type TxParams struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
}

// BuildTx assembles an unsigned legacy transaction with the next pending
// nonce, a suggested gas price, and an estimated gas limit.
func (c *Client) BuildTx(ctx context.Context, p TxParams) (*types.Transaction, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, p.From)
	if err != nil {
		return nil, fmt.Errorf("chain: pending nonce for %s: %w", p.From.Hex(), err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: suggest gas price: %w", err)
	}

	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  p.From,
		To:    &p.To,
		Value: p.Value,
		Data:  p.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("chain: estimate gas: %w", err)
	}

	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &p.To,
		Value:    p.Value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     p.Data,
	}), nil
}

// SendAndWait submits a signed transaction and blocks until it is mined,
// returning an error when the receipt reports a failed execution.
func (c *Client) SendAndWait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("chain: send tx %s: %w", tx.Hash().Hex(), err)
	}

	receipt, err := c.waitMined(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("chain: tx %s reverted", tx.Hash().Hex())
	}
	return receipt, nil
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if err != ethereum.NotFound {
			return nil, fmt.Errorf("chain: receipt for %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chain: wait for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Deposit describes a confirmed native-value transfer.
type Deposit struct {
	From   common.Address
	To     common.Address
	Amount *big.Int
	TxHash common.Hash
}

// VerifyDeposit loads the transaction with the given hash and confirms that
// it is mined, succeeded, and transferred native value to the expected
// custody address. It returns the sender and value observed on chain.
func (c *Client) VerifyDeposit(ctx context.Context, txHash common.Hash, custody common.Address) (*Deposit, error) {
	tx, pending, err := c.eth.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("chain: deposit tx %s: %w", txHash.Hex(), err)
	}
	if pending {
		return nil, fmt.Errorf("chain: deposit tx %s not yet mined", txHash.Hex())
	}
	if tx.To() == nil || *tx.To() != custody {
		return nil, fmt.Errorf("chain: deposit tx %s not addressed to custody", txHash.Hex())
	}

	receipt, err := c.eth.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("chain: deposit receipt %s: %w", txHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("chain: deposit tx %s reverted", txHash.Hex())
	}

	sender, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return nil, fmt.Errorf("chain: recover deposit sender: %w", err)
	}

	return &Deposit{
		From:   sender,
		To:     custody,
		Amount: tx.Value(),
		TxHash: txHash,
	}, nil
}
